// Package suggest proposes a crop rectangle for an uploaded photo.
//
// Suggestions are in source pixel space and already have the aspect ratio of the photo
// slot, so confirming one fills the slot without padding bands.
package suggest

import (
	"context"
	"errors"
	"image"
	"math"
)

var (
	// ErrEmptyImage is returned for images without pixels.
	ErrEmptyImage = errors.New("suggest: empty image")
	// ErrNoSubject is returned when no subject could be located.
	ErrNoSubject = errors.New("suggest: no subject found")
)

// Suggester proposes a crop for img, in img's pixel space relative to its origin.
type Suggester interface {
	Suggest(ctx context.Context, img image.Image) (image.Rectangle, error)
}

// FitAspect grows r around its centre until width/height equals aspect, shrinking it
// again if needed so that it fits inside a w x h image, then shifts it inside.
func FitAspect(r image.Rectangle, aspect float64, w, h int) image.Rectangle {
	bounds := image.Rect(0, 0, w, h)
	if aspect <= 0 || r.Empty() {
		return r.Intersect(bounds)
	}
	fw, fh := float64(w), float64(h)
	cx := float64(r.Min.X+r.Max.X) / 2
	cy := float64(r.Min.Y+r.Max.Y) / 2
	rw, rh := float64(r.Dx()), float64(r.Dy())

	if rw/rh < aspect {
		rw = rh * aspect
	} else {
		rh = rw / aspect
	}
	if rw > fw {
		rw, rh = fw, fw/aspect
	}
	if rh > fh {
		rw, rh = fh*aspect, fh
	}

	x0 := clamp(cx-rw/2, 0, fw-rw)
	y0 := clamp(cy-rh/2, 0, fh-rh)
	return image.Rect(
		int(math.Round(x0)),
		int(math.Round(y0)),
		int(math.Round(x0+rw)),
		int(math.Round(y0+rh)),
	).Intersect(bounds)
}

// Pad grows r by ratio of its size on every side.
func Pad(r image.Rectangle, ratio float64) image.Rectangle {
	dx := int(math.Round(float64(r.Dx()) * ratio))
	dy := int(math.Round(float64(r.Dy()) * ratio))
	return image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy)
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
