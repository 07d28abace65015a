// Package fitter scales a raster uniformly into a target box and centers it.
package fitter

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

// Fit describes how a source of a given size is placed inside a box.
type Fit struct {
	Scale      float64
	DrawWidth  float64
	DrawHeight float64
	OffsetX    float64
	OffsetY    float64
}

// FitToBox computes the uniform scale that fits source into box and the offsets that center it.
// The scale is not clamped to 1: a small source is enlarged until one axis touches the box.
func FitToBox(sourceWidth, sourceHeight, boxWidth, boxHeight float64) Fit {
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return Fit{OffsetX: boxWidth / 2, OffsetY: boxHeight / 2}
	}
	scale := math.Min(boxWidth/sourceWidth, boxHeight/sourceHeight)
	return place(sourceWidth, sourceHeight, boxWidth, boxHeight, scale)
}

// FitWithin is FitToBox with the scale capped at maxScale.
// Use maxScale 1 to never enlarge the source.
func FitWithin(sourceWidth, sourceHeight, boxWidth, boxHeight, maxScale float64) Fit {
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return Fit{OffsetX: boxWidth / 2, OffsetY: boxHeight / 2}
	}
	scale := math.Min(boxWidth/sourceWidth, boxHeight/sourceHeight)
	if maxScale > 0 && scale > maxScale {
		scale = maxScale
	}
	return place(sourceWidth, sourceHeight, boxWidth, boxHeight, scale)
}

func place(sw, sh, bw, bh, scale float64) Fit {
	dw := sw * scale
	dh := sh * scale
	return Fit{
		Scale:      scale,
		DrawWidth:  dw,
		DrawHeight: dh,
		OffsetX:    (bw - dw) / 2,
		OffsetY:    (bh - dh) / 2,
	}
}

// Render returns a boxWidth x boxHeight raster with src fitted and centered on a
// transparent background. The result size never depends on the source aspect ratio.
func Render(src image.Image, boxWidth, boxHeight int) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("nil source image")
	}
	if boxWidth <= 0 || boxHeight <= 0 {
		return nil, fmt.Errorf("invalid target box %dx%d", boxWidth, boxHeight)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("invalid source dimensions %dx%d", b.Dx(), b.Dy())
	}

	fit := FitToBox(float64(b.Dx()), float64(b.Dy()), float64(boxWidth), float64(boxHeight))
	dst := image.NewNRGBA(image.Rect(0, 0, boxWidth, boxHeight))
	DrawFitted(dst, src, fit)
	return dst, nil
}

// DrawFitted scales src to the fit's draw size and composites it over dst at the fit offset.
func DrawFitted(dst draw.Image, src image.Image, fit Fit) {
	w := int(math.Round(fit.DrawWidth))
	h := int(math.Round(fit.DrawHeight))
	if w < 1 || h < 1 {
		return
	}
	scaled := src
	if b := src.Bounds(); b.Dx() != w || b.Dy() != h {
		scaled = imaging.Resize(src, w, h, imaging.Lanczos)
	}
	origin := dst.Bounds().Min.Add(image.Pt(int(math.Round(fit.OffsetX)), int(math.Round(fit.OffsetY))))
	sb := scaled.Bounds()
	draw.Draw(dst, image.Rectangle{Min: origin, Max: origin.Add(sb.Size())}, scaled, sb.Min, draw.Over)
}
