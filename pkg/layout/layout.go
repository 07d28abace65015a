// Package layout holds the calibration constants tied to the certificate template artwork.
//
// All values are pixel units in background (canvas bitmap) space. They are measured on the
// specific template asset and are not derived from its content at runtime.
package layout

import (
	"math"

	"github.com/menta2k/certificate-composer/pkg/fitter"
	"github.com/menta2k/certificate-composer/pkg/types"
)

// Template calibration for the stock certificate artwork.
const (
	PhotoLeft  = 324
	PhotoTop   = 429
	PhotoRight = 2156

	// The slot height is the measured frame height (783..2007) enlarged by 35% and then 17%.
	frameTop     = 783
	frameBottom  = 2007
	heightGrowth = 1.35 * 1.17

	// Canvas size used when the background artwork cannot be loaded.
	FallbackWidth  = 2480
	FallbackHeight = 3508

	// CropDisplayFraction bounds the crop preview to this share of the canvas on each axis.
	CropDisplayFraction = 0.8
)

// Layout describes where user content goes on the template.
type Layout struct {
	// Slot is the region reserved for the photo; its size is the rendered photo size.
	Slot types.Rect
	// PhotoAreaRight is the right edge the photo may be dragged up to.
	PhotoAreaRight float64
}

// Default returns the layout of the stock template.
func Default() Layout {
	return Layout{
		Slot: types.Rect{
			X:      PhotoLeft,
			Y:      PhotoTop,
			Width:  PhotoRight - PhotoLeft,
			Height: SlotHeight(),
		},
		PhotoAreaRight: PhotoRight,
	}
}

// SlotHeight returns round((2007-783) * 1.35 * 1.17), i.e. 1933.
func SlotHeight() float64 {
	return math.Round((frameBottom - frameTop) * heightGrowth)
}

// SlotSize returns the integer raster size of the photo slot.
func (l Layout) SlotSize() (int, int) {
	return int(math.Round(l.Slot.Width)), int(math.Round(l.Slot.Height))
}

// Origin returns the initial photo position: the slot's top-left corner.
func (l Layout) Origin() types.Point {
	return types.Point{X: l.Slot.X, Y: l.Slot.Y}
}

// Clamp keeps a photo position inside the drag bounds.
//
// Horizontally the photo stays within [slot.x, photoAreaRight-slot.width]. Vertically the
// top edge may travel from slot.y down to slot.y+slot.height, a full slot height of play.
func (l Layout) Clamp(p types.Point) types.Point {
	return types.Point{
		X: clamp(p.X, l.Slot.X, l.PhotoAreaRight-l.Slot.Width),
		Y: clamp(p.Y, l.Slot.Y, l.Slot.Y+l.Slot.Height),
	}
}

// CropDisplay returns the box a source of the given size occupies while cropping:
// at most 80% of the canvas on each axis, aspect preserved, never enlarged, centered.
func CropDisplay(sourceWidth, sourceHeight float64, canvasWidth, canvasHeight int) types.Rect {
	cw, ch := float64(canvasWidth), float64(canvasHeight)
	fit := fitter.FitWithin(sourceWidth, sourceHeight, cw*CropDisplayFraction, ch*CropDisplayFraction, 1)
	return types.Rect{
		X:      (cw - fit.DrawWidth) / 2,
		Y:      (ch - fit.DrawHeight) / 2,
		Width:  fit.DrawWidth,
		Height: fit.DrawHeight,
	}
}

// clamp computes max(lo, min(hi, v)); lo wins when the bounds cross.
func clamp(v, lo, hi float64) float64 {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
