// Package coords converts pointer positions between screen space and canvas bitmap space.
package coords

import "github.com/menta2k/certificate-composer/pkg/types"

// ToCanvasSpace maps a client-space pointer position to canvas bitmap pixels.
//
// The canvas may be displayed at a different size than its bitmap (responsive CSS
// sizing), so X and Y are scaled independently. The viewport must be the one observed
// for this event; callers should not cache it across events.
func ToCanvasSpace(clientX, clientY float64, vp types.Viewport, bitmapWidth, bitmapHeight int) types.Point {
	scaleX, scaleY := Scale(vp, bitmapWidth, bitmapHeight)
	return types.Point{
		X: (clientX - vp.Left) * scaleX,
		Y: (clientY - vp.Top) * scaleY,
	}
}

// FromEvent is ToCanvasSpace for a PointerEvent.
func FromEvent(ev types.PointerEvent, bitmapWidth, bitmapHeight int) types.Point {
	return ToCanvasSpace(ev.ClientX, ev.ClientY, ev.Viewport, bitmapWidth, bitmapHeight)
}

// Scale returns the bitmap-pixels-per-display-pixel factors for each axis.
// A collapsed display box yields a factor of 1 so callers never divide by zero.
func Scale(vp types.Viewport, bitmapWidth, bitmapHeight int) (scaleX, scaleY float64) {
	scaleX, scaleY = 1, 1
	if vp.DisplayWidth > 0 {
		scaleX = float64(bitmapWidth) / vp.DisplayWidth
	}
	if vp.DisplayHeight > 0 {
		scaleY = float64(bitmapHeight) / vp.DisplayHeight
	}
	return scaleX, scaleY
}

// ToClientSpace is the inverse of ToCanvasSpace.
func ToClientSpace(p types.Point, vp types.Viewport, bitmapWidth, bitmapHeight int) types.Point {
	scaleX, scaleY := Scale(vp, bitmapWidth, bitmapHeight)
	return types.Point{
		X: vp.Left + p.X/scaleX,
		Y: vp.Top + p.Y/scaleY,
	}
}
