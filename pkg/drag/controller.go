// Package drag repositions the overlay photo inside the template's allowed bounds.
package drag

import (
	"github.com/menta2k/certificate-composer/pkg/layout"
	"github.com/menta2k/certificate-composer/pkg/types"
)

// State of a drag gesture.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// Controller tracks whether the photo is being dragged and where it sits.
// The position always satisfies the layout clamp.
type Controller struct {
	layout   layout.Layout
	state    State
	position types.Point
	offset   types.Point
}

// NewController creates a controller with the photo at the slot origin.
func NewController(l layout.Layout) *Controller {
	return &Controller{layout: l, position: l.Origin()}
}

// State returns the current gesture state.
func (c *Controller) State() State { return c.state }

// Position returns the top-left of the photo in canvas space.
func (c *Controller) Position() types.Point { return c.position }

// Reset puts the photo back at the slot origin and ends any gesture.
func (c *Controller) Reset() {
	c.state = Idle
	c.position = c.layout.Origin()
	c.offset = types.Point{}
}

// Bounds returns the rectangle currently covered by the photo.
// The rendered photo is always slot-sized.
func (c *Controller) Bounds() types.Rect {
	return types.Rect{
		X:      c.position.X,
		Y:      c.position.Y,
		Width:  c.layout.Slot.Width,
		Height: c.layout.Slot.Height,
	}
}

// Down starts a drag when p hits the photo. It reports whether dragging started.
func (c *Controller) Down(p types.Point) bool {
	if !c.Bounds().Contains(p) {
		return false
	}
	c.state = Dragging
	c.offset = p.Sub(c.position)
	return true
}

// Move follows the pointer while dragging and reports whether the position was updated.
func (c *Controller) Move(p types.Point) bool {
	if c.state != Dragging {
		return false
	}
	c.position = c.layout.Clamp(p.Sub(c.offset))
	return true
}

// Up ends the gesture unconditionally.
func (c *Controller) Up() {
	c.state = Idle
}
