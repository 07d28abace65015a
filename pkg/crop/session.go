// Package crop implements rectangular crop selection over an enlarged preview of the photo.
//
// Three coordinate spaces are involved: canvas bitmap space (pointer positions), crop-display
// space (the preview box the original is drawn into, expressed in canvas pixels) and source
// space (pixels of the original upload). Selections are made in canvas space and mapped back
// into source space on confirmation.
package crop

import (
	"errors"
	"image"
	"math"

	"github.com/menta2k/certificate-composer/pkg/layout"
	"github.com/menta2k/certificate-composer/pkg/types"
)

var (
	// ErrNoImage is returned when cropping starts without an uploaded photo.
	ErrNoImage = errors.New("crop: no image to crop")
	// ErrNotActive is returned by operations that need an active crop session.
	ErrNotActive = errors.New("crop: not active")
	// ErrEmptySelection is returned when confirming a selection without area.
	ErrEmptySelection = errors.New("crop: please select an area to crop")
)

// State of the crop session.
type State int

const (
	Inactive State = iota
	ActiveIdle
	Selecting
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case ActiveIdle:
		return "active-idle"
	case Selecting:
		return "selecting"
	default:
		return "unknown"
	}
}

// Selection is the in-progress rectangle. Rect is the normalized box of Start and Current.
type Selection struct {
	Start   types.Point
	Current types.Point
	Rect    types.Rect
}

// Session is the crop state machine.
type Session struct {
	state      State
	sourceSize types.Size
	display    types.Rect
	selection  Selection
}

// NewSession returns an inactive session.
func NewSession() *Session {
	return &Session{}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Active reports whether crop mode is on.
func (s *Session) Active() bool { return s.state != Inactive }

// Display returns the crop-display box in canvas space.
func (s *Session) Display() types.Rect { return s.display }

// Selection returns the current selection and whether one exists.
func (s *Session) Selection() (Selection, bool) {
	if s.state == Inactive {
		return Selection{}, false
	}
	return s.selection, true
}

// Start enters crop mode for a source of the given size on a canvas of the given size.
func (s *Session) Start(sourceWidth, sourceHeight, canvasWidth, canvasHeight int) error {
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return ErrNoImage
	}
	s.sourceSize = types.Size{Width: float64(sourceWidth), Height: float64(sourceHeight)}
	s.display = layout.CropDisplay(s.sourceSize.Width, s.sourceSize.Height, canvasWidth, canvasHeight)
	s.selection = Selection{}
	s.state = ActiveIdle
	return nil
}

// Down begins a new selection at p, discarding any previous one.
func (s *Session) Down(p types.Point) bool {
	if s.state == Inactive {
		return false
	}
	s.selection = Selection{Start: p, Current: p, Rect: types.Rect{X: p.X, Y: p.Y}}
	s.state = Selecting
	return true
}

// Move extends the selection to p. It reports whether the selection changed.
func (s *Session) Move(p types.Point) bool {
	if s.state != Selecting {
		return false
	}
	s.selection.Current = p
	s.selection.Rect = types.NormalizeRect(s.selection.Start, p)
	return true
}

// Up finishes the gesture; the selection is kept.
func (s *Session) Up() bool {
	if s.state != Selecting {
		return false
	}
	s.state = ActiveIdle
	return true
}

// SetSelection replaces the selection with r (canvas space), clipped to the display box.
func (s *Session) SetSelection(r types.Rect) error {
	if s.state == Inactive {
		return ErrNotActive
	}
	r = r.Intersect(s.display)
	start := types.Point{X: r.X, Y: r.Y}
	end := types.Point{X: r.Right(), Y: r.Bottom()}
	s.selection = Selection{Start: start, Current: end, Rect: types.NormalizeRect(start, end)}
	s.state = ActiveIdle
	return nil
}

// Scale returns source pixels per display pixel on each axis.
func (s *Session) Scale() (float64, float64) {
	if s.display.Width <= 0 || s.display.Height <= 0 {
		return 1, 1
	}
	return s.sourceSize.Width / s.display.Width, s.sourceSize.Height / s.display.Height
}

// ToSource maps a canvas-space rectangle into source pixel space.
func (s *Session) ToSource(r types.Rect) types.Rect {
	sx, sy := s.Scale()
	return types.Rect{
		X:      (r.X - s.display.X) * sx,
		Y:      (r.Y - s.display.Y) * sy,
		Width:  r.Width * sx,
		Height: r.Height * sy,
	}
}

// FromSource maps a source-space rectangle into canvas space.
func (s *Session) FromSource(r types.Rect) types.Rect {
	sx, sy := s.Scale()
	return types.Rect{
		X:      r.X/sx + s.display.X,
		Y:      r.Y/sy + s.display.Y,
		Width:  r.Width / sx,
		Height: r.Height / sy,
	}
}

// Confirm validates the selection and returns it in source pixels, clamped to the source.
// On success the session becomes inactive; on error it stays active.
func (s *Session) Confirm() (image.Rectangle, error) {
	if s.state == Inactive {
		return image.Rectangle{}, ErrNotActive
	}
	if s.selection.Rect.Empty() {
		return image.Rectangle{}, ErrEmptySelection
	}
	src := s.ToSource(s.selection.Rect).Intersect(types.Rect{Width: s.sourceSize.Width, Height: s.sourceSize.Height})
	px := image.Rect(
		int(math.Round(src.X)),
		int(math.Round(src.Y)),
		int(math.Round(src.Right())),
		int(math.Round(src.Bottom())),
	).Intersect(image.Rect(0, 0, int(s.sourceSize.Width), int(s.sourceSize.Height)))
	if px.Empty() {
		return image.Rectangle{}, ErrEmptySelection
	}
	s.reset()
	return px, nil
}

// Cancel discards the selection and leaves crop mode from any state.
func (s *Session) Cancel() {
	s.reset()
}

func (s *Session) reset() {
	s.state = Inactive
	s.selection = Selection{}
}
