package session

import (
	"context"
	"fmt"

	"github.com/menta2k/certificate-composer/pkg/caption"
	"github.com/menta2k/certificate-composer/pkg/coords"
	"github.com/menta2k/certificate-composer/pkg/crop"
	"github.com/menta2k/certificate-composer/pkg/types"
)

// DragHandleInset centres the 20px drag handle on the photo centre.
const DragHandleInset = 10

// OnPointerDown starts a drag or a crop selection depending on the mode.
func (s *Session) OnPointerDown(ev types.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.toCanvas(ev)

	switch s.mode {
	case CroppingIdle, CroppingSelecting:
		if s.crop.Down(p) {
			s.mode = CroppingSelecting
			s.redraw()
		}
	case Idle:
		if s.rendered == nil {
			return
		}
		if s.drag.Down(p) {
			s.mode = Dragging
		}
	}
}

// OnPointerMove extends the active gesture.
func (s *Session) OnPointerMove(ev types.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.toCanvas(ev)

	switch s.mode {
	case Dragging:
		if s.drag.Move(p) {
			s.redraw()
		}
	case CroppingSelecting:
		if s.crop.Move(p) {
			s.redraw()
		}
	}
}

// OnPointerUp ends the active gesture. A crop selection is kept.
func (s *Session) OnPointerUp(types.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case Dragging:
		s.drag.Up()
		s.mode = Idle
	case CroppingSelecting:
		s.crop.Up()
		s.mode = CroppingIdle
	}
}

func (s *Session) toCanvas(ev types.PointerEvent) types.Point {
	w, h := s.comp.Size()
	return coords.FromEvent(ev, w, h)
}

// StartCrop enters crop mode over the original photo.
func (s *Session) StartCrop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.original == nil {
		return crop.ErrNoImage
	}
	if s.mode == Dragging {
		s.drag.Up()
	}
	b := s.original.Bounds()
	w, h := s.comp.Size()
	if err := s.crop.Start(b.Dx(), b.Dy(), w, h); err != nil {
		return err
	}
	s.mode = CroppingIdle
	s.redraw()
	s.logger.Debug("crop started", "display", s.crop.Display())
	return nil
}

// ConfirmCrop applies the selection. An empty selection is rejected with
// crop.ErrEmptySelection and the session stays in crop mode.
func (s *Session) ConfirmCrop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mode.Cropping() {
		return crop.ErrNotActive
	}

	// Validate against a copy so a failed extraction leaves crop mode intact.
	probe := *s.crop
	region, err := probe.Confirm()
	if err != nil {
		return err
	}
	slotW, slotH := s.layout.SlotSize()
	rendered, err := derive(s.original, &region, slotW, slotH)
	if err != nil {
		return fmt.Errorf("apply crop: %w", err)
	}

	s.crop.Cancel()
	s.cropRegion = &region
	s.rendered = rendered
	s.mode = Idle
	// Uploads still decoding were requested before this crop and must not overwrite it.
	s.latest++
	s.redraw()
	s.logger.Info("crop applied", "region", region.String())
	return nil
}

// CancelCrop leaves crop mode without changing the photo.
func (s *Session) CancelCrop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mode.Cropping() {
		return
	}
	s.crop.Cancel()
	s.mode = Idle
	s.redraw()
}

// CropSelection returns the current selection in canvas space while cropping.
func (s *Session) CropSelection() (types.Rect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.crop.Selection()
	return sel.Rect, ok
}

// CropDisplay returns the crop preview box in canvas space.
func (s *Session) CropDisplay() types.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crop.Display()
}

// SuggestCrop asks the configured suggester for a crop of the original and installs it as
// the current selection. Crop mode must be active. The suggester runs without the lock; the
// answer is dropped if the photo or mode changed meanwhile.
func (s *Session) SuggestCrop(ctx context.Context) (types.Rect, error) {
	if s.opts.Suggester == nil {
		return types.Rect{}, ErrNoSuggester
	}

	s.mu.Lock()
	if !s.mode.Cropping() {
		s.mu.Unlock()
		return types.Rect{}, crop.ErrNotActive
	}
	original := s.original
	s.mu.Unlock()

	region, err := s.opts.Suggester.Suggest(ctx, original)
	if err != nil {
		return types.Rect{}, fmt.Errorf("suggest crop: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mode.Cropping() || s.original != original {
		return types.Rect{}, ErrSuperseded
	}
	r := s.crop.FromSource(types.RectFromImage(region))
	if err := s.crop.SetSelection(r); err != nil {
		return types.Rect{}, err
	}
	s.mode = CroppingIdle
	s.redraw()
	sel, _ := s.crop.Selection()
	s.logger.Debug("crop suggested", "source", region.String())
	return sel.Rect, nil
}

// DragHandle returns where the drag handle goes in client space, or false when there is
// no photo.
func (s *Session) DragHandle(vp types.Viewport) (types.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rendered == nil || s.mode.Cropping() {
		return types.Point{}, false
	}
	pos := s.drag.Position()
	centre := types.Point{X: pos.X + s.layout.Slot.Width/2, Y: pos.Y + s.layout.Slot.Height/2}
	w, h := s.comp.Size()
	c := coords.ToClientSpace(centre, vp, w, h)
	return types.Point{X: c.X - DragHandleInset, Y: c.Y - DragHandleInset}, true
}

// Reset forgets the photo, the crop and the caption, and puts the slot back at its origin.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	s.crop.Cancel()
	s.drag.Reset()
	s.mode = Idle
	s.original = nil
	s.cropRegion = nil
	s.rendered = nil
	s.caption = caption.Caption{}
	s.redraw()
}
