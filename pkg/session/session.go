// Package session orchestrates a certificate editing session.
//
// A Session owns all mutable state: the background, the uploaded photo and its rendered
// slot-sized version, the photo position, the captions and the crop selection. Input is
// fed in through the On* methods and crop actions; every state change redraws the canvas
// synchronously. Methods are safe for concurrent use; a mutex serialises them the way a
// single event loop would.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/certificate-composer/pkg/analyzer"
	"github.com/menta2k/certificate-composer/pkg/assets"
	"github.com/menta2k/certificate-composer/pkg/caption"
	"github.com/menta2k/certificate-composer/pkg/compositor"
	"github.com/menta2k/certificate-composer/pkg/crop"
	"github.com/menta2k/certificate-composer/pkg/drag"
	"github.com/menta2k/certificate-composer/pkg/fitter"
	"github.com/menta2k/certificate-composer/pkg/layout"
	"github.com/menta2k/certificate-composer/pkg/persist"
	"github.com/menta2k/certificate-composer/pkg/processing"
	"github.com/menta2k/certificate-composer/pkg/suggest"
	"github.com/menta2k/certificate-composer/pkg/typeface"
)

var (
	// ErrTaintedCanvas is returned by Export when the background came from another
	// origin without permission, so the canvas may not be read back.
	ErrTaintedCanvas = errors.New("session: canvas is tainted by a cross-origin background")
	// ErrNoBackground is returned by Export before anything was drawn.
	ErrNoBackground = errors.New("session: nothing to export yet")
	// ErrExportInProgress is returned when Export is called while another export runs.
	ErrExportInProgress = errors.New("session: export already in progress")
	// ErrNoSuggester is returned by SuggestCrop when no suggester is configured.
	ErrNoSuggester = errors.New("session: crop suggestions are not configured")
)

// DefaultFontTimeout bounds the wait for the caption font before the first paint.
const DefaultFontTimeout = 3 * time.Second

// Mode is the interaction mode. Dragging and cropping exclude each other.
type Mode int

const (
	Idle Mode = iota
	Dragging
	CroppingIdle
	CroppingSelecting
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case CroppingIdle:
		return "cropping-idle"
	case CroppingSelecting:
		return "cropping-selecting"
	default:
		return "unknown"
	}
}

// Cropping reports whether m is one of the crop modes.
func (m Mode) Cropping() bool { return m == CroppingIdle || m == CroppingSelecting }

// BackgroundLoader loads the template. It must always return a usable background.
type BackgroundLoader interface {
	Load(ctx context.Context, source string) (*assets.Background, error)
}

// Decoder turns uploaded bytes into an image.
type Decoder interface {
	Decode(data []byte) (image.Image, string, error)
}

// Options holds the session's collaborators. Zero values select the defaults.
type Options struct {
	Layout layout.Layout
	// Background is the template file path or URL.
	Background string
	Assets     BackgroundLoader
	// Font is an already started font load. When nil, FontPaths are loaded at Start.
	Font        *typeface.Pending
	FontPaths   []string
	FontSize    float64
	FontTimeout time.Duration
	Style       compositor.Style
	Decoder     Decoder
	Persister   persist.Persister
	Suggester   suggest.Suggester
	// Token identifies the certificate with the backend; empty disables persistence.
	Token  string
	Logger *slog.Logger
}

// Controls reports which actions the user interface should offer.
type Controls struct {
	CropEnabled        bool `json:"crop_enabled"`
	ExportEnabled      bool `json:"export_enabled"`
	CropButtonsVisible bool `json:"crop_buttons_visible"`
	Exporting          bool `json:"exporting"`
}

// Counters holds the advisory counters for both caption inputs.
type Counters struct {
	Donor    caption.CounterState `json:"donor"`
	Receiver caption.CounterState `json:"receiver"`
}

// Session is a certificate editing session.
type Session struct {
	mu     sync.Mutex
	opts   Options
	logger *slog.Logger
	layout layout.Layout

	comp       *compositor.Compositor
	background *assets.Background
	font       *typeface.Pending
	fontFinal  bool

	mode    Mode
	drag    *drag.Controller
	crop    *crop.Session
	caption caption.Caption

	original   image.Image
	cropRegion *image.Rectangle
	rendered   *image.NRGBA

	latest    uint64
	exporting bool
}

// New creates a session. Nothing is loaded until Start.
func New(opts Options) *Session {
	if opts.Layout == (layout.Layout{}) {
		opts.Layout = layout.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Assets == nil {
		opts.Assets = assets.NewLoader(assets.Options{Logger: opts.Logger})
	}
	if opts.Decoder == nil {
		opts.Decoder = analyzer.New()
	}
	if opts.FontTimeout <= 0 {
		opts.FontTimeout = DefaultFontTimeout
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 64
	}
	if opts.Style.TextColor == nil {
		opts.Style = compositor.DefaultStyle()
	}

	return &Session{
		opts:   opts,
		logger: opts.Logger,
		layout: opts.Layout,
		comp:   compositor.New(layout.FallbackWidth, layout.FallbackHeight, nil, opts.Style),
		drag:   drag.NewController(opts.Layout),
		crop:   crop.NewSession(),
	}
}

// Start loads the background and waits, bounded, for the caption font, then paints.
// Load failures fall back silently; only ctx cancellation is returned.
func (s *Session) Start(ctx context.Context) error {
	font := s.opts.Font
	if font == nil {
		font = typeface.Load(typeface.Options{Paths: s.opts.FontPaths, Size: s.opts.FontSize, Logger: s.logger})
	}

	var (
		bg   *assets.Background
		face typeface.Face
		ok   bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bg, err = s.opts.Assets.Load(gctx, s.opts.Background)
		if err != nil {
			s.logger.Warn("background load failed", "source", s.opts.Background, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		face, ok = font.Wait(gctx, s.opts.FontTimeout)
		if !ok {
			s.logger.Warn("caption font not ready, drawing with fallback", "timeout", s.opts.FontTimeout.String())
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.font = font
	s.fontFinal = ok
	s.background = bg
	if bg != nil {
		s.comp.Resize(bg.Width(), bg.Height())
	}
	s.comp.SetFace(face.Face)
	s.redraw()
	s.logger.Info("session started",
		"background", s.opts.Background,
		"fallback_background", bg != nil && bg.Fallback,
		"font", face.Source.String(),
	)
	return nil
}

// Mode returns the interaction mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Token returns the backend token, if any.
func (s *Session) Token() string { return s.opts.Token }

// CanvasSize returns the canvas bitmap size.
func (s *Session) CanvasSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comp.Size()
}

// Canvas returns a copy of the current canvas bitmap.
func (s *Session) Canvas() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.comp.Canvas()
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// Position returns the top-left of the photo in canvas space.
func (s *Session) Position() (x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.drag.Position()
	return p.X, p.Y
}

// HasPhoto reports whether a photo has been committed.
func (s *Session) HasPhoto() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendered != nil
}

// Original returns the committed full-resolution photo, or nil.
func (s *Session) Original() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.original
}

// CropRegion returns the confirmed crop in source pixels, if any.
func (s *Session) CropRegion() (image.Rectangle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cropRegion == nil {
		return image.Rectangle{}, false
	}
	return *s.cropRegion, true
}

// Controls reports which actions are currently available.
func (s *Session) Controls() Controls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Controls{
		CropEnabled:        s.original != nil && !s.mode.Cropping(),
		ExportEnabled:      (s.background != nil || s.rendered != nil) && !s.exporting,
		CropButtonsVisible: s.mode.Cropping(),
		Exporting:          s.exporting,
	}
}

// OnCaptionChanged stores new caption text, redraws and returns the counters.
func (s *Session) OnCaptionChanged(donor, receiver string) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caption = caption.Caption{Donor: donor, Receiver: receiver}
	s.redraw()
	return s.counters()
}

// Counters returns the advisory counters for the current caption text.
func (s *Session) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters()
}

func (s *Session) counters() Counters {
	return Counters{Donor: caption.Counter(s.caption.Donor), Receiver: caption.Counter(s.caption.Receiver)}
}

// Caption returns the caption as typed.
func (s *Session) Caption() caption.Caption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caption
}

// OnImageUploaded decodes data in the background. The result is committed only if no
// newer upload or crop has been requested meanwhile; a decode failure leaves the
// session unchanged.
func (s *Session) OnImageUploaded(data []byte) *Task {
	s.mu.Lock()
	s.latest++
	task := newTask(s.latest)
	slotW, slotH := s.layout.SlotSize()
	s.mu.Unlock()

	go func() {
		img, format, err := s.opts.Decoder.Decode(data)
		if err != nil {
			s.logger.Warn("photo decode failed", "request", task.id, "error", err)
			task.finish(false, fmt.Errorf("decode photo: %w", err))
			return
		}
		rendered, err := fitter.Render(img, slotW, slotH)
		if err != nil {
			s.logger.Warn("photo fit failed", "request", task.id, "error", err)
			task.finish(false, fmt.Errorf("fit photo: %w", err))
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if task.id != s.latest {
			s.logger.Debug("discarding stale upload", "request", task.id, "latest", s.latest)
			task.finish(false, ErrSuperseded)
			return
		}
		if s.mode.Cropping() {
			s.crop.Cancel()
		}
		if s.mode != Dragging {
			s.mode = Idle
		}
		s.original = img
		s.cropRegion = nil
		s.rendered = rendered
		s.redraw()
		s.logger.Info("photo uploaded", "request", task.id, "format", format,
			"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
		task.finish(true, nil)
	}()
	return task
}

// derive builds the slot-sized photo from the original and an optional crop region.
func derive(original image.Image, region *image.Rectangle, slotW, slotH int) (*image.NRGBA, error) {
	src := original
	if region != nil {
		cropped, err := processing.NewProcessor().Extract(original, *region)
		if err != nil {
			return nil, err
		}
		src = cropped
	}
	return fitter.Render(src, slotW, slotH)
}

// redraw repaints the canvas for the current mode. Callers hold the lock.
func (s *Session) redraw() {
	s.refreshFont()
	var bg image.Image
	if s.background != nil {
		bg = s.background.Image
	}
	if s.mode.Cropping() {
		scene := compositor.CropScene{
			Background: bg,
			Original:   s.original,
			Display:    s.crop.Display(),
		}
		if sel, ok := s.crop.Selection(); ok {
			scene.Selection = sel.Rect
		}
		s.comp.RenderCropPreview(scene)
		return
	}

	scene := compositor.Scene{
		Background: bg,
		Position:   s.drag.Position(),
		Lines:      s.caption.Lines(),
	}
	if s.rendered != nil {
		scene.Photo = s.rendered
	}
	s.comp.Render(scene)
}

// refreshFont switches to the loaded face if it finished after the first paint.
func (s *Session) refreshFont() {
	if s.fontFinal || s.font == nil || !s.font.Ready() {
		return
	}
	face, err := s.font.Result()
	if err != nil {
		s.logger.Debug("late font load fell back", "error", err)
	}
	s.comp.SetFace(face.Face)
	s.fontFinal = true
}

// TokenFromURL extracts the "token" query parameter from a page URL.
func TokenFromURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}
