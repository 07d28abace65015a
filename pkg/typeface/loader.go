// Package typeface loads the caption font in the background.
//
// Loading is one-shot and best-effort: the named display face is tried first, then each
// fallback file, then the embedded Go Regular face and finally the built-in bitmap face.
// Callers wait on a Pending with a bound and fall through to a fallback face when the
// load has not finished in time. A load is never retried.
package typeface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// ErrNotFound is reported when none of the configured font files could be loaded.
var ErrNotFound = errors.New("typeface: no configured font could be loaded")

// Source tells where a face came from.
type Source int

const (
	Primary Source = iota
	Fallback
	Embedded
	Bitmap
)

func (s Source) String() string {
	switch s {
	case Primary:
		return "primary"
	case Fallback:
		return "fallback"
	case Embedded:
		return "embedded"
	case Bitmap:
		return "bitmap"
	default:
		return "unknown"
	}
}

// Face is a loaded font face plus its provenance.
type Face struct {
	font.Face
	Path   string
	Source Source
}

// Options configures a load.
type Options struct {
	// Paths lists font files in priority order; the first is the display face.
	Paths []string
	// Size is the em size in pixels (72 DPI).
	Size   float64
	Logger *slog.Logger
	// Open defaults to os.Open.
	Open func(name string) (io.ReadCloser, error)
}

// Pending is an in-flight font load.
type Pending struct {
	done chan struct{}
	size float64
	face Face
	err  error
}

// Load starts loading in a goroutine and returns immediately.
func Load(opts Options) *Pending {
	p := newPending(opts.Size)
	go func() {
		defer close(p.done)
		p.face, p.err = resolve(opts)
	}()
	return p
}

// Resolved returns an already completed Pending holding face.
func Resolved(face Face) *Pending {
	p := newPending(0)
	p.face = face
	close(p.done)
	return p
}

func newPending(size float64) *Pending {
	return &Pending{done: make(chan struct{}), size: size}
}

// Done is closed when the load completes.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Ready reports whether the load has completed.
func (p *Pending) Ready() bool {
	select {
	case <-p.done:
		return true
	default:
	}
	return false
}

// Result returns the loaded face and the error that forced a fallback, if any.
// It must only be called once Ready reports true.
func (p *Pending) Result() (Face, error) {
	return p.face, p.err
}

// Wait blocks until the load completes, timeout elapses or ctx is done, whichever is
// first. When the load has not completed, the embedded fallback face is returned and
// ok is false.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) (face Face, ok bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-p.done:
		return p.face, true
	case <-expired:
	case <-ctx.Done():
	}
	return Default(p.size), false
}

// Default returns the embedded Go Regular face at size, or the bitmap face if that fails.
func Default(size float64) Face {
	if face, err := parse(goregular.TTF, size); err == nil {
		return Face{Face: face, Source: Embedded}
	}
	return Face{Face: basicfont.Face7x13, Source: Bitmap}
}

func resolve(opts Options) (Face, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	open := opts.Open
	if open == nil {
		open = func(name string) (io.ReadCloser, error) { return os.Open(name) }
	}

	for i, path := range opts.Paths {
		face, err := loadFile(open, path, opts.Size)
		if err != nil {
			logger.Warn("caption font unavailable", "path", path, "error", err)
			continue
		}
		src := Primary
		if i > 0 {
			src = Fallback
		}
		logger.Debug("caption font loaded", "path", path, "source", src.String())
		return Face{Face: face, Path: path, Source: src}, nil
	}

	face := Default(opts.Size)
	if len(opts.Paths) == 0 {
		return face, nil
	}
	logger.Warn("falling back to embedded caption font", "source", face.Source.String())
	return face, ErrNotFound
}

func loadFile(open func(string) (io.ReadCloser, error), path string, size float64) (font.Face, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parse(data, size)
}

func parse(data []byte, size float64) (font.Face, error) {
	if size <= 0 {
		size = 64
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}
	return face, nil
}
