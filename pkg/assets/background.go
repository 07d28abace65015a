// Package assets loads the certificate background template.
//
// A background always comes back usable: when the template cannot be loaded a plain
// white backdrop with a thin black border is drawn instead.
package assets

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/certificate-composer/pkg/processing"
)

// Fallback backdrop geometry.
const (
	borderInset = 10
	borderWidth = 2
)

// Background is the template image and how it was obtained.
type Background struct {
	Image    *image.NRGBA
	Source   string
	Fallback bool
	// Tainted is set when the pixels came from another origin without permission,
	// which forbids reading the composed canvas back.
	Tainted bool
}

// Width returns the background width in pixels.
func (b *Background) Width() int { return b.Image.Bounds().Dx() }

// Height returns the background height in pixels.
func (b *Background) Height() int { return b.Image.Bounds().Dy() }

// Options configures a Loader.
type Options struct {
	// Origin is the origin the composer runs under, e.g. "https://example.org".
	// Remote templates from any other origin are cross-origin.
	Origin string
	// CORS requests remote templates in CORS mode. A cross-origin template without a
	// matching Access-Control-Allow-Origin header then fails to load; without CORS mode
	// it loads but taints the canvas.
	CORS bool
	// FallbackWidth and FallbackHeight size the backdrop used when loading fails.
	FallbackWidth  int
	FallbackHeight int
	Processor      *processing.Processor
	Logger         *slog.Logger
}

// Loader loads background templates from files or URLs.
type Loader struct {
	opts   Options
	proc   *processing.Processor
	logger *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(opts Options) *Loader {
	proc := opts.Processor
	if proc == nil {
		proc = processing.NewProcessor()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.FallbackWidth <= 0 || opts.FallbackHeight <= 0 {
		opts.FallbackWidth, opts.FallbackHeight = 2480, 3508
	}
	return &Loader{opts: opts, proc: proc, logger: logger}
}

// Load loads the template at source, a file path or an http(s) URL. It never returns
// a nil Background; the error reports why the fallback backdrop was used.
func (l *Loader) Load(ctx context.Context, source string) (*Background, error) {
	bg, err := l.load(ctx, source)
	if err == nil {
		return bg, nil
	}
	l.logger.Warn("background unavailable, using fallback", "source", source, "error", err)
	return &Background{
		Image:    Fallback(l.opts.FallbackWidth, l.opts.FallbackHeight),
		Source:   source,
		Fallback: true,
	}, err
}

func (l *Loader) load(ctx context.Context, source string) (*Background, error) {
	if source == "" {
		return nil, fmt.Errorf("no background configured")
	}
	if !isRemote(source) {
		img, err := l.proc.LoadImage(source)
		if err != nil {
			return nil, fmt.Errorf("load background: %w", err)
		}
		return &Background{Image: imaging.Clone(img), Source: source}, nil
	}

	data, header, err := l.proc.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	tainted := false
	if crossOrigin(l.opts.Origin, source) {
		allowed := allowsOrigin(header.Get("Access-Control-Allow-Origin"), l.opts.Origin)
		switch {
		case l.opts.CORS && !allowed:
			return nil, fmt.Errorf("cross-origin background %s refused by CORS policy", source)
		case !l.opts.CORS:
			tainted = true
		}
	}
	img, _, err := l.proc.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	l.logger.Debug("background loaded", "source", source, "tainted", tainted)
	return &Background{Image: imaging.Clone(img), Source: source, Tainted: tainted}, nil
}

// Fallback draws the plain backdrop: white, with a 2px black border inset 10px.
func Fallback(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	// A 2px stroke centred on the inset path covers one pixel either side of it.
	half := borderWidth / 2
	outer := image.Rect(borderInset-half, borderInset-half, width-borderInset+half, height-borderInset+half)
	inner := outer.Inset(borderWidth)
	black := image.NewUniform(color.Black)
	for _, r := range []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y),
		image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y),
		image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y),
		image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y),
	} {
		draw.Draw(img, r.Intersect(img.Bounds()), black, image.Point{}, draw.Src)
	}
	return img
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func crossOrigin(origin, source string) bool {
	if origin == "" {
		return true
	}
	a, err1 := url.Parse(origin)
	b, err2 := url.Parse(source)
	if err1 != nil || err2 != nil {
		return true
	}
	return !strings.EqualFold(a.Scheme, b.Scheme) || !strings.EqualFold(a.Host, b.Host)
}

func allowsOrigin(header, origin string) bool {
	header = strings.TrimSpace(header)
	return header == "*" || (origin != "" && strings.EqualFold(header, origin))
}
