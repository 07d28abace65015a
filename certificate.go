// Package certificate composes personalised certificates.
//
// A certificate is a template background with a user photo fitted into a fixed slot and
// a two-line caption ("De: ..." / "Para: ...") near the bottom. The photo can be dragged
// within the template's photo area and cropped interactively; the composed canvas is
// exported as PNG and, when a token is present, the caption is recorded with the token
// backend first.
//
// Basic usage:
//
//	s, err := certificate.New(certificate.WithBackground("template.png"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := s.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	if err := s.OnImageUploaded(photo).Wait(ctx); err != nil {
//		log.Fatal(err)
//	}
//	s.OnCaptionChanged("Maria", "João")
//	png, err := s.Export(ctx)
//
// The package consists of these main components:
//
// 1. Session (pkg/session): the editing session and its interaction modes
// 2. Compositor (pkg/compositor): scene and crop preview rendering
// 3. Crop (pkg/crop) and Drag (pkg/drag): pointer gestures in canvas space
// 4. Suggest (pkg/suggest): optional crop suggestions from saliency or a vision model
//
// The token backend lives in cmd/certificate-server.
package certificate

import (
	"fmt"
	"image/color"
	"log/slog"

	"github.com/menta2k/certificate-composer/internal/config"
	"github.com/menta2k/certificate-composer/pkg/analyzer"
	"github.com/menta2k/certificate-composer/pkg/assets"
	"github.com/menta2k/certificate-composer/pkg/client"
	"github.com/menta2k/certificate-composer/pkg/compositor"
	"github.com/menta2k/certificate-composer/pkg/layout"
	"github.com/menta2k/certificate-composer/pkg/llamacpp"
	"github.com/menta2k/certificate-composer/pkg/ollama"
	"github.com/menta2k/certificate-composer/pkg/persist"
	"github.com/menta2k/certificate-composer/pkg/session"
	"github.com/menta2k/certificate-composer/pkg/suggest"
)

// Version of the certificate composer
const Version = "1.0.0"

// Option adjusts the session options built from the configuration
type Option func(*session.Options)

// WithLogger sets the logger for the session and its loaders
func WithLogger(l *slog.Logger) Option {
	return func(o *session.Options) { o.Logger = l }
}

// WithToken sets the backend token recorded on export
func WithToken(token string) Option {
	return func(o *session.Options) { o.Token = token }
}

// WithBackground overrides the template source
func WithBackground(source string) Option {
	return func(o *session.Options) { o.Background = source }
}

// WithLayout overrides the template calibration
func WithLayout(l layout.Layout) Option {
	return func(o *session.Options) { o.Layout = l }
}

// WithSuggester overrides the crop suggester
func WithSuggester(s suggest.Suggester) Option {
	return func(o *session.Options) { o.Suggester = s }
}

// WithPersister overrides the backend client
func WithPersister(p persist.Persister) Option {
	return func(o *session.Options) { o.Persister = p }
}

// New creates a session with the default configuration
func New(opts ...Option) (*session.Session, error) {
	return NewWithConfig(config.Default(), opts...)
}

// NewWithConfig creates a session from a configuration
func NewWithConfig(cfg *config.Config, opts ...Option) (*session.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	style, err := StyleFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	l := layout.Default()
	suggester, err := NewSuggester(cfg.Suggest, l.Slot.Width/l.Slot.Height)
	if err != nil {
		return nil, err
	}

	decoder := analyzer.NewWithConfig(analyzer.Config{
		SupportedFormats: cfg.Upload.Formats,
		MinImageSize:     cfg.Upload.MinSize,
		MaxPixels:        cfg.Upload.MaxPixels,
	})

	o := session.Options{
		Layout:      l,
		Background:  cfg.Template.Background,
		FontPaths:   cfg.FontPaths(),
		FontSize:    cfg.Caption.FontSize,
		FontTimeout: cfg.Caption.FontTimeout.Std(),
		Style:       style,
		Suggester:   suggester,
		Decoder:     decoder,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.Assets == nil {
		o.Assets = assets.NewLoader(assets.Options{
			Origin:         cfg.Template.Origin,
			CORS:           cfg.Template.CORS,
			FallbackWidth:  cfg.Template.FallbackWidth,
			FallbackHeight: cfg.Template.FallbackHeight,
			Logger:         o.Logger,
		})
	}
	if o.Persister == nil && cfg.Export.PersistURL != "" {
		popts := []persist.Option{persist.WithLogger(o.Logger)}
		if d := cfg.Export.PersistTimeout.Std(); d > 0 {
			popts = append(popts, persist.WithTimeout(d))
		}
		o.Persister = persist.NewClient(cfg.Export.PersistURL, popts...)
	}

	return session.New(o), nil
}

// StyleFromConfig builds the caption and crop preview style
func StyleFromConfig(cfg *config.Config) (compositor.Style, error) {
	textColor, err := compositor.ParseHexColor(cfg.Caption.Color)
	if err != nil {
		return compositor.Style{}, fmt.Errorf("caption.color: %w", err)
	}
	style := compositor.DefaultStyle()
	style.TextColor = textColor
	style.LineHeight = cfg.Caption.LineHeight
	style.Anchor = cfg.Caption.Anchor
	style.BorderWidth = cfg.Crop.BorderWidth
	style.DashLength = cfg.Crop.DashLength
	if cfg.Crop.DimAlpha > 0 {
		style.DimColor = dim(cfg.Crop.DimAlpha)
	}
	return style, nil
}

// NewSuggester returns the configured crop suggester, or nil when suggestions are off
func NewSuggester(cfg config.SuggestConfig, aspect float64) (suggest.Suggester, error) {
	var vision client.VisionClient
	switch cfg.Backend {
	case "", config.SuggestNone:
		return nil, nil
	case config.SuggestSaliency:
		return suggest.NewSaliency(aspect), nil
	case config.SuggestOllama:
		c, err := ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		vision = c
	case config.SuggestLlamaCpp:
		c, err := llamacpp.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		vision = c
	default:
		return nil, fmt.Errorf("unknown suggest backend %q", cfg.Backend)
	}
	return suggest.NewModel(vision, aspect, suggest.ModelOptions{
		Model:         cfg.Model,
		MinConfidence: cfg.MinConfidence,
		Padding:       cfg.Padding,
	}), nil
}

func dim(alpha uint8) color.NRGBA {
	return color.NRGBA{A: alpha}
}
