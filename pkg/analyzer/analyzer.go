// Package analyzer inspects uploaded photos before they enter a session.
package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"io"
	"strings"

	"github.com/menta2k/certificate-composer/pkg/processing"
)

var (
	// ErrUnsupportedFormat is returned for formats outside the configured list.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrTooSmall is returned for images below the minimum side length.
	ErrTooSmall = errors.New("image too small")
	// ErrTooLarge is returned for images above the pixel budget.
	ErrTooLarge = errors.New("image too large")
)

// ImageAnalyzer validates and decodes uploaded photos
type ImageAnalyzer struct {
	config    Config
	processor *processing.Processor
}

// Config holds configuration for upload checks
type Config struct {
	// SupportedFormats restricts uploads to the listed formats. Empty accepts anything a
	// registered decoder handles.
	SupportedFormats []string
	MinImageSize     int
	// MaxPixels bounds width*height when positive; the header is checked before decoding.
	MaxPixels int
}

// DefaultConfig accepts whatever the decoders accept
func DefaultConfig() Config {
	return Config{MinImageSize: 1}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config, processor: processing.NewProcessor()}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
	Format      string  `json:"format,omitempty"`
}

func newInfo(width, height int, format string) ImageInfo {
	info := ImageInfo{Width: width, Height: height, Area: width * height, Format: format}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// Inspect reads only the image header and checks format and size
func (a *ImageAnalyzer) Inspect(data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to read image header: %w", err)
	}
	info := newInfo(cfg.Width, cfg.Height, format)
	if err := a.validate(info); err != nil {
		return info, err
	}
	return info, nil
}

// Decode checks the header, then decodes the photo. It satisfies the session's decoder.
func (a *ImageAnalyzer) Decode(data []byte) (image.Image, string, error) {
	if _, err := a.Inspect(data); err != nil && !isHeaderError(err) {
		return nil, "", err
	}

	img, format, err := a.processor.Decode(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if err := a.validate(newInfo(b.Dx(), b.Dy(), format)); err != nil {
		return nil, "", err
	}
	return img, format, nil
}

// LoadImageFromReader reads and decodes a photo
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	return a.Decode(data)
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	b := img.Bounds()
	return newInfo(b.Dx(), b.Dy(), "")
}

// ValidateImage checks if an image meets the size requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	return a.validate(a.GetImageInfo(img))
}

func (a *ImageAnalyzer) validate(info ImageInfo) error {
	if info.Format != "" && !a.isFormatSupported(info.Format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, info.Format)
	}
	if info.Width < a.config.MinImageSize || info.Height < a.config.MinImageSize {
		return fmt.Errorf("%w: %dx%d (minimum: %d)", ErrTooSmall, info.Width, info.Height, a.config.MinImageSize)
	}
	if a.config.MaxPixels > 0 && info.Area > a.config.MaxPixels {
		return fmt.Errorf("%w: %dx%d (maximum: %d pixels)", ErrTooLarge, info.Width, info.Height, a.config.MaxPixels)
	}
	return nil
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	if len(a.config.SupportedFormats) == 0 {
		return true
	}
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// isHeaderError reports whether Inspect failed only because the header was unreadable,
// in which case the full decoder still gets a chance.
func isHeaderError(err error) bool {
	return !errors.Is(err, ErrUnsupportedFormat) && !errors.Is(err, ErrTooSmall) && !errors.Is(err, ErrTooLarge)
}
