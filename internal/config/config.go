package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the composer configuration
type Config struct {
	Template TemplateConfig `json:"template"`
	Upload   UploadConfig   `json:"upload"`
	Caption  CaptionConfig  `json:"caption"`
	Crop     CropConfig     `json:"crop"`
	Export   ExportConfig   `json:"export"`
	Suggest  SuggestConfig  `json:"suggest"`
}

// TemplateConfig describes the certificate artwork
type TemplateConfig struct {
	Background     string `json:"background"`
	Origin         string `json:"origin"`
	CORS           bool   `json:"cors"`
	FallbackWidth  int    `json:"fallback_width"`
	FallbackHeight int    `json:"fallback_height"`
}

// UploadConfig optionally limits accepted photos. The zero value accepts anything decodable.
type UploadConfig struct {
	Formats   []string `json:"formats,omitempty"`
	MinSize   int      `json:"min_size"`
	MaxPixels int      `json:"max_pixels"`
}

// CaptionConfig holds caption font and placement
type CaptionConfig struct {
	FontPath      string   `json:"font_path"`
	FallbackFonts []string `json:"fallback_fonts"`
	FontSize      float64  `json:"font_size"`
	LineHeight    float64  `json:"line_height"`
	Color         string   `json:"color"`
	Anchor        float64  `json:"anchor"`
	FontTimeout   Duration `json:"font_timeout"`
}

// CropConfig holds crop preview appearance
type CropConfig struct {
	DimAlpha    uint8 `json:"dim_alpha"`
	BorderWidth int   `json:"border_width"`
	DashLength  int   `json:"dash_length"`
}

// ExportConfig holds export and persistence settings
type ExportConfig struct {
	Filename       string   `json:"filename"`
	OutputDir      string   `json:"output_dir"`
	PersistURL     string   `json:"persist_url"`
	PersistTimeout Duration `json:"persist_timeout"`
}

// SuggestConfig selects the crop suggestion backend
type SuggestConfig struct {
	Backend       string  `json:"backend"`
	Model         string  `json:"model"`
	URL           string  `json:"url"`
	MinConfidence float64 `json:"min_confidence"`
	Padding       float64 `json:"padding"`
}

// Suggestion backends
const (
	SuggestNone     = "none"
	SuggestSaliency = "saliency"
	SuggestOllama   = "ollama"
	SuggestLlamaCpp = "llamacpp"
)

// Duration is a time.Duration that reads and writes as a string like "3s"
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "3s" style strings or integer nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Template: TemplateConfig{
			Background:     "certificate-template.png",
			CORS:           true,
			FallbackWidth:  2480,
			FallbackHeight: 3508,
		},
		Upload: UploadConfig{
			MinSize: 1,
		},
		Caption: CaptionConfig{
			FontPath:      "fonts/PlayfairDisplay-Regular.ttf",
			FallbackFonts: []string{"/usr/share/fonts/truetype/dejavu/DejaVuSerif.ttf"},
			FontSize:      64,
			LineHeight:    70,
			Color:         "#2c3e50",
			Anchor:        0.75,
			FontTimeout:   Duration(3 * time.Second),
		},
		Crop: CropConfig{
			DimAlpha:    128,
			BorderWidth: 3,
			DashLength:  8,
		},
		Export: ExportConfig{
			Filename:       "certificate.png",
			OutputDir:      ".",
			PersistTimeout: Duration(10 * time.Second),
		},
		Suggest: SuggestConfig{
			Backend:       SuggestSaliency,
			Model:         "llava:13b",
			URL:           "http://localhost:11434",
			MinConfidence: 0.3,
			Padding:       0.15,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FontPaths returns the caption font candidates in preference order
func (c *Config) FontPaths() []string {
	var paths []string
	if c.Caption.FontPath != "" {
		paths = append(paths, c.Caption.FontPath)
	}
	return append(paths, c.Caption.FallbackFonts...)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Template.FallbackWidth < 1 || c.Template.FallbackHeight < 1 {
		return fmt.Errorf("template.fallback_width and fallback_height must be positive")
	}

	if c.Upload.MaxPixels < 0 {
		return fmt.Errorf("upload.max_pixels cannot be negative")
	}

	if c.Upload.MinSize < 1 {
		return fmt.Errorf("upload.min_size must be positive")
	}

	if c.Caption.FontSize <= 0 {
		return fmt.Errorf("caption.font_size must be positive")
	}

	if c.Caption.LineHeight <= 0 {
		return fmt.Errorf("caption.line_height must be positive")
	}

	if c.Caption.Anchor < 0 || c.Caption.Anchor > 1 {
		return fmt.Errorf("caption.anchor must be between 0 and 1")
	}

	if !strings.HasPrefix(c.Caption.Color, "#") {
		return fmt.Errorf("caption.color must be a hex colour like #2c3e50")
	}

	if c.Crop.BorderWidth < 1 || c.Crop.DashLength < 1 {
		return fmt.Errorf("crop.border_width and crop.dash_length must be positive")
	}

	if c.Export.Filename == "" {
		return fmt.Errorf("export.filename cannot be empty")
	}

	switch c.Suggest.Backend {
	case "", SuggestNone, SuggestSaliency:
	case SuggestOllama, SuggestLlamaCpp:
		if c.Suggest.URL == "" || c.Suggest.Model == "" {
			return fmt.Errorf("suggest.url and suggest.model are required for %s", c.Suggest.Backend)
		}
	default:
		return fmt.Errorf("suggest.backend must be one of none, saliency, ollama, llamacpp")
	}

	if c.Suggest.Padding < 0 || c.Suggest.Padding > 1 {
		return fmt.Errorf("suggest.padding must be between 0 and 1")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "certificate-composer", "config.json")
}
