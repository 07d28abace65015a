package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ServerConfig configures the token backend. It is read from the environment.
type ServerConfig struct {
	Port      int    `env:"PORT" envDefault:"5000"`
	DBPath    string `env:"CERT_DB_PATH" envDefault:"certificates.db"`
	PublicURL string `env:"CERT_PUBLIC_URL" envDefault:"http://localhost:8080"`
	QRSize    int    `env:"CERT_QR_SIZE" envDefault:"256"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadServer parses the server configuration from the environment.
func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("failed to parse server environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadServerFrom is LoadServer over an explicit environment map.
func LoadServerFrom(environment map[string]string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return ServerConfig{}, fmt.Errorf("failed to parse server environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// Validate checks the server configuration.
func (c ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if c.DBPath == "" {
		return fmt.Errorf("CERT_DB_PATH cannot be empty")
	}
	if c.QRSize < 64 || c.QRSize > 2048 {
		return fmt.Errorf("CERT_QR_SIZE must be between 64 and 2048")
	}
	return nil
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Level maps LOG_LEVEL to a slog level; unknown values mean info.
func (c ServerConfig) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
