// Package logger builds the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type config struct {
	level slog.Level
	out   io.Writer
}

// Option configures the logger.
type Option func(*config)

func WithLevel(level slog.Level) Option {
	return func(c *config) { c.level = level }
}

// WithOutput redirects log output, primarily for tests.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.out = w }
}

// New returns a JSON logger tagged with the service name so entries stay
// attributable once aggregated alongside the controller and other services.
func New(service string, opts ...Option) *slog.Logger {
	cfg := config{level: slog.LevelInfo, out: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}
	handler := slog.NewJSONHandler(cfg.out, &slog.HandlerOptions{Level: cfg.level})
	return slog.New(handler).With("service", service)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
