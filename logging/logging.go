// Package logging wraps log/slog with component-scoped structured loggers.
package logging

import (
	"log/slog"
	"os"
)

// Config holds logger configuration.
type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

// DefaultConfig returns sensible defaults for logging.
func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: "aid-engine",
	}
}

// New creates a component-scoped logger with the given configuration.
func New(config Config) *slog.Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.Level,
		})
	}
	return slog.New(handler).With("component", config.Component)
}

// WithComponent returns a child logger scoped to a sub-component.
func WithComponent(l *slog.Logger, component string) *slog.Logger {
	return l.With("component", component)
}
