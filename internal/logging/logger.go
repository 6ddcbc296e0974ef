// Package logging builds the process-wide structured logger. Every binary
// tags its records with a service attribute so server and consumer lines
// can be told apart once they land in the same aggregator.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a JSON logger for the named service at the given level.
func NewLogger(service, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	if service != "" {
		logger = logger.With(slog.String("service", service))
	}
	return logger
}

func parseLevel(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
