package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the JSON logger every process uses, tagged with the
// service name so dispatch and consumer logs can be told apart.
func NewLogger(service, level string) *slog.Logger {
	return newLogger(os.Stdout, service, level)
}

func newLogger(w io.Writer, service, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}
	return slog.New(slog.NewJSONHandler(w, opts)).With("service", service)
}

func levelFromString(level string) slog.Leveler {
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
