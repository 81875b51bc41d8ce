package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	tlog "go.temporal.io/sdk/log"
)

// New returns a production-friendly JSON logger writing to stdout. format
// "console" prefers a human-readable output.
func New(format, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, format, level)
}

func NewWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if format == "console" {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps debug, info, warn, and error; anything else is info.
func ParseLevel(level string) slog.Level {
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

// Temporal adapts logger for the Temporal client and worker.
func Temporal(logger *slog.Logger) tlog.Logger {
	return tlog.NewStructuredLogger(logger.With("component", "temporal"))
}
