// Package logger provides structured logging setup for GIRT.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New creates a *slog.Logger from the given level and service name.
// Output is JSON to stderr — stdout belongs to the MCP transport.
// When async is true the handler writes via a buffered channel; the
// caller must call Closer.Close() on shutdown to flush remaining
// records.
func New(level, service string, async bool) (*slog.Logger, Closer) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})

	var closer Closer = nopCloser{}
	var h slog.Handler = handler
	if async {
		a := NewAsyncHandler(handler, 10000, 2)
		h = a
		closer = a
	}

	return slog.New(h).With("service", service), closer
}

// Init installs the logger as the process default.
func Init(level, service string, async bool) Closer {
	log, closer := New(level, service, async)
	slog.SetDefault(log)
	return closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
