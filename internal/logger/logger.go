// Package logger provides structured logging setup for AgentDeck.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/AgentDeck/internal/config"
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record and a
// "request_id" attribute when the context carries one. With cfg.Async the
// records go through an AsyncHandler; the returned Closer flushes it.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	var closer Closer = nopCloser{}
	if cfg.Async {
		buffer := cfg.AsyncBuffer
		if buffer < 1 {
			buffer = 4096
		}
		ah := NewAsyncHandler(handler, buffer, 2)
		handler = ah
		closer = ah
	}
	// Outermost, so the ID is attached before the async hop drops the context.
	handler = requestIDHandler{next: handler}

	return slog.New(handler).With("service", cfg.Service), closer
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
