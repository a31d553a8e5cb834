// Package logger provides structured logging setup for TriggerGate.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/TriggerGate/internal/config"
)

// Async handler sizing. One worker is enough for log throughput; the
// buffer absorbs webhook bursts without blocking request handlers.
const (
	asyncChanSize = 1024
	asyncWorkers  = 1
)

// New creates a *slog.Logger from the given Logging config. Output is
// JSON to stdout with a "service" attribute on every record. When
// async is enabled, records are handed off to a buffered worker and
// the returned Closer must be called on shutdown to flush it; in
// synchronous mode the Closer is a no-op.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, asyncChanSize, asyncWorkers)
		handler = async
		closer = async
	}

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
