package lockfree

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with lockfree-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithContainer adds a container name field to the logger.
func (l *Logger) WithContainer(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("container", name),
	}
}

// WithCapacity adds a capacity field to the logger.
func (l *Logger) WithCapacity(capacity int) *Logger {
	return &Logger{
		Logger: l.Logger.With("capacity", capacity),
	}
}

// LogCreate logs the construction of a pool, allocator or registry.
func (l *Logger) LogCreate(ctx context.Context, kind string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create failed",
			"kind", kind,
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "created",
			"kind", kind,
			"bytes", bytes,
		)
	}
}

// LogExhausted logs a pool acquire or allocator allocate that found no free
// slot. Callers throttle it.
func (l *Logger) LogExhausted(ctx context.Context, kind string, exhausted uint64) {
	l.WarnContext(ctx, "capacity exhausted",
		"kind", kind,
		"exhausted_total", exhausted,
	)
}

// LogMisuse logs a rejected release or deallocation.
func (l *Logger) LogMisuse(ctx context.Context, kind string, err error) {
	l.WarnContext(ctx, "rejected return",
		"kind", kind,
		"error", err,
	)
}

// LogSweep logs a registry sweep.
func (l *Logger) LogSweep(ctx context.Context, reclaimed int, orphaned int64) {
	if reclaimed == 0 {
		return
	}
	l.DebugContext(ctx, "sweep completed",
		"reclaimed", reclaimed,
		"orphaned", orphaned,
	)
}

// LogClose logs the release of a container's memory reservation.
func (l *Logger) LogClose(ctx context.Context, kind string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"kind", kind,
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "closed",
			"kind", kind,
			"bytes", bytes,
		)
	}
}
