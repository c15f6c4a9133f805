// Package logger provides the process-wide structured logger built on
// log/slog.
//
// Setup picks the handler from the resolved configuration: human-readable
// text while developing, JSON in production. Request handlers get a logger
// already tagged with the request ID:
//
//	log := logger.WithCtx(r.Context())
//	log.Info("health probe", "db", "ok")
//	// → time=... level=INFO msg="health probe" request_id=0b6f... db=ok
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// L is the base logger. It is usable before Setup runs.
var L = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Options selects the handler built by Setup.
type Options struct {
	Level     string // debug | info | warn | error
	JSON      bool
	Output    io.Writer
	AddSource bool
}

// Setup replaces L and the slog default logger.
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level), AddSource: opts.AddSource}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, hopts) // structured JSON for log aggregators
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}

	L = slog.New(handler)
	slog.SetDefault(L)
	return L
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
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

// ─────────────────────────────────────────────
// Context-aware logger
// ─────────────────────────────────────────────

type ctxKey struct{}

// WithCtx returns the request-scoped logger stored by InjectLogger, or L.
func WithCtx(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return L
}

// InjectLogger stores a *slog.Logger (pre-tagged with request_id) into ctx.
// Called by middleware.RequestLogger.
func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs at INFO level.
func Info(msg string, args ...any) { L.Info(msg, args...) }
