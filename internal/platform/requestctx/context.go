// Package requestctx carries request-scoped values (logger, trace metadata) through context.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	traceKey
)

var noopLogger = zap.NewNop()

// TraceInfo describes the trace a request belongs to.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithLogger attaches logger to ctx. A nil logger stores the shared noop logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(orBackground(ctx), loggerKey, logger)
}

// Logger returns the request logger or the noop logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return noopLogger
}

// NoopLogger returns the logger used when none has been attached.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace attaches trace metadata to ctx.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), traceKey, info)
}

// Trace returns the trace metadata stored on ctx.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID returns the trace id stored on ctx, or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}
