package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/food-passport/api/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger builds a JSON zap logger using the Cloud Logging field names (severity, message,
// timestamp). LOG_LEVEL selects the level and falls back to info.
func NewLogger() (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))))); err != nil {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:   zapcore.CapitalLevelEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// FromContext returns the request logger stored by the logging middleware.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// WarnfAdapter exposes a zap logger through the printf-style Warnf interface used by services.
type WarnfAdapter struct {
	logger *zap.SugaredLogger
}

// NewWarnfAdapter wraps logger. A nil logger discards output.
func NewWarnfAdapter(logger *zap.Logger) WarnfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return WarnfAdapter{logger: logger.Sugar()}
}

// Warnf logs at warn level.
func (a WarnfAdapter) Warnf(format string, args ...any) {
	a.logger.Warnf(format, args...)
}
