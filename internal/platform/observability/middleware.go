package observability

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/food-passport/api/internal/platform/auth"
	"github.com/food-passport/api/internal/platform/httpx"
	"github.com/food-passport/api/internal/platform/requestctx"
)

// InjectLoggerMiddleware seeds every request context with logger.
func InjectLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithLogger(r.Context(), logger)))
		})
	}
}

// RequestLoggerMiddleware derives a request logger carrying request, trace and caller fields,
// logs the start and end of each request, and records the response status on the active span.
func RequestLoggerMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			traceInfo, _ := requestctx.Trace(ctx)

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(ctx)),
				zap.String("method", clean(r.Method, 10)),
				zap.String("path", clean(r.URL.Path, 180)),
				zap.String("trace_id", traceInfo.TraceID),
			}
			if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
				fields = append(fields, zap.String("user_id", clean(identity.UID, 64)))
			}
			if projectID != "" && traceInfo.TraceID != "" {
				fields = append(fields, zap.String("logging.googleapis.com/trace",
					fmt.Sprintf("projects/%s/traces/%s", projectID, traceInfo.TraceID)))
			}
			if ip := remoteIP(r); ip != "" {
				fields = append(fields, zap.String("remote_ip", ip))
			}
			logger := requestctx.Logger(ctx).With(fields...)
			r = r.WithContext(requestctx.WithLogger(ctx, logger))

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.Debug("request started")

			panicked := true
			defer func() {
				status := rec.status
				if panicked && status < http.StatusInternalServerError {
					status = http.StatusInternalServerError
				}
				route := routePattern(r)
				if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
					span.SetAttributes(semconv.HTTPResponseStatusCode(status), semconv.HTTPRoute(route))
					if status >= http.StatusInternalServerError {
						span.SetStatus(codes.Error, http.StatusText(status))
					}
				}

				done := []zap.Field{
					zap.String("route", route),
					zap.Int("status", status),
					zap.Duration("latency", time.Since(start)),
					zap.Int64("bytes", rec.bytes),
				}
				switch {
				case status >= http.StatusInternalServerError:
					logger.Error("request completed", done...)
				case status >= http.StatusBadRequest:
					logger.Warn("request completed", done...)
				default:
					logger.Info("request completed", done...)
				}
			}()

			next.ServeHTTP(rec, r)
			panicked = false
		})
	}
}

// RecoveryMiddleware turns panics into a 500 JSON error and logs the stack.
func RecoveryMiddleware(fallback *zap.Logger) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger := requestctx.Logger(r.Context())
				if logger == requestctx.NoopLogger() {
					logger = fallback
				}
				logger.Error("panic recovered", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
				httpx.WriteError(r.Context(), w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return clean(pattern, 180)
		}
	}
	if r.URL.Path == "" {
		return "/"
	}
	return clean(r.URL.Path, 180)
}

func remoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return clean(addr, 64)
}

// clean drops control characters and truncates value to limit runes so request data cannot
// forge log lines.
func clean(value string, limit int) string {
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return string(out)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
