package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/food-passport/api/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

var (
	tracer      = otel.Tracer("github.com/food-passport/api/internal/platform/observability")
	traceparent = propagation.TraceContext{}
)

// TraceMiddleware continues an incoming W3C traceparent or X-Cloud-Trace-Context trace, starts a
// server span and stores the resulting ids on the request context.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := traceparent.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			if !trace.SpanContextFromContext(ctx).IsValid() {
				if remote, ok := parseCloudTraceContext(r.Header.Get(cloudTraceHeader)); ok {
					ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
				}
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			sc := span.SpanContext()
			info := requestctx.TraceInfo{ProjectID: projectID, Sampled: sc.IsSampled()}
			if sc.HasTraceID() {
				info.TraceID = sc.TraceID().String()
			}
			if sc.HasSpanID() {
				info.SpanID = sc.SpanID().String()
			}
			if header := formatCloudTraceHeader(info); header != "" {
				w.Header().Set(cloudTraceHeader, header)
			}

			next.ServeHTTP(w, r.WithContext(requestctx.WithTrace(ctx, info)))
		})
	}
}

// parseCloudTraceContext reads "TRACE_ID/SPAN_ID;o=OPTIONS" where SPAN_ID is decimal.
func parseCloudTraceContext(header string) (trace.SpanContext, bool) {
	header = strings.TrimSpace(header)
	traceHex, rest, ok := strings.Cut(header, "/")
	if !ok || len(traceHex) != 32 {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return trace.SpanContext{}, false
	}

	spanPart, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseSpanID(spanPart)
	if !ok {
		return trace.SpanContext{}, false
	}

	var flags trace.TraceFlags
	if strings.TrimSpace(options) == "o=1" {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

func parseSpanID(value string) (trace.SpanID, bool) {
	value = strings.TrimSpace(value)
	if n, err := strconv.ParseUint(value, 10, 64); err == nil && n != 0 {
		spanID, err := trace.SpanIDFromHex(fmt.Sprintf("%016x", n))
		return spanID, err == nil
	}
	if len(value) == 16 {
		spanID, err := trace.SpanIDFromHex(value)
		return spanID, err == nil
	}
	return trace.SpanID{}, false
}

func formatCloudTraceHeader(info requestctx.TraceInfo) string {
	if info.TraceID == "" || info.SpanID == "" {
		return ""
	}
	spanID, err := strconv.ParseUint(info.SpanID, 16, 64)
	if err != nil {
		return ""
	}
	sampled := 0
	if info.Sampled {
		sampled = 1
	}
	return fmt.Sprintf("%s/%d;o=%d", info.TraceID, spanID, sampled)
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", r.Method),
		attribute.String("url.scheme", scheme),
		attribute.String("url.path", r.URL.Path),
	}
	if r.Host != "" {
		attrs = append(attrs, attribute.String("server.address", r.Host))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", clean(ua, 256)))
	}
	return attrs
}
