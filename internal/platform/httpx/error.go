// Package httpx holds the JSON response helpers shared by HTTP handlers and middleware.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/food-passport/api/internal/platform/requestctx"
)

const (
	codeLimit    = 80
	messageLimit = 512
	idLimit      = 80
)

// Error is the JSON error envelope: {"error", "message", "status", "request_id", "trace_id", ...details}.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError builds an Error. A zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clip(code, codeLimit),
		Message: clip(message, messageLimit),
		Status:  status,
	}
}

// WithRequestID overrides the request id taken from the chi middleware.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = clip(id, idLimit)
	return e
}

// WithTraceID overrides the trace id taken from the request context.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = clip(id, idLimit)
	return e
}

// WithDetails merges extra top-level fields into the payload.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WriteError encodes err on w, filling request and trace ids from ctx when unset.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}

	requestID := err.RequestID
	if requestID == "" && ctx != nil {
		requestID = clip(middleware.GetReqID(ctx), idLimit)
	}
	if requestID != "" {
		payload["request_id"] = requestID
	}

	traceID := err.TraceID
	if traceID == "" {
		traceID = clip(requestctx.TraceID(ctx), idLimit)
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}

	for k, v := range err.Details {
		payload[k] = v
	}

	WriteJSON(w, status, payload)
}

// WriteJSON encodes payload as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func clip(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
