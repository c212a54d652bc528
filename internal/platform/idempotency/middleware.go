package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/food-passport/api/internal/platform/auth"
	"github.com/food-passport/api/internal/platform/httpx"
	"github.com/food-passport/api/internal/platform/requestctx"
)

const (
	// DefaultHeader carries the client-chosen key.
	DefaultHeader = "Idempotency-Key"
	replayHeader  = "Idempotent-Replayed"
)

type options struct {
	header string
	ttl    time.Duration
	clock  func() time.Time
}

// Option customises Middleware.
type Option func(*options)

// WithHeader overrides the request header holding the key.
func WithHeader(name string) Option {
	return func(o *options) {
		if name = strings.TrimSpace(name); name != "" {
			o.header = name
		}
	}
}

// WithTTL sets how long completed responses are replayable.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Middleware replays the first response for a repeated key on mutating requests. Requests without
// the header pass straight through. Only responses below 500 and other than 409 are stored; for
// those the reservation is released so the client can retry with the same key.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	o := options{header: DefaultHeader, ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(o.header))
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			logger := requestctx.Logger(ctx)

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			requester := requesterID(r)
			scoped := key + "|" + requester
			fingerprint := fingerprintOf(r, body, requester)

			state, record, err := store.Reserve(ctx, scoped, fingerprint, o.clock(), o.ttl)
			switch {
			case err == nil:
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", "idempotency key already used for a different request", http.StatusUnprocessableEntity))
				return
			default:
				logger.Error("idempotency reserve failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch state {
			case StateCompleted:
				replay(w, record)
				return
			case StatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this idempotency key is in progress", http.StatusConflict))
				return
			}

			rec := &recorder{header: http.Header{}}
			next.ServeHTTP(rec, r)

			if storable(rec.statusCode()) {
				resp := Response{Status: rec.statusCode(), Header: rec.header, Body: rec.body.Bytes()}
				if err := store.Complete(ctx, scoped, fingerprint, resp, o.clock(), o.ttl); err != nil {
					logger.Warn("idempotency complete failed", zap.Error(err))
					_ = store.Release(ctx, scoped)
				}
			} else if err := store.Release(ctx, scoped); err != nil {
				logger.Warn("idempotency release failed", zap.Error(err))
			}
			rec.flush(w)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func storable(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusConflict
}

func requesterID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func fingerprintOf(r *http.Request, body []byte, requester string) string {
	parts := []string{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type"), requester, sha256Hex(body)}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.ResponseHeader {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(replayHeader, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *recorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.statusCode())
	_, _ = w.Write(r.body.Bytes())
}
