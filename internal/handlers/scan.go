package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/food-passport/api/internal/platform/auth"
	"github.com/food-passport/api/internal/platform/httpx"
	"github.com/food-passport/api/internal/services"
)

const (
	defaultMaxScanImageBytes = 10 << 20
	multipartOverheadBytes   = 1 << 20

	scanImageField  = "image"
	scanUserIDField = "user_id"

	noImageMessage      = "No image file provided"
	foodMissingMessage  = "Food not found in database"
	foodMissingSuggests = "Vui lòng thử lại hoặc kiểm tra database có món ăn này không"
)

// ScanHandlers exposes the image recognition endpoint.
type ScanHandlers struct {
	scans    services.ScanService
	maxBytes int64
	limiter  rateLimiter
	authn    *auth.Authenticator
}

// ScanOption customises ScanHandlers.
type ScanOption func(*ScanHandlers)

// WithScanMaxBytes overrides the 10MB image limit.
func WithScanMaxBytes(n int64) ScanOption {
	return func(h *ScanHandlers) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithScanRateLimit caps scans per client to limit within window.
func WithScanRateLimit(limit int, window time.Duration) ScanOption {
	return func(h *ScanHandlers) {
		h.limiter = newWindowLimiter(limit, window, nil)
	}
}

// WithScanAuthenticator attaches optional Firebase auth so signed-in callers are limited by uid.
func WithScanAuthenticator(authn *auth.Authenticator) ScanOption {
	return func(h *ScanHandlers) {
		h.authn = authn
	}
}

// NewScanHandlers constructs ScanHandlers.
func NewScanHandlers(scans services.ScanService, opts ...ScanOption) *ScanHandlers {
	h := &ScanHandlers{scans: scans, maxBytes: defaultMaxScanImageBytes}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers POST /scan.
func (h *ScanHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r = r.With(h.authn.OptionalFirebaseAuth())
	}
	r.Post("/", h.scan)
}

type scanErrorResponse struct {
	Error        string   `json:"error"`
	AIPrediction string   `json:"ai_prediction,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Suggestion   string   `json:"suggestion,omitempty"`
}

func (h *ScanHandlers) scan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.scans == nil {
		writeServiceUnavailable(ctx, w, "scan")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(scanClientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many scans, slow down", http.StatusTooManyRequests))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverheadBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "image exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteJSON(w, http.StatusBadRequest, scanErrorResponse{Error: noImageMessage})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(scanImageField)
	if err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, scanErrorResponse{Error: noImageMessage})
		return
	}
	defer file.Close()

	userID := strings.TrimSpace(r.FormValue(scanUserIDField))

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read image", http.StatusBadRequest))
		return
	}
	if len(data) == 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, scanErrorResponse{Error: noImageMessage})
		return
	}
	if int64(len(data)) > h.maxBytes {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "image exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	result, err := h.scans.Scan(ctx, services.ScanCommand{
		Image:       data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		UserID:      userID,
	})
	if err != nil {
		var missing *services.FoodNotFoundError
		if errors.As(err, &missing) {
			httpx.WriteJSON(w, http.StatusNotFound, scanErrorResponse{
				Error:        foodMissingMessage,
				AIPrediction: missing.AttemptedLabel,
				Confidence:   &missing.Confidence,
				Suggestion:   foodMissingSuggests,
			})
			return
		}
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toScanResponse(result))
}
