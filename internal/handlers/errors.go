package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/food-passport/api/internal/platform/httpx"
	"github.com/food-passport/api/internal/platform/pagination"
	"github.com/food-passport/api/internal/platform/requestctx"
	"github.com/food-passport/api/internal/services"
)

const maxJSONBodySize = 32 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// writeServiceError maps the service error taxonomy onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var validation *services.ValidationError
	var upstream *services.UpstreamError

	switch {
	case errors.As(err, &validation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", validation.Error(), http.StatusBadRequest))
	case errors.Is(err, pagination.ErrInvalidLimit):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrFoodNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("food_not_found", "food not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAuditLogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("ai_log_not_found", "ai log not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProvinceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("province_not_found", "province not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCultureStoryMissing):
		httpx.WriteError(ctx, w, httpx.NewError("culture_story_missing", "no culture story for this food", http.StatusNotFound))
	case errors.Is(err, services.ErrFoodConflict):
		httpx.WriteError(ctx, w, httpx.NewError("food_exists", "food already exists", http.StatusConflict))
	case errors.Is(err, services.ErrUserConflict):
		httpx.WriteError(ctx, w, httpx.NewError("user_exists", "user already exists", http.StatusConflict))
	case errors.Is(err, services.ErrPassportConflict):
		httpx.WriteError(ctx, w, httpx.NewError("passport_conflict", "passport was updated concurrently, retry", http.StatusConflict))
	case errors.Is(err, services.ErrStorageUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "media storage is not configured", http.StatusServiceUnavailable))
	case errors.As(err, &upstream):
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		httpx.WriteError(ctx, w, httpx.NewError("prediction_unavailable", upstream.Error(), status))
	case errors.Is(err, context.Canceled):
		httpx.WriteError(ctx, w, httpx.NewError("request_cancelled", "request cancelled", 499))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxJSONBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}
