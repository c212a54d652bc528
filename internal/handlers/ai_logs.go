package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/food-passport/api/internal/platform/httpx"
	"github.com/food-passport/api/internal/platform/pagination"
	"github.com/food-passport/api/internal/services"
)

const aiLogIDParam = "logID"

// AILogHandlers exposes the scan audit log.
type AILogHandlers struct {
	logs     services.AuditLogService
	maxLimit int
}

// NewAILogHandlers constructs AILogHandlers.
func NewAILogHandlers(logs services.AuditLogService) *AILogHandlers {
	return &AILogHandlers{logs: logs, maxLimit: pagination.DefaultMaxLimit}
}

// Routes registers the /ai-logs endpoints.
func (h *AILogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listLogs)
	r.Get("/{"+aiLogIDParam+"}", h.getLog)
}

func (h *AILogHandlers) listLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.logs == nil {
		writeServiceUnavailable(ctx, w, "ai_log")
		return
	}
	limit, err := limitParam(r, h.maxLimit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	entries, err := h.logs.List(ctx, services.AuditLogFilter{Limit: limit})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAILogPayloads(entries))
}

func (h *AILogHandlers) getLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.logs == nil {
		writeServiceUnavailable(ctx, w, "ai_log")
		return
	}
	entry, err := h.logs.Get(ctx, chi.URLParam(r, aiLogIDParam))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAILogPayload(entry))
}
