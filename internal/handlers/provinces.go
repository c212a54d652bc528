package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/food-passport/api/internal/platform/httpx"
	"github.com/food-passport/api/internal/services"
)

const provinceNameParam = "name"

// ProvinceHandlers serves the province map.
type ProvinceHandlers struct {
	provinces services.ProvinceService
}

// NewProvinceHandlers constructs ProvinceHandlers.
func NewProvinceHandlers(provinces services.ProvinceService) *ProvinceHandlers {
	return &ProvinceHandlers{provinces: provinces}
}

// Routes registers the /provinces endpoints.
func (h *ProvinceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProvinces)
	r.Get("/{"+provinceNameParam+"}", h.getProvince)
}

func (h *ProvinceHandlers) listProvinces(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.provinces == nil {
		writeServiceUnavailable(ctx, w, "province")
		return
	}
	statuses, err := h.provinces.Provinces(ctx, strings.TrimSpace(r.URL.Query().Get("user_id")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"provinces": toProvincePayloads(statuses),
	})
}

func (h *ProvinceHandlers) getProvince(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.provinces == nil {
		writeServiceUnavailable(ctx, w, "province")
		return
	}
	name := chi.URLParam(r, provinceNameParam)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	feature, err := h.provinces.Province(ctx, name)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProvinceDetailPayload(feature))
}
