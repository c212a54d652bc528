package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/food-passport/api/internal/platform/auth"
	"github.com/food-passport/api/internal/platform/httpx"
	"github.com/food-passport/api/internal/services"
)

const foodIDParam = "foodID"

// FoodHandlers exposes the food catalog and culture cards.
type FoodHandlers struct {
	foods services.FoodRegistry
	authn *auth.Authenticator
}

// NewFoodHandlers constructs FoodHandlers. When authn is set, catalog writes require the admin role.
func NewFoodHandlers(foods services.FoodRegistry, authn *auth.Authenticator) *FoodHandlers {
	return &FoodHandlers{foods: foods, authn: authn}
}

// Routes registers the /foods endpoints.
func (h *FoodHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listFoods)
	r.Get("/{"+foodIDParam+"}", h.getFood)

	var mws []func(http.Handler) http.Handler
	if h.authn != nil {
		mws = append(mws, h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.With(mws...).Post("/", h.createFood)
}

// CultureRoutes registers the /culture endpoints.
func (h *FoodHandlers) CultureRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{"+foodIDParam+"}", h.getCultureCard)
}

func (h *FoodHandlers) listFoods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.foods == nil {
		writeServiceUnavailable(ctx, w, "food")
		return
	}
	query := r.URL.Query()
	region := strings.TrimSpace(query.Get("province_name"))
	if region == "" {
		region = strings.TrimSpace(query.Get("province"))
	}
	foods, err := h.foods.List(ctx, region)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	out := make([]foodPayload, 0, len(foods))
	for _, food := range foods {
		out = append(out, toFoodPayload(food))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *FoodHandlers) getFood(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.foods == nil {
		writeServiceUnavailable(ctx, w, "food")
		return
	}
	food, err := h.foods.Get(ctx, chi.URLParam(r, foodIDParam))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toFoodPayload(food))
}

type createFoodRequest struct {
	NameKey      string `json:"name_key"`
	NameVI       string `json:"name_vi"`
	ProvinceName string `json:"province_name"`
	HowToEat     string `json:"how_to_eat"`
	Story        string `json:"story"`
	Image        string `json:"image"`
}

func (h *FoodHandlers) createFood(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.foods == nil {
		writeServiceUnavailable(ctx, w, "food")
		return
	}

	body, err := readLimitedBody(r, maxJSONBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createFoodRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	food, err := h.foods.Create(ctx, services.FoodRecord{
		Key:                req.NameKey,
		DisplayName:        req.NameVI,
		RegionName:         req.ProvinceName,
		Story:              req.Story,
		EatingInstructions: req.HowToEat,
		ImageURL:           req.Image,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toFoodPayload(food))
}

func (h *FoodHandlers) getCultureCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.foods == nil {
		writeServiceUnavailable(ctx, w, "food")
		return
	}
	card, err := h.foods.CultureCard(ctx, chi.URLParam(r, foodIDParam))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toCultureCardPayload(card))
}
