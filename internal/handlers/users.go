package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/food-passport/api/internal/platform/auth"
	"github.com/food-passport/api/internal/platform/httpx"
	"github.com/food-passport/api/internal/platform/pagination"
	"github.com/food-passport/api/internal/services"
)

const (
	defaultMaxAvatarBytes = 5 << 20
	userIDParam           = "userID"
)

var avatarFields = []string{"avatar", "file"}

// UserHandlers exposes user profiles, passports and the cross-user feeds.
type UserHandlers struct {
	users       services.UserService
	ledger      services.PassportLedger
	activity    services.ActivityService
	aiLogs      services.AuditLogService
	authn       *auth.Authenticator
	idempotency func(http.Handler) http.Handler
	maxAvatar   int64
	maxLimit    int
}

// UserHandlersDeps bundles the collaborators of UserHandlers. Authenticator and Idempotency are
// optional; without an authenticator the mutating routes are open.
type UserHandlersDeps struct {
	Users          services.UserService
	Ledger         services.PassportLedger
	Activity       services.ActivityService
	AILogs         services.AuditLogService
	Authenticator  *auth.Authenticator
	Idempotency    func(http.Handler) http.Handler
	AvatarMaxBytes int64
	MaxLimit       int
}

// NewUserHandlers constructs UserHandlers.
func NewUserHandlers(deps UserHandlersDeps) *UserHandlers {
	maxAvatar := deps.AvatarMaxBytes
	if maxAvatar <= 0 {
		maxAvatar = defaultMaxAvatarBytes
	}
	maxLimit := deps.MaxLimit
	if maxLimit <= 0 {
		maxLimit = pagination.DefaultMaxLimit
	}
	return &UserHandlers{
		users:       deps.Users,
		ledger:      deps.Ledger,
		activity:    deps.Activity,
		aiLogs:      deps.AILogs,
		authn:       deps.Authenticator,
		idempotency: deps.Idempotency,
		maxAvatar:   maxAvatar,
		maxLimit:    maxLimit,
	}
}

// Routes registers the /users endpoints.
func (h *UserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/recent-activities", h.recentActivities)
	r.Get("/leaderboard", h.leaderboard)
	r.With(h.authMiddlewares(false)...).Post("/", h.createUser)

	r.Route("/{"+userIDParam+"}", func(user chi.Router) {
		user.Get("/", h.getUser)
		user.Get("/passport", h.getPassport)
		user.Get("/achievements", h.achievements)
		user.Get("/ai-logs", h.listUserAILogs)

		checkin := h.authMiddlewares(true)
		if h.idempotency != nil {
			checkin = append(checkin, h.idempotency)
		}
		user.With(checkin...).Post("/checkin", h.checkIn)
		user.With(h.authMiddlewares(true)...).Put("/avatar", h.uploadAvatar)
	})
}

func (h *UserHandlers) authMiddlewares(owner bool) []func(http.Handler) http.Handler {
	if h.authn == nil {
		return nil
	}
	mws := []func(http.Handler) http.Handler{h.authn.RequireFirebaseAuth()}
	if owner {
		mws = append(mws, h.authn.RequireOwner(func(r *http.Request) string {
			return chi.URLParam(r, userIDParam)
		}))
	}
	return mws
}

type createUserRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

func (h *UserHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeServiceUnavailable(ctx, w, "user")
		return
	}

	body, err := readLimitedBody(r, maxJSONBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createUserRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.CreateUserCommand{
		ID:        strings.TrimSpace(req.ID),
		Username:  strings.TrimSpace(req.Username),
		Email:     strings.TrimSpace(req.Email),
		AvatarURL: strings.TrimSpace(req.Avatar),
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		cmd.ID = identity.UID
		if cmd.Email == "" {
			cmd.Email = identity.Email
		}
		if cmd.Username == "" {
			cmd.Username = identity.Name
		}
	}

	user, err := h.users.Create(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUserPayload(user))
}

func (h *UserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeServiceUnavailable(ctx, w, "user")
		return
	}
	user, err := h.users.Get(ctx, chi.URLParam(r, userIDParam))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserPayload(user))
}

func (h *UserHandlers) getPassport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		writeServiceUnavailable(ctx, w, "passport")
		return
	}
	progression, err := h.ledger.GetPassport(ctx, chi.URLParam(r, userIDParam))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPassportResponse(progression))
}

type checkInRequest struct {
	FoodID       string `json:"food_id"`
	ImageURL     string `json:"image_url"`
	ProvinceName string `json:"province_name"`
}

func (h *UserHandlers) checkIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		writeServiceUnavailable(ctx, w, "passport")
		return
	}

	body, err := readLimitedBody(r, maxJSONBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req checkInRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	if _, err := h.ledger.CheckIn(ctx, services.CheckInCommand{
		UserID:     chi.URLParam(r, userIDParam),
		FoodKey:    strings.TrimSpace(req.FoodID),
		ImageURL:   strings.TrimSpace(req.ImageURL),
		RegionName: strings.TrimSpace(req.ProvinceName),
	}); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *UserHandlers) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeServiceUnavailable(ctx, w, "user")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAvatar+multipartOverheadBytes)
	if err := r.ParseMultipartForm(h.maxAvatar); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "avatar exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Avatar file is required", http.StatusBadRequest))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	var (
		data        []byte
		contentType string
		found       bool
	)
	for _, field := range avatarFields {
		file, header, err := r.FormFile(field)
		if err != nil {
			continue
		}
		data, err = io.ReadAll(io.LimitReader(file, h.maxAvatar+1))
		file.Close()
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read avatar", http.StatusBadRequest))
			return
		}
		contentType = header.Header.Get("Content-Type")
		found = true
		break
	}
	if !found {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Avatar file is required", http.StatusBadRequest))
		return
	}

	user, err := h.users.UploadAvatar(ctx, services.UploadAvatarCommand{
		UserID:      chi.URLParam(r, userIDParam),
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    toUserPayload(user),
	})
}

func (h *UserHandlers) achievements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		writeServiceUnavailable(ctx, w, "passport")
		return
	}
	achievements, err := h.ledger.Achievements(ctx, chi.URLParam(r, userIDParam))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"achievements": toAchievementPayloads(achievements),
	})
}

func (h *UserHandlers) listUserAILogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.aiLogs == nil {
		writeServiceUnavailable(ctx, w, "ai_log")
		return
	}
	limit, err := limitParam(r, h.maxLimit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	userID := strings.TrimSpace(chi.URLParam(r, userIDParam))
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user id is required", http.StatusBadRequest))
		return
	}
	entries, err := h.aiLogs.List(ctx, services.AuditLogFilter{UserID: userID, Limit: limit})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAILogPayloads(entries))
}

func (h *UserHandlers) recentActivities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.activity == nil {
		writeServiceUnavailable(ctx, w, "activity")
		return
	}
	limit, err := limitParam(r, h.maxLimit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	activities, err := h.activity.RecentActivities(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"activities": toActivityPayloads(activities),
	})
}

func (h *UserHandlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.activity == nil {
		writeServiceUnavailable(ctx, w, "activity")
		return
	}
	limit, err := limitParam(r, h.maxLimit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	entries, err := h.activity.Leaderboard(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"leaderboard": toLeaderboardPayloads(entries),
	})
}

// limitParam returns zero when ?limit= is absent so the service applies its own default.
func limitParam(r *http.Request, ceiling int) (int, error) {
	values := r.URL.Query()
	if strings.TrimSpace(values.Get("limit")) == "" {
		return 0, nil
	}
	return pagination.Limit(values, pagination.Options{Max: ceiling})
}
