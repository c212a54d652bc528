package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/food-passport/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	scan      RouteRegistrar
	users     RouteRegistrar
	foods     RouteRegistrar
	culture   RouteRegistrar
	aiLogs    RouteRegistrar
	provinces RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and expected route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, name string) {
			api.Route(path, func(group chi.Router) {
				if registrar != nil {
					registrar(group)
					return
				}
				registerNotImplemented(group, name)
			})
		}

		mount("/scan", cfg.scan, "scan")
		mount("/users", cfg.users, "users")
		mount("/foods", cfg.foods, "foods")
		mount("/culture", cfg.culture, "culture")
		mount("/ai-logs", cfg.aiLogs, "aiLogs")
		mount("/provinces", cfg.provinces, "provinces")
	})

	return r
}

// WithBasePath overrides the /api prefix.
func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithScanRoutes configures the registrar responsible for /scan.
func WithScanRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.scan = reg
	}
}

// WithUserRoutes configures the registrar responsible for user and passport endpoints.
func WithUserRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.users = reg
	}
}

// WithFoodRoutes configures the registrar responsible for catalog endpoints.
func WithFoodRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.foods = reg
	}
}

// WithCultureRoutes configures the registrar responsible for culture cards.
func WithCultureRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.culture = reg
	}
}

// WithAILogRoutes configures the registrar responsible for scan audit logs.
func WithAILogRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.aiLogs = reg
	}
}

// WithProvinceRoutes configures the registrar responsible for the province map.
func WithProvinceRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.provinces = reg
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
