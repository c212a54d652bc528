package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/platform/httpx"
	"github.com/food-passport/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers builds the probe handlers. Without a system service, readiness reports ok.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthSystemService sets the service that runs dependency checks for /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthBuildInfo sets the build metadata echoed by /healthz.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock used for uptime and timestamps.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readinessResponse struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version,omitempty"`
	CommitSHA   string                    `json:"commitSha,omitempty"`
	Environment string                    `json:"environment,omitempty"`
	Uptime      string                    `json:"uptime"`
	GeneratedAt string                    `json:"generatedAt"`
	Checks      map[string]readinessCheck `json:"checks"`
	Catalog     *catalogSummary           `json:"catalog,omitempty"`
	GeoState    string                    `json:"geoState,omitempty"`
	Details     []string                  `json:"details,omitempty"`
}

type catalogSummary struct {
	Foods   int `json:"foods"`
	Regions int `json:"regions"`
}

// Healthz reports process liveness. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// Readyz runs the dependency checks and answers 503 when a required check fails. A degraded
// optional dependency still reports ready.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock().UTC()

	if h.system == nil {
		httpx.WriteJSON(w, http.StatusOK, readinessResponse{
			Status:      domain.HealthStatusOK,
			Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
			GeneratedAt: now.Format(time.RFC3339),
			Checks:      map[string]readinessCheck{},
		})
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("health_check_failed", err.Error(), http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]readinessCheck, len(report.Checks))
	names := make([]string, 0, len(report.Checks))
	for name, check := range report.Checks {
		names = append(names, name)
		checks[name] = readinessCheck{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
	}
	sort.Strings(names)

	var details []string
	for _, name := range names {
		check := report.Checks[name]
		if check.Status == domain.HealthStatusOK {
			continue
		}
		msg := firstNonEmpty(strings.TrimSpace(check.Error), strings.TrimSpace(check.Detail), check.Status)
		details = append(details, fmt.Sprintf("%s: %s", name, msg))
	}

	generatedAt := report.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = now
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}

	var catalog *catalogSummary
	if report.Catalog != nil {
		catalog = &catalogSummary{Foods: report.Catalog.Foods, Regions: report.Catalog.Regions}
	}

	httpx.WriteJSON(w, status, readinessResponse{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		Uptime:      report.Uptime.Round(time.Second).String(),
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		Checks:      checks,
		Catalog:     catalog,
		GeoState:    report.GeoState,
		Details:     details,
	})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
