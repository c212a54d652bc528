package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/platform/textutil"
	"github.com/food-passport/api/internal/repositories"
)

const (
	catalogCheckName   = "catalog"
	provincesCheckName = "provinces"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// GeoStateReporter exposes the province dataset lifecycle. *GeoCache satisfies it.
type GeoStateReporter interface {
	State() GeoState
}

// SystemServiceDeps bundles collaborators required to construct a system service. Foods and Geo
// are optional; each adds its own check to the report when set.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Foods            repositories.FoodRepository
	Geo              GeoStateReporter
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	healthRepo repositories.HealthRepository
	foods      repositories.FoodRepository
	geo        GeoStateReporter
	clock      func() time.Time
	build      BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service behind /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &systemService{
		healthRepo: deps.HealthRepository,
		foods:      deps.Foods,
		geo:        deps.Geo,
		clock:      func() time.Time { return clock().UTC() },
		build:      build,
	}, nil
}

// HealthReport merges the infrastructure probes with two pipeline checks. An empty catalog means
// every scan misses, and an unloaded province dataset means the map views pay for the parse; both
// degrade the report. An unreadable catalog fails it.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	checks := make(map[string]domain.SystemHealthCheck, len(report.Checks)+2)
	for name, check := range report.Checks {
		checks[name] = check
	}
	if s.foods != nil {
		summary, check := s.checkCatalog(ctx)
		report.Catalog = summary
		checks[catalogCheckName] = check
	}
	if s.geo != nil {
		state := s.geo.State()
		report.GeoState = state.String()
		checks[provincesCheckName] = s.checkProvinces(state)
	}
	report.Checks = checks

	status := report.Status
	for _, check := range checks {
		status = domain.WorseHealthStatus(status, check.Status)
	}
	report.Status = status

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	report.Version = firstNonBlank(report.Version, s.build.Version)
	report.CommitSHA = firstNonBlank(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonBlank(report.Environment, s.build.Environment)
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	return report, nil
}

func (s *systemService) checkCatalog(ctx context.Context) (*domain.CatalogSummary, domain.SystemHealthCheck) {
	started := s.clock()
	foods, err := s.foods.List(ctx, repositories.FoodFilter{})
	check := domain.SystemHealthCheck{CheckedAt: s.clock()}
	check.Latency = check.CheckedAt.Sub(started)
	if err != nil {
		check.Status = domain.HealthStatusError
		check.Error = err.Error()
		return nil, check
	}

	regions := make(map[string]struct{}, len(foods))
	for _, food := range foods {
		if key := textutil.NormalizeRegionName(food.RegionName); key != "" {
			regions[key] = struct{}{}
		}
	}
	summary := &domain.CatalogSummary{Foods: len(foods), Regions: len(regions)}
	if summary.Foods == 0 {
		check.Status = domain.HealthStatusDegraded
		check.Detail = "catalog is empty; scans cannot resolve"
		return summary, check
	}
	check.Status = domain.HealthStatusOK
	check.Detail = fmt.Sprintf("%d foods across %d regions", summary.Foods, summary.Regions)
	return summary, check
}

func (s *systemService) checkProvinces(state GeoState) domain.SystemHealthCheck {
	check := domain.SystemHealthCheck{Status: domain.HealthStatusDegraded, CheckedAt: s.clock()}
	switch state {
	case GeoLoaded:
		check.Status = domain.HealthStatusOK
		check.Detail = "province dataset loaded"
	case GeoLoading:
		check.Detail = "province dataset loading"
	default:
		check.Detail = "province dataset not loaded"
	}
	return check
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
