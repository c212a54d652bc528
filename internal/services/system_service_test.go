package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/repositories"
	"github.com/food-passport/api/internal/repositories/memory"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

type fixedGeoState GeoState

func (f fixedGeoState) State() GeoState { return GeoState(f) }

func firestoreOK() *stubHealthRepository {
	return &stubHealthRepository{report: domain.SystemHealthReport{
		Status: domain.HealthStatusOK,
		Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
	}}
}

func TestSystemServiceReportsCatalogAndProvinces(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	_, reg := newTestRegistry(t, pho, bunBo, miQuang,
		domain.FoodRecord{Key: "bun_cha", DisplayName: "Bún chả", RegionName: "Thành phố Hà Nội"},
	)

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: firestoreOK(),
		Foods:            reg.Foods(),
		Geo:              fixedGeoState(GeoLoaded),
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{Version: "1.2.3", CommitSHA: "abc123", Environment: "prod", StartedAt: start},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %s (%+v)", report.Status, report.Checks)
	}
	if report.Catalog == nil || report.Catalog.Foods != 4 || report.Catalog.Regions != 3 {
		t.Fatalf("expected 4 foods across 3 regions, got %+v", report.Catalog)
	}
	if check := report.Checks[catalogCheckName]; check.Status != domain.HealthStatusOK || check.Detail != "4 foods across 3 regions" {
		t.Fatalf("unexpected catalog check %+v", check)
	}
	if report.GeoState != "loaded" || report.Checks[provincesCheckName].Status != domain.HealthStatusOK {
		t.Fatalf("unexpected province state %q %+v", report.GeoState, report.Checks[provincesCheckName])
	}
	if _, ok := report.Checks["firestore"]; !ok {
		t.Fatalf("expected infrastructure checks to be kept")
	}
	if report.Version != "1.2.3" || report.CommitSHA != "abc123" || report.Environment != "prod" {
		t.Fatalf("expected build metadata, got %+v", report)
	}
	if report.Uptime != 5*time.Minute || !report.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected timing uptime=%s generated=%s", report.Uptime, report.GeneratedAt)
	}
}

func TestSystemServiceEmptyCatalogDegrades(t *testing.T) {
	_, reg := newTestRegistry(t)
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: firestoreOK(), Foods: reg.Foods()})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	check := report.Checks[catalogCheckName]
	if check.Status != domain.HealthStatusDegraded || !strings.Contains(check.Detail, "empty") {
		t.Fatalf("unexpected catalog check %+v", check)
	}
	if report.Catalog == nil || report.Catalog.Foods != 0 {
		t.Fatalf("expected zero-food summary, got %+v", report.Catalog)
	}
	if report.GeoState != "" {
		t.Fatalf("expected no geo state without a cache, got %q", report.GeoState)
	}
}

type unreadableFoods struct {
	repositories.FoodRepository
}

func (unreadableFoods) List(context.Context, repositories.FoodFilter) ([]domain.FoodRecord, error) {
	return nil, repositories.NewUnavailableError("foods.list", errors.New("deadline exceeded"))
}

func TestSystemServiceUnreadableCatalogFails(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: firestoreOK(), Foods: unreadableFoods{}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusError || report.Catalog != nil {
		t.Fatalf("expected error status without summary, got %s %+v", report.Status, report.Catalog)
	}
	if check := report.Checks[catalogCheckName]; !strings.Contains(check.Error, "deadline exceeded") {
		t.Fatalf("expected catalog error detail, got %+v", check)
	}
}

func TestSystemServiceProvinceStates(t *testing.T) {
	_, reg := newTestRegistry(t, pho)
	cases := map[GeoState]struct {
		status string
		label  string
	}{
		GeoEmpty:   {domain.HealthStatusDegraded, "empty"},
		GeoLoading: {domain.HealthStatusDegraded, "loading"},
		GeoLoaded:  {domain.HealthStatusOK, "loaded"},
	}
	for state, want := range cases {
		svc, err := NewSystemService(SystemServiceDeps{
			HealthRepository: firestoreOK(),
			Foods:            reg.Foods(),
			Geo:              fixedGeoState(state),
		})
		if err != nil {
			t.Fatalf("NewSystemService: %v", err)
		}
		report, err := svc.HealthReport(context.Background())
		if err != nil {
			t.Fatalf("HealthReport: %v", err)
		}
		if report.GeoState != want.label || report.Checks[provincesCheckName].Status != want.status || report.Status != want.status {
			t.Fatalf("state %s: got geo=%q check=%+v status=%s", state, report.GeoState, report.Checks[provincesCheckName], report.Status)
		}
	}
}

func TestSystemServiceKeepsWorseInfrastructureStatus(t *testing.T) {
	_, reg := newTestRegistry(t, pho)
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusError, Error: "unavailable"}},
	}}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, Foods: reg.Foods(), Geo: fixedGeoState(GeoLoaded)})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("healthy pipeline checks must not mask a failing dependency, got %s", report.Status)
	}
}

func TestSystemServiceOptionalDependencyDegrades(t *testing.T) {
	reg := memory.NewRegistry(repositories.DependencyCheck{
		Name:     "prediction",
		Optional: true,
		Check:    func(context.Context) error { return errors.New("connection refused") },
	})
	if err := reg.Foods().Insert(context.Background(), pho); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: reg.Health(), Foods: reg.Foods()})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Checks[catalogCheckName].Status != domain.HealthStatusOK {
		t.Fatalf("expected catalog ok, got %+v", report.Checks[catalogCheckName])
	}
}

func TestSystemServiceErrors(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error when repository missing")
	}
	expected := errors.New("collect failed")
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: expected}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestWorseHealthStatus(t *testing.T) {
	cases := []struct{ a, b, want string }{
		{"", "", domain.HealthStatusOK},
		{domain.HealthStatusOK, domain.HealthStatusDegraded, domain.HealthStatusDegraded},
		{domain.HealthStatusError, domain.HealthStatusDegraded, domain.HealthStatusError},
		{domain.HealthStatusDegraded, "unknown", domain.HealthStatusDegraded},
	}
	for _, tc := range cases {
		if got := domain.WorseHealthStatus(tc.a, tc.b); got != tc.want {
			t.Fatalf("WorseHealthStatus(%q, %q) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
	}
}
