package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/food-passport/api/internal/domain"
)

func TestDependencyHealthRepositoryCollectSuccess(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "prediction", Check: func(context.Context) error { return nil }},
	}, WithDependencyClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK || !check.CheckedAt.Equal(now) {
			t.Fatalf("unexpected check %s: %+v", name, check)
		}
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestDependencyHealthRepositoryRequiredFailureIsError(t *testing.T) {
	boom := errors.New("boom")
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return boom }},
		{Name: "redis", Optional: true, Check: func(context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error, got %s", report.Status)
	}
	if check := report.Checks["firestore"]; check.Error != "boom" || check.Detail != "boom" {
		t.Fatalf("unexpected firestore check %+v", check)
	}
}

func TestDependencyHealthRepositoryOptionalFailureDegrades(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "redis", Optional: true, Check: func(context.Context) error { return errors.New("refused") }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Checks["redis"].Status != domain.HealthStatusDegraded {
		t.Fatalf("expected redis degraded, got %+v", report.Checks["redis"])
	}
}

func TestDependencyHealthRepositoryCollectTimeout(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{{
		Name:    "prediction",
		Timeout: 5 * time.Millisecond,
		Check: func(ctx context.Context) error {
			select {
			case <-time.After(time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	check := report.Checks["prediction"]
	if report.Status != domain.HealthStatusError || check.Detail != "timeout" {
		t.Fatalf("expected timeout error, got %s / %+v", report.Status, check)
	}
}

func TestNewDependencyHealthRepositoryValidatesChecks(t *testing.T) {
	ok := func(context.Context) error { return nil }
	cases := [][]DependencyCheck{
		nil,
		{{Name: " ", Check: ok}},
		{{Name: "firestore"}},
		{{Name: "firestore", Check: ok}, {Name: "firestore", Check: ok}},
	}
	for i, checks := range cases {
		if _, err := NewDependencyHealthRepository(checks); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
