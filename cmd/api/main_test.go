package main

import (
	"testing"
	"time"

	"github.com/food-passport/api/internal/platform/config"
)

func TestSecretVersionPins(t *testing.T) {
	pins := secretVersionPins("prod:sm://food/redis-url=7, secret://food/prediction-token=latest, plain=3, broken")
	want := map[string]string{
		"prod:secret://food/redis-url":    "7",
		"secret://food/prediction-token": "latest",
		"secret://plain":                 "3",
	}
	if len(pins) != len(want) {
		t.Fatalf("expected %d pins, got %v", len(want), pins)
	}
	for ref, version := range want {
		if pins[ref] != version {
			t.Fatalf("expected %s=%s, got %v", ref, version, pins)
		}
	}
}

func TestRequiredSecretNames(t *testing.T) {
	if got := requiredSecretNames(nil); len(got) != 0 {
		t.Fatalf("expected no required secrets, got %v", got)
	}
	got := requiredSecretNames(map[string]string{
		"API_REDIS_URL":             "secret://food/redis-url",
		"API_PREDICTION_AUTH_TOKEN": "secret://food/prediction-token",
	})
	if len(got) != 2 || got[0] != "Prediction.AuthToken" || got[1] != "Redis.URL" {
		t.Fatalf("unexpected required secrets %v", got)
	}
}

func TestBuildInfoFromEnv(t *testing.T) {
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	info := buildInfoFromEnv(map[string]string{"API_BUILD_VERSION": "1.2.0"}, config.Config{Environment: "prod"}, started)
	if info.Version != "1.2.0" || info.CommitSHA != "unknown" || info.Environment != "prod" || !info.StartedAt.Equal(started) {
		t.Fatalf("unexpected build info %+v", info)
	}
}

func TestTraceProjectIDFallsBackToFirestore(t *testing.T) {
	cfg := config.Config{Firestore: config.FirestoreConfig{ProjectID: "fs-project"}}
	if got := traceProjectID(cfg); got != "fs-project" {
		t.Fatalf("expected firestore project, got %q", got)
	}
	cfg.Firebase.ProjectID = "fb-project"
	if got := traceProjectID(cfg); got != "fb-project" {
		t.Fatalf("expected firebase project, got %q", got)
	}
}
