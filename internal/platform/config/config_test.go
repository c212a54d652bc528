package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID": "fp-dev",
		"API_PREDICTION_BASE_URL": "http://localhost:8000/",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Environment)
	}
	if cfg.Firestore.ProjectID != "fp-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "fp-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.CheckinTopic != defaultCheckinTopic {
		t.Errorf("unexpected checkin topic %s", cfg.PubSub.CheckinTopic)
	}
	if cfg.Prediction.BaseURL != "http://localhost:8000" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Prediction.BaseURL)
	}
	if cfg.Prediction.Timeout != 30*time.Second {
		t.Errorf("unexpected prediction timeout %s", cfg.Prediction.Timeout)
	}
	if cfg.Prediction.MaxImageBytes != 10<<20 {
		t.Errorf("unexpected max image bytes %d", cfg.Prediction.MaxImageBytes)
	}
	if cfg.Prediction.ScanRateLimit != 30 || cfg.Prediction.ScanRateWindow != time.Minute {
		t.Errorf("unexpected scan rate limit %d per %s", cfg.Prediction.ScanRateLimit, cfg.Prediction.ScanRateWindow)
	}
	if cfg.Storage.AvatarMaxBytes != 5<<20 {
		t.Errorf("unexpected avatar max bytes %d", cfg.Storage.AvatarMaxBytes)
	}
	if !cfg.Geo.Preload {
		t.Errorf("expected geo preload enabled by default")
	}
	if cfg.Redis.URL != "" {
		t.Errorf("expected redis disabled by default, got %s", cfg.Redis.URL)
	}
	if cfg.Redis.SnapshotTTL != 30*time.Second {
		t.Errorf("unexpected snapshot ttl %s", cfg.Redis.SnapshotTTL)
	}
	if cfg.Auth.RequireFirebase {
		t.Errorf("expected firebase auth disabled by default")
	}
	if cfg.Activity.FeedLimit != 20 || cfg.Activity.LeaderboardLimit != 10 || cfg.Activity.MaxLimit != 100 {
		t.Errorf("unexpected activity limits %+v", cfg.Activity)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
	if cfg.Firestore.TxAttempts != 5 || cfg.Firestore.TxTimeout != 15*time.Second {
		t.Errorf("unexpected transaction budget %d/%s", cfg.Firestore.TxAttempts, cfg.Firestore.TxTimeout)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":                  "PROD",
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIREBASE_PROJECT_ID":          "fp-prod",
		"API_FIRESTORE_PROJECT_ID":         "fp-fire",
		"API_FIRESTORE_TX_ATTEMPTS":        "8",
		"API_FIRESTORE_TX_TIMEOUT":         "20s",
		"API_STORAGE_MEDIA_BUCKET":         "media-prod",
		"API_PUBSUB_CHECKIN_TOPIC":         "checkins-prod",
		"API_PREDICTION_BASE_URL":          "https://ai.example.com",
		"API_PREDICTION_AUTH_TOKEN":        "secret://prediction/token",
		"API_PREDICTION_TIMEOUT":           "12s",
		"API_GEO_DATASET_URI":              "gs://geo-bucket/vn/provinces.json",
		"API_GEO_PRELOAD":                  "false",
		"API_REDIS_URL":                    "sm://redis/url",
		"API_REDIS_SNAPSHOT_TTL":           "1m",
		"API_AUTH_REQUIRE_FIREBASE":        "true",
		"API_ACTIVITY_FEED_LIMIT":          "50",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
	}

	secrets := map[string]string{
		"secret://prediction/token": "prediction-token",
		"secret://redis/url":        "redis://cache:6379/0",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("expected environment prod, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "fp-fire" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.Firestore.TxAttempts != 8 || cfg.Firestore.TxTimeout != 20*time.Second {
		t.Errorf("unexpected transaction budget %d/%s", cfg.Firestore.TxAttempts, cfg.Firestore.TxTimeout)
	}
	if cfg.Storage.MediaBucket != "media-prod" {
		t.Errorf("unexpected media bucket %s", cfg.Storage.MediaBucket)
	}
	if cfg.PubSub.CheckinTopic != "checkins-prod" {
		t.Errorf("unexpected topic %s", cfg.PubSub.CheckinTopic)
	}
	if cfg.Prediction.AuthToken != "prediction-token" {
		t.Errorf("expected resolved prediction token, got %s", cfg.Prediction.AuthToken)
	}
	if cfg.Prediction.Timeout != 12*time.Second {
		t.Errorf("unexpected prediction timeout %s", cfg.Prediction.Timeout)
	}
	if cfg.Geo.DatasetURI != "gs://geo-bucket/vn/provinces.json" || cfg.Geo.Preload {
		t.Errorf("unexpected geo config %+v", cfg.Geo)
	}
	if cfg.Redis.URL != "redis://cache:6379/0" {
		t.Errorf("expected resolved redis url, got %s", cfg.Redis.URL)
	}
	if cfg.Redis.SnapshotTTL != time.Minute {
		t.Errorf("unexpected snapshot ttl %s", cfg.Redis.SnapshotTTL)
	}
	if !cfg.Auth.RequireFirebase {
		t.Errorf("expected firebase auth enabled")
	}
	if cfg.Activity.FeedLimit != 50 {
		t.Errorf("unexpected feed limit %d", cfg.Activity.FeedLimit)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=fp-dot\nAPI_PREDICTION_BASE_URL=\"http://ai:8000\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "fp-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Prediction.BaseURL != "http://ai:8000" {
		t.Errorf("expected quoted value unwrapped, got %s", cfg.Prediction.BaseURL)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Firebase.ProjectID": false, "Firestore.ProjectID": false, "Prediction.BaseURL": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields %v", field, fields)
		}
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]struct {
		key   string
		value string
		field string
	}{
		"relative prediction url": {key: "API_PREDICTION_BASE_URL", value: "localhost", field: "Prediction.BaseURL"},
		"gcs uri without object":  {key: "API_GEO_DATASET_URI", value: "gs://bucket", field: "Geo.DatasetURI"},
		"feed limit above max":    {key: "API_ACTIVITY_FEED_LIMIT", value: "500", field: "Activity.FeedLimit"},
		"zero avatar size":        {key: "API_STORAGE_AVATAR_MAX_BYTES", value: "0", field: "Storage.AvatarMaxBytes"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			env[tc.key] = tc.value
			_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, field := range validation.Fields() {
				if field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tc.field, validation.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["API_PREDICTION_AUTH_TOKEN"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS": "secret://prediction/token=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://prediction/token=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Prediction.AuthToken"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Prediction.AuthToken")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Redis.URL" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Redis.URL"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := baseEnv()
	env["API_PREDICTION_AUTH_TOKEN"] = "sm://prediction/token"

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://prediction/token" {
			return "legacy-token", nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Prediction.AuthToken != "legacy-token" {
		t.Fatalf("expected legacy token, got %s", cfg.Prediction.AuthToken)
	}
}
