package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 60 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultEnvironment          = "local"
	defaultFirestoreTxAttempts  = 5
	defaultFirestoreTxTimeout   = 15 * time.Second
	defaultPredictionTimeout    = 30 * time.Second
	defaultPredictionMaxImage   = 10 << 20
	defaultScanRateLimit        = 30
	defaultScanRateWindow       = time.Minute
	defaultAvatarMaxBytes       = 5 << 20
	defaultCheckinTopic         = "passport-checkins"
	defaultRedisSnapshotTTL     = 30 * time.Second
	defaultFeedLimit            = 20
	defaultLeaderboardLimit     = 10
	defaultActivityMaxLimit     = 100
	defaultAdminRole            = "admin"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	Prediction  PredictionConfig
	Geo         GeoConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Idempotency IdempotencyConfig
	Activity    ActivityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters. TxAttempts and TxTimeout bound every transaction;
// a passport check-in that is still contended after TxAttempts tries is reported as a conflict.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	TxAttempts   int
	TxTimeout    time.Duration
}

// StorageConfig configures Cloud Storage usage. Avatar uploads are disabled when MediaBucket is empty.
type StorageConfig struct {
	MediaBucket    string
	AvatarMaxBytes int64
}

// PubSubConfig controls check-in event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID    string
	CheckinTopic string
}

// PredictionConfig points at the external image classification service. ScanRateLimit caps scans
// per client within ScanRateWindow; zero disables the limit.
type PredictionConfig struct {
	BaseURL        string
	AuthToken      string
	Timeout        time.Duration
	MaxImageBytes  int64
	ScanRateLimit  int
	ScanRateWindow time.Duration
}

// GeoConfig locates the province polygon dataset. DatasetURI accepts a local path or gs://bucket/object.
type GeoConfig struct {
	DatasetURI string
	Preload    bool
}

// RedisConfig enables the aggregate snapshot cache when URL is set.
type RedisConfig struct {
	URL         string
	SnapshotTTL time.Duration
}

// AuthConfig toggles Firebase ID token verification on mutating routes.
type AuthConfig struct {
	RequireFirebase bool
	AdminRole       string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ActivityConfig bounds the recent activity feed and leaderboard.
type ActivityConfig struct {
	FeedLimit        int
	LeaderboardLimit int
	MaxLimit         int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	names := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		names = append(names, secret.redacted)
	}
	sort.Strings(names)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(names, ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// environment layers the sources in precedence order: .env, then the process environment, then
// the explicit map.
func (o loaderOptions) environment() (map[string]string, error) {
	values, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if o.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if key = strings.TrimSpace(key); ok && key != "" {
				values[key] = value
			}
		}
	}
	for key, value := range o.envMap {
		values[key] = value
	}
	return values, nil
}

// EnvironmentValues returns the merged environment Load would read. main uses it to configure the
// secret fetcher before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return newLoaderOptions(opts).environment()
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers should match the config field names recorded by the loader
// (e.g. "Prediction.AuthToken" or "Redis.URL").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	env, err := options.environment()
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
			TxAttempts:   intWithDefault(lookup, "API_FIRESTORE_TX_ATTEMPTS", defaultFirestoreTxAttempts),
			TxTimeout:    durationWithDefault(lookup, "API_FIRESTORE_TX_TIMEOUT", defaultFirestoreTxTimeout),
		},
		Storage: StorageConfig{
			MediaBucket:    stringWithDefault(lookup, "API_STORAGE_MEDIA_BUCKET", ""),
			AvatarMaxBytes: int64(intWithDefault(lookup, "API_STORAGE_AVATAR_MAX_BYTES", defaultAvatarMaxBytes)),
		},
		PubSub: PubSubConfig{
			ProjectID:    stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			CheckinTopic: stringWithDefault(lookup, "API_PUBSUB_CHECKIN_TOPIC", defaultCheckinTopic),
		},
		Prediction: PredictionConfig{
			BaseURL:        strings.TrimRight(stringWithDefault(lookup, "API_PREDICTION_BASE_URL", ""), "/"),
			AuthToken:      stringWithDefault(lookup, "API_PREDICTION_AUTH_TOKEN", ""),
			Timeout:        durationWithDefault(lookup, "API_PREDICTION_TIMEOUT", defaultPredictionTimeout),
			MaxImageBytes:  int64(intWithDefault(lookup, "API_PREDICTION_MAX_IMAGE_BYTES", defaultPredictionMaxImage)),
			ScanRateLimit:  intWithDefault(lookup, "API_PREDICTION_SCAN_RATE_LIMIT", defaultScanRateLimit),
			ScanRateWindow: durationWithDefault(lookup, "API_PREDICTION_SCAN_RATE_WINDOW", defaultScanRateWindow),
		},
		Geo: GeoConfig{
			DatasetURI: stringWithDefault(lookup, "API_GEO_DATASET_URI", ""),
			Preload:    boolWithDefault(lookup, "API_GEO_PRELOAD", true),
		},
		Redis: RedisConfig{
			URL:         stringWithDefault(lookup, "API_REDIS_URL", ""),
			SnapshotTTL: durationWithDefault(lookup, "API_REDIS_SNAPSHOT_TTL", defaultRedisSnapshotTTL),
		},
		Auth: AuthConfig{
			RequireFirebase: boolWithDefault(lookup, "API_AUTH_REQUIRE_FIREBASE", false),
			AdminRole:       stringWithDefault(lookup, "API_AUTH_ADMIN_ROLE", defaultAdminRole),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Activity: ActivityConfig{
			FeedLimit:        intWithDefault(lookup, "API_ACTIVITY_FEED_LIMIT", defaultFeedLimit),
			LeaderboardLimit: intWithDefault(lookup, "API_ACTIVITY_LEADERBOARD_LIMIT", defaultLeaderboardLimit),
			MaxLimit:         intWithDefault(lookup, "API_ACTIVITY_MAX_LIMIT", defaultActivityMaxLimit),
		},
	}

	resolvedSecrets := make(map[string]string)
	recordSecret := func(name, value string) {
		resolvedSecrets[name] = strings.TrimSpace(value)
	}
	resolveField := func(name string, field *string) error {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return err
		}
		*field = resolved
		recordSecret(name, resolved)
		return nil
	}

	// Firestore and Pub/Sub projects default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}

	// Resolve secrets when values reference Secret Manager.
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Prediction.AuthToken", &cfg.Prediction.AuthToken},
		{"Redis.URL", &cfg.Redis.URL},
	}
	for _, target := range secretFields {
		if err := resolveField(target.name, target.field); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		normalized := normalizeSecretReference(value)
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Firestore.TxAttempts <= 0 {
		missing = append(missing, "Firestore.TxAttempts")
	}
	if cfg.Firestore.TxTimeout <= 0 {
		missing = append(missing, "Firestore.TxTimeout")
	}
	if cfg.Prediction.BaseURL == "" {
		missing = append(missing, "Prediction.BaseURL")
	} else if u, err := url.Parse(cfg.Prediction.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		missing = append(missing, "Prediction.BaseURL")
	}
	if cfg.Prediction.Timeout <= 0 {
		missing = append(missing, "Prediction.Timeout")
	}
	if cfg.Prediction.MaxImageBytes <= 0 {
		missing = append(missing, "Prediction.MaxImageBytes")
	}
	if cfg.Storage.AvatarMaxBytes <= 0 {
		missing = append(missing, "Storage.AvatarMaxBytes")
	}
	if strings.HasPrefix(cfg.Geo.DatasetURI, "gs://") && !validGCSURI(cfg.Geo.DatasetURI) {
		missing = append(missing, "Geo.DatasetURI")
	}
	if cfg.Redis.URL != "" && cfg.Redis.SnapshotTTL <= 0 {
		missing = append(missing, "Redis.SnapshotTTL")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}
	if cfg.Activity.MaxLimit <= 0 {
		missing = append(missing, "Activity.MaxLimit")
	}
	if cfg.Activity.FeedLimit <= 0 || cfg.Activity.FeedLimit > cfg.Activity.MaxLimit {
		missing = append(missing, "Activity.FeedLimit")
	}
	if cfg.Activity.LeaderboardLimit <= 0 || cfg.Activity.LeaderboardLimit > cfg.Activity.MaxLimit {
		missing = append(missing, "Activity.LeaderboardLimit")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func validGCSURI(uri string) bool {
	rest := strings.TrimPrefix(uri, "gs://")
	bucket, object, ok := strings.Cut(rest, "/")
	return ok && bucket != "" && object != ""
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if key = strings.TrimSpace(key); !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
