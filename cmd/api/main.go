package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/food-passport/api/internal/di"
	"github.com/food-passport/api/internal/handlers"
	"github.com/food-passport/api/internal/platform/auth"
	"github.com/food-passport/api/internal/platform/config"
	"github.com/food-passport/api/internal/platform/idempotency"
	"github.com/food-passport/api/internal/platform/observability"
	"github.com/food-passport/api/internal/platform/secrets"
	"github.com/food-passport/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	containerOpts := []di.Option{
		di.WithLogger(logger),
		di.WithBuildInfo(buildInfo),
		di.WithSecretResolver(fetcher),
	}
	if path := strings.TrimSpace(cfg.Firebase.CredentialsFile); path != "" {
		containerOpts = append(containerOpts, di.WithClientOptions(option.WithCredentialsFile(path)))
	}
	container, err := di.NewContainer(ctx, cfg, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build dependency container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	idempotencyMiddleware := idempotency.Middleware(
		container.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(cfg.Idempotency.CleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := container.Idempotency.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	var authenticator *auth.Authenticator
	if cfg.Auth.RequireFirebase {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		authenticator = auth.NewAuthenticator(verifier, auth.WithAdminRole(cfg.Auth.AdminRole))
	} else {
		logger.Warn("firebase authentication disabled; mutating routes are open")
	}

	svc := container.Services
	scanHandlers := handlers.NewScanHandlers(svc.Scan,
		handlers.WithScanMaxBytes(cfg.Prediction.MaxImageBytes),
		handlers.WithScanRateLimit(cfg.Prediction.ScanRateLimit, cfg.Prediction.ScanRateWindow),
		handlers.WithScanAuthenticator(authenticator),
	)
	userHandlers := handlers.NewUserHandlers(handlers.UserHandlersDeps{
		Users:          svc.Users,
		Ledger:         svc.Ledger,
		Activity:       svc.Activity,
		AILogs:         svc.AuditLogs,
		Authenticator:  authenticator,
		Idempotency:    idempotencyMiddleware,
		AvatarMaxBytes: cfg.Storage.AvatarMaxBytes,
		MaxLimit:       cfg.Activity.MaxLimit,
	})
	foodHandlers := handlers.NewFoodHandlers(svc.Foods, authenticator)
	aiLogHandlers := handlers.NewAILogHandlers(svc.AuditLogs)
	provinceHandlers := handlers.NewProvinceHandlers(svc.Provinces)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithScanRoutes(scanHandlers.Routes),
		handlers.WithUserRoutes(userHandlers.Routes),
		handlers.WithFoodRoutes(foodHandlers.Routes),
		handlers.WithCultureRoutes(foodHandlers.CultureRoutes),
		handlers.WithAILogRoutes(aiLogHandlers.Routes),
		handlers.WithProvinceRoutes(provinceHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("food passport api listening", zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projects := parseKeyValueList(lookup("API_SECRET_PROJECT_IDS")); len(projects) > 0 {
		normalised := make(map[string]string, len(projects))
		for label, project := range projects {
			normalised[strings.ToLower(label)] = project
		}
		opts = append(opts, secrets.WithProjectMap(normalised))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPins(lookup("API_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secret-backed settings that must resolve to a value when the
// environment references them.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.TrimSpace(env["API_PREDICTION_AUTH_TOKEN"]) != "" {
		required = append(required, "Prediction.AuthToken")
	}
	if strings.TrimSpace(env["API_REDIS_URL"]) != "" {
		required = append(required, "Redis.URL")
	}
	sort.Strings(required)
	return required
}

// secretVersionPins parses "name=version" pairs, normalising names to secret:// references.
func secretVersionPins(raw string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(raw) {
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		switch {
		case strings.HasPrefix(ref, "sm://"):
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		case !strings.HasPrefix(ref, "secret://"):
			ref = "secret://" + ref
		}
		pins[prefix+ref] = version
	}
	return pins
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
