package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/food-passport/api/internal/platform/cache"
	"github.com/food-passport/api/internal/platform/config"
	pfirestore "github.com/food-passport/api/internal/platform/firestore"
	"github.com/food-passport/api/internal/platform/idempotency"
	"github.com/food-passport/api/internal/platform/jobs"
	"github.com/food-passport/api/internal/platform/observability"
	"github.com/food-passport/api/internal/platform/prediction"
	"github.com/food-passport/api/internal/platform/storage"
	"github.com/food-passport/api/internal/repositories"
	firestoreRepo "github.com/food-passport/api/internal/repositories/firestore"
	"github.com/food-passport/api/internal/repositories/memory"
	"github.com/food-passport/api/internal/services"
)

const secretHealthReference = "secret://system/healthz?version=latest"

// Services bundles the service-layer contracts that handlers rely upon. Optional services are nil
// when their backing infrastructure is not configured; handlers answer 503 for those routes.
type Services struct {
	Foods     services.FoodRegistry
	Scan      services.ScanService
	Ledger    services.PassportLedger
	Activity  services.ActivityService
	Provinces services.ProvinceService
	AuditLogs services.AuditLogService
	Users     services.UserService
	System    services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Geo          *services.GeoCache
	Idempotency  idempotency.Store

	closers []func(context.Context) error
}

// SecretResolver is the slice of the secret fetcher used for the readiness probe.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	build      services.BuildInfo
	registry   repositories.Registry
	predictor  services.Predictor
	objects    storage.Objects
	secrets    SecretResolver
	clientOpts []option.ClientOption
}

// WithLogger sets the base logger. Components log under named children.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBuildInfo records the build metadata reported by the health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *options) { o.build = build }
}

// WithRegistry supplies a prebuilt repository registry instead of connecting to Firestore.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithPredictor replaces the HTTP prediction client.
func WithPredictor(predictor services.Predictor) Option {
	return func(o *options) { o.predictor = predictor }
}

// WithObjects replaces the Cloud Storage client used for avatars and the geo dataset.
func WithObjects(objects storage.Objects) Option {
	return func(o *options) { o.objects = objects }
}

// WithSecretResolver adds a Secret Manager readiness check.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *options) { o.secrets = resolver }
}

// WithClientOptions forwards Google API client options (credentials, endpoints) to every cloud client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

// NewContainer constructs the runtime dependencies. Firestore backs the repositories when a project
// is configured; otherwise an in-memory registry is used.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.build.StartedAt.IsZero() {
		o.build.StartedAt = time.Now().UTC()
	}
	if o.build.Environment == "" {
		o.build.Environment = cfg.Environment
	}

	c := &Container{Config: cfg}
	built := false
	defer func() {
		if !built {
			_ = c.Close(context.Background())
		}
	}()

	var checks []repositories.DependencyCheck

	snapshots, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		o.logger.Warn("redis unavailable; snapshot cache disabled", zap.Error(err))
		snapshots = nil
	}
	if snapshots != nil {
		c.closers = append(c.closers, func(context.Context) error { return snapshots.Close() })
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Optional: true,
			Check:    snapshots.Ping,
		})
	}

	predictor := o.predictor
	if predictor == nil && cfg.Prediction.BaseURL != "" {
		client, err := prediction.NewClient(cfg.Prediction.BaseURL,
			prediction.WithAuthToken(cfg.Prediction.AuthToken),
			prediction.WithTimeout(cfg.Prediction.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("build prediction client: %w", err)
		}
		predictor = client
	}
	if prober, ok := predictor.(interface{ Health(context.Context) error }); ok {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "prediction",
			Timeout:  3 * time.Second,
			Optional: true,
			Check:    prober.Health,
		})
	}

	if o.secrets != nil {
		resolver := o.secrets
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := resolver.Resolve(ctx, secretHealthReference)
				if err == nil || status.Code(err) == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}

	objects := o.objects
	if objects == nil && (cfg.Storage.MediaBucket != "" || strings.HasPrefix(cfg.Geo.DatasetURI, "gs://")) {
		client, err := gcs.NewClient(ctx, o.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("build storage client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		wrapped, err := storage.NewGCS(client)
		if err != nil {
			return nil, err
		}
		objects = wrapped
	}

	switch {
	case o.registry != nil:
		c.Repositories = o.registry
		c.Idempotency = idempotency.NewMemoryStore()
	case cfg.Firestore.ProjectID != "":
		provider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(o.clientOpts...))
		reg, err := firestoreRepo.NewRegistry(provider, checks...)
		if err != nil {
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		c.Repositories = reg
		c.Idempotency = idempotency.NewFirestoreStore(provider, "")
	default:
		o.logger.Warn("firestore project not configured; using in-memory repositories")
		c.Repositories = memory.NewRegistry(checks...)
		c.Idempotency = idempotency.NewMemoryStore()
	}

	var publisher services.CheckinPublisher
	if topicID := strings.TrimSpace(cfg.PubSub.CheckinTopic); topicID != "" && cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, o.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("build pubsub client: %w", err)
		}
		checkins, err := jobs.NewCheckinPublisher(client.Topic(topicID))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		c.closers = append(c.closers, func(context.Context) error {
			checkins.Stop()
			return client.Close()
		})
		publisher = checkins
	}

	if uri := strings.TrimSpace(cfg.Geo.DatasetURI); uri != "" {
		source, err := services.NewDatasetSource(uri, objects)
		if err != nil {
			return nil, err
		}
		geo, err := services.NewGeoCache(services.GeoCacheDeps{Source: source, Logger: o.logger.Named("geo")})
		if err != nil {
			return nil, err
		}
		if cfg.Geo.Preload {
			geo.Preload(context.WithoutCancel(ctx))
		}
		c.Geo = geo
	}

	svc, err := buildServices(c, o, infra{
		predictor: predictor,
		objects:   objects,
		publisher: publisher,
		snapshots: snapshots,
	})
	if err != nil {
		return nil, err
	}
	c.Services = svc
	built = true
	return c, nil
}

type infra struct {
	predictor services.Predictor
	objects   storage.Objects
	publisher services.CheckinPublisher
	snapshots *cache.Client
}

func buildServices(c *Container, o options, in infra) (Services, error) {
	var svc Services
	reg := c.Repositories
	cfg := c.Config
	warnf := observability.NewWarnfAdapter(o.logger.Named("services"))

	var media services.MediaUploader
	if in.objects != nil && cfg.Storage.MediaBucket != "" {
		uploader, err := storage.NewUploader(in.objects, cfg.Storage.MediaBucket)
		if err != nil {
			return Services{}, fmt.Errorf("build media uploader: %w", err)
		}
		media = uploader
	}

	var snapshots services.SnapshotCache
	var invalidator services.CacheInvalidator
	if in.snapshots != nil {
		snapshots = in.snapshots
		invalidator = in.snapshots
	}

	foods, err := services.NewFoodRegistry(services.FoodRegistryDeps{Foods: reg.Foods()})
	if err != nil {
		return Services{}, fmt.Errorf("build food registry: %w", err)
	}
	svc.Foods = foods

	audit, err := services.NewAuditLogService(services.AuditLogServiceDeps{Repository: reg.AuditLogs()})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.AuditLogs = audit

	if in.predictor != nil {
		scan, err := services.NewScanService(services.ScanServiceDeps{
			Predictor:     in.predictor,
			Foods:         foods,
			Audit:         audit,
			Media:         media,
			Logger:        warnf,
			MaxImageBytes: cfg.Prediction.MaxImageBytes,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build scan service: %w", err)
		}
		svc.Scan = scan
	} else {
		o.logger.Warn("prediction service not configured; scan disabled")
	}

	ledger, err := services.NewPassportLedger(services.PassportLedgerDeps{
		Users:     reg.Users(),
		Foods:     foods,
		Publisher: in.publisher,
		Cache:     invalidator,
		Logger:    warnf,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build passport ledger: %w", err)
	}
	svc.Ledger = ledger

	activity, err := services.NewActivityService(services.ActivityServiceDeps{
		Users:            reg.Users(),
		Checkins:         reg.Checkins(),
		Foods:            foods,
		Cache:            snapshots,
		Logger:           warnf,
		FeedLimit:        cfg.Activity.FeedLimit,
		LeaderboardLimit: cfg.Activity.LeaderboardLimit,
		MaxLimit:         cfg.Activity.MaxLimit,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build activity service: %w", err)
	}
	svc.Activity = activity

	users, err := services.NewUserService(services.UserServiceDeps{
		Users:          reg.Users(),
		Media:          media,
		Cache:          invalidator,
		Logger:         warnf,
		AvatarMaxBytes: cfg.Storage.AvatarMaxBytes,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = users

	if c.Geo != nil {
		provinces, err := services.NewProvinceService(services.ProvinceServiceDeps{Geo: c.Geo, Users: reg.Users()})
		if err != nil {
			return Services{}, fmt.Errorf("build province service: %w", err)
		}
		svc.Provinces = provinces
	}

	systemDeps := services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Foods:            reg.Foods(),
		Build:            o.build,
	}
	if c.Geo != nil {
		systemDeps.Geo = c.Geo
	}
	system, err := services.NewSystemService(systemDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return svc, nil
}

// Close releases repository clients, publishers, and caches in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
