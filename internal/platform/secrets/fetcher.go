package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 15 * time.Minute
	meterName           = "github.com/food-passport/api/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// (and sm://) references against Secret Manager. Values are cached per
// version for a bounded TTL; a local dotenv-style file backs up the remote store when credentials
// are missing or the API is unreachable.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	now        func() time.Time

	env         string
	project     string
	projects    map[string]string
	versionPins map[string]string
	ttl         time.Duration

	fallback *fallbackFile

	mu    sync.Mutex
	cache map[string]cached

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cached struct {
	value     string
	expiresAt time.Time
}

type settings struct {
	logger       *zap.Logger
	env          string
	project      string
	projects     map[string]string
	versionPins  map[string]string
	fallbackPath string
	ttl          time.Duration
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
	now          func() time.Time
}

// Option customises Fetcher construction.
type Option func(*settings)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithEnvironment selects which entry of the project map applies.
func WithEnvironment(env string) Option {
	return func(s *settings) { s.env = strings.ToLower(strings.TrimSpace(env)) }
}

// WithDefaultProject sets the project used when the project map has no entry for the environment.
func WithDefaultProject(projectID string) Option {
	return func(s *settings) { s.project = strings.TrimSpace(projectID) }
}

// WithProjectMap supplies per-environment project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(s *settings) { s.projects = cloneMap(m) }
}

// WithVersionPins pins references (optionally prefixed with "<env>:") to explicit versions.
func WithVersionPins(pins map[string]string) Option {
	return func(s *settings) { s.versionPins = cloneMap(pins) }
}

// WithFallbackFile overrides the local fallback file path. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(s *settings) { s.fallbackPath = strings.TrimSpace(path) }
}

// WithCacheTTL bounds how long a resolved value is reused. Zero or negative keeps the default.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMeter injects the OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(s *settings) { s.meter = m }
}

// WithSecretManagerClient injects a preconfigured client.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(s *settings) { s.client = client }
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// NewFetcher builds a Fetcher. A Secret Manager client that cannot be created is logged and the
// fetcher runs in fallback-only mode.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{
		logger:       zap.NewNop(),
		env:          strings.ToLower(strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))),
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.env == "" {
		s.env = defaultEnvironment
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	meter := s.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		logger:      s.logger,
		now:         s.now,
		env:         s.env,
		project:     s.project,
		projects:    cloneMap(s.projects),
		versionPins: cloneMap(s.versionPins),
		ttl:         s.ttl,
		fallback:    &fallbackFile{path: s.fallbackPath},
		cache:       make(map[string]cached),
	}

	var err error
	if f.latency, err = meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution in milliseconds"),
	); err != nil {
		s.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
		f.latency = nil
	}
	if f.cacheHits, err = meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache"),
	); err != nil {
		s.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
		f.cacheHits = nil
	}

	switch {
	case s.client != nil:
		f.client = s.client
	default:
		client, clientErr := newSecretManagerClient(ctx, s.clientOpts...)
		if clientErr != nil {
			s.logger.Warn("secrets: secret manager unavailable, using local fallback only", zap.Error(clientErr))
			break
		}
		f.client = client
		f.ownsClient = true
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the plaintext value of ref. Remote NotFound and InvalidArgument errors are
// returned as-is; credential and availability errors fall back to the local file.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	version := f.versionFor(parsed)
	key := parsed.Canonical + "#" + version

	if value, ok := f.cached(key); ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskReference(parsed.Canonical))))
		}
		f.observe(ctx, start, "cache", false)
		return value, nil
	}

	if project := f.projectFor(parsed); project != "" && f.client != nil {
		value, fetchErr := f.fetchRemote(ctx, project, parsed.Secret, version)
		if fetchErr == nil {
			f.store(key, value)
			f.observe(ctx, start, "remote", false)
			return value, nil
		}
		if !recoverable(fetchErr) {
			f.observe(ctx, start, "remote", true)
			return "", fmt.Errorf("secrets: fetch %s: %w", parsed.Canonical, fetchErr)
		}
		f.logger.Debug("secrets: remote unavailable, trying local fallback",
			zap.String("secret", maskReference(parsed.Canonical)), zap.Error(fetchErr))
	}

	value, ok, fbErr := f.fallback.lookup(parsed, version)
	if fbErr != nil {
		f.observe(ctx, start, "fallback", true)
		return "", fbErr
	}
	if !ok {
		f.observe(ctx, start, "fallback", true)
		return "", fmt.Errorf("secrets: no value for %s", parsed.Canonical)
	}
	f.store(key, value)
	f.observe(ctx, start, "fallback", false)
	return value, nil
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	if !f.now().Before(entry.expiresAt) {
		delete(f.cache, key)
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = cached{value: value, expiresAt: f.now().Add(f.ttl)}
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, project, secret, version string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, secret, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", errors.New("secrets: empty payload for " + name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) projectFor(ref reference) string {
	if ref.Project != "" {
		return ref.Project
	}
	if id := strings.TrimSpace(f.projects[f.env]); id != "" {
		return id
	}
	return f.project
}

func (f *Fetcher) versionFor(ref reference) string {
	if ref.Version != "" {
		return ref.Version
	}
	for _, key := range []string{f.env + ":" + ref.Canonical, ref.Canonical} {
		if pin := strings.TrimSpace(f.versionPins[key]); pin != "" {
			return pin
		}
	}
	return "latest"
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string, failed bool) {
	if f.latency == nil {
		return
	}
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source), attribute.Bool("failed", failed)))
}

func recoverable(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

func cloneMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
