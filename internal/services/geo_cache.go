package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/platform/storage"
	"github.com/food-passport/api/internal/platform/textutil"
)

// GeoState is the lifecycle of the province dataset inside a GeoCache.
type GeoState int

const (
	GeoEmpty GeoState = iota
	GeoLoading
	GeoLoaded
)

func (s GeoState) String() string {
	switch s {
	case GeoLoading:
		return "loading"
	case GeoLoaded:
		return "loaded"
	default:
		return "empty"
	}
}

// DatasetSource returns the raw province dataset.
type DatasetSource interface {
	Read(ctx context.Context) ([]byte, error)
}

// FileDatasetSource reads the dataset from the local filesystem.
type FileDatasetSource struct {
	Path string
}

func (s FileDatasetSource) Read(context.Context) ([]byte, error) {
	return os.ReadFile(s.Path)
}

// GCSDatasetSource reads the dataset from a gs://bucket/object URI.
type GCSDatasetSource struct {
	Objects storage.Objects
	URI     string
}

func (s GCSDatasetSource) Read(ctx context.Context) ([]byte, error) {
	if s.Objects == nil {
		return nil, ErrStorageUnavailable
	}
	bucket, object, err := storage.ParseURI(s.URI)
	if err != nil {
		return nil, err
	}
	return s.Objects.Read(ctx, bucket, object)
}

// NewDatasetSource picks GCS for gs:// URIs and the filesystem otherwise.
func NewDatasetSource(uri string, objects storage.Objects) (DatasetSource, error) {
	uri = strings.TrimSpace(uri)
	switch {
	case uri == "":
		return nil, errors.New("geo: dataset uri is required")
	case strings.HasPrefix(uri, "gs://"):
		return GCSDatasetSource{Objects: objects, URI: uri}, nil
	default:
		return FileDatasetSource{Path: strings.TrimPrefix(uri, "file://")}, nil
	}
}

// GeoCacheDeps bundles the collaborators of the province cache.
type GeoCacheDeps struct {
	Source DatasetSource
	Logger *zap.Logger
}

// GeoCache memoizes the parsed province dataset. Concurrent loads share one parse and a successful
// parse is kept until Clear.
type GeoCache struct {
	source DatasetSource
	logger *zap.Logger

	mu         sync.Mutex
	state      GeoState
	generation uint64
	features   []ProvinceFeature
	inflight   *geoLoad
}

type geoLoad struct {
	done     chan struct{}
	waiters  int
	features []ProvinceFeature
	err      error
}

// NewGeoCache returns an empty cache.
func NewGeoCache(deps GeoCacheDeps) (*GeoCache, error) {
	if deps.Source == nil {
		return nil, errors.New("geo cache: dataset source is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeoCache{source: deps.Source, logger: logger}, nil
}

// Load returns the dataset, parsing it on first use. Callers that arrive during a parse wait for it
// and receive the same slice or the same error. A failed parse leaves the cache empty. The parse
// is not bound to the first caller's cancellation.
func (g *GeoCache) Load(ctx context.Context) ([]ProvinceFeature, error) {
	g.mu.Lock()
	switch g.state {
	case GeoLoaded:
		features := g.features
		g.mu.Unlock()
		return features, nil
	case GeoLoading:
		call := g.inflight
		call.waiters++
		g.mu.Unlock()
		return waitGeoLoad(ctx, call)
	}

	call := &geoLoad{done: make(chan struct{}), waiters: 1}
	g.inflight = call
	g.state = GeoLoading
	generation := g.generation
	g.mu.Unlock()

	go g.run(context.WithoutCancel(ctx), call, generation)
	return waitGeoLoad(ctx, call)
}

func (g *GeoCache) run(ctx context.Context, call *geoLoad, generation uint64) {
	features, err := g.parse(ctx)

	g.mu.Lock()
	if g.generation == generation {
		g.inflight = nil
		if err != nil {
			g.state = GeoEmpty
		} else {
			g.state = GeoLoaded
			g.features = features
		}
	}
	g.mu.Unlock()

	call.features, call.err = features, err
	close(call.done)
}

func waitGeoLoad(ctx context.Context, call *geoLoad) ([]ProvinceFeature, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-call.done:
		return call.features, call.err
	}
}

// Preload starts a background load. Failures are logged and leave the cache empty.
func (g *GeoCache) Preload(ctx context.Context) {
	go func() {
		features, err := g.Load(ctx)
		if err != nil {
			g.logger.Warn("geo dataset preload failed", zap.Error(err))
			return
		}
		g.logger.Info("geo dataset loaded", zap.Int("provinces", len(features)))
	}()
}

// Clear drops the dataset. A parse still in flight finishes for its waiters but is not kept.
func (g *GeoCache) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generation++
	g.state = GeoEmpty
	g.features = nil
	g.inflight = nil
}

// inflightWaiters counts the callers attached to the parse in progress, zero when idle.
func (g *GeoCache) inflightWaiters() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight == nil {
		return 0
	}
	return g.inflight.waiters
}

// State reports the current lifecycle state.
func (g *GeoCache) State() GeoState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Lookup finds a province by normalized name.
func (g *GeoCache) Lookup(ctx context.Context, name string) (ProvinceFeature, bool, error) {
	features, err := g.Load(ctx)
	if err != nil {
		return ProvinceFeature{}, false, err
	}
	key := textutil.NormalizeRegionName(name)
	if key == "" {
		return ProvinceFeature{}, false, nil
	}
	for _, feature := range features {
		if textutil.NormalizeRegionName(feature.Name) == key {
			return feature, true, nil
		}
	}
	return ProvinceFeature{}, false, nil
}

func (g *GeoCache) parse(ctx context.Context) ([]ProvinceFeature, error) {
	raw, err := g.source.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("geo: read dataset: %w", err)
	}
	return ParseProvinces(raw)
}

type provinceRecord struct {
	Name        string       `json:"name"`
	Center      *geoPoint    `json:"center,omitempty"`
	Coordinates [][]geoPoint `json:"coordinates"`
}

type geoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ParseProvinces decodes the dataset JSON array.
func ParseProvinces(raw []byte) ([]ProvinceFeature, error) {
	var records []provinceRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("geo: decode dataset: %w", err)
	}
	features := make([]ProvinceFeature, 0, len(records))
	for i, record := range records {
		name := strings.TrimSpace(record.Name)
		if name == "" {
			return nil, fmt.Errorf("geo: province %d has no name", i)
		}
		feature := ProvinceFeature{Name: name, Rings: make([][]domain.GeoPoint, 0, len(record.Coordinates))}
		if record.Center != nil {
			feature.Center = &domain.GeoPoint{Latitude: record.Center.Latitude, Longitude: record.Center.Longitude}
		}
		for _, ring := range record.Coordinates {
			points := make([]domain.GeoPoint, 0, len(ring))
			for _, p := range ring {
				points = append(points, domain.GeoPoint{Latitude: p.Latitude, Longitude: p.Longitude})
			}
			feature.Rings = append(feature.Rings, points)
		}
		features = append(features, feature)
	}
	return features, nil
}
