package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
)

// CollectionReader loads a persisted collection and reports when it last
// changed.
type CollectionReader interface {
	CollectionSource
	ModTime() (time.Time, error)
}

// cachedCollection keeps the last parsed collection until the source file's
// modification time moves.
type cachedCollection struct {
	src CollectionReader

	mu      sync.Mutex
	modTime time.Time
	c       domain.Collection
}

// load returns the cached collection, rereading the source when its mtime
// differs from the cached one. Callers must not mutate the result.
func (cc *cachedCollection) load() (domain.Collection, error) {
	mt, err := cc.src.ModTime()
	if err != nil {
		return nil, err
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.c != nil && mt.Equal(cc.modTime) {
		return cc.c, nil
	}
	c, err := cc.src.Read()
	if err != nil {
		return nil, err
	}
	cc.c, cc.modTime = c, mt
	return c, nil
}

// EnrichOptions configures request-time enrichment.
type EnrichOptions struct {
	Chain      []domain.Scorer
	Forecaster domain.AirQualityForecaster // nil disables the forecast
	Clock      clockwork.Clock             // nil uses real time
	CenterLon  float64
	CenterLat  float64
	Seed       uint64
}

// Enricher serves the generated collections, re-scoring and adding derived
// metrics on every request.
type Enricher struct {
	points      *cachedCollection
	priorities  *cachedCollection
	chain       []domain.Scorer
	forecaster  domain.AirQualityForecaster
	clock       clockwork.Clock
	synthesizer *domain.Synthesizer
	lon, lat    float64
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewEnricher creates an enricher over the points and priority sources.
func NewEnricher(points, priorities CollectionReader, opts EnrichOptions, metrics *observability.Metrics, logger *slog.Logger) *Enricher {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Enricher{
		points:      &cachedCollection{src: points},
		priorities:  &cachedCollection{src: priorities},
		chain:       opts.Chain,
		forecaster:  opts.Forecaster,
		clock:       clock,
		synthesizer: domain.NewSynthesizer(opts.Seed),
		lon:         opts.CenterLon,
		lat:         opts.CenterLat,
		metrics:     metrics,
		logger:      logger,
	}
}

// VulnerabilityPoints returns the scored collection with aqi, pop and
// health_risk. The cached collection is never mutated.
func (e *Enricher) VulnerabilityPoints(ctx context.Context) (domain.Collection, error) {
	stored, err := e.points.load()
	if err != nil {
		return nil, fmt.Errorf("load vulnerability points: %w", err)
	}
	c := stored.Clone()

	if _, err := scoreCollection(ctx, e.chain, c, e.metrics, e.logger); err != nil {
		return nil, fmt.Errorf("score vulnerability points: %w", err)
	}

	base := domain.BaseAQI(ctx, e.forecaster, e.clock, e.lat, e.lon, e.logger)
	e.synthesizer.Apply(c, base)
	return c, nil
}

// TreePriority returns the stored priority collection.
func (e *Enricher) TreePriority(_ context.Context) (domain.Collection, error) {
	c, err := e.priorities.load()
	if err != nil {
		return nil, fmt.Errorf("load tree priority: %w", err)
	}
	return c.Clone(), nil
}

// CheckReadiness reports ready once the vulnerability points are readable.
func (e *Enricher) CheckReadiness(_ context.Context) error {
	if _, err := e.points.load(); err != nil {
		e.metrics.ServerReady.Set(0)
		return err
	}
	e.metrics.ServerReady.Set(1)
	return nil
}
