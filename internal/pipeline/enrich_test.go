package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
)

type fakeReader struct {
	c       domain.Collection
	err     error
	modTime time.Time
	reads   int
}

func (r *fakeReader) Read() (domain.Collection, error) {
	r.reads++
	if r.err != nil {
		return nil, r.err
	}
	return r.c.Clone(), nil
}

func (r *fakeReader) ModTime() (time.Time, error) {
	if r.err != nil {
		return time.Time{}, r.err
	}
	return r.modTime, nil
}

type fixedForecaster struct {
	samples []domain.ForecastSample
	err     error
}

func (f *fixedForecaster) Forecast(_ context.Context, _, _ float64) ([]domain.ForecastSample, error) {
	return f.samples, f.err
}

func storedPoints() domain.Collection {
	var c domain.Collection
	for i, v := range []float64{0.2, 0.5, 0.9} {
		f := domain.NewFeature(77.2+float64(i)*0.01, 28.6)
		f.Set(domain.PropTemp, 30+float64(i)*5)
		f.Set(domain.PropNDVI, 0.3-float64(i)*0.1)
		f.Set(domain.PropDensity, 0.1+float64(i)*0.3)
		f.Set(domain.PropVulnerability, v)
		c = append(c, f)
	}
	return c
}

func newTestEnricher(points, priorities CollectionReader, opts EnrichOptions) *Enricher {
	if opts.Chain == nil {
		opts.Chain = domain.ScorerChain(nil, nil)
	}
	return NewEnricher(points, priorities, opts, observability.NewMetricsForTesting(), discardLogger())
}

func TestEnricher_VulnerabilityPoints(t *testing.T) {
	src := &fakeReader{c: storedPoints(), modTime: time.Unix(100, 0)}
	e := newTestEnricher(src, &fakeReader{}, EnrichOptions{Seed: 42})

	c, err := e.VulnerabilityPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, c, 3)
	for i, f := range c {
		assert.Equal(t, src.c[i].Value(domain.PropVulnerability), f.Value(domain.PropVulnerability))
		aqi, ok := f.Get(domain.PropAQI)
		require.True(t, ok)
		assert.GreaterOrEqual(t, aqi, float64(domain.AQIMin))
		assert.LessOrEqual(t, aqi, float64(domain.AQIMax))
		_, ok = f.Get(domain.PropPopulation)
		assert.True(t, ok)
		risk, ok := f.Get(domain.PropHealthRisk)
		require.True(t, ok)
		assert.GreaterOrEqual(t, risk, domain.HealthRiskMin)
		assert.LessOrEqual(t, risk, domain.HealthRiskMax)
	}

	again, err := e.VulnerabilityPoints(context.Background())
	require.NoError(t, err)
	for i := range c {
		assert.Equal(t, c[i].Properties(), again[i].Properties(), "repeated requests are identical")
	}
}

func TestEnricher_DoesNotMutateCache(t *testing.T) {
	src := &fakeReader{c: storedPoints(), modTime: time.Unix(100, 0)}
	e := newTestEnricher(src, &fakeReader{}, EnrichOptions{Seed: 42})

	_, err := e.VulnerabilityPoints(context.Background())
	require.NoError(t, err)

	cached, err := e.points.load()
	require.NoError(t, err)
	for _, f := range cached {
		_, ok := f.Get(domain.PropAQI)
		assert.False(t, ok)
	}
}

func TestEnricher_ReloadsOnModTimeChange(t *testing.T) {
	src := &fakeReader{c: storedPoints(), modTime: time.Unix(100, 0)}
	e := newTestEnricher(src, &fakeReader{}, EnrichOptions{Seed: 42})

	for range 3 {
		_, err := e.VulnerabilityPoints(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.reads)

	src.c = src.c[:1]
	src.modTime = time.Unix(200, 0)
	c, err := e.VulnerabilityPoints(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.reads)
	assert.Len(t, c, 1)
}

func TestEnricher_NotFound(t *testing.T) {
	missing := &fakeReader{err: domain.ErrDataNotFound}
	e := newTestEnricher(missing, missing, EnrichOptions{})

	_, err := e.VulnerabilityPoints(context.Background())
	require.ErrorIs(t, err, domain.ErrDataNotFound)
	_, err = e.TreePriority(context.Background())
	require.ErrorIs(t, err, domain.ErrDataNotFound)
	require.Error(t, e.CheckReadiness(context.Background()))
}

func TestEnricher_ReadyOnceReadable(t *testing.T) {
	e := newTestEnricher(&fakeReader{c: storedPoints()}, &fakeReader{}, EnrichOptions{})
	require.NoError(t, e.CheckReadiness(context.Background()))
}

func TestEnricher_ModelFailureFallsBack(t *testing.T) {
	w := domain.Weights{W1: 1}
	src := &fakeReader{c: storedPoints(), modTime: time.Unix(1, 0)}
	e := newTestEnricher(src, &fakeReader{}, EnrichOptions{Chain: domain.ScorerChain(failingRegressor{}, &w)})

	c, err := e.VulnerabilityPoints(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, c[0].Value(domain.PropVulnerability), 1e-12)
	assert.InDelta(t, 0.5, c[1].Value(domain.PropVulnerability), 1e-12)
	assert.InDelta(t, 1.0, c[2].Value(domain.PropVulnerability), 1e-12)
}

func TestEnricher_NoScorerSucceeds(t *testing.T) {
	bare := domain.Collection{domain.NewFeature(77.2, 28.6)}
	e := newTestEnricher(&fakeReader{c: bare}, &fakeReader{}, EnrichOptions{})

	_, err := e.VulnerabilityPoints(context.Background())
	require.ErrorIs(t, err, ErrNoScorer)
}

func TestEnricher_ForecastSetsBaseAQI(t *testing.T) {
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	f := domain.NewFeature(77.2, 28.6)
	f.Set(domain.PropTemp, 40)
	f.Set(domain.PropNDVI, 0)
	f.Set(domain.PropDensity, 0)
	f.Set(domain.PropVulnerability, 0.5)

	var samples []domain.ForecastSample
	for i := range 24 {
		samples = append(samples, domain.ForecastSample{Time: now.Add(time.Duration(i) * time.Hour), Category: 1})
	}

	tests := []struct {
		name       string
		forecaster domain.AirQualityForecaster
		base       float64
	}{
		{"forecast", &fixedForecaster{samples: samples}, 40},
		{"fetch error", &fixedForecaster{err: errors.New("timeout")}, domain.DefaultBaseAQI},
		{"disabled", nil, domain.DefaultBaseAQI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnricher(&fakeReader{c: domain.Collection{f}}, &fakeReader{}, EnrichOptions{Forecaster: tt.forecaster, Clock: clock, Seed: 42})
			c, err := e.VulnerabilityPoints(context.Background())
			require.NoError(t, err)
			aqi := c[0].Value(domain.PropAQI)
			assert.GreaterOrEqual(t, aqi, max(tt.base-15, domain.AQIMin))
			assert.LessOrEqual(t, aqi, tt.base+15)
		})
	}
}

func TestEnricher_TreePriority(t *testing.T) {
	prio := storedPoints()
	domain.ComputePriorities(prio, domain.DefaultWeights, 0.2)
	e := newTestEnricher(&fakeReader{}, &fakeReader{c: prio}, EnrichOptions{})

	c, err := e.TreePriority(context.Background())
	require.NoError(t, err)
	require.Len(t, c, 3)
	assert.True(t, c.HasAll(domain.PropPlantPriority))
	_, ok := c[0].Get(domain.PropAQI)
	assert.False(t, ok)
}
