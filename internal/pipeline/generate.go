package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
	"github.com/couchcryptid/heat-vulnerability/internal/raster"
)

// Skip reasons, used as log attributes and metric labels.
const (
	SkipOutOfBounds = "out_of_bounds"
	SkipNoData      = "nodata"
	SkipImplausible = "implausible"
	SkipNDVIFilter  = "ndvi_filter"
)

// ErrNoPoints is returned when every sampled point was skipped.
var ErrNoPoints = errors.New("no sample point survived raster sampling")

// RasterLayer returns the value of a raster at a WGS84 coordinate.
type RasterLayer interface {
	Sample(lon, lat float64) (float64, error)
}

// DensityEstimator returns the building coverage of a disc around a point.
type DensityEstimator interface {
	Density(lon, lat, radiusM float64) float64
}

// CollectionWriter persists a feature collection.
type CollectionWriter interface {
	Write(c domain.Collection) error
}

// Publisher forwards a scored collection downstream.
type Publisher interface {
	Publish(ctx context.Context, runID, scorer string, c domain.Collection) error
}

// GenerateOptions controls point sampling.
type GenerateOptions struct {
	BBox    [4]float64 // min lon, min lat, max lon, max lat
	Points  int
	Seed    uint64
	RadiusM float64
	NDVIMin *float64 // drop points below this NDVI when set
}

// GenerateResult summarizes one generation run.
type GenerateResult struct {
	RunID   string
	Scorer  string
	Kept    int
	Skipped map[string]int
}

// Generator samples rasters and footprints at random points, scores them,
// and writes the collection.
type Generator struct {
	lst       RasterLayer
	ndvi      RasterLayer
	density   DensityEstimator
	chain     []domain.Scorer
	out       CollectionWriter
	publisher Publisher
	opts      GenerateOptions
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewGenerator wires a generator. publisher may be nil.
func NewGenerator(lst, ndvi RasterLayer, density DensityEstimator, chain []domain.Scorer, out CollectionWriter, publisher Publisher, opts GenerateOptions, metrics *observability.Metrics, logger *slog.Logger) *Generator {
	return &Generator{
		lst:       lst,
		ndvi:      ndvi,
		density:   density,
		chain:     chain,
		out:       out,
		publisher: publisher,
		opts:      opts,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run executes sample, score, write, and publish.
func (g *Generator) Run(ctx context.Context) (GenerateResult, error) {
	res := GenerateResult{RunID: uuid.NewString()}
	logger := g.logger.With("run_id", res.RunID)
	logger.Info("generation started", "points", g.opts.Points, "seed", g.opts.Seed, "radius_m", g.opts.RadiusM)

	c, skipped := g.Sample()
	res.Kept, res.Skipped = len(c), skipped
	for reason, n := range skipped {
		logger.Info("points skipped", "reason", reason, "count", n)
	}
	if len(c) == 0 {
		return res, ErrNoPoints
	}

	scorer, err := scoreCollection(ctx, g.chain, c, g.metrics, logger)
	if err != nil {
		return res, fmt.Errorf("score collection: %w", err)
	}
	res.Scorer = scorer

	if err := g.out.Write(c); err != nil {
		return res, fmt.Errorf("write collection: %w", err)
	}
	logger.Info("collection written", "kept", len(c), "scorer", scorer)

	if g.publisher != nil {
		if err := g.publisher.Publish(ctx, res.RunID, scorer, c); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Sample draws the configured number of uniform random points in the bbox
// and keeps those where both rasters yield plausible values. Density is
// estimated only for kept points. The same seed always yields the same
// collection.
func (g *Generator) Sample() (domain.Collection, map[string]int) {
	rng := rand.New(rand.NewPCG(g.opts.Seed, 0))
	b := g.opts.BBox
	skipped := make(map[string]int)
	c := make(domain.Collection, 0, g.opts.Points)

	for range g.opts.Points {
		lon := b[0] + rng.Float64()*(b[2]-b[0])
		lat := b[1] + rng.Float64()*(b[3]-b[1])

		temp, ndvi, reason := g.sampleLayers(lon, lat)
		if reason != "" {
			skipped[reason]++
			g.metrics.PointsSkipped.WithLabelValues(reason).Inc()
			continue
		}

		start := time.Now()
		density := g.density.Density(lon, lat, g.opts.RadiusM)
		g.metrics.DensityDuration.Observe(time.Since(start).Seconds())

		f := domain.NewFeature(lon, lat)
		f.Set(domain.PropTemp, temp)
		f.Set(domain.PropNDVI, ndvi)
		f.Set(domain.PropDensity, density)
		c = append(c, f)
		g.metrics.PointsSampled.Inc()
	}
	return c, skipped
}

// sampleLayers returns both raster values or the reason the point is skipped.
func (g *Generator) sampleLayers(lon, lat float64) (float64, float64, string) {
	temp, err := g.lst.Sample(lon, lat)
	if err != nil {
		return 0, 0, skipReason(err)
	}
	if err := domain.CheckTemperature(temp); err != nil {
		return 0, 0, SkipImplausible
	}
	ndvi, err := g.ndvi.Sample(lon, lat)
	if err != nil {
		return 0, 0, skipReason(err)
	}
	if err := domain.CheckNDVI(ndvi); err != nil {
		return 0, 0, SkipImplausible
	}
	if g.opts.NDVIMin != nil && ndvi < *g.opts.NDVIMin {
		return 0, 0, SkipNDVIFilter
	}
	return temp, ndvi, ""
}

func skipReason(err error) string {
	var oob *raster.OutOfBoundsError
	switch {
	case errors.As(err, &oob):
		return SkipOutOfBounds
	case errors.Is(err, raster.ErrNoData):
		return SkipNoData
	default:
		return SkipImplausible
	}
}
