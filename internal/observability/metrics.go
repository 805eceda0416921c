package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hotspots"

// Metrics holds the Prometheus collectors for generation and serving.
type Metrics struct {
	// Generation metrics.
	PointsSampled     prometheus.Counter
	PointsSkipped     *prometheus.CounterVec // labels: reason={out_of_bounds,nodata,implausible,ndvi_filter}
	DensityDuration   prometheus.Histogram
	FeaturesPublished prometheus.Counter

	// Scoring metrics.
	ScoringRuns     *prometheus.CounterVec // labels: scorer={model,formula,passthrough}
	ScorerFallbacks *prometheus.CounterVec // labels: scorer (the strategy that failed)

	// Forecast metrics.
	ForecastRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	ForecastCache       *prometheus.CounterVec // labels: result={hit,miss}
	ForecastAPIDuration prometheus.Histogram
	ForecastEnabled     prometheus.Gauge

	// API metrics.
	APIRequests *prometheus.CounterVec // labels: route, status
	ServerReady prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		PointsSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_sampled_total",
			Help:      "Sample points kept after raster sampling.",
		}),
		PointsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_skipped_total",
			Help:      "Sample points dropped by reason.",
		}, []string{"reason"}),
		DensityDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "density_estimation_duration_seconds",
			Help:      "Duration of one building density estimate.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		FeaturesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_published_total",
			Help:      "Scored features written to Kafka.",
		}),
		ScoringRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_runs_total",
			Help:      "Successful collection scorings by strategy.",
		}, []string{"scorer"}),
		ScorerFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scorer_fallbacks_total",
			Help:      "Scoring strategies that failed and fell through to the next.",
		}, []string{"scorer"}),
		ForecastRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_requests_total",
			Help:      "Air quality forecast API requests by outcome.",
		}, []string{"outcome"}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cache_total",
			Help:      "Forecast cache lookups by result.",
		}, []string{"result"}),
		ForecastAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_api_duration_seconds",
			Help:      "Air quality forecast API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}),
		ForecastEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "forecast_enabled",
			Help:      "1 when forecast-based AQI is enabled, 0 otherwise.",
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "status"}),
		ServerReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_ready",
			Help:      "1 once the served collection has loaded, 0 otherwise.",
		}),
	}
}

// NewMetrics creates all metrics and registers them with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PointsSampled,
		m.PointsSkipped,
		m.DensityDuration,
		m.FeaturesPublished,
		m.ScoringRuns,
		m.ScorerFallbacks,
		m.ForecastRequests,
		m.ForecastCache,
		m.ForecastAPIDuration,
		m.ForecastEnabled,
		m.APIRequests,
		m.ServerReady,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as
// many as they need without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
