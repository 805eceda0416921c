package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultBaseAQI is the starting AQI when no forecast is available.
	DefaultBaseAQI = 200.0
	// ForecastWindow is the number of upcoming samples averaged into the base AQI.
	ForecastWindow = 24
)

// aqiByCategory maps the five-level air-quality category onto the 0-500 scale.
var aqiByCategory = map[int]float64{1: 40, 2: 80, 3: 130, 4: 180, 5: 250}

// ForecastSample is one hourly air-quality forecast entry.
type ForecastSample struct {
	Time     time.Time
	Category int // 1 (good) to 5 (very poor)
}

// AirQualityForecaster fetches an air-quality forecast for a location.
type AirQualityForecaster interface {
	Forecast(ctx context.Context, lat, lon float64) ([]ForecastSample, error)
}

// CategoryAQI returns the scale value for a category and whether the
// category is known.
func CategoryAQI(category int) (float64, bool) {
	v, ok := aqiByCategory[category]
	return v, ok
}

// AverageForecastAQI averages the mapped AQI of the first ForecastWindow
// samples at or after now. Samples with unknown categories are skipped.
// Reports false when nothing usable remains.
func AverageForecastAQI(samples []ForecastSample, now time.Time) (float64, bool) {
	var sum float64
	var taken, used int
	for _, s := range samples {
		if s.Time.Before(now) {
			continue
		}
		if taken == ForecastWindow {
			break
		}
		taken++
		v, ok := CategoryAQI(s.Category)
		if !ok {
			continue
		}
		sum += v
		used++
	}
	if used == 0 {
		return 0, false
	}
	return sum / float64(used), true
}

// BaseAQI resolves the city-wide base AQI for one request. clock decides
// which samples are still upcoming. A nil forecaster, a failed fetch, or an
// empty forecast all yield DefaultBaseAQI.
func BaseAQI(ctx context.Context, forecaster AirQualityForecaster, clock clockwork.Clock, lat, lon float64, logger *slog.Logger) float64 {
	if forecaster == nil {
		return DefaultBaseAQI
	}

	samples, err := forecaster.Forecast(ctx, lat, lon)
	if err != nil {
		logger.Warn("air quality forecast failed, using default base",
			"lat", lat,
			"lon", lon,
			"default", DefaultBaseAQI,
			"error", err,
		)
		return DefaultBaseAQI
	}

	avg, ok := AverageForecastAQI(samples, clock.Now())
	if !ok {
		logger.Warn("air quality forecast had no usable samples", "samples", len(samples))
		return DefaultBaseAQI
	}
	return avg
}
