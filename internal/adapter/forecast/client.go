// Package forecast fetches air-quality forecasts from the OpenWeather
// air pollution API.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
)

// DefaultBaseURL is the OpenWeather air pollution forecast endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/air_pollution/forecast"

const (
	maxAttempts    = 3
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// statusError is a non-200 answer from the API.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openweather API error: status %d: %s", e.code, e.body)
}

// temporary reports whether the request is worth repeating.
func (e *statusError) temporary() bool {
	return e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

// Client implements domain.AirQualityForecaster.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	backoff    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a forecast client. Requests are bounded by timeout.
func NewClient(apiKey, baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		backoff: initialBackoff,
		metrics: metrics,
		logger:  logger,
	}
}

// Forecast returns hourly samples for the coordinate in the order the API
// lists them. Rate-limit and server errors are retried with backoff.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) ([]domain.ForecastSample, error) {
	params := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', 6, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', 6, 64)},
		"appid": {c.apiKey},
	}

	start := time.Now()
	samples, err := c.fetch(ctx, c.baseURL+"?"+params.Encode())
	c.metrics.ForecastAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.ForecastRequests.WithLabelValues("error").Inc()
		return nil, err
	case len(samples) == 0:
		c.metrics.ForecastRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.ForecastRequests.WithLabelValues("success").Inc()
	}
	c.logger.Debug("air quality forecast fetched", "lat", lat, "lon", lon, "samples", len(samples))
	return samples, nil
}

func (c *Client) fetch(ctx context.Context, fullURL string) ([]domain.ForecastSample, error) {
	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		samples, err := c.doRequest(ctx, fullURL)
		var se *statusError
		if err == nil || !errors.As(err, &se) || !se.temporary() || attempt == maxAttempts {
			return samples, err
		}
		c.logger.Warn("air quality forecast request failed, retrying",
			"attempt", attempt,
			"status", se.code,
			"backoff", backoff,
		)
		if !retry.SleepWithContext(ctx, backoff) {
			return nil, fmt.Errorf("forecast retry: %w", ctx.Err())
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.ForecastSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}

	var owResp response
	if err := json.NewDecoder(resp.Body).Decode(&owResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	samples := make([]domain.ForecastSample, 0, len(owResp.List))
	for _, item := range owResp.List {
		samples = append(samples, domain.ForecastSample{
			Time:     time.Unix(item.Dt, 0).UTC(),
			Category: item.Main.AQI,
		})
	}
	return samples, nil
}

// OpenWeather API response types.

type response struct {
	List []item `json:"list"`
}

type item struct {
	Dt   int64 `json:"dt"`
	Main struct {
		AQI int `json:"aqi"`
	} `json:"main"`
}
