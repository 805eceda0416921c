package forecast

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
)

// CachedForecaster wraps a forecaster with an in-memory LRU cache. Entries
// are keyed by rounded coordinate and expire at the end of the clock hour
// they were fetched in.
type CachedForecaster struct {
	inner   domain.AirQualityForecaster
	cache   *lruCache
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewCachedForecaster creates a cache decorator around a forecaster.
func NewCachedForecaster(inner domain.AirQualityForecaster, maxEntries int, clock clockwork.Clock, metrics *observability.Metrics) *CachedForecaster {
	return &CachedForecaster{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		clock:   clock,
		metrics: metrics,
	}
}

func (c *CachedForecaster) Forecast(ctx context.Context, lat, lon float64) ([]domain.ForecastSample, error) {
	now := c.clock.Now()
	key := fmt.Sprintf("%.4f,%.4f@%d", lat, lon, now.Truncate(time.Hour).Unix())
	if samples, ok := c.cache.get(key); ok {
		c.metrics.ForecastCache.WithLabelValues("hit").Inc()
		return samples, nil
	}
	c.metrics.ForecastCache.WithLabelValues("miss").Inc()

	samples, err := c.inner.Forecast(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	// Empty forecasts are not cached so the next request retries.
	if len(samples) > 0 {
		c.cache.put(key, samples)
	}
	return samples, nil
}

// lruCache is a thread-safe LRU cache of forecast sample slices. The front
// of order is the most recently used entry.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List
	entries    map[string]*list.Element
}

type entry struct {
	key   string
	value []domain.ForecastSample
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) ([]domain.ForecastSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

func (c *lruCache) put(key string, value []domain.ForecastSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).value = value
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&entry{key: key, value: value})

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
