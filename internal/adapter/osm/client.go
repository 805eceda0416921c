// Package osm downloads OpenStreetMap building footprints through the
// Overpass API.
package osm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/serjvanilla/go-overpass"

	"github.com/couchcryptid/heat-vulnerability/internal/spatial"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// BBox is a WGS84 bounding box.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Client queries building ways inside a bounding box.
type Client struct {
	client  overpass.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates an Overpass client. timeout bounds both the HTTP call
// and the server-side query.
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := &http.Client{
		Timeout: timeout,
	}
	return &Client{
		client:  overpass.NewWithSettings(endpoint, 2, httpClient),
		timeout: timeout,
		logger:  logger,
	}
}

// BuildingQuery renders the Overpass QL query for every way tagged building
// in the box. Overpass expects (south, west, north, east).
func BuildingQuery(b BBox, timeout time.Duration) string {
	return fmt.Sprintf(`[out:json][timeout:%d];
(
	way["building"](%f,%f,%f,%f);
);
out body;
>;
out skel qt;`, int(timeout.Seconds()), b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Buildings downloads footprints inside b, ordered by OSM way id.
func (c *Client) Buildings(ctx context.Context, b BBox) ([]spatial.Footprint, error) {
	type outcome struct {
		result overpass.Result
		err    error
	}
	// The library call takes no context; run it aside so cancellation still
	// returns promptly.
	done := make(chan outcome, 1)
	go func() {
		r, err := c.client.Query(BuildingQuery(b, c.timeout))
		done <- outcome{r, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("overpass building query: %w", o.err)
		}
		footprints := FootprintsFromResult(&o.result)
		c.logger.Info("building footprints downloaded",
			"ways", len(o.result.Ways),
			"footprints", len(footprints),
		)
		return footprints, nil
	}
}

// FootprintsFromResult converts closed building ways into footprints.
// Open ways and ways with fewer than three distinct vertices are dropped.
func FootprintsFromResult(r *overpass.Result) []spatial.Footprint {
	ids := make([]int64, 0, len(r.Ways))
	for id := range r.Ways {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]spatial.Footprint, 0, len(ids))
	for _, id := range ids {
		way := r.Ways[id]
		if way == nil || len(way.Nodes) < 4 {
			continue
		}
		ring := make(orb.Ring, 0, len(way.Nodes))
		for _, n := range way.Nodes {
			if n == nil {
				ring = nil
				break
			}
			ring = append(ring, orb.Point{n.Lon, n.Lat})
		}
		if len(ring) < 4 || ring[0] != ring[len(ring)-1] {
			continue
		}
		out = append(out, spatial.Footprint{ID: id, Polygon: orb.Polygon{ring}})
	}
	return out
}
