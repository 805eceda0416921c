package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
)

// CollectionSource loads a persisted collection.
type CollectionSource interface {
	Read() (domain.Collection, error)
}

// RunPriorities reads the scored collection from src, computes planting
// priority for every point, and writes the result to dst.
func RunPriorities(src CollectionSource, dst CollectionWriter, w domain.Weights, delta float64, logger *slog.Logger) (domain.Collection, error) {
	c, err := src.Read()
	if err != nil {
		return nil, fmt.Errorf("read scored collection: %w", err)
	}
	if !c.HasAll(domain.PropVulnerability) {
		logger.Warn("collection lacks stored vulnerability for some points, using formula baseline")
	}

	domain.ComputePriorities(c, w, delta)

	if err := dst.Write(c); err != nil {
		return nil, fmt.Errorf("write priority collection: %w", err)
	}
	logger.Info("priorities computed", "points", len(c), "delta_ndvi", delta, "weights", w)
	return c, nil
}
