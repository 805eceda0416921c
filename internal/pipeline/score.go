// Package pipeline orchestrates offline generation and request-time
// enrichment of vulnerability points against small interfaces.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
)

// ErrNoScorer is returned when every strategy in a chain failed.
var ErrNoScorer = errors.New("no scoring strategy succeeded")

// scoreCollection tries each scorer in order and applies the first
// successful result. Failures are logged and counted before moving on.
// It returns the name of the strategy that produced the scores.
func scoreCollection(ctx context.Context, chain []domain.Scorer, c domain.Collection, metrics *observability.Metrics, logger *slog.Logger) (string, error) {
	m := c.Matrix()
	var errs []error
	for _, s := range chain {
		scores, err := s.Score(ctx, m)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Warn("scorer failed, falling back",
				"scorer", s.Name(),
				"points", len(c),
				"error", err,
			)
			metrics.ScorerFallbacks.WithLabelValues(s.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if err := domain.ApplyScores(c, scores); err != nil {
			return "", err
		}
		metrics.ScoringRuns.WithLabelValues(s.Name()).Inc()
		return s.Name(), nil
	}
	return "", fmt.Errorf("%w: %w", ErrNoScorer, errors.Join(errs...))
}
