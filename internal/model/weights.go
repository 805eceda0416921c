// Package model loads scoring artifacts and trains the native regressor.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
)

// weightsFile is the on-disk artifact. Missing keys fall back to the
// matching default individually.
type weightsFile struct {
	Weights struct {
		W1 *float64 `json:"w1"`
		W2 *float64 `json:"w2"`
		W3 *float64 `json:"w3"`
	} `json:"weights"`
}

// ReadWeights parses a weights artifact. A missing file returns an error
// wrapping os.ErrNotExist.
func ReadWeights(path string) (domain.Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Weights{}, fmt.Errorf("read weights: %w", err)
	}
	var f weightsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return domain.Weights{}, fmt.Errorf("parse weights %s: %w", path, err)
	}

	w := domain.DefaultWeights
	if f.Weights.W1 != nil {
		w.W1 = *f.Weights.W1
	}
	if f.Weights.W2 != nil {
		w.W2 = *f.Weights.W2
	}
	if f.Weights.W3 != nil {
		w.W3 = *f.Weights.W3
	}
	if err := w.Validate(); err != nil {
		return domain.Weights{}, fmt.Errorf("weights %s: %w", path, err)
	}
	return w, nil
}

// LoadWeights reads a weights artifact, falling back to the defaults when the
// file is absent or malformed. The boolean reports whether the file supplied
// the weights.
func LoadWeights(path string, logger *slog.Logger) (domain.Weights, bool) {
	w, err := ReadWeights(path)
	switch {
	case err == nil:
		logger.Info("loaded score weights", "path", path, "w1", w.W1, "w2", w.W2, "w3", w.W3)
		return w, true
	case errors.Is(err, os.ErrNotExist):
		logger.Info("weights artifact not found, using defaults", "path", path)
	default:
		logger.Warn("weights artifact unusable, using defaults", "path", path, "error", err)
	}
	return domain.DefaultWeights, false
}

// WriteWeights saves weights in the artifact format.
func WriteWeights(path string, w domain.Weights) error {
	doc := map[string]domain.Weights{"weights": w}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	return nil
}
