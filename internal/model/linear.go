package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
)

// KindLinear identifies the native linear artifact.
const KindLinear = "linear"

// FeatureOrder is the column order every regressor expects.
var FeatureOrder = []string{domain.PropTemp, domain.PropNDVI, domain.PropDensity}

// Metrics summarizes held-out evaluation of a trained model.
type Metrics struct {
	MSE float64 `json:"mse"`
	R2  float64 `json:"r2"`
}

// Linear is an ordinary least squares regressor. It is immutable once built
// and safe for concurrent use.
type Linear struct {
	Kind         string    `json:"kind"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	Features     []string  `json:"features"`
	Metrics      Metrics   `json:"metrics"`
}

// PredictBatch evaluates every row. Rows must have one value per coefficient.
func (l *Linear) PredictBatch(ctx context.Context, rows [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(l.Coefficients) {
			return nil, fmt.Errorf("row %d has %d values, model expects %d", i, len(row), len(l.Coefficients))
		}
		y := l.Intercept
		for j, c := range l.Coefficients {
			y += c * row[j]
		}
		out[i] = y
	}
	return out, nil
}

// LoadLinear reads a linear model artifact.
func LoadLinear(path string) (*Linear, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var l Linear
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if l.Kind != KindLinear {
		return nil, fmt.Errorf("model %s: unsupported kind %q", path, l.Kind)
	}
	if len(l.Coefficients) != len(FeatureOrder) {
		return nil, fmt.Errorf("model %s: want %d coefficients, got %d", path, len(FeatureOrder), len(l.Coefficients))
	}
	return &l, nil
}

// Save writes the model as an indented JSON artifact.
func (l *Linear) Save(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}
