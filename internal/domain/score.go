package domain

import (
	"context"
	"errors"
	"fmt"
)

// Scoring strategy names, used as log attributes and metric labels.
const (
	ScorerModel       = "model"
	ScorerFormula     = "formula"
	ScorerPassThrough = "passthrough"
)

// ErrNoStoredScore is returned by the pass-through scorer when the
// collection carries no precomputed vulnerability.
var ErrNoStoredScore = errors.New("collection has no stored vulnerability")

// Weights are the coefficients of the fixed vulnerability formula. They are
// not required to sum to 1.
type Weights struct {
	W1 float64 `json:"w1"` // temperature
	W2 float64 `json:"w2"` // vegetation, subtracted
	W3 float64 `json:"w3"` // building density
}

// DefaultWeights is used when no weights artifact is available.
var DefaultWeights = Weights{W1: 0.6, W2: 0.2, W3: 0.2}

// Validate rejects negative or non-finite weights.
func (w Weights) Validate() error {
	for _, v := range []float64{w.W1, w.W2, w.W3} {
		if !finite(v) || v < 0 {
			return fmt.Errorf("weights must be finite and non-negative, got %+v", w)
		}
	}
	return nil
}

// Apply combines normalized inputs. The result is not clamped; weights that
// are not a convex combination can push it outside [0,1].
func (w Weights) Apply(normTemp, normNDVI, normDensity float64) float64 {
	return w.W1*normTemp - w.W2*normNDVI + w.W3*normDensity
}

// FeatureMatrix holds the raw per-point inputs as aligned columns.
// Vulnerability is only set when every point has a stored score.
type FeatureMatrix struct {
	Temp          []float64
	NDVI          []float64
	Density       []float64
	Vulnerability []float64
}

// Len returns the number of rows.
func (m FeatureMatrix) Len() int { return len(m.Temp) }

// Rows returns the matrix in row-major [temp, ndvi, density] order.
func (m FeatureMatrix) Rows() [][]float64 {
	rows := make([][]float64, m.Len())
	for i := range rows {
		rows[i] = []float64{m.Temp[i], m.NDVI[i], m.Density[i]}
	}
	return rows
}

func (m FeatureMatrix) validate() error {
	n := len(m.Temp)
	if len(m.NDVI) != n || len(m.Density) != n {
		return fmt.Errorf("misaligned feature matrix: temp=%d ndvi=%d density=%d", n, len(m.NDVI), len(m.Density))
	}
	return nil
}

// Scorer turns a feature matrix into one vulnerability score per row, in row
// order.
type Scorer interface {
	Name() string
	Score(ctx context.Context, m FeatureMatrix) ([]float64, error)
}

// Regressor is a trained model evaluated over a whole batch in one call.
// Implementations must be safe for concurrent use.
type Regressor interface {
	PredictBatch(ctx context.Context, rows [][]float64) ([]float64, error)
}

// FormulaScorer applies the weighted formula to per-column normalized inputs.
type FormulaScorer struct {
	Weights Weights
}

func (FormulaScorer) Name() string { return ScorerFormula }

func (s FormulaScorer) Score(_ context.Context, m FeatureMatrix) ([]float64, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	nT := Normalize(m.Temp)
	nN := Normalize(m.NDVI)
	nB := Normalize(m.Density)

	out := make([]float64, m.Len())
	for i := range out {
		out[i] = s.Weights.Apply(nT[i], nN[i], nB[i])
	}
	return out, nil
}

// ModelScorer evaluates a regressor once per matrix.
type ModelScorer struct {
	Model Regressor
}

func (ModelScorer) Name() string { return ScorerModel }

func (s ModelScorer) Score(ctx context.Context, m FeatureMatrix) ([]float64, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if m.Len() == 0 {
		return []float64{}, nil
	}
	out, err := s.Model.PredictBatch(ctx, m.Rows())
	if err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	if len(out) != m.Len() {
		return nil, fmt.Errorf("model returned %d scores for %d rows", len(out), m.Len())
	}
	for i, v := range out {
		if !finite(v) {
			return nil, fmt.Errorf("model returned non-finite score at row %d", i)
		}
	}
	return out, nil
}

// PassThroughScorer returns the vulnerability already stored on each point.
type PassThroughScorer struct{}

func (PassThroughScorer) Name() string { return ScorerPassThrough }

func (PassThroughScorer) Score(_ context.Context, m FeatureMatrix) ([]float64, error) {
	if len(m.Vulnerability) != m.Len() {
		return nil, ErrNoStoredScore
	}
	out := make([]float64, len(m.Vulnerability))
	copy(out, m.Vulnerability)
	return out, nil
}

// ScorerChain lists the strategies to try in order: the model when one is
// loaded, the formula when weights were supplied, then pass-through.
func ScorerChain(model Regressor, weights *Weights) []Scorer {
	chain := make([]Scorer, 0, 3)
	if model != nil {
		chain = append(chain, ModelScorer{Model: model})
	}
	if weights != nil {
		chain = append(chain, FormulaScorer{Weights: *weights})
	}
	return append(chain, PassThroughScorer{})
}

// ApplyScores writes scores onto the collection as vulnerability.
func ApplyScores(c Collection, scores []float64) error {
	if len(scores) != len(c) {
		return fmt.Errorf("have %d scores for %d features", len(scores), len(c))
	}
	for i, f := range c {
		f.Set(PropVulnerability, scores[i])
	}
	return nil
}
