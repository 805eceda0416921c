package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
)

// ErrTooFewPoints is returned when the collection cannot fill both splits.
var ErrTooFewPoints = errors.New("too few points to train")

// TrainOptions controls the synthetic target and the train/test split.
type TrainOptions struct {
	Seed         uint64
	Noise        float64 // standard deviation of the target noise
	TestFraction float64
}

// DefaultTrainOptions mirrors the reference training run.
var DefaultTrainOptions = TrainOptions{Seed: 42, Noise: 0.05, TestFraction: 0.2}

// SyntheticTarget is the ground truth the trainer fits:
// 0.6*(temp-20)/30 + 0.3*density - 0.3*ndvi, before noise and clipping.
func SyntheticTarget(temp, ndvi, density float64) float64 {
	return 0.6*(temp-20)/30 + 0.3*density - 0.3*ndvi
}

// Train fits a linear model to a noisy synthetic vulnerability target built
// from each point's raw features, holding out TestFraction for evaluation.
func Train(c domain.Collection, opts TrainOptions) (*Linear, error) {
	rng := rand.New(rand.NewPCG(opts.Seed, 0))
	m := c.Matrix()
	rows := m.Rows()
	target := make([]float64, len(rows))
	for i := range rows {
		y := SyntheticTarget(m.Temp[i], m.NDVI[i], m.Density[i]) + opts.Noise*rng.NormFloat64()
		target[i] = math.Max(0, math.Min(1, y))
	}

	nTest := int(math.Round(float64(len(rows)) * opts.TestFraction))
	nTrain := len(rows) - nTest
	if nTest < 1 || nTrain <= len(FeatureOrder) {
		return nil, fmt.Errorf("%w: have %d", ErrTooFewPoints, len(rows))
	}

	perm := rng.Perm(len(rows))
	pick := func(idx []int) ([][]float64, []float64) {
		x := make([][]float64, len(idx))
		y := make([]float64, len(idx))
		for k, i := range idx {
			x[k], y[k] = rows[i], target[i]
		}
		return x, y
	}
	xTrain, yTrain := pick(perm[:nTrain])
	xTest, yTest := pick(perm[nTrain:])

	lin, err := FitOLS(xTrain, yTrain)
	if err != nil {
		return nil, err
	}
	lin.Metrics = Evaluate(lin, xTest, yTest)
	return lin, nil
}

// FitOLS solves the least squares problem with an intercept column.
func FitOLS(x [][]float64, y []float64) (*Linear, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("fit: %d rows for %d targets", len(x), len(y))
	}
	cols := len(x[0]) + 1
	design := mat.NewDense(len(x), cols, nil)
	for i, row := range x {
		if len(row) != cols-1 {
			return nil, fmt.Errorf("fit: row %d has %d values, want %d", i, len(row), cols-1)
		}
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(design, mat.NewVecDense(len(y), append([]float64(nil), y...))); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	coef := make([]float64, cols-1)
	for j := range coef {
		coef[j] = beta.AtVec(j + 1)
	}
	return &Linear{
		Kind:         KindLinear,
		Intercept:    beta.AtVec(0),
		Coefficients: coef,
		Features:     append([]string(nil), FeatureOrder...),
	}, nil
}

// Evaluate computes mean squared error and R2 of the model on held-out rows.
func Evaluate(l *Linear, x [][]float64, y []float64) Metrics {
	pred := make([]float64, len(x))
	var sse float64
	for i, row := range x {
		p := l.Intercept
		for j, c := range l.Coefficients {
			p += c * row[j]
		}
		pred[i] = p
		sse += (p - y[i]) * (p - y[i])
	}
	if len(x) == 0 {
		return Metrics{}
	}
	return Metrics{
		MSE: sse / float64(len(x)),
		R2:  stat.RSquaredFrom(pred, y, nil),
	}
}
