package model

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadWeights(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  domain.Weights
		found bool
	}{
		{"full", `{"weights":{"w1":0.5,"w2":0.3,"w3":0.4}}`, domain.Weights{W1: 0.5, W2: 0.3, W3: 0.4}, true},
		{"partial keys default individually", `{"weights":{"w1":1}}`, domain.Weights{W1: 1, W2: 0.2, W3: 0.2}, true},
		{"malformed json", `{"weights":`, domain.DefaultWeights, false},
		{"negative weight", `{"weights":{"w2":-1}}`, domain.DefaultWeights, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := LoadWeights(writeFile(t, "w.json", tt.body), discardLogger())
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.found, found)
		})
	}
}

func TestLoadWeights_Missing(t *testing.T) {
	got, found := LoadWeights(filepath.Join(t.TempDir(), "absent.json"), discardLogger())
	assert.False(t, found)
	assert.Equal(t, domain.DefaultWeights, got)
}

func TestWriteWeights_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_artifacts.json")
	w := domain.Weights{W1: 0.7, W2: 0.1, W3: 0.2}
	require.NoError(t, WriteWeights(path, w))

	got, err := ReadWeights(path)
	require.NoError(t, err)
	assert.Equal(t, w, got)
}

func TestFitOLS_RecoversCoefficients(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 0))
	var x [][]float64
	var y []float64
	for range 200 {
		row := []float64{20 + 25*rng.Float64(), rng.Float64()*2 - 1, rng.Float64()}
		x = append(x, row)
		y = append(y, 0.25+0.02*row[0]-0.3*row[1]+0.3*row[2])
	}

	lin, err := FitOLS(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, lin.Intercept, 1e-9)
	assert.InDeltaSlice(t, []float64{0.02, -0.3, 0.3}, lin.Coefficients, 1e-9)
	assert.Equal(t, FeatureOrder, lin.Features)

	m := Evaluate(lin, x, y)
	assert.InDelta(t, 0, m.MSE, 1e-12)
	assert.InDelta(t, 1, m.R2, 1e-9)
}

func TestFitOLS_Mismatch(t *testing.T) {
	_, err := FitOLS([][]float64{{1, 2, 3}}, []float64{1, 2})
	require.Error(t, err)
	_, err = FitOLS([][]float64{{1, 2, 3}, {1, 2}}, []float64{1, 2})
	require.Error(t, err)
}

func syntheticCollection(n int) domain.Collection {
	rng := rand.New(rand.NewPCG(3, 0))
	c := make(domain.Collection, n)
	for i := range c {
		f := domain.NewFeature(77.18+0.08*rng.Float64(), 28.52+0.14*rng.Float64())
		f.Set(domain.PropTemp, 28+14*rng.Float64())
		f.Set(domain.PropNDVI, 0.6*rng.Float64())
		f.Set(domain.PropDensity, rng.Float64())
		c[i] = f
	}
	return c
}

func TestTrain(t *testing.T) {
	lin, err := Train(syntheticCollection(500), DefaultTrainOptions)
	require.NoError(t, err)

	assert.Equal(t, KindLinear, lin.Kind)
	assert.Greater(t, lin.Coefficients[0], 0.0, "temperature raises vulnerability")
	assert.Less(t, lin.Coefficients[1], 0.0, "vegetation lowers vulnerability")
	assert.Greater(t, lin.Coefficients[2], 0.0, "density raises vulnerability")
	assert.Greater(t, lin.Metrics.R2, 0.5)
	assert.Less(t, lin.Metrics.MSE, 0.01)

	again, err := Train(syntheticCollection(500), DefaultTrainOptions)
	require.NoError(t, err)
	assert.Equal(t, lin, again, "same seed, same model")
}

func TestTrain_TooFew(t *testing.T) {
	_, err := Train(syntheticCollection(3), DefaultTrainOptions)
	require.ErrorIs(t, err, ErrTooFewPoints)
}

func TestLinear_SaveLoadPredict(t *testing.T) {
	lin := &Linear{Kind: KindLinear, Intercept: 0.1, Coefficients: []float64{0.01, -0.5, 0.25}, Features: FeatureOrder}
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, lin.Save(path))

	loaded, err := LoadLinear(path)
	require.NoError(t, err)

	got, err := loaded.PredictBatch(context.Background(), [][]float64{{30, 0.2, 0.4}, {40, 0, 0}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1 + 0.3 - 0.1 + 0.1, 0.1 + 0.4}, got, 1e-12)

	_, err = loaded.PredictBatch(context.Background(), [][]float64{{1, 2}})
	require.Error(t, err)
}

func TestLoadLinear_RejectsOtherKinds(t *testing.T) {
	_, err := LoadLinear(writeFile(t, "m.json", `{"kind":"forest","coefficients":[1,2,3]}`))
	require.Error(t, err)
	_, err = LoadLinear(writeFile(t, "m.json", `{"kind":"linear","coefficients":[1]}`))
	require.Error(t, err)
}

func TestPredictBatch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lin := &Linear{Kind: KindLinear, Coefficients: []float64{1, 1, 1}}
	_, err := lin.PredictBatch(ctx, [][]float64{{1, 1, 1}})
	require.ErrorIs(t, err, context.Canceled)
}
