// Package onnx runs regressors exported to the ONNX format through the ONNX
// Runtime shared library.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// initRuntime loads the shared library once per process. An empty libPath
// lets the runtime use its platform default.
func initRuntime(libPath string) error {
	initOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

// Regressor evaluates a single-input, single-output ONNX model with a
// [n, 3] float32 input and a [n, 1] float32 output.
type Regressor struct {
	session  *ort.DynamicAdvancedSession
	features int
}

// Open loads the model at path. libPath locates the ONNX Runtime library.
func Open(path, libPath string) (*Regressor, error) {
	if err := initRuntime(libPath); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect onnx model %s: %w", path, err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("onnx model %s: want 1 input and at least 1 output, got %d and %d", path, len(inputs), len(outputs))
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &Regressor{session: session, features: 3}, nil
}

// PredictBatch runs the whole batch in one session call.
func (r *Regressor) PredictBatch(ctx context.Context, rows [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []float64{}, nil
	}

	flat := make([]float32, 0, len(rows)*r.features)
	for i, row := range rows {
		if len(row) != r.features {
			return nil, fmt.Errorf("row %d has %d values, model expects %d", i, len(row), r.features)
		}
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}

	n := int64(len(rows))
	in, err := ort.NewTensor(ort.NewShape(n, int64(r.features)), flat)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer out.Destroy()

	if err := r.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	data := out.GetData()
	if len(data) != len(rows) {
		return nil, errors.New("onnx output size does not match batch")
	}
	scores := make([]float64, len(data))
	for i, v := range data {
		scores[i] = float64(v)
	}
	return scores, nil
}

// Close releases the session.
func (r *Regressor) Close() error {
	if r.session == nil {
		return nil
	}
	return r.session.Destroy()
}
