package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/heat-vulnerability/internal/adapter/geojson"
	"github.com/couchcryptid/heat-vulnerability/internal/model"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the linear vulnerability model on the generated points",
	Long: `Fit an ordinary least squares model on the generated collection against a
synthetic target (hot, dense, barren points score high) and save the native
model artifact. Point MODEL_PATH at the output to score with it.

Examples:
  # Train with defaults, writing <DATA_DIR>/model.json
  hotspots train

  # Less noise, larger hold-out
  hotspots train --noise 0.02 --test-fraction 0.3 --out /tmp/model.json`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.String("out", "", "model artifact path (default <DATA_DIR>/model.json)")
	f.Uint64("seed", model.DefaultTrainOptions.Seed, "seed for target noise and the train/test split")
	f.Float64("noise", model.DefaultTrainOptions.Noise, "standard deviation of target noise")
	f.Float64("test-fraction", model.DefaultTrainOptions.TestFraction, "share of points held out for evaluation")

	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	out, _ := f.GetString("out")
	if out == "" {
		out = filepath.Join(cfg.DataDir, "model.json")
	}
	opts := model.DefaultTrainOptions
	opts.Seed, _ = f.GetUint64("seed")
	opts.Noise, _ = f.GetFloat64("noise")
	opts.TestFraction, _ = f.GetFloat64("test-fraction")
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		return fmt.Errorf("--test-fraction must be within (0, 1), got %v", opts.TestFraction)
	}

	c, err := geojson.NewStore(cfg.PointsPath).Read()
	if err != nil {
		return fmt.Errorf("read training points: %w", err)
	}

	lin, err := model.Train(c, opts)
	if err != nil {
		return err
	}
	if err := lin.Save(out); err != nil {
		return err
	}
	logger.Info("model trained",
		"points", len(c),
		"mse", lin.Metrics.MSE,
		"r2", lin.Metrics.R2,
		"intercept", lin.Intercept,
		"coefficients", lin.Coefficients,
		"path", out,
	)
	return nil
}
