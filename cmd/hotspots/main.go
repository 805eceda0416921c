// Command hotspots builds and serves the urban heat vulnerability map: it
// samples temperature and vegetation rasters with building density, scores
// every point, and serves the scored collection with derived metrics.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/heat-vulnerability/internal/adapter/onnx"
	"github.com/couchcryptid/heat-vulnerability/internal/config"
	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/model"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "hotspots",
	Short:         "Urban heat vulnerability pipeline and API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logger = sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("command", cmd.Name())
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadModel opens the regressor at MODEL_PATH by extension. It returns a nil
// regressor when no model is configured and a close func that is always
// safe to call.
func loadModel() (domain.Regressor, func(), error) {
	noop := func() {}
	if cfg.ModelPath == "" {
		return nil, noop, nil
	}

	switch strings.ToLower(filepath.Ext(cfg.ModelPath)) {
	case ".json":
		lin, err := model.LoadLinear(cfg.ModelPath)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("linear model loaded", "path", cfg.ModelPath, "r2", lin.Metrics.R2)
		return lin, noop, nil
	case ".onnx":
		r, err := onnx.Open(cfg.ModelPath, cfg.ORTLibraryPath)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("onnx model loaded", "path", cfg.ModelPath)
		return r, func() {
			if err := r.Close(); err != nil {
				logger.Warn("onnx session close failed", "error", err)
			}
		}, nil
	default:
		return nil, noop, fmt.Errorf("unsupported model format %q: want .json or .onnx", cfg.ModelPath)
	}
}
