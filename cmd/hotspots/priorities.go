package main

import (
	"github.com/spf13/cobra"

	"github.com/couchcryptid/heat-vulnerability/internal/adapter/geojson"
	"github.com/couchcryptid/heat-vulnerability/internal/model"
	"github.com/couchcryptid/heat-vulnerability/internal/pipeline"
)

var prioritiesCmd = &cobra.Command{
	Use:   "priorities",
	Short: "Compute tree-planting priority for every generated point",
	Long: `Estimate how much each point's vulnerability would drop if its normalized
NDVI rose by PLANT_DELTA_NDVI, and write the result to PRIORITY_PATH.`,
	RunE: runPriorities,
}

func init() {
	rootCmd.AddCommand(prioritiesCmd)
}

func runPriorities(_ *cobra.Command, _ []string) error {
	weights, _ := model.LoadWeights(cfg.WeightsPath, logger)
	_, err := pipeline.RunPriorities(
		geojson.NewStore(cfg.PointsPath),
		geojson.NewStore(cfg.PriorityPath),
		weights, cfg.PlantDeltaNDVI, logger,
	)
	return err
}
