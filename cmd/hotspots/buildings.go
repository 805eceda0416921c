package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/heat-vulnerability/internal/adapter/osm"
	"github.com/couchcryptid/heat-vulnerability/internal/spatial"
)

var buildingsCmd = &cobra.Command{
	Use:   "buildings",
	Short: "Download OpenStreetMap building footprints for BBOX",
	RunE:  runBuildings,
}

func init() {
	buildingsCmd.Flags().String("out", "", "shapefile path (default BUILDINGS_PATH or <DATA_DIR>/buildings.shp)")
	rootCmd.AddCommand(buildingsCmd)
}

func runBuildings(cmd *cobra.Command, _ []string) error {
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = cfg.BuildingsPath
	}
	if out == "" {
		out = filepath.Join(cfg.DataDir, "buildings.shp")
	}

	client := osm.NewClient(cfg.OverpassURL, cfg.OverpassTimeout, logger)
	b := cfg.BBox
	footprints, err := client.Buildings(cmd.Context(), osm.BBox{MinLon: b[0], MinLat: b[1], MaxLon: b[2], MaxLat: b[3]})
	if err != nil {
		return fmt.Errorf("download buildings: %w", err)
	}
	if len(footprints) == 0 {
		logger.Warn("no buildings found in bbox", "bbox", b)
	}

	if err := spatial.WriteFootprints(out, footprints); err != nil {
		return err
	}
	logger.Info("buildings saved", "count", len(footprints), "path", out)
	return nil
}
