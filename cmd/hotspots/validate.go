package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/heat-vulnerability/internal/adapter/geojson"
	"github.com/couchcryptid/heat-vulnerability/internal/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a generated collection for integrity problems",
	Long: `Check that every point lies inside BBOX, carries plausible finite inputs
and a finite vulnerability. With --priorities, PRIORITY_PATH is checked and
plantPriority is required as well.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().Bool("priorities", false, "validate the priority collection instead")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	priorities, _ := cmd.Flags().GetBool("priorities")
	path := cfg.PointsPath
	if priorities {
		path = cfg.PriorityPath
	}

	c, err := geojson.NewStore(path).Read()
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	fmt.Printf("=== Vulnerability Data Validation: %s ===\n\n", path)
	phases := pipeline.Validate(c, cfg.BBox, priorities)
	if !pipeline.Report(os.Stdout, phases, len(c)) {
		return errors.New("validation failed")
	}
	return nil
}
