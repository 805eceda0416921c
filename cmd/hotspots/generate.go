package main

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/heat-vulnerability/internal/adapter/geojson"
	kafkaadapter "github.com/couchcryptid/heat-vulnerability/internal/adapter/kafka"
	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/model"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
	"github.com/couchcryptid/heat-vulnerability/internal/pipeline"
	"github.com/couchcryptid/heat-vulnerability/internal/raster"
	"github.com/couchcryptid/heat-vulnerability/internal/spatial"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Sample rasters and footprints, score points, write GeoJSON",
	Long: `Draw SAMPLE_POINTS uniform random points inside BBOX, sample land-surface
temperature and NDVI, estimate building density within BUFFER_RADIUS_M, score
every kept point and write the collection to POINTS_PATH.

When KAFKA_BROKERS is set, the scored features are also published to
KAFKA_TOPIC.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	metrics := observability.NewMetrics()

	lst, err := raster.Open(cfg.LSTPath)
	if err != nil {
		return fmt.Errorf("open temperature raster: %w", err)
	}
	ndvi, err := raster.Open(cfg.NDVIPath)
	if err != nil {
		return fmt.Errorf("open ndvi raster: %w", err)
	}
	if !raster.SameGeometry(lst, ndvi) {
		logger.Warn("rasters are not co-registered, sampling each independently")
	}

	var footprints []orb.Polygon
	if cfg.BuildingsPath == "" {
		logger.Warn("BUILDINGS_PATH not set, building density will be 0")
	} else {
		footprints, err = spatial.LoadFootprints(cfg.BuildingsPath)
		if err != nil {
			return err
		}
	}
	index := spatial.NewIndex(footprints)
	logger.Info("footprints indexed", "count", index.Len())

	regressor, closeModel, err := loadModel()
	if err != nil {
		logger.Warn("model unavailable, scoring with the formula", "path", cfg.ModelPath, "error", err)
	}
	defer closeModel()
	weights, _ := model.LoadWeights(cfg.WeightsPath, logger)
	chain := domain.ScorerChain(regressor, &weights)

	var publisher pipeline.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		w := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, metrics, logger)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = w
	}

	g := pipeline.NewGenerator(lst, ndvi, index, chain, geojson.NewStore(cfg.PointsPath), publisher,
		pipeline.GenerateOptions{
			BBox:    cfg.BBox,
			Points:  cfg.SamplePoints,
			Seed:    cfg.SampleSeed,
			RadiusM: cfg.BufferRadiusM,
			NDVIMin: cfg.NDVIMin,
		},
		metrics, logger,
	)
	res, err := g.Run(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("generation complete",
		"run_id", res.RunID,
		"kept", res.Kept,
		"skipped", res.Skipped,
		"scorer", res.Scorer,
		"path", cfg.PointsPath,
	)
	return nil
}
