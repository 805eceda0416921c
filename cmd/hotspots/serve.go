package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/heat-vulnerability/internal/adapter/forecast"
	"github.com/couchcryptid/heat-vulnerability/internal/adapter/geojson"
	httpadapter "github.com/couchcryptid/heat-vulnerability/internal/adapter/http"
	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/model"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
	"github.com/couchcryptid/heat-vulnerability/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the vulnerability map API",
	Long: `Serve the generated collections over HTTP.

Every /api/vulnerability-points request re-scores the stored points with the
strategy chosen at startup (model, then formula when a weights file is
present, then the stored score) and adds aqi, pop and health_risk.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	metrics := observability.NewMetrics()

	regressor, closeModel, err := loadModel()
	if err != nil {
		logger.Warn("model unavailable, scoring without it", "path", cfg.ModelPath, "error", err)
	}
	defer closeModel()

	var weights *domain.Weights
	if w, ok := model.LoadWeights(cfg.WeightsPath, logger); ok {
		weights = &w
	}
	chain := domain.ScorerChain(regressor, weights)
	logger.Info("scoring strategy selected", "primary", chain[0].Name(), "strategies", len(chain))

	clock := clockwork.NewRealClock()
	var forecaster domain.AirQualityForecaster
	if cfg.ForecastEnabled {
		client := forecast.NewClient(cfg.OpenWeatherAPIKey, cfg.ForecastBaseURL, cfg.ForecastTimeout, metrics, logger)
		forecaster = forecast.NewCachedForecaster(client, cfg.ForecastCacheSize, clock, metrics)
		metrics.ForecastEnabled.Set(1)
		logger.Info("air quality forecast enabled", "cache_size", cfg.ForecastCacheSize, "timeout", cfg.ForecastTimeout)
	} else {
		logger.Info("air quality forecast disabled", "default_base_aqi", domain.DefaultBaseAQI)
	}

	lon, lat := cfg.CityCenter()
	enricher := pipeline.NewEnricher(
		geojson.NewStore(cfg.PointsPath),
		geojson.NewStore(cfg.PriorityPath),
		pipeline.EnrichOptions{
			Chain:      chain,
			Forecaster: forecaster,
			Clock:      clock,
			CenterLon:  lon,
			CenterLat:  lat,
			Seed:       cfg.DerivedSeed,
		},
		metrics, logger,
	)

	city := httpadapter.CityInfo{Name: cfg.CityName, BBox: cfg.BBox}
	for _, l := range cfg.Locations {
		city.Locations = append(city.Locations, httpadapter.Location(l))
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, enricher, city, metrics, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
