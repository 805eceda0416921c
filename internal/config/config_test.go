package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "ow-test-key"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "New Delhi", cfg.CityName)
	assert.Equal(t, [4]float64{77.18, 28.52, 77.26, 28.66}, cfg.BBox)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "lst.tif"), cfg.LSTPath)
	assert.Equal(t, filepath.Join("data", "ndvi.tif"), cfg.NDVIPath)
	assert.Equal(t, filepath.Join("data", "model_artifacts.json"), cfg.WeightsPath)
	assert.Equal(t, filepath.Join("data", "vulnerability_points.geojson"), cfg.PointsPath)
	assert.Equal(t, filepath.Join("data", "tree_priority.geojson"), cfg.PriorityPath)
	assert.Empty(t, cfg.BuildingsPath)
	assert.Empty(t, cfg.ModelPath)
	assert.Equal(t, 1500, cfg.SamplePoints)
	assert.Equal(t, uint64(1), cfg.SampleSeed)
	assert.Equal(t, 100.0, cfg.BufferRadiusM)
	assert.Nil(t, cfg.NDVIMin)
	assert.Equal(t, 0.2, cfg.PlantDeltaNDVI)
	assert.Equal(t, uint64(42), cfg.DerivedSeed)
	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.ForecastEnabled)
	assert.Equal(t, 3*time.Second, cfg.ForecastTimeout)
	assert.Equal(t, 64, cfg.ForecastCacheSize)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "vulnerability-points", cfg.KafkaTopic)
	assert.Equal(t, 60*time.Second, cfg.OverpassTimeout)
	assert.Empty(t, cfg.Locations)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("CITY_NAME", "Toronto")
	t.Setenv("BBOX", "-79.6393, 43.4955, -79.1152, 43.8555")
	t.Setenv("DATA_DIR", "/srv/data")
	t.Setenv("LST_PATH", "/tmp/lst.tif")
	t.Setenv("BUILDINGS_PATH", "/srv/data/buildings.shp")
	t.Setenv("SAMPLE_POINTS", "200")
	t.Setenv("SAMPLE_SEED", "9")
	t.Setenv("BUFFER_RADIUS_M", "50")
	t.Setenv("NDVI_MIN", "0.05")
	t.Setenv("PLANT_DELTA_NDVI", "0.3")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("OPENWEATHER_API_KEY", testAPIKey)
	t.Setenv("FORECAST_TIMEOUT", "1500ms")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Toronto", cfg.CityName)
	assert.Equal(t, [4]float64{-79.6393, 43.4955, -79.1152, 43.8555}, cfg.BBox)
	assert.Equal(t, "/tmp/lst.tif", cfg.LSTPath)
	assert.Equal(t, filepath.Join("/srv/data", "ndvi.tif"), cfg.NDVIPath)
	assert.Equal(t, "/srv/data/buildings.shp", cfg.BuildingsPath)
	assert.Equal(t, 200, cfg.SamplePoints)
	assert.Equal(t, uint64(9), cfg.SampleSeed)
	assert.Equal(t, 50.0, cfg.BufferRadiusM)
	require.NotNil(t, cfg.NDVIMin)
	assert.Equal(t, 0.05, *cfg.NDVIMin)
	assert.Equal(t, 0.3, cfg.PlantDeltaNDVI)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.ForecastEnabled)
	assert.Equal(t, 1500*time.Millisecond, cfg.ForecastTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_KafkaBrokersSkipsEmptyEntries(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " a:9092 ,, b:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestLoad_ForecastExplicitlyDisabled(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", testAPIKey)
	t.Setenv("FORECAST_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.ForecastEnabled)
}

func TestLoad_ForecastEnabledWithoutKey(t *testing.T) {
	t.Setenv("FORECAST_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENWEATHER_API_KEY")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		env, value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"FORECAST_TIMEOUT", "0s"},
		{"SAMPLE_POINTS", "0"},
		{"SAMPLE_POINTS", "many"},
		{"BUFFER_RADIUS_M", "-5"},
		{"BBOX", "1,2,3"},
		{"BBOX", "77.26,28.52,77.18,28.66"},
		{"PLANT_DELTA_NDVI", "1.5"},
		{"NDVI_MIN", "low"},
		{"LOG_FORMAT", "xml"},
		{"DERIVED_SEED", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotspots.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
city_name: Pune
bbox: "73.80,18.45,73.95,18.60"
locations:
  - name: Shivajinagar
    longitude: 73.84
    latitude: 18.53
  - name: Hadapsar
    longitude: 73.93
    latitude: 18.50
`), 0o644))
	t.Setenv(FileEnv, path)
	t.Setenv("CITY_NAME", "Pune City")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Pune City", cfg.CityName, "environment wins over file")
	assert.Equal(t, [4]float64{73.80, 18.45, 73.95, 18.60}, cfg.BBox)
	require.Len(t, cfg.Locations, 2)
	assert.Equal(t, Location{Name: "Shivajinagar", Longitude: 73.84, Latitude: 18.53}, cfg.Locations[0])

	lon, lat := cfg.CityCenter()
	assert.InDelta(t, 73.875, lon, 1e-9)
	assert.InDelta(t, 18.525, lat, 1e-9)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), FileEnv)
}
