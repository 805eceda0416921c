// Package config loads service settings from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/viper"
)

// FileEnv names the optional YAML config file. Its keys are the lowercase
// environment variable names; environment variables win over the file.
const FileEnv = "HOTSPOTS_CONFIG"

// Location is a named place offered by the map's location picker.
type Location struct {
	Name      string  `mapstructure:"name"`
	Longitude float64 `mapstructure:"longitude"`
	Latitude  float64 `mapstructure:"latitude"`
}

// Config holds all service settings.
type Config struct {
	CityName  string
	BBox      [4]float64 // min lon, min lat, max lon, max lat
	Locations []Location

	DataDir       string
	LSTPath       string
	NDVIPath      string
	BuildingsPath string
	WeightsPath   string
	ModelPath     string
	PointsPath    string
	PriorityPath  string

	SamplePoints   int
	SampleSeed     uint64
	BufferRadiusM  float64
	NDVIMin        *float64
	PlantDeltaNDVI float64
	DerivedSeed    uint64

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Air quality forecast configuration.
	OpenWeatherAPIKey string
	ForecastEnabled   bool
	ForecastTimeout   time.Duration
	ForecastBaseURL   string
	ForecastCacheSize int

	KafkaBrokers []string
	KafkaTopic   string

	OverpassURL     string
	OverpassTimeout time.Duration

	ORTLibraryPath string
}

// Load reads configuration from environment variables and the optional
// config file, applying defaults where unset.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString(strings.ToLower(FileEnv)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s %s: %w", FileEnv, path, err)
		}
	}

	p := &parser{v: v}
	cfg := &Config{
		CityName:      v.GetString("city_name"),
		BBox:          p.bbox("bbox"),
		DataDir:       v.GetString("data_dir"),
		BuildingsPath: v.GetString("buildings_path"),
		ModelPath:     v.GetString("model_path"),

		SamplePoints:   p.positiveInt("sample_points"),
		SampleSeed:     p.uint64("sample_seed"),
		BufferRadiusM:  p.positiveFloat("buffer_radius_m"),
		NDVIMin:        p.optionalFloat("ndvi_min"),
		PlantDeltaNDVI: p.float("plant_delta_ndvi"),
		DerivedSeed:    p.uint64("derived_seed"),

		HTTPAddr:        v.GetString("http_addr"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		ShutdownTimeout: p.duration("shutdown_timeout"),

		OpenWeatherAPIKey: v.GetString("openweather_api_key"),
		ForecastTimeout:   p.duration("forecast_timeout"),
		ForecastBaseURL:   v.GetString("forecast_base_url"),
		ForecastCacheSize: p.positiveInt("forecast_cache_size"),

		KafkaBrokers: sharedcfg.ParseBrokers(v.GetString("kafka_brokers")),
		KafkaTopic:   v.GetString("kafka_topic"),

		OverpassURL:     v.GetString("overpass_url"),
		OverpassTimeout: p.duration("overpass_timeout"),

		ORTLibraryPath: v.GetString("ort_library_path"),
	}

	cfg.ForecastEnabled = cfg.OpenWeatherAPIKey != ""
	if s := v.GetString("forecast_enabled"); s != "" {
		cfg.ForecastEnabled = p.bool("forecast_enabled")
	}

	cfg.LSTPath = pathOr(v, "lst_path", cfg.DataDir, "lst.tif")
	cfg.NDVIPath = pathOr(v, "ndvi_path", cfg.DataDir, "ndvi.tif")
	cfg.WeightsPath = pathOr(v, "weights_path", cfg.DataDir, "model_artifacts.json")
	cfg.PointsPath = pathOr(v, "points_path", cfg.DataDir, "vulnerability_points.geojson")
	cfg.PriorityPath = pathOr(v, "priority_path", cfg.DataDir, "tree_priority.geojson")

	if err := v.UnmarshalKey("locations", &cfg.Locations); err != nil {
		p.fail("locations", err)
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("city_name", "New Delhi")
	v.SetDefault("bbox", "77.18,28.52,77.26,28.66")
	v.SetDefault("data_dir", "data")
	v.SetDefault("sample_points", 1500)
	v.SetDefault("sample_seed", 1)
	v.SetDefault("buffer_radius_m", 100)
	v.SetDefault("plant_delta_ndvi", 0.2)
	v.SetDefault("derived_seed", 42)
	v.SetDefault("http_addr", ":8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("forecast_timeout", "3s")
	v.SetDefault("forecast_base_url", "https://api.openweathermap.org/data/2.5/air_pollution/forecast")
	v.SetDefault("forecast_cache_size", 64)
	v.SetDefault("kafka_topic", "vulnerability-points")
	v.SetDefault("overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass_timeout", "60s")
}

func (c *Config) validate() error {
	if c.BBox[0] >= c.BBox[2] || c.BBox[1] >= c.BBox[3] {
		return errors.New("invalid BBOX: min must be below max")
	}
	if c.BBox[1] < -85 || c.BBox[3] > 85 || c.BBox[0] < -180 || c.BBox[2] > 180 {
		return errors.New("invalid BBOX: outside the Web Mercator range")
	}
	if c.PlantDeltaNDVI < 0 || c.PlantDeltaNDVI > 1 {
		return errors.New("invalid PLANT_DELTA_NDVI: must be within [0, 1]")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid LOG_FORMAT %q: want json or text", c.LogFormat)
	}
	if c.ForecastEnabled && c.OpenWeatherAPIKey == "" {
		return errors.New("FORECAST_ENABLED is true but OPENWEATHER_API_KEY is not set")
	}
	if c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required")
	}
	return nil
}

// CityCenter returns the bbox center as (lon, lat).
func (c *Config) CityCenter() (float64, float64) {
	return (c.BBox[0] + c.BBox[2]) / 2, (c.BBox[1] + c.BBox[3]) / 2
}

// parser reads typed values and keeps the first error, named after the
// environment variable that caused it.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", strings.ToUpper(key), err)
	}
}

func (p *parser) duration(key string) time.Duration {
	d, err := time.ParseDuration(p.v.GetString(key))
	if err != nil {
		p.fail(key, err)
		return 0
	}
	if d <= 0 {
		p.fail(key, errors.New("must be positive"))
	}
	return d
}

func (p *parser) float(key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(p.v.GetString(key)), 64)
	if err != nil {
		p.fail(key, err)
	}
	return f
}

func (p *parser) positiveFloat(key string) float64 {
	f := p.float(key)
	if f <= 0 {
		p.fail(key, errors.New("must be positive"))
	}
	return f
}

func (p *parser) optionalFloat(key string) *float64 {
	if strings.TrimSpace(p.v.GetString(key)) == "" {
		return nil
	}
	f := p.float(key)
	return &f
}

func (p *parser) positiveInt(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(p.v.GetString(key)))
	if err != nil {
		p.fail(key, err)
		return 0
	}
	if n <= 0 {
		p.fail(key, errors.New("must be positive"))
	}
	return n
}

func (p *parser) uint64(key string) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(p.v.GetString(key)), 10, 64)
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) bool(key string) bool {
	b, err := strconv.ParseBool(p.v.GetString(key))
	if err != nil {
		p.fail(key, err)
	}
	return b
}

func (p *parser) bbox(key string) [4]float64 {
	var out [4]float64
	parts := strings.Split(p.v.GetString(key), ",")
	if len(parts) != 4 {
		p.fail(key, fmt.Errorf("want 4 comma-separated numbers, got %d", len(parts)))
		return out
	}
	for i, s := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			p.fail(key, err)
			return out
		}
		out[i] = f
	}
	return out
}

func pathOr(v *viper.Viper, key, dir, name string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return filepath.Join(dir, name)
}
