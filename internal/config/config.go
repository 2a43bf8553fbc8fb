// Package config provides Viper-based configuration for the forest loss dashboard
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete dashboard configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	EarthEngine EarthEngineConfig `mapstructure:"earthengine"`
	Dataset     DatasetConfig     `mapstructure:"dataset"`
	Map         MapConfig         `mapstructure:"map"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Analytics   AnalyticsConfig   `mapstructure:"analytics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	SessionTTL      time.Duration `mapstructure:"session_ttl" validate:"gt=0"`
	RateLimit       float64       `mapstructure:"rate_limit" validate:"gt=0"`
	RateBurst       int           `mapstructure:"rate_burst" validate:"gte=1"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// EarthEngineConfig contains credentials and transport settings for the
// Earth Engine REST API
type EarthEngineConfig struct {
	Project            string        `mapstructure:"project"`
	ServiceAccountJSON string        `mapstructure:"service_account_json"`
	CredentialsFile    string        `mapstructure:"credentials_file"`
	BaseURL            string        `mapstructure:"base_url" validate:"required,url"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst              int           `mapstructure:"burst" validate:"gte=1"`
}

// DatasetConfig names the Hansen and GAUL assets and how loss is counted
type DatasetConfig struct {
	HansenAsset        string  `mapstructure:"hansen_asset" validate:"required"`
	LossBand           string  `mapstructure:"loss_band" validate:"required"`
	TreeCoverBand      string  `mapstructure:"tree_cover_band" validate:"required"`
	TreeCoverThreshold float64 `mapstructure:"tree_cover_threshold" validate:"gte=0,lte=100"`
	BaseYear           int     `mapstructure:"base_year" validate:"required"`
	FirstYear          int     `mapstructure:"first_year" validate:"gtfield=BaseYear"`
	LastYear           int     `mapstructure:"last_year" validate:"gtefield=FirstYear"`
	Scale              float64 `mapstructure:"scale" validate:"gt=0"`
	MaxPixels          float64 `mapstructure:"max_pixels" validate:"gt=0"`
	CountryAsset       string  `mapstructure:"country_asset" validate:"required"`
	CountyAsset        string  `mapstructure:"county_asset" validate:"required"`
	Country            string  `mapstructure:"country" validate:"required"`
	CountryProperty    string  `mapstructure:"country_property" validate:"required"`
	CountyProperty     string  `mapstructure:"county_property" validate:"required"`
}

// MapConfig contains the default view of the map widget
type MapConfig struct {
	CenterLat float64 `mapstructure:"center_lat" validate:"gte=-90,lte=90"`
	CenterLon float64 `mapstructure:"center_lon" validate:"gte=-180,lte=180"`
	Zoom      int     `mapstructure:"zoom" validate:"gte=0,lte=22"`
	Height    int     `mapstructure:"height" validate:"gt=0"`
}

// CacheConfig sizes the in-memory caches
type CacheConfig struct {
	StatsSize int           `mapstructure:"stats_size" validate:"gte=1"`
	StatsTTL  time.Duration `mapstructure:"stats_ttl" validate:"gt=0"`
	MapIDTTL  time.Duration `mapstructure:"map_id_ttl" validate:"gt=0"`
	TileSize  int           `mapstructure:"tile_size" validate:"gte=1"`
}

// AnalyticsConfig enables optional PostHog usage events
type AnalyticsConfig struct {
	PostHogKey  string `mapstructure:"posthog_key"`
	PostHogHost string `mapstructure:"posthog_host"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// LoadDotEnv loads variables from a .env file when one exists. Variables
// already present in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from file and environment variables
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".forestloss")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/forestloss")
	}

	v.SetEnvPrefix("FORESTLOSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The hosted deployment injects credentials under these names.
	_ = v.BindEnv("earthengine.service_account_json", "FORESTLOSS_EARTHENGINE_SERVICE_ACCOUNT_JSON", "GEE_SERVICE_ACCOUNT")
	_ = v.BindEnv("earthengine.project", "FORESTLOSS_EARTHENGINE_PROJECT", "GEE_PROJECT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static; a decode failure here is a programming error.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8501")
	v.SetDefault("server.session_ttl", "30m")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.shutdown_timeout", "10s")

	// Earth Engine defaults
	v.SetDefault("earthengine.project", "")
	v.SetDefault("earthengine.service_account_json", "")
	v.SetDefault("earthengine.credentials_file", "")
	v.SetDefault("earthengine.base_url", "https://earthengine.googleapis.com")
	v.SetDefault("earthengine.timeout", "90s")
	v.SetDefault("earthengine.requests_per_second", 5.0)
	v.SetDefault("earthengine.burst", 5)

	// Hansen Global Forest Change v1.12 and GAUL 2015
	v.SetDefault("dataset.hansen_asset", "UMD/hansen/global_forest_change_2024_v1_12")
	v.SetDefault("dataset.loss_band", "lossyear")
	v.SetDefault("dataset.tree_cover_band", "treecover2000")
	v.SetDefault("dataset.tree_cover_threshold", 30.0)
	v.SetDefault("dataset.base_year", 2000)
	v.SetDefault("dataset.first_year", 2001)
	v.SetDefault("dataset.last_year", 2024)
	v.SetDefault("dataset.scale", 1000.0)
	v.SetDefault("dataset.max_pixels", 1e9)
	v.SetDefault("dataset.country_asset", "FAO/GAUL/2015/level0")
	v.SetDefault("dataset.county_asset", "FAO/GAUL/2015/level1")
	v.SetDefault("dataset.country", "Liberia")
	v.SetDefault("dataset.country_property", "ADM0_NAME")
	v.SetDefault("dataset.county_property", "ADM1_NAME")

	// Map defaults: centered on Liberia
	v.SetDefault("map.center_lat", 6.5)
	v.SetDefault("map.center_lon", -9.5)
	v.SetDefault("map.zoom", 7)
	v.SetDefault("map.height", 850)

	// Cache defaults
	v.SetDefault("cache.stats_size", 256)
	v.SetDefault("cache.stats_ttl", "6h")
	v.SetDefault("cache.map_id_ttl", "1h")
	v.SetDefault("cache.tile_size", 4096)

	// Analytics is off unless a key is configured
	v.SetDefault("analytics.posthog_key", "")
	v.SetDefault("analytics.posthog_host", "https://us.i.posthog.com")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
