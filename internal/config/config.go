// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Catalog CatalogConfig `yaml:"catalog"`
	Storage StorageConfig `yaml:"storage"`
	Library LibraryConfig `yaml:"library"`
	Player  PlayerConfig  `yaml:"player"`
	Log     LogConfig     `yaml:"log"`
}

// CatalogConfig configures the Jamendo catalog client.
type CatalogConfig struct {
	BaseURL        string        `yaml:"base_url" default:"https://api.jamendo.com/v3.0" validate:"required,url"`
	ClientID       string        `yaml:"client_id"`
	CacheTTL       time.Duration `yaml:"cache_ttl" default:"5m" validate:"gte=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"15s" validate:"gt=0"`
	DefaultLimit   int           `yaml:"default_limit" default:"20" validate:"gte=1,lte=200"`
}

// StorageConfig configures the persistent store.
type StorageConfig struct {
	Path string `yaml:"path" default:"~/.musicflow/musicflow.db" validate:"required_if=Memory false"`
	// Memory keeps everything in process memory (nothing survives a restart)
	Memory bool `yaml:"memory"`
}

// LibraryConfig configures uploads and downloads.
type LibraryConfig struct {
	MaxUploadBytes   int64         `yaml:"max_upload_bytes" default:"104857600" validate:"gt=0"`
	MaxDownloadBytes int64         `yaml:"max_download_bytes" default:"209715200" validate:"gt=0"`
	DownloadTimeout  time.Duration `yaml:"download_timeout" default:"5m" validate:"gte=0"`
}

// PlayerConfig configures the playback engine.
type PlayerConfig struct {
	DefaultVolume    float64       `yaml:"default_volume" default:"0.7" validate:"gt=0,lte=1"`
	RestartThreshold time.Duration `yaml:"restart_threshold" default:"3s" validate:"gt=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

// Default returns the configuration with only defaults and environment overrides applied.
func Default() (*Config, error) {
	var cfg Config
	return finish(&cfg)
}

// Load loads configuration from a YAML file. An empty path yields Default().
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("JAMENDO_CLIENT_ID"); v != "" {
		c.Catalog.ClientID = v
	}
	if v := os.Getenv("MUSICFLOW_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("MUSICFLOW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
