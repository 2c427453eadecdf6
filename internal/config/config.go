// Package config loads the medsafe runtime configuration from an optional
// YAML file overlaid with MEDSAFE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root runtime configuration.
type Config struct {
	ListenAddr   string        `yaml:"listen_addr" env:"MEDSAFE_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	LogLevel     string        `yaml:"log_level" env:"MEDSAFE_LOG_LEVEL" env-default:"info"`
	Locale       string        `yaml:"locale" env:"MEDSAFE_LOCALE" env-default:"de"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl" env:"MEDSAFE_SIGNED_URL_TTL" env-default:"15m"`
	Storage      StorageConfig `yaml:"storage"`
	Blob         BlobConfig    `yaml:"blob"`
	Metrics      MetricsConfig `yaml:"metrics"`
	Sweep        SweepConfig   `yaml:"sweep"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string `yaml:"driver" env:"MEDSAFE_STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath  string `yaml:"sqlite_path" env:"MEDSAFE_SQLITE_PATH" env-default:"data/medsafe.db"`
	PostgresDSN string `yaml:"postgres_dsn" env:"MEDSAFE_POSTGRES_DSN"`
}

// BlobConfig selects the document blob backend.
type BlobConfig struct {
	Driver    string   `yaml:"driver" env:"MEDSAFE_BLOB_DRIVER" env-default:"fs"`
	FSRoot    string   `yaml:"fs_root" env:"MEDSAFE_BLOB_FS_ROOT" env-default:"data/blobs"`
	FSBaseURL string   `yaml:"fs_base_url" env:"MEDSAFE_BLOB_FS_BASE_URL"`
	S3        S3Config `yaml:"s3"`
}

// S3Config configures the S3 / MinIO blob backend.
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"MEDSAFE_BLOB_S3_BUCKET"`
	Region          string `yaml:"region" env:"MEDSAFE_BLOB_S3_REGION" env-default:"eu-central-1"`
	Endpoint        string `yaml:"endpoint" env:"MEDSAFE_BLOB_S3_ENDPOINT"`
	PathStyle       bool   `yaml:"path_style" env:"MEDSAFE_BLOB_S3_PATH_STYLE" env-default:"false"`
	AccessKeyID     string `yaml:"access_key_id" env:"MEDSAFE_BLOB_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"MEDSAFE_BLOB_S3_SECRET_ACCESS_KEY"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"MEDSAFE_METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"MEDSAFE_METRICS_PATH" env-default:"/metrics"`
}

// SweepConfig controls the overdue-action sweep.
type SweepConfig struct {
	Enabled  bool   `yaml:"enabled" env:"MEDSAFE_SWEEP_ENABLED" env-default:"true"`
	Schedule string `yaml:"schedule" env:"MEDSAFE_SWEEP_SCHEDULE" env-default:"@every 1h"`
}

// Storage and blob driver names accepted by Validate.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	BlobFilesystem = "fs"
	BlobS3         = "s3"
	BlobMemory     = "memory"
)

var logLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

// Load reads path (when non-empty) and then applies environment overrides.
// Without a path only the environment and defaults are used.
func Load(path string) (Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() Config {
	var cfg Config
	_ = cleanenv.ReadEnv(&cfg) // malformed MEDSAFE_* values are reported by Load
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Locale = strings.ToLower(strings.TrimSpace(c.Locale))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Blob.Driver = strings.ToLower(strings.TrimSpace(c.Blob.Driver))
}

// Validate rejects unknown drivers and incomplete backend settings.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn required for postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case BlobFilesystem, BlobMemory:
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket required for s3 driver"))
		}
		if (c.Blob.S3.AccessKeyID == "") != (c.Blob.S3.SecretAccessKey == "") {
			errs = append(errs, errors.New("blob.s3 access key id and secret must be set together"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if _, ok := logLevels[c.LogLevel]; !ok {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if c.SignedURLTTL <= 0 {
		errs = append(errs, errors.New("signed_url_ttl must be positive"))
	}
	if c.Sweep.Enabled && strings.TrimSpace(c.Sweep.Schedule) == "" {
		errs = append(errs, errors.New("sweep.schedule required when sweep is enabled"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}
	return errors.Join(errs...)
}
