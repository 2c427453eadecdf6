package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8080" || cfg.Storage.Driver != StorageSQLite || cfg.Blob.Driver != BlobFilesystem {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SignedURLTTL != 15*time.Minute || cfg.Sweep.Schedule != "@every 1h" || cfg.Locale != "de" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if Default().Metrics.Path != "/metrics" {
		t.Fatalf("unexpected Default(): %+v", Default())
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medsafe.yaml")
	content := `listen_addr: "127.0.0.1:9000"
log_level: DEBUG
signed_url_ttl: 5m
storage:
  driver: memory
blob:
  driver: s3
  s3:
    bucket: udi-docs
    endpoint: http://minio:9000
    path_style: true
sweep:
  schedule: "0 6 * * *"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MEDSAFE_LISTEN_ADDR", "127.0.0.1:9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9100" {
		t.Fatalf("expected env override, got %s", cfg.ListenAddr)
	}
	if cfg.LogLevel != "debug" || cfg.SignedURLTTL != 5*time.Minute {
		t.Fatalf("unexpected file values: %+v", cfg)
	}
	if cfg.Blob.S3.Bucket != "udi-docs" || !cfg.Blob.S3.PathStyle || cfg.Blob.S3.Region != "eu-central-1" {
		t.Fatalf("unexpected s3 config: %+v", cfg.Blob.S3)
	}
	if cfg.Sweep.Schedule != "0 6 * * *" || !cfg.Sweep.Enabled {
		t.Fatalf("unexpected sweep config: %+v", cfg.Sweep)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown storage", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown storage driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = StoragePostgres }, "postgres_dsn"},
		{"unknown blob", func(c *Config) { c.Blob.Driver = "gcs" }, "unknown blob driver"},
		{"s3 without bucket", func(c *Config) { c.Blob.Driver = BlobS3 }, "bucket required"},
		{"s3 half credentials", func(c *Config) {
			c.Blob.Driver = BlobS3
			c.Blob.S3.Bucket = "b"
			c.Blob.S3.AccessKeyID = "AKIA"
		}, "set together"},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log level"},
		{"ttl", func(c *Config) { c.SignedURLTTL = 0 }, "signed_url_ttl"},
		{"empty schedule", func(c *Config) { c.Sweep.Schedule = " " }, "sweep.schedule"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}
