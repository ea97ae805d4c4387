// Package config loads runtime settings for the impulsa core from the
// process environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Metrics modes.
const (
	MetricsNone       = "none"
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

// Trace modes.
const (
	TraceNone = "none"
	TraceJSON = "json"
	TraceOTel = "otel"
)

// Config holds every environment-driven setting.
type Config struct {
	Backend BackendConfig
	Insert  InsertConfig
	Audit   AuditConfig
	Blob    BlobConfig
	Metrics string `env:"IMPULSA_METRICS" envDefault:"none"`
	Trace   TraceConfig
}

// TraceConfig selects the span exporter. The json mode writes one line per
// operation to File, or to stderr when File is empty.
type TraceConfig struct {
	Mode string `env:"IMPULSA_TRACE" envDefault:"otel"`
	File string `env:"IMPULSA_TRACE_FILE"`
}

// BackendConfig selects the row backend.
type BackendConfig struct {
	Driver      string `env:"IMPULSA_BACKEND_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"IMPULSA_SQLITE_PATH" envDefault:"impulsa.db"`
	PostgresDSN string `env:"IMPULSA_POSTGRES_DSN"`
	// RowSecurity applies row level security policies on Postgres startup.
	RowSecurity bool `env:"IMPULSA_POSTGRES_ROW_SECURITY" envDefault:"false"`
}

// InsertConfig tunes the resilient insert adapter.
type InsertConfig struct {
	MaxAttempts int `env:"IMPULSA_INSERT_MAX_ATTEMPTS" envDefault:"5"`
}

// AuditConfig controls transition attempt records.
type AuditConfig struct {
	Enabled bool   `env:"IMPULSA_AUDIT_ENABLED" envDefault:"true"`
	Table   string `env:"IMPULSA_AUDIT_TABLE" envDefault:"registro_transiciones"`
}

// BlobConfig selects the archive store for transition attempts.
type BlobConfig struct {
	Driver      string `env:"IMPULSA_BLOB_DRIVER" envDefault:"none"`
	FSRoot      string `env:"IMPULSA_BLOB_FS_ROOT" envDefault:"./impulsa-archive"`
	S3Bucket    string `env:"IMPULSA_BLOB_S3_BUCKET"`
	S3Region    string `env:"IMPULSA_BLOB_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"IMPULSA_BLOB_S3_ENDPOINT"`
	S3PathStyle bool   `env:"IMPULSA_BLOB_S3_PATH_STYLE" envDefault:"false"`
}

// ParseEnv loads configuration into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend.Driver) {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Backend.PostgresDSN == "" {
			return fmt.Errorf("IMPULSA_POSTGRES_DSN required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown backend driver %q", c.Backend.Driver)
	}
	switch strings.ToLower(c.Metrics) {
	case "", MetricsNone, MetricsExpvar, MetricsPrometheus:
	default:
		return fmt.Errorf("unknown metrics mode %q", c.Metrics)
	}
	switch strings.ToLower(c.Trace.Mode) {
	case "", TraceNone, TraceJSON, TraceOTel:
	default:
		return fmt.Errorf("unknown trace mode %q", c.Trace.Mode)
	}
	if c.Insert.MaxAttempts < 0 {
		return fmt.Errorf("insert attempts must not be negative, got %d", c.Insert.MaxAttempts)
	}
	if strings.EqualFold(c.Blob.Driver, "s3") && c.Blob.S3Bucket == "" {
		return fmt.Errorf("IMPULSA_BLOB_S3_BUCKET required for s3 driver")
	}
	return nil
}
