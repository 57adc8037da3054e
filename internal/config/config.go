// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New returns a Config holding every default.
// - Load layers .env, an optional YAML file and the environment on top of New.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Store drivers understood by the application.
const (
	DriverPostgREST = "postgrest"
	DriverPostgres  = "postgres"
	DriverPgx       = "pgx"
	DriverSQLite    = "sqlite"
	DriverMemory    = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// StoreDriver picks the datastore backend.
	StoreDriver string `koanf:"store_driver"`

	// StoreURL is the datastore endpoint: a REST base URL for postgrest,
	// a DSN for postgres/pgx, a file path for sqlite.
	StoreURL string `koanf:"store_url"`

	// StoreKey is the datastore access key. For postgres/pgx it overrides the DSN password.
	StoreKey string `koanf:"store_key"`

	// StoreTable names the blocklist table.
	StoreTable string `koanf:"store_table"`

	// StoreAutoMigrate creates the table on startup when missing.
	StoreAutoMigrate bool `koanf:"store_auto_migrate"`

	// StoreMaxConns caps the SQL connection pool.
	StoreMaxConns int `koanf:"store_max_conns"`

	// StoreTimeoutMS bounds each datastore call; 0 disables the bound.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// APISecret is compared against the x-api-key header of POST /report.
	APISecret string `koanf:"api_secret"`

	// MergePolicy is increment or upsert.
	MergePolicy string `koanf:"merge_policy"`

	// CORSAllowedOrigins is a comma separated origin list, "*" for any.
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`

	// MetricsEnabled exposes /metrics and records observations.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsNamespace and MetricsSubsystem prefix every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsBucketsMS is a comma separated list of latency buckets in
	// milliseconds; empty keeps the built-in buckets.
	MetricsBucketsMS string `koanf:"metrics_buckets_ms"`

	// DocsEnabled serves /openapi.yaml and /api-docs.
	DocsEnabled bool `koanf:"docs_enabled"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":8000",
		StoreDriver:        DriverPostgREST,
		StoreTable:         "blocklist",
		StoreMaxConns:      4,
		MergePolicy:        "increment",
		CORSAllowedOrigins: "*",
		MetricsEnabled:     true,
		MetricsNamespace:   "sift",
		MetricsSubsystem:   "blocklist",
		DocsEnabled:        true,
	}
}

// AllowedOrigins splits CORSAllowedOrigins into a list.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// HistogramBuckets parses MetricsBucketsMS. It returns nil when unset.
func (c *Config) HistogramBuckets() ([]float64, error) {
	var out []float64
	prev := 0.0
	for _, part := range strings.Split(c.MetricsBucketsMS, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("bucket %q: %w", part, err)
		}
		if v <= prev {
			return nil, fmt.Errorf("bucket %q must be positive and increasing", part)
		}
		out = append(out, v)
		prev = v
	}
	return out, nil
}
