package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/sift/internal/domain/merge"
)

// Environment names read outside the SIFT_ prefix.
const (
	EnvPrefix  = "SIFT_"
	EnvConfig  = "SIFT_CONFIG"
	EnvEnvFile = "SIFT_ENV_FILE"

	defaultEnvFile = ".env"
)

// legacyEnv maps the variable names of earlier deployments to config keys.
var legacyEnv = map[string]string{
	"SUPABASE_URL": "store_url",
	"SUPABASE_KEY": "store_key",
	"API_SECRET":   "api_secret",
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New)
//  2. file (YAML) if SIFT_CONFIG is set
//  3. legacy env (SUPABASE_URL, SUPABASE_KEY, API_SECRET)
//  4. env (prefix SIFT_)
//
// A .env file is merged into the process environment first; variables that
// are already set win over it.
func Load(_ context.Context) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	legacy := env.Provider("", ".", func(s string) string {
		return legacyEnv[s]
	})
	if err := k.Load(legacy, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// SIFT_STORE_URL -> store_url (flat keys, underscores preserved)
	prefixed := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(prefixed, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv(EnvEnvFile)
	if path == "" {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
	}
	return nil
}

// Validate checks the invariants Load enforces.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if _, err := merge.Parse(c.MergePolicy); err != nil {
		return fmt.Errorf("%w: merge_policy: %w", ErrInvalidConfig, err)
	}
	if !identifierRe.MatchString(c.StoreTable) {
		return fmt.Errorf("%w: store_table %q is not a plain identifier", ErrInvalidConfig, c.StoreTable)
	}

	if !identifierRe.MatchString(c.MetricsNamespace) || !identifierRe.MatchString(c.MetricsSubsystem) {
		return fmt.Errorf("%w: metrics_namespace and metrics_subsystem must be plain identifiers", ErrInvalidConfig)
	}
	if _, err := c.HistogramBuckets(); err != nil {
		return fmt.Errorf("%w: metrics_buckets_ms: %w", ErrInvalidConfig, err)
	}

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case DriverMemory:
		return nil
	case DriverPostgREST, DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}

	if strings.TrimSpace(c.StoreURL) == "" {
		return fmt.Errorf("%w: store_url is required for store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.StoreDriver == DriverPostgREST && strings.TrimSpace(c.StoreKey) == "" {
		return fmt.Errorf("%w: store_key is required for store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
