package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full bot configuration.
type Config struct {
	Capital   CapitalConfig   `yaml:"capital"`
	Storage   StorageConfig   `yaml:"storage"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Log       LogConfig       `yaml:"log"`
}

// CapitalConfig controls boot-time capital and accounting strictness.
type CapitalConfig struct {
	DefaultUSD float64 `yaml:"default_usd"` // used when no explicit capital is supplied and no prior run exists
	Mode       string  `yaml:"mode"`        // dev | prod — dev fails hard on invariant violations
}

// StorageConfig controls where durable state lives.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// ReconcileConfig controls the periodic PnL drift check.
type ReconcileConfig struct {
	IntervalSeconds   int     `yaml:"interval_seconds"`
	DriftThresholdUSD float64 `yaml:"drift_threshold_usd"`
	GraceSeconds      int     `yaml:"grace_seconds"` // no auto-correction this long after startup reconciliation
}

// PricingConfig holds the mark-price API base URL.
type PricingConfig struct {
	Base string `yaml:"base"`
}

// LogConfig controls log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config and the .env file if present. Env values
// override YAML for the keys they cover.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

// ReconcileInterval returns the drift-check cadence as a time.Duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalSeconds) * time.Second
}

// GracePeriod returns the post-startup grace window as a time.Duration.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.Reconcile.GraceSeconds) * time.Second
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("CAPITAL_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Capital.DefaultUSD = f
		}
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Capital.DefaultUSD <= 0 {
		cfg.Capital.DefaultUSD = 1000
	}
	if cfg.Capital.Mode == "" {
		cfg.Capital.Mode = "prod"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "dlmm-bot.db"
	}
	if cfg.Reconcile.IntervalSeconds <= 0 {
		cfg.Reconcile.IntervalSeconds = 300
	}
	if cfg.Reconcile.DriftThresholdUSD <= 0 {
		cfg.Reconcile.DriftThresholdUSD = 0.01
	}
	if cfg.Reconcile.GraceSeconds <= 0 {
		cfg.Reconcile.GraceSeconds = 120
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
