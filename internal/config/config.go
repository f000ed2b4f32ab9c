package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Recognized consistency levels.
var levels = map[string]bool{
	"eventual": true,
	"strong":   true,
	"causal":   true,
	"quantum":  true,
	"hybrid":   true,
}

// Recognized resolution strategies.
var strategies = map[string]bool{
	"timestamp": true,
	"version":   true,
	"merge":     true,
	"custom":    true,
}

// Config holds the engine configuration surface.
type Config struct {
	DefaultLevel                 string
	DefaultStrategy              string
	ReconciliationInterval       time.Duration
	MaxConcurrentReconciliations int
	ConflictDetectionEnabled     bool
	AutoResolveConflicts         bool
	VectorClockEnabled           bool
	CausalOrderingEnabled        bool
	HistoryLength                int
	ReconciliationTimeout        time.Duration
	LockTimeout                  time.Duration
	// RequiredSources is the response threshold for multi-source version
	// collection. 0 means majority.
	RequiredSources int
}

// Default returns the engine defaults.
func Default() Config {
	return Config{
		DefaultLevel:                 "eventual",
		DefaultStrategy:              "timestamp",
		ReconciliationInterval:       5 * time.Second,
		MaxConcurrentReconciliations: 4,
		ConflictDetectionEnabled:     true,
		AutoResolveConflicts:         true,
		VectorClockEnabled:           true,
		CausalOrderingEnabled:        true,
		HistoryLength:                100,
		ReconciliationTimeout:        10 * time.Second,
		LockTimeout:                  30 * time.Second,
		RequiredSources:              0,
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !levels[c.DefaultLevel] {
		return fmt.Errorf("unknown consistency level: %q", c.DefaultLevel)
	}
	if !strategies[c.DefaultStrategy] {
		return fmt.Errorf("unknown resolution strategy: %q", c.DefaultStrategy)
	}
	if c.ReconciliationInterval <= 0 {
		return fmt.Errorf("reconciliation interval must be positive, got %s", c.ReconciliationInterval)
	}
	if c.MaxConcurrentReconciliations <= 0 {
		return fmt.Errorf("max concurrent reconciliations must be positive, got %d", c.MaxConcurrentReconciliations)
	}
	if c.HistoryLength < 0 {
		return fmt.Errorf("history length cannot be negative, got %d", c.HistoryLength)
	}
	if c.ReconciliationTimeout <= 0 {
		return fmt.Errorf("reconciliation timeout must be positive, got %s", c.ReconciliationTimeout)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %s", c.LockTimeout)
	}
	if c.RequiredSources < 0 {
		return fmt.Errorf("required sources cannot be negative, got %d", c.RequiredSources)
	}
	return nil
}

// fileConfig is the YAML wire form: durations are strings ("5s", "250ms"),
// pointers distinguish absent fields from zero values.
type fileConfig struct {
	DefaultLevel                 *string `yaml:"default_level"`
	DefaultStrategy              *string `yaml:"default_strategy"`
	ReconciliationInterval       *string `yaml:"reconciliation_interval"`
	MaxConcurrentReconciliations *int    `yaml:"max_concurrent_reconciliations"`
	ConflictDetectionEnabled     *bool   `yaml:"conflict_detection_enabled"`
	AutoResolveConflicts         *bool   `yaml:"auto_resolve_conflicts"`
	VectorClockEnabled           *bool   `yaml:"vector_clock_enabled"`
	CausalOrderingEnabled        *bool   `yaml:"causal_ordering_enabled"`
	HistoryLength                *int    `yaml:"history_length"`
	ReconciliationTimeout        *string `yaml:"reconciliation_timeout"`
	LockTimeout                  *string `yaml:"lock_timeout"`
	RequiredSources              *int    `yaml:"required_sources"`
}

// Load reads a YAML config file, applies it over the defaults, and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse applies YAML config bytes over the defaults and validates.
func Parse(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if fc.DefaultLevel != nil {
		cfg.DefaultLevel = *fc.DefaultLevel
	}
	if fc.DefaultStrategy != nil {
		cfg.DefaultStrategy = *fc.DefaultStrategy
	}
	if fc.MaxConcurrentReconciliations != nil {
		cfg.MaxConcurrentReconciliations = *fc.MaxConcurrentReconciliations
	}
	if fc.ConflictDetectionEnabled != nil {
		cfg.ConflictDetectionEnabled = *fc.ConflictDetectionEnabled
	}
	if fc.AutoResolveConflicts != nil {
		cfg.AutoResolveConflicts = *fc.AutoResolveConflicts
	}
	if fc.VectorClockEnabled != nil {
		cfg.VectorClockEnabled = *fc.VectorClockEnabled
	}
	if fc.CausalOrderingEnabled != nil {
		cfg.CausalOrderingEnabled = *fc.CausalOrderingEnabled
	}
	if fc.HistoryLength != nil {
		cfg.HistoryLength = *fc.HistoryLength
	}
	if fc.RequiredSources != nil {
		cfg.RequiredSources = *fc.RequiredSources
	}

	if err := setDuration(&cfg.ReconciliationInterval, fc.ReconciliationInterval, "reconciliation_interval"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.ReconciliationTimeout, fc.ReconciliationTimeout, "reconciliation_timeout"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.LockTimeout, fc.LockTimeout, "lock_timeout"); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDuration(dst *time.Duration, raw *string, field string) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	*dst = d
	return nil
}
