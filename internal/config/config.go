// Package config loads mediadupes settings from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mediadupes/internal/hash"
	"mediadupes/internal/match"
)

// Config holds the settings shared by every command
type Config struct {
	Variant          string   `yaml:"variant"`
	Threshold        *float64 `yaml:"threshold"` // nil selects the variant default
	IncludeRotations bool     `yaml:"include_rotations"`
	Workers          int      `yaml:"workers"`
	DBPath           string   `yaml:"db"`
	BatchSize        int      `yaml:"batch_size"`
}

// DefaultDBPath returns ~/.mediadupes/mediadupes.db
func DefaultDBPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".mediadupes", "mediadupes.db")
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Variant:          string(hash.VariantAdvanced),
		IncludeRotations: true,
		Workers:          1,
		DBPath:           DefaultDBPath(),
		BatchSize:        match.DefaultBatchSize,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// applyDefaults fills zero values left by a partial file
func (c *Config) applyDefaults() {
	if c.Variant == "" {
		c.Variant = string(hash.VariantAdvanced)
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = match.DefaultBatchSize
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
}

// Validate checks that values are usable
func (c *Config) Validate() error {
	if _, err := hash.ParseVariant(c.Variant); err != nil {
		return err
	}
	if t := c.Threshold; t != nil && (*t < 0 || *t > 100) {
		return fmt.Errorf("threshold must be within [0, 100], got %v", *t)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	return nil
}

// ParsedVariant returns the variant as a hash.Variant
func (c *Config) ParsedVariant() hash.Variant {
	v, err := hash.ParseVariant(c.Variant)
	if err != nil {
		return hash.VariantAdvanced
	}
	return v
}
