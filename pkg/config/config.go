// Package config provides configuration loading and management for mrivolumes.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"mrivolumes/internal/models"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Scan parameters
	Scan struct {
		// Workers bounds the parallel loops of aggregation and block reads
		Workers int `yaml:"workers"`

		// PreferIndex tries a DICOMDIR index before walking the directory
		PreferIndex bool `yaml:"preferIndex"`
	} `yaml:"scan"`

	// Flow classification parameters
	Flow struct {
		// Enabled runs the flow classifier after the scan
		Enabled bool `yaml:"enabled"`

		// CornerPortion is the fraction (1/n) of each axis a noise corner covers
		CornerPortion int `yaml:"cornerPortion"`

		// NoiseSeparatorDivisor scales the largest stored value down to the
		// separator between flow noise and signal noise. Noise never exceeds
		// half the largest value, so the divisor must be above 2.
		NoiseSeparatorDivisor float64 `yaml:"noiseSeparatorDivisor"`

		// PoolSize is the number of corner-noise workers
		PoolSize int `yaml:"poolSize"`

		// AxisOrdering maps the ascending flow triplet to X/Y/Z
		AxisOrdering string `yaml:"axisOrdering"`
	} `yaml:"flow"`

	// Cache parameters
	Cache struct {
		// Path of the persisted scan result, empty disables saving
		Path string `yaml:"path"`

		// Level is the zstd level: 1 fastest .. 4 best compression
		Level int `yaml:"level"`
	} `yaml:"cache"`

	// Output parameters
	Output struct {
		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`

		// Progress draws progress bars on the terminal
		Progress bool `yaml:"progress"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Scan.Workers = runtime.NumCPU()
	cfg.Scan.PreferIndex = true

	cfg.Flow.Enabled = true
	cfg.Flow.CornerPortion = 10
	cfg.Flow.NoiseSeparatorDivisor = 16
	cfg.Flow.PoolSize = runtime.NumCPU()
	cfg.Flow.AxisOrdering = models.OrderXYZ.String()

	cfg.Cache.Level = 2

	cfg.Output.Verbose = false
	cfg.Output.Progress = true

	return cfg
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Flow.CornerPortion < 1 {
		return fmt.Errorf("flow.cornerPortion must be >= 1, got %d", c.Flow.CornerPortion)
	}
	if c.Flow.NoiseSeparatorDivisor <= 2 {
		return fmt.Errorf("flow.noiseSeparatorDivisor must be > 2, got %g", c.Flow.NoiseSeparatorDivisor)
	}
	if _, err := models.ParseAxisOrdering(c.Flow.AxisOrdering); err != nil {
		return fmt.Errorf("flow.axisOrdering: %w", err)
	}
	if c.Cache.Level < 1 || c.Cache.Level > 4 {
		return fmt.Errorf("cache.level must be within 1..4, got %d", c.Cache.Level)
	}
	return nil
}

// Ordering returns the parsed axis ordering.
func (c *Config) Ordering() models.AxisOrdering {
	o, _ := models.ParseAxisOrdering(c.Flow.AxisOrdering)
	return o
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
