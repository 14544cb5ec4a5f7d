// Package config provides configuration loading and management for mrisegment.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"mrisegment/pkg/fill"
	"mrisegment/pkg/segmentation"
	"mrisegment/pkg/smoothing"
)

// ErrInvalidConfig is returned by Validate for out-of-range values.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores" toml:"numCores"`
	} `yaml:"processing" toml:"processing"`

	// Smoothing parameters of the curvature flow run before growing
	Smoothing struct {
		Enabled bool `yaml:"enabled" toml:"enabled"`

		// Iterations is the number of curvature flow steps
		Iterations int `yaml:"iterations" toml:"iterations"`

		// TimeStep is the step size of each iteration
		TimeStep float64 `yaml:"timeStep" toml:"timeStep"`
	} `yaml:"smoothing" toml:"smoothing"`

	// Growing parameters of the threshold estimator
	Growing struct {
		// MaxIterations caps the number of expanded frontier voxels
		MaxIterations int `yaml:"maxIterations" toml:"maxIterations"`

		// ExploratoryMultiplier scales deviations while the region grows
		ExploratoryMultiplier float64 `yaml:"exploratoryMultiplier" toml:"exploratoryMultiplier"`

		// FinalMultiplier scales deviations of the final bounds
		FinalMultiplier float64 `yaml:"finalMultiplier" toml:"finalMultiplier"`
	} `yaml:"growing" toml:"growing"`

	// Fill parameters of the connected threshold painting
	Fill struct {
		ReplaceValue     uint8 `yaml:"replaceValue" toml:"replaceValue"`
		FullConnectivity bool  `yaml:"fullConnectivity" toml:"fullConnectivity"`
	} `yaml:"fill" toml:"fill"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool   `yaml:"saveIntermediaryResults" toml:"saveIntermediaryResults"`
		IntermediaryDir         string `yaml:"intermediaryDir" toml:"intermediaryDir"`

		// Compress stores MetaImage voxel data zlib-compressed
		Compress bool `yaml:"compress" toml:"compress"`

		// WriteSTL exports the segmented surface next to the mask
		WriteSTL bool `yaml:"writeSTL" toml:"writeSTL"`

		// WriteReport writes a YAML summary next to the mask
		WriteReport bool `yaml:"writeReport" toml:"writeReport"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"output" toml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Smoothing.Enabled = true
	cfg.Smoothing.Iterations = smoothing.DefaultIterations
	cfg.Smoothing.TimeStep = smoothing.DefaultTimeStep

	cfg.Growing.MaxIterations = segmentation.DefaultMaxIterations
	cfg.Growing.ExploratoryMultiplier = segmentation.ExploratoryMultiplier
	cfg.Growing.FinalMultiplier = segmentation.FinalMultiplier

	cfg.Fill.ReplaceValue = fill.DefaultReplaceValue
	cfg.Fill.FullConnectivity = false

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.WriteReport = true

	return cfg
}

// Validate checks that every value is usable
func (c *Config) Validate() error {
	switch {
	case c.Processing.NumCores < 1:
		return fmt.Errorf("numCores %d: %w", c.Processing.NumCores, ErrInvalidConfig)
	case c.Smoothing.Iterations < 0:
		return fmt.Errorf("smoothing iterations %d: %w", c.Smoothing.Iterations, ErrInvalidConfig)
	case c.Smoothing.TimeStep <= 0:
		return fmt.Errorf("smoothing timeStep %g: %w", c.Smoothing.TimeStep, ErrInvalidConfig)
	case c.Growing.MaxIterations < 1:
		return fmt.Errorf("maxIterations %d: %w", c.Growing.MaxIterations, ErrInvalidConfig)
	case c.Growing.ExploratoryMultiplier <= 0:
		return fmt.Errorf("exploratoryMultiplier %g: %w", c.Growing.ExploratoryMultiplier, ErrInvalidConfig)
	case c.Growing.FinalMultiplier <= 0:
		return fmt.Errorf("finalMultiplier %g: %w", c.Growing.FinalMultiplier, ErrInvalidConfig)
	case c.Fill.ReplaceValue == 0:
		return fmt.Errorf("replaceValue must not be 0: %w", ErrInvalidConfig)
	}
	return nil
}

// EstimatorOptions returns the growing section as estimator options
func (c *Config) EstimatorOptions() segmentation.Options {
	return segmentation.Options{
		MaxIterations:         c.Growing.MaxIterations,
		ExploratoryMultiplier: c.Growing.ExploratoryMultiplier,
		FinalMultiplier:       c.Growing.FinalMultiplier,
	}
}

// FillOptions returns the fill section as fill options
func (c *Config) FillOptions() fill.Options {
	return fill.Options{
		ReplaceValue:     c.Fill.ReplaceValue,
		FullConnectivity: c.Fill.FullConnectivity,
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads configuration from a YAML or TOML file, chosen by extension.
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

	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file, chosen by extension
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isTOML(configPath) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
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
