// Package config provides configuration loading and management for
// mrkspace. It handles loading configuration from YAML files and provides
// default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for per-coil
		// parallel processing
		NumCores int `yaml:"numCores"`

		// SmoothingIterations is the number of smoothing passes applied
		// during SRSS coil-sensitivity estimation
		SmoothingIterations int `yaml:"smoothingIterations"`

		// NormIterations is the number of power iterations used to
		// estimate the acquisition-model operator norm
		NormIterations int `yaml:"normIterations"`
	} `yaml:"processing"`

	// Trajectory parameters
	Trajectory struct {
		// Kind is the default trajectory tag (cartesian, radial,
		// goldenangle, grpe)
		Kind string `yaml:"kind"`
	} `yaml:"trajectory"`

	// Phantom parameters control the simulated dataset used when no
	// capture file is supplied
	Phantom struct {
		// Matrix is the simulated image matrix size
		Matrix int `yaml:"matrix"`

		// Coils is the number of simulated receiver channels
		Coils int `yaml:"coils"`

		// Spokes is the number of radial readouts
		Spokes int `yaml:"spokes"`

		// NoiseSigma is the per-sample complex noise level
		NoiseSigma float64 `yaml:"noiseSigma"`
	} `yaml:"phantom"`

	// Output parameters
	Output struct {
		// Dir is the directory for figures and reports
		Dir string `yaml:"dir"`

		// SaveFigures determines whether PNG figures are written
		SaveFigures bool `yaml:"saveFigures"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.SmoothingIterations = 10
	cfg.Processing.NormIterations = 4

	// Set default trajectory parameters
	cfg.Trajectory.Kind = "grpe"

	// Set default phantom parameters
	cfg.Phantom.Matrix = 64
	cfg.Phantom.Coils = 8
	cfg.Phantom.Spokes = 101
	cfg.Phantom.NoiseSigma = 0

	// Set default output parameters
	cfg.Output.Dir = "recon_output"
	cfg.Output.SaveFigures = true
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
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
