// Package config provides configuration loading and management for cellseg.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"cellseg/pkg/density"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many frames are segmented concurrently
		NumCores int `yaml:"numCores"`

		// SeedChannel is the channel local maxima are taken from
		SeedChannel string `yaml:"seedChannel"`

		// SegmentChannel is the channel region growing is evaluated on
		SegmentChannel string `yaml:"segmentChannel"`

		// SignalChannel is the channel measured under every cell
		SignalChannel string `yaml:"signalChannel"`
	} `yaml:"processing"`

	// Segmentation parameters
	Segmentation struct {
		// Connectivity is 4 or 8
		Connectivity int `yaml:"connectivity"`

		// IntensityFloor is the value seeds must exceed
		IntensityFloor float64 `yaml:"intensityFloor"`

		// MinSeparation is the smallest distance between two seeds in pixels
		MinSeparation float64 `yaml:"minSeparation"`

		// MinArea drops cells smaller than this many pixels
		MinArea int `yaml:"minArea"`

		// MaxDistance bounds how far a cell grows from its seed; 0 is unbounded
		MaxDistance float64 `yaml:"maxDistance"`

		// Threshold is the segment channel value a pixel needs to be admitted
		Threshold float64 `yaml:"threshold"`

		// WindowRadius enables a local mean test of this radius when positive
		WindowRadius int `yaml:"windowRadius"`

		// WindowMin is the local mean a pixel needs when WindowRadius is set
		WindowMin float64 `yaml:"windowMin"`
	} `yaml:"segmentation"`

	// Kernel density parameters
	Density struct {
		// Bandwidth of the Gaussian kernel; 0 selects Silverman's rule
		Bandwidth float64 `yaml:"bandwidth"`

		// MinBandwidth floors the bandwidth of degenerate samples
		MinBandwidth float64 `yaml:"minBandwidth"`

		// GridSize is the number of evaluation points
		GridSize int `yaml:"gridSize"`

		// Padding extends the grid by this many bandwidths on either side
		Padding float64 `yaml:"padding"`

		// Method is "fft" or "direct"
		Method string `yaml:"method"`
	} `yaml:"density"`

	// Light source fluctuation parameters
	LightSource struct {
		Enabled bool `yaml:"enabled"`

		// Distance is how far from any cell a pixel must be to count as background
		Distance float64 `yaml:"distance"`

		// Height is the relative height the density peak center is taken at
		Height float64 `yaml:"height"`

		// MinBackground is the smallest number of background pixels accepted
		MinBackground int `yaml:"minBackground"`
	} `yaml:"lightSource"`

	// Flatfield correction parameters
	Flatfield struct {
		Enabled bool `yaml:"enabled"`

		// Channel restricts correction to one channel; empty corrects all
		Channel string `yaml:"channel"`

		// Darkfield and Flatfield are image paths
		Darkfield string `yaml:"darkfield"`
		Flatfield string `yaml:"flatfield"`
	} `yaml:"flatfield"`

	// Output parameters
	Output struct {
		// Directory receives every output file
		Directory string `yaml:"directory"`

		// CSV is the detection table filename; empty disables it
		CSV string `yaml:"csv"`

		// Database is the SQLite filename; empty disables it
		Database string `yaml:"database"`

		// GridWindow is the half-size of the cell grid crops; 0 disables the grid
		GridWindow int `yaml:"gridWindow"`

		// SaveIntermediaryResults determines whether masks and plots are saved
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.SeedChannel = "DAPI"
	cfg.Processing.SegmentChannel = "DAPI"
	cfg.Processing.SignalChannel = "GFP"

	cfg.Segmentation.Connectivity = 8
	cfg.Segmentation.IntensityFloor = 0.1
	cfg.Segmentation.MinSeparation = 5
	cfg.Segmentation.MinArea = 10
	cfg.Segmentation.MaxDistance = 0
	cfg.Segmentation.Threshold = 0.1

	cfg.Density.Bandwidth = 0
	cfg.Density.MinBandwidth = 1e-6
	cfg.Density.GridSize = 2048
	cfg.Density.Padding = 4
	cfg.Density.Method = "fft"

	cfg.LightSource.Enabled = true
	cfg.LightSource.Distance = 10
	cfg.LightSource.Height = 0.5
	cfg.LightSource.MinBackground = 30

	cfg.Output.Directory = "results"
	cfg.Output.CSV = "detections.csv"
	cfg.Output.GridWindow = 15
	cfg.Output.Verbose = true

	return cfg
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Processing.NumCores < 1:
		return fmt.Errorf("processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	case c.Processing.SeedChannel == "" || c.Processing.SegmentChannel == "" || c.Processing.SignalChannel == "":
		return errors.New("processing: seed, segment and signal channels are required")
	case c.Segmentation.Connectivity != 4 && c.Segmentation.Connectivity != 8:
		return fmt.Errorf("segmentation.connectivity must be 4 or 8, got %d", c.Segmentation.Connectivity)
	case c.Segmentation.MinArea < 0:
		return fmt.Errorf("segmentation.minArea must not be negative, got %d", c.Segmentation.MinArea)
	case c.Segmentation.MaxDistance < 0:
		return fmt.Errorf("segmentation.maxDistance must not be negative, got %g", c.Segmentation.MaxDistance)
	case c.Density.Bandwidth < 0:
		return fmt.Errorf("density.bandwidth must not be negative, got %g", c.Density.Bandwidth)
	case !(c.Density.MinBandwidth > 0):
		return fmt.Errorf("density.minBandwidth must be positive, got %g", c.Density.MinBandwidth)
	case !(c.Density.Padding >= 0):
		return fmt.Errorf("density.padding must not be negative, got %g", c.Density.Padding)
	case c.Density.GridSize < 2:
		return fmt.Errorf("density.gridSize must be at least 2, got %d", c.Density.GridSize)
	case c.LightSource.Height <= 0 || c.LightSource.Height >= 1:
		return fmt.Errorf("lightSource.height must be in (0, 1), got %g", c.LightSource.Height)
	case c.LightSource.Distance < 0:
		return fmt.Errorf("lightSource.distance must not be negative, got %g", c.LightSource.Distance)
	case c.Flatfield.Enabled && (c.Flatfield.Darkfield == "" || c.Flatfield.Flatfield == ""):
		return errors.New("flatfield: darkfield and flatfield paths are required when enabled")
	case c.Output.GridWindow < 0:
		return fmt.Errorf("output.gridWindow must not be negative, got %d", c.Output.GridWindow)
	}
	if _, err := density.ParseMethod(c.Density.Method); err != nil {
		return fmt.Errorf("density.method: %w", err)
	}
	return nil
}

// DensityEstimator builds the kernel density estimator described by the
// density section.
func (c *Config) DensityEstimator() (*density.Estimator, error) {
	method, err := density.ParseMethod(c.Density.Method)
	if err != nil {
		return nil, err
	}
	e := density.NewEstimator()
	e.Bandwidth = c.Density.Bandwidth
	e.MinBandwidth = c.Density.MinBandwidth
	e.GridSize = c.Density.GridSize
	e.Padding = c.Density.Padding
	e.Method = method
	return e, nil
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
