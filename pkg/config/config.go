// Package config provides configuration loading and management for tomoproj.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"tomoproj/pkg/accumulate"
	"tomoproj/pkg/geometry"
	"tomoproj/pkg/logging"
	"tomoproj/pkg/projector"
	"tomoproj/pkg/scanner"
)

// Config represents the application configuration
type Config struct {
	// Image volume
	Grid struct {
		// Nx, Ny, Nz are the number of voxels along each axis
		Nx int `yaml:"nx" toml:"nx"`
		Ny int `yaml:"ny" toml:"ny"`
		Nz int `yaml:"nz" toml:"nz"`

		// FOVX, FOVY, FOVZ are the field of view extents in mm
		FOVX float64 `yaml:"fovX" toml:"fov_x"`
		FOVY float64 `yaml:"fovY" toml:"fov_y"`
		FOVZ float64 `yaml:"fovZ" toml:"fov_z"`
	} `yaml:"grid" toml:"grid"`

	// Scanner geometry used when no coordinate tables are given
	Scanner struct {
		DetPerRing int     `yaml:"detPerRing" toml:"det_per_ring"`
		Rings      int     `yaml:"rings" toml:"rings"`
		Radius     float64 `yaml:"radius" toml:"radius"`
		RingPitch  float64 `yaml:"ringPitch" toml:"ring_pitch"`

		// PseudoEvery inserts a pseudo ring after every PseudoEvery rings
		PseudoEvery int `yaml:"pseudoEvery" toml:"pseudo_every"`

		// Angles and RadialBins size the generated sinogram
		Angles     int `yaml:"angles" toml:"angles"`
		RadialBins int `yaml:"radialBins" toml:"radial_bins"`
	} `yaml:"scanner" toml:"scanner"`

	// Projection parameters
	Projection struct {
		// Model is "siddon" (alias "improved-siddon") or "orthogonal"
		Model string `yaml:"model" toml:"model"`

		// RaysPerLOR is 1, 3 or 5
		RaysPerLOR int `yaml:"raysPerLOR" toml:"rays_per_lor"`

		CrystalSizeXY float64 `yaml:"crystalSizeXY" toml:"crystal_size_xy"`
		CrystalSizeZ  float64 `yaml:"crystalSizeZ" toml:"crystal_size_z"`
		DecayFactor   float64 `yaml:"decayFactor" toml:"decay_factor"`
		Epsilon       float64 `yaml:"epsilon" toml:"epsilon"`

		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores" toml:"num_cores"`

		// Accumulation is "atomic" or "partial"
		Accumulation string `yaml:"accumulation" toml:"accumulation"`
	} `yaml:"projection" toml:"projection"`

	// Correction switches
	Corrections struct {
		Attenuation     bool `yaml:"attenuation" toml:"attenuation"`
		Normalization   bool `yaml:"normalization" toml:"normalization"`
		Randoms         bool `yaml:"randoms" toml:"randoms"`
		NoNormalization bool `yaml:"noNormalization" toml:"no_normalization"`
	} `yaml:"corrections" toml:"corrections"`

	// Input files, raw little-endian arrays. Empty paths use defaults.
	Input struct {
		Measured      string `yaml:"measured" toml:"measured"`
		Image         string `yaml:"image" toml:"image"`
		Attenuation   string `yaml:"attenuation" toml:"attenuation"`
		Normalization string `yaml:"normalization" toml:"normalization"`
		Randoms       string `yaml:"randoms" toml:"randoms"`

		// DetectorPairs selects list-mode input: two 1-based uint16
		// detector numbers per LOR
		DetectorPairs string `yaml:"detectorPairs" toml:"detector_pairs"`

		// Sinogram coordinate tables; all five must be set together
		X       string `yaml:"x" toml:"x"`
		Y       string `yaml:"y" toml:"y"`
		Z       string `yaml:"z" toml:"z"`
		XYIndex string `yaml:"xyIndex" toml:"xy_index"`
		ZIndex  string `yaml:"zIndex" toml:"z_index"`
	} `yaml:"input" toml:"input"`

	// Output parameters
	Output struct {
		Dir string `yaml:"dir" toml:"dir"`

		// Compress writes zstd compressed buffers
		Compress bool `yaml:"compress" toml:"compress"`

		// ExtractSlices writes JPEG slices of the sensitivity image
		ExtractSlices bool `yaml:"extractSlices" toml:"extract_slices"`

		// Metrics writes the pass metrics in prometheus text format
		Metrics bool `yaml:"metrics" toml:"metrics"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"output" toml:"output"`

	Logging logging.LogConfig `yaml:"logging" toml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Grid.Nx = 128
	cfg.Grid.Ny = 128
	cfg.Grid.Nz = 63
	cfg.Grid.FOVX = 300
	cfg.Grid.FOVY = 300
	cfg.Grid.FOVZ = 151.2

	cfg.Scanner.DetPerRing = 504
	cfg.Scanner.Rings = 32
	cfg.Scanner.Radius = 405.0
	cfg.Scanner.RingPitch = 4.8
	cfg.Scanner.PseudoEvery = 0
	cfg.Scanner.Angles = 252
	cfg.Scanner.RadialBins = 128

	cfg.Projection.Model = projector.Siddon.String()
	cfg.Projection.RaysPerLOR = 1
	cfg.Projection.CrystalSizeXY = 2.4
	cfg.Projection.CrystalSizeZ = 0
	cfg.Projection.DecayFactor = 1
	cfg.Projection.Epsilon = 1e-8
	cfg.Projection.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Projection.Accumulation = accumulate.Atomic.String()

	cfg.Output.Dir = "output"
	cfg.Output.Verbose = true

	cfg.Logging.MaxSize = 100
	cfg.Logging.MaxAge = 7

	return cfg
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
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
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

// VoxelGrid builds the image grid, centred transaxially with z starting at 0.
func (c *Config) VoxelGrid() (*geometry.VoxelGrid, error) {
	return geometry.NewCenteredGrid(c.Grid.Nx, c.Grid.Ny, c.Grid.Nz, c.Grid.FOVX, c.Grid.FOVY, c.Grid.FOVZ)
}

// Ring returns the scanner description.
func (c *Config) Ring() scanner.Ring {
	return scanner.Ring{
		DetPerRing:  c.Scanner.DetPerRing,
		Rings:       c.Scanner.Rings,
		Radius:      c.Scanner.Radius,
		RingPitch:   c.Scanner.RingPitch,
		PseudoEvery: c.Scanner.PseudoEvery,
	}
}

// ProjectorOptions converts the projection and correction sections.
func (c *Config) ProjectorOptions() (projector.Options, error) {
	opts := projector.DefaultOptions()

	model, err := projector.ParseModel(strings.ToLower(c.Projection.Model))
	if err != nil {
		return opts, err
	}
	mode, err := accumulate.ParseMode(strings.ToLower(c.Projection.Accumulation))
	if err != nil {
		return opts, err
	}

	opts.Model = model
	opts.RaysPerLOR = c.Projection.RaysPerLOR
	opts.CrystalSizeXY = c.Projection.CrystalSizeXY
	opts.CrystalSizeZ = c.Projection.CrystalSizeZ
	opts.DecayFactor = c.Projection.DecayFactor
	opts.Epsilon = c.Projection.Epsilon
	opts.Workers = c.Projection.NumCores
	opts.Accumulation = mode
	opts.UseAttenuation = c.Corrections.Attenuation
	opts.UseNormalization = c.Corrections.Normalization
	opts.UseRandoms = c.Corrections.Randoms
	opts.NoNormalization = c.Corrections.NoNormalization
	return opts, nil
}

// ListMode reports whether the input is raw detector pairs.
func (c *Config) ListMode() bool {
	return c.Input.DetectorPairs != ""
}

// SinogramTables reports whether sinogram coordinate tables are read from files.
func (c *Config) SinogramTables() bool {
	in := c.Input
	return in.X != "" || in.Y != "" || in.Z != "" || in.XYIndex != "" || in.ZIndex != ""
}

// Validate checks the configuration before a run.
func (c *Config) Validate() error {
	if _, err := c.VoxelGrid(); err != nil {
		return fmt.Errorf("invalid grid: %w", err)
	}
	opts, err := c.ProjectorOptions()
	if err != nil {
		return fmt.Errorf("invalid projection settings: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	if c.Input.Attenuation == "" && c.Corrections.Attenuation {
		return fmt.Errorf("attenuation correction needs an attenuation image")
	}
	if c.Input.Normalization == "" && c.Corrections.Normalization {
		return fmt.Errorf("normalization correction needs a normalization file")
	}
	if c.Input.Randoms == "" && c.Corrections.Randoms {
		return fmt.Errorf("randoms correction needs a randoms file")
	}

	if c.SinogramTables() {
		in := c.Input
		if in.X == "" || in.Y == "" || in.Z == "" || in.XYIndex == "" || in.ZIndex == "" {
			return fmt.Errorf("sinogram tables need x, y, z, xyIndex and zIndex files")
		}
		if c.ListMode() {
			return fmt.Errorf("detector pairs and sinogram tables are mutually exclusive")
		}
		return nil
	}

	if err := c.Ring().Validate(); err != nil {
		return fmt.Errorf("invalid scanner: %w", err)
	}
	if !c.ListMode() && (c.Scanner.Angles <= 0 || c.Scanner.RadialBins <= 0) {
		return fmt.Errorf("sinogram needs positive angles and radial bins, got %d and %d",
			c.Scanner.Angles, c.Scanner.RadialBins)
	}
	return nil
}

// LogMode returns the logging mode selected by the output section.
func (c *Config) LogMode() logging.ModeFlag {
	if c.Output.Verbose {
		return logging.DebugMode
	}
	return logging.InfoMode
}
