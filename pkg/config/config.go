// Package config provides configuration loading and management for rastertiler.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"rastertiler/internal/models"
	"rastertiler/pkg/normalize"
	"rastertiler/pkg/tiling"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input rasters
	Input struct {
		// ImagePath is the raster cut into image patches
		ImagePath string `yaml:"imagePath"`

		// LabelPath is the co-registered label raster; empty tiles the image only
		LabelPath string `yaml:"labelPath"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Dir receives the patch files
		Dir string `yaml:"dir"`

		// ImageRole and LabelRole prefix the patch file names
		ImageRole string `yaml:"imageRole"`
		LabelRole string `yaml:"labelRole"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Tiling parameters
	Tiling struct {
		TileHeight int `yaml:"tileHeight"`
		TileWidth  int `yaml:"tileWidth"`

		// OverlapPercent is the overlap as a percentage of the tile size.
		// OverlapPixels gives it in pixels instead; set at most one.
		OverlapPercent float64 `yaml:"overlapPercent"`
		OverlapPixels  int     `yaml:"overlapPixels"`

		// EdgePolicy is "pad" or "shrink"
		EdgePolicy string `yaml:"edgePolicy"`

		// FillValue is written into padded pixels
		FillValue int `yaml:"fillValue"`
	} `yaml:"tiling"`

	// Normalization of image samples. One of MaxValue or BitDepth is required.
	Normalize struct {
		MaxValue float64 `yaml:"maxValue"`
		BitDepth int     `yaml:"bitDepth"`

		// Image turns image normalization on; labels are never scaled
		Image bool `yaml:"image"`
	} `yaml:"normalize"`

	// Centre clip parameters
	Clip struct {
		Height int `yaml:"height"`
		Width  int `yaml:"width"`

		// CenterX and CenterY default to the raster centre when unset
		CenterX *int `yaml:"centerX,omitempty"`
		CenterY *int `yaml:"centerY,omitempty"`

		OutputPath string `yaml:"outputPath"`
	} `yaml:"clip"`

	// Dataset loading parameters
	Dataset struct {
		// Dir is the patch directory to load; defaults to Output.Dir
		Dir string `yaml:"dir"`

		// NumClasses enables one-hot label encoding when positive
		NumClasses int `yaml:"numClasses"`
	} `yaml:"dataset"`
}

// DefaultConfig returns a configuration with default values.
// Normalization is left unset on purpose: the bit depth of the input must
// be stated.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Output.Dir = "tiles"
	cfg.Output.ImageRole = string(models.RoleImage)
	cfg.Output.LabelRole = string(models.RoleLabel)
	cfg.Output.Verbose = false

	cfg.Tiling.TileHeight = 256
	cfg.Tiling.TileWidth = 256
	cfg.Tiling.OverlapPercent = 0
	cfg.Tiling.EdgePolicy = tiling.EdgePad.String()
	cfg.Tiling.FillValue = 0

	cfg.Normalize.Image = true

	cfg.Clip.Height = 256
	cfg.Clip.Width = 256
	cfg.Clip.OutputPath = "clipped_image.npy"

	return cfg
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
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// GridSpec converts the tiling section into a grid spec and validates it.
func (c *Config) GridSpec() (tiling.Spec, error) {
	edge, err := tiling.ParseEdgePolicy(c.Tiling.EdgePolicy)
	if err != nil {
		return tiling.Spec{}, err
	}
	spec := tiling.Spec{
		TileHeight: c.Tiling.TileHeight,
		TileWidth:  c.Tiling.TileWidth,
		Overlap: tiling.Overlap{
			Fraction: c.Tiling.OverlapPercent / 100,
			Pixels:   c.Tiling.OverlapPixels,
		},
		Edge: edge,
	}
	if _, _, err := spec.Strides(); err != nil {
		return tiling.Spec{}, err
	}
	return spec, nil
}

// Fill returns the padding value, checked against the 16-bit sample range.
func (c *Config) Fill() (uint16, error) {
	if c.Tiling.FillValue < 0 || c.Tiling.FillValue > 0xffff {
		return 0, errors.Errorf("fill value %d out of range [0, 65535]", c.Tiling.FillValue)
	}
	return uint16(c.Tiling.FillValue), nil
}

// Normalizer builds the image normalizer. It fails when neither a max value
// nor a bit depth is configured, or when both are.
func (c *Config) Normalizer() (*normalize.Normalizer, error) {
	n := c.Normalize
	switch {
	case n.MaxValue != 0 && n.BitDepth != 0:
		return nil, errors.New("normalize.maxValue and normalize.bitDepth are mutually exclusive")
	case n.MaxValue != 0:
		return normalize.New(n.MaxValue)
	case n.BitDepth != 0:
		return normalize.ForBitDepth(n.BitDepth)
	}
	return nil, errors.New("normalize.maxValue or normalize.bitDepth must be set")
}

// ClipCenter returns the configured clip centre, nil when unset.
func (c *Config) ClipCenter() (*image.Point, error) {
	x, y := c.Clip.CenterX, c.Clip.CenterY
	if x == nil && y == nil {
		return nil, nil
	}
	if x == nil || y == nil {
		return nil, errors.New("clip.centerX and clip.centerY must be set together")
	}
	return &image.Point{X: *x, Y: *y}, nil
}

// DatasetDir is the directory the loader reads.
func (c *Config) DatasetDir() string {
	if c.Dataset.Dir != "" {
		return c.Dataset.Dir
	}
	return c.Output.Dir
}

// Validate checks the settings a tiling run depends on.
func (c *Config) Validate() error {
	if c.Input.ImagePath == "" {
		return errors.New("input.imagePath is required")
	}
	if c.Output.Dir == "" {
		return errors.New("output.dir is required")
	}
	if c.Output.ImageRole == "" || c.Output.LabelRole == "" {
		return errors.New("output.imageRole and output.labelRole are required")
	}
	if c.Output.ImageRole == c.Output.LabelRole {
		return errors.Errorf("image and label roles are both %q", c.Output.ImageRole)
	}
	if _, err := c.GridSpec(); err != nil {
		return err
	}
	if _, err := c.Fill(); err != nil {
		return err
	}
	if c.Normalize.Image {
		if _, err := c.Normalizer(); err != nil {
			return err
		}
	}
	return nil
}
