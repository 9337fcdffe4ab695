// Package config provides configuration loading and management for jp2tiles.
// It handles loading configuration from YAML (or TOML) files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"jp2tiles/pkg/logging"
)

// Decoder backends
const (
	DecoderKakadu = "kakadu"
	DecoderNative = "native"
)

// Catalog backends
const (
	CatalogFile   = "file"
	CatalogBadger = "badger"
)

// ColorTableRule maps a (detector, measurement) pair to a color table file.
// An empty or "*" field matches anything; File may contain the placeholders
// {detector} and {measurement}.
type ColorTableRule struct {
	Detector    string `yaml:"detector" toml:"detector"`
	Measurement string `yaml:"measurement" toml:"measurement"`
	File        string `yaml:"file" toml:"file"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Tiling parameters
	Tiling struct {
		// BaseScale is the physical scale (arcsec/px) shown at BaseZoomLevel
		BaseScale float64 `yaml:"baseScale" toml:"base_image_scale"`

		// BaseZoomLevel is the zoom level at which tiles have BaseScale
		BaseZoomLevel int `yaml:"baseZoomLevel" toml:"base_zoom_level"`

		// TileSize is the default tile edge in pixels
		TileSize int `yaml:"tileSize" toml:"tile_size"`

		// Workers bounds the number of tiles rendered concurrently
		Workers int `yaml:"workers" toml:"workers"`
	} `yaml:"tiling" toml:"tiling"`

	// Decoder parameters
	Decoder struct {
		// Backend is "kakadu" (external kdu_expand) or "native" (pure Go)
		Backend string `yaml:"backend" toml:"backend"`

		// KduExpand is the path of the kdu_expand binary
		KduExpand string `yaml:"kduExpand" toml:"kdu_expand"`

		// KduLibDir is appended to LD_LIBRARY_PATH when running kdu_expand
		KduLibDir string `yaml:"kduLibDir" toml:"kdu_libs_dir"`

		// IntermediateFormat is the file format kdu_expand writes: "bmp" or "tif"
		IntermediateFormat string `yaml:"intermediateFormat" toml:"intermediate_format"`
	} `yaml:"decoder" toml:"decoder"`

	// Output parameters
	Output struct {
		// PNGCompressionQuality follows the ImageMagick convention: the tens
		// digit is the zlib level
		PNGCompressionQuality int `yaml:"pngCompressionQuality" toml:"png_compression_quality"`

		// JPEGCompressionQuality is the JPEG quality, 1-100
		JPEGCompressionQuality int `yaml:"jpegCompressionQuality" toml:"jpeg_compression_quality"`

		// BitDepth is 8 or 16
		BitDepth int `yaml:"bitDepth" toml:"bit_depth"`

		// NumColors is the palette size for PNG tiles, 0 disables quantization
		NumColors int `yaml:"numColors" toml:"num_colors"`

		// Interlace is accepted for compatibility. Tiles are always written
		// non-interlaced and a warning is logged when it is set.
		Interlace bool `yaml:"interlace" toml:"interlace"`

		// DisableCache forces tiles to be rebuilt even if they exist on disk
		DisableCache bool `yaml:"disableCache" toml:"disable_cache"`

		// CacheDir is where tiles are written
		CacheDir string `yaml:"cacheDir" toml:"cache_dir"`
	} `yaml:"output" toml:"output"`

	// Color table parameters
	ColorTables struct {
		// Dir holds the color table images
		Dir string `yaml:"dir" toml:"dir"`

		// Rules is the (detector, measurement) to table mapping
		Rules []ColorTableRule `yaml:"rules" toml:"rules"`
	} `yaml:"colorTables" toml:"color_tables"`

	// Catalog parameters
	Catalog struct {
		// Backend is "file" (YAML list of images) or "badger"
		Backend string `yaml:"backend" toml:"backend"`

		// Path of the catalog file or badger directory
		Path string `yaml:"path" toml:"path"`

		// CacheSize is the number of image records kept in memory, 0 disables caching
		CacheSize int `yaml:"cacheSize" toml:"cache_size"`
	} `yaml:"catalog" toml:"catalog"`

	// Log parameters
	Log struct {
		logging.LogConfig `yaml:",inline"`

		// Level is one of debug, info, warning, error, critical, silent
		Level string `yaml:"level" toml:"level"`
	} `yaml:"log" toml:"log"`
}

// DefaultColorTableRules reproduces the color tables used for SOHO imagery:
// EIT gets a table per wavelength, the LASCO white-light coronagraphs get
// fixed IDL tables.
func DefaultColorTableRules() []ColorTableRule {
	return []ColorTableRule{
		{Detector: "EIT", Measurement: "*", File: "ctable_EIT_{measurement}.png"},
		{Detector: "0C2", Measurement: "0WL", File: "ctable_idl_3.png"},
		{Detector: "0C3", Measurement: "0WL", File: "ctable_idl_1.png"},
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Tiling.BaseScale = 2.63 // EIT arcsec/px at the base zoom level
	cfg.Tiling.BaseZoomLevel = 10
	cfg.Tiling.TileSize = 512
	cfg.Tiling.Workers = runtime.NumCPU()

	cfg.Decoder.Backend = DecoderKakadu
	cfg.Decoder.KduExpand = "kdu_expand"
	cfg.Decoder.IntermediateFormat = "bmp"

	cfg.Output.PNGCompressionQuality = 50
	cfg.Output.JPEGCompressionQuality = 80
	cfg.Output.BitDepth = 8
	cfg.Output.NumColors = 256
	cfg.Output.CacheDir = "cache"

	cfg.ColorTables.Dir = "images/color-tables"
	cfg.ColorTables.Rules = DefaultColorTableRules()

	cfg.Catalog.Backend = CatalogFile
	cfg.Catalog.Path = "catalog.yaml"
	cfg.Catalog.CacheSize = 1024

	cfg.Log.Level = "info"
	cfg.Log.MaxSize = 100
	cfg.Log.MaxAge = 30

	return cfg
}

// Validate checks that the configuration can drive a pipeline
func (c *Config) Validate() error {
	if c.Tiling.BaseScale <= 0 {
		return fmt.Errorf("tiling.baseScale must be positive, got %v", c.Tiling.BaseScale)
	}
	if c.Tiling.TileSize <= 0 {
		return fmt.Errorf("tiling.tileSize must be positive, got %d", c.Tiling.TileSize)
	}
	if c.Tiling.Workers < 1 {
		return fmt.Errorf("tiling.workers must be at least 1, got %d", c.Tiling.Workers)
	}
	switch c.Decoder.Backend {
	case DecoderKakadu:
		if c.Decoder.KduExpand == "" {
			return fmt.Errorf("decoder.kduExpand is required for the kakadu backend")
		}
		switch c.Decoder.IntermediateFormat {
		case "bmp", "tif", "tiff":
		default:
			return fmt.Errorf("unsupported intermediate format %q", c.Decoder.IntermediateFormat)
		}
	case DecoderNative:
	default:
		return fmt.Errorf("unknown decoder backend %q", c.Decoder.Backend)
	}
	if c.Output.BitDepth != 8 && c.Output.BitDepth != 16 {
		return fmt.Errorf("output.bitDepth must be 8 or 16, got %d", c.Output.BitDepth)
	}
	if c.Output.JPEGCompressionQuality < 1 || c.Output.JPEGCompressionQuality > 100 {
		return fmt.Errorf("output.jpegCompressionQuality must be in [1,100], got %d", c.Output.JPEGCompressionQuality)
	}
	if c.Output.PNGCompressionQuality < 0 || c.Output.PNGCompressionQuality > 100 {
		return fmt.Errorf("output.pngCompressionQuality must be in [0,100], got %d", c.Output.PNGCompressionQuality)
	}
	if c.Output.NumColors < 0 || c.Output.NumColors == 1 || c.Output.NumColors > 256 {
		return fmt.Errorf("output.numColors must be 0 or in [2,256], got %d", c.Output.NumColors)
	}
	switch c.Catalog.Backend {
	case CatalogFile, CatalogBadger:
	default:
		return fmt.Errorf("unknown catalog backend %q", c.Catalog.Backend)
	}
	if _, err := logging.ParseMode(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LoadConfig loads configuration from a YAML or TOML file (chosen by extension).
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	if isTOML(configPath) {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	defer f.Close()

	if isTOML(configPath) {
		err = toml.NewEncoder(f).Encode(cfg)
	} else {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		err = enc.Encode(cfg)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
