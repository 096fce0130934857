package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pictools/internal/resize"
)

// EnvPrefix prefixes environment overrides, e.g. PICTOOLS_RESIZE_QUALITY.
const EnvPrefix = "PICTOOLS"

// Config holds the main configuration for the application.
type Config struct {
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Locator   Locator   `mapstructure:"locator"`
	Resize    Resize    `mapstructure:"resize"`
	Zip       Zip       `mapstructure:"zip"`
	Flatten   Flatten   `mapstructure:"flatten"`
	Delete    Delete    `mapstructure:"delete"`
	Watermark Watermark `mapstructure:"watermark"`
	Separate  Separate  `mapstructure:"separate"`
	Retry     Retry     `mapstructure:"retry"`
	Log       Log       `mapstructure:"log"`
}

// Pipeline holds run-wide settings.
type Pipeline struct {
	AssumeYes bool   `mapstructure:"assume_yes"` // skip the confirmation prompt
	Root      string `mapstructure:"root"`       // directory globs and patterns are matched in
	Dedupe    bool   `mapstructure:"dedupe"`     // drop directories selected twice
}

// Locator holds image discovery settings.
type Locator struct {
	Extensions []string `mapstructure:"extensions"` // lowercase, with leading dot
}

// Resize holds defaults of the resize stage.
type Resize struct {
	resize.Constraints `mapstructure:",squash"`

	Quality       int     `mapstructure:"quality"`
	OutDir        string  `mapstructure:"out_dir"`
	Prefix        string  `mapstructure:"prefix"`
	Suffix        string  `mapstructure:"suffix"`
	Force         bool    `mapstructure:"force"`
	Recursive     bool    `mapstructure:"recursive"`
	MaxPixels     int64   `mapstructure:"max_pixels"` // decompression bomb guard
	MinMegapixels float64 `mapstructure:"min_megapixels"`
	AutoOrient    bool    `mapstructure:"auto_orient"`
}

// Zip holds defaults of the zip stage.
type Zip struct {
	OutDir string `mapstructure:"out_dir"`
	Flat   bool   `mapstructure:"flat"`
}

// Flatten holds defaults of the flatten stage.
type Flatten struct {
	Separator string `mapstructure:"separator"`
}

// Delete holds defaults of the delete stage.
type Delete struct {
	Target string `mapstructure:"target"` // "source" or "processed"
}

// Watermark holds defaults of the watermark stage.
type Watermark struct {
	Text      string  `mapstructure:"text"`
	Font      string  `mapstructure:"font"`
	FontScale float64 `mapstructure:"font_scale"`
	Quality   int     `mapstructure:"quality"`
	Suffix    string  `mapstructure:"suffix"`
	Force     bool    `mapstructure:"force"`
}

// Separate holds defaults of the separate stage.
type Separate struct {
	By        string `mapstructure:"by"`        // "orientation" or "segment"
	Out       string `mapstructure:"out"`       // relative to each directory unless absolute
	Separator string `mapstructure:"separator"` // splits file names into segments
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Log holds logging configuration.
type Log struct {
	Level string `mapstructure:"level"` // zerolog level name
}

// defaults mirror config/config.yml so the tool works without it.
var defaults = map[string]any{
	"pipeline.assume_yes": false,
	"pipeline.root":       ".",
	"pipeline.dedupe":     true,

	"locator.extensions": []string{".jpg", ".jpeg", ".png"},

	"resize.max_length":     5000,
	"resize.max_width":      0,
	"resize.max_height":     0,
	"resize.quality":        75,
	"resize.out_dir":        "_pictools",
	"resize.prefix":         "",
	"resize.suffix":         "",
	"resize.force":          false,
	"resize.recursive":      false,
	"resize.max_pixels":     894784850,
	"resize.min_megapixels": 0.0,
	"resize.auto_orient":    true,

	"zip.out_dir": "_pictools",
	"zip.flat":    true,

	"flatten.separator": "~",

	"delete.target": "source",

	"watermark.text":       "",
	"watermark.font":       "",
	"watermark.font_scale": 0.05,
	"watermark.quality":    90,
	"watermark.suffix":     "_wm",
	"watermark.force":      false,

	"separate.by":        "orientation",
	"separate.out":       "",
	"separate.separator": " - ",

	"retry.attempts": 3,
	"retry.delay":    100 * time.Millisecond,
	"retry.backoff":  2.0,

	"log.level": "info",
}

// flagBindings maps configuration keys to global flags overriding them.
var flagBindings = map[string]string{
	"pipeline.assume_yes": "yes",
}

// Load reads the configuration. Values come from, in increasing priority:
// built-in defaults, the YAML file, PICTOOLS_* environment variables and
// the bound flags of fs.
//
// An empty path looks for ./config/config.yml and tolerates its absence;
// an explicit path must exist.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if fs != nil {
		for key, name := range flagBindings {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads the configuration like Load.
// It exits the process if the configuration cannot be loaded.
func MustLoad(path string, fs *pflag.FlagSet) *Config {
	cfg, err := Load(path, fs)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to load config")
	}

	return cfg
}
