// Package config loads the optional antstemplate.yaml file.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath is looked up in the working directory when no path is given.
const DefaultPath = "antstemplate.yaml"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the defaults shared by every command.
type Config struct {
	ANTs struct {
		// BinDir is searched before PATH.
		BinDir string `yaml:"binDir"`
	} `yaml:"ants"`

	Processing struct {
		// Workers overrides the default worker count of every command when positive.
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Results struct {
		Root   string `yaml:"root"`
		Prefix string `yaml:"prefix"`
	} `yaml:"results"`

	Metadata string `yaml:"metadata"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.Results.Root = "results"
	cfg.Results.Prefix = "obiroi_"
	cfg.Metadata = "metadata.csv"

	return cfg
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}

	return cfg, nil
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "unable to create %s", filepath.Dir(path))
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "unable to marshal configuration")
	}

	return errors.Wrapf(os.WriteFile(path, data, 0o644), "unable to write %s", path)
}

// Validate checks the values that have a fixed set of choices.
func (c *Config) Validate() error {
	if c.Processing.Workers < 0 {
		return errors.Wrapf(ErrInvalidConfig, "workers must not be negative, got %d", c.Processing.Workers)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Wrapf(ErrInvalidConfig, "log format must be console or json, got %q", c.Log.Format)
	}
	if c.Results.Prefix == "" {
		return errors.Wrap(ErrInvalidConfig, "results prefix is empty")
	}

	return nil
}
