// Package config provides versioned user configuration for the kmerkit CLI:
// default workdir, thread count, sample-name delimiter, and engine settings,
// loaded from an XDG config file or an explicit --config path.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigV1VersionString identifies the initial config schema.
	ConfigV1VersionString = "2026-01"

	appName  = "kmerkit"
	fileName = "config.yaml"
)

// ConfigV1 is the initial version of the kmerkit configuration.
type ConfigV1 struct {
	// Kmpy is the version of the configuration schema.
	Kmpy string `yaml:"kmpy"`

	// Workdir is the default project work directory.
	Workdir string `yaml:"workdir,omitempty"`

	// Threads is the default worker count for stage drivers.
	Threads int `yaml:"threads,omitempty"`

	// Delim is the sample-name delimiter used when resolving read files.
	Delim string `yaml:"delim,omitempty"`

	// Engine selects the counting engine: "native" or "kmc".
	Engine string `yaml:"engine,omitempty"`

	// KmcPath overrides the kmc binary location for the kmc engine.
	KmcPath string `yaml:"kmcPath,omitempty"`

	// Progress toggles progress bars; nil means on when attached to a TTY.
	Progress *bool `yaml:"progress,omitempty"`
}

// Config is an alias for the latest configuration version.
type Config = ConfigV1

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Kmpy:    ConfigV1VersionString,
		Workdir: os.TempDir(),
		Threads: max(2, runtime.NumCPU()/2),
		Delim:   "_R",
		Engine:  "native",
	}
}

// Parse decodes raw YAML config data into the latest Config version,
// filling unset fields from defaults.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	version, ok := raw["kmpy"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid kmpy version field")
	}

	switch version {
	case ConfigV1VersionString:
		var cfg ConfigV1
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		cfg.applyDefaults()
		return &cfg, nil
	default:
		return nil, fmt.Errorf("unsupported config version %q", version)
	}
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Workdir == "" {
		c.Workdir = def.Workdir
	}
	if c.Threads < 1 {
		c.Threads = def.Threads
	}
	if c.Delim == "" {
		c.Delim = def.Delim
	}
	if c.Engine == "" {
		c.Engine = def.Engine
	}
}

// ReadFrom loads config from an explicit path.
func ReadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Read loads the user config from the platform config directory, returning
// defaults when no file exists.
func Read() (*Config, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return Default(), nil
	}
	path := filepath.Join(dir, appName, fileName)
	if _, err := os.Stat(path); err != nil {
		return Default(), nil
	}
	return ReadFrom(path)
}
