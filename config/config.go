// Package config loads gonewer.yaml and turns it into filter and pipeline
// settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/franksops/gonewer/newer"
)

// FileName is the config file looked up in the working directory.
const FileName = "gonewer.yaml"

// DefaultStateDir holds the run history database.
const DefaultStateDir = ".gonewer"

// Config is the merged configuration of one gnewer invocation.
type Config struct {
	Source   string   `yaml:"source"`
	Dest     string   `yaml:"dest"`
	Ext      string   `yaml:"ext"`
	Map      string   `yaml:"map"`
	Include  []string `yaml:"include"`
	Exclude  []string `yaml:"exclude"`
	Prefetch int      `yaml:"prefetch"`
	Workers  int      `yaml:"workers"`
	StateDir string   `yaml:"state_dir"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{StateDir: DefaultStateDir}
}

// ValidationError holds every problem found in a configuration.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Discover returns the path of gonewer.yaml in dir, if there is one.
func Discover(dir string) (string, bool) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// stringKeys must hold YAML strings; a scalar of another type is an error
// rather than being coerced.
var stringKeys = []string{"source", "dest", "ext", "map", "state_dir"}

// Load reads a config file on top of Default. Only the shape of the file is
// checked here; call Validate once command-line overrides are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes YAML config data. name is used in error messages.
func Parse(data []byte, name string) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", name, err)
	}

	var errs []string
	for _, key := range stringKeys {
		if v, ok := raw[key]; ok && v != nil {
			if _, isString := v.(string); !isString {
				errs = append(errs, fmt.Sprintf("'%s' must be a string, got %T", key, v))
			}
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", name, err)
	}
	return cfg, nil
}

// Validate checks a merged Config for semantic correctness and returns every
// problem found.
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.Source == "" {
		errs = append(errs, "'source' is required")
	}
	if cfg.Dest == "" && cfg.Map == "" {
		errs = append(errs, "one of 'dest' or 'map' is required")
	}
	if cfg.Prefetch < 0 {
		errs = append(errs, fmt.Sprintf("'prefetch' must be >= 0, got %d", cfg.Prefetch))
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Sprintf("'workers' must be >= 0, got %d", cfg.Workers))
	}
	if cfg.Ext != "" && !strings.HasPrefix(cfg.Ext, ".") {
		errs = append(errs, fmt.Sprintf("'ext' must start with a dot, got %q", cfg.Ext))
	}

	for _, pattern := range cfg.Include {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Sprintf("include: invalid glob %q", pattern))
		}
	}
	for _, pattern := range cfg.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Sprintf("exclude: invalid glob %q", pattern))
		}
	}

	if cfg.Map != "" {
		if _, err := CompileMap(cfg.Map); err != nil {
			errs = append(errs, fmt.Sprintf("map: %v", err))
		}
	}

	return errs
}

// Check runs Validate and wraps the result in a *ValidationError.
func (c *Config) Check() error {
	if errs := Validate(c); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Filter builds the filter configuration. dest overrides c.Dest when not
// empty; remote destinations pass the provider-relative root here.
func (c *Config) Filter(dest string) (newer.Config, error) {
	if dest == "" {
		dest = c.Dest
	}
	opts := map[string]any{"dest": dest}
	if c.Ext != "" {
		opts["ext"] = c.Ext
	}
	if c.Map != "" {
		fn, err := CompileMap(c.Map)
		if err != nil {
			return newer.Config{}, err
		}
		opts["map"] = fn
	}
	return newer.ConfigFromMap(opts)
}
