package newer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MapFunc computes the destination path for a source. destRoot is the
// configured Dest ("" when none was given); the returned path is used as-is.
// An empty result fails the run with ErrEmptyMapping.
type MapFunc func(destRoot string, src *Source) string

// Config describes where the destination artifacts live.
type Config struct {
	// Dest is the destination root: a directory mirrored by the source tree,
	// or a single aggregate file. Required unless Map is set.
	Dest string

	// Ext replaces the source extension when mapping into a directory,
	// e.g. ".js" maps "app.ts" to "<Dest>/app.js".
	Ext string

	// Map overrides path mapping entirely.
	Map MapFunc
}

// Mode is how a Filter resolves destination paths.
type Mode int

const (
	// DirectoryMapped compares each source with Dest/Relative.
	DirectoryMapped Mode = iota
	// SingleFile compares every source with the one file at Dest.
	SingleFile
	// ExtensionMapped is DirectoryMapped with the extension replaced.
	ExtensionMapped
	// CustomMapped compares each source with the path returned by Map.
	CustomMapped
)

func (m Mode) String() string {
	switch m {
	case DirectoryMapped:
		return "directory"
	case SingleFile:
		return "single-file"
	case ExtensionMapped:
		return "extension"
	case CustomMapped:
		return "custom"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// destination is the validated, immutable form of a Config.
type destination struct {
	root   string
	ext    string
	mapper MapFunc
	mode   Mode
}

func (c Config) resolve() (destination, error) {
	if c.Dest == "" && c.Map == nil {
		return destination{}, &ConfigError{Reason: "requires either dest or map or both"}
	}

	d := destination{root: c.Dest, ext: c.Ext, mapper: c.Map}
	switch {
	case c.Map != nil:
		d.mode = CustomMapped
	case c.Ext != "":
		d.mode = ExtensionMapped
	default:
		d.mode = DirectoryMapped
	}
	return d, nil
}

// pathFor returns the per-file destination path for src. It is only used
// when the root is a directory or a mapper is configured.
func (d destination) pathFor(src *Source) string {
	if d.mapper != nil {
		return d.mapper(d.root, src)
	}
	rel := src.Relative
	if d.ext != "" {
		rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + d.ext
	}
	return filepath.Join(d.root, rel)
}

// ConfigFromMap builds a Config from loosely typed options, such as a decoded
// YAML or JSON document. Recognised keys are "dest" (string), "ext" (string)
// and "map" (a MapFunc or func(string, *Source) string). Unknown keys are
// ignored.
func ConfigFromMap(raw map[string]any) (Config, error) {
	var cfg Config
	if raw == nil {
		return cfg, &ConfigError{Reason: "requires a dest string or options object"}
	}

	if v, ok := raw["dest"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return cfg, &ConfigError{Field: "dest", Reason: fmt.Sprintf("requires dest to be a string, got %T", v)}
		}
		cfg.Dest = s
	}

	if v, ok := raw["ext"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return cfg, &ConfigError{Field: "ext", Reason: fmt.Sprintf("requires ext to be a string, got %T", v)}
		}
		cfg.Ext = s
	}

	if v, ok := raw["map"]; ok && v != nil {
		switch fn := v.(type) {
		case MapFunc:
			cfg.Map = fn
		case func(string, *Source) string:
			cfg.Map = fn
		default:
			return cfg, &ConfigError{Field: "map", Reason: fmt.Sprintf("requires map to be a function, got %T", v)}
		}
	}

	if _, err := cfg.resolve(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
