package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/franksops/gonewer/config"
	"github.com/franksops/gonewer/provider"
	"github.com/franksops/gonewer/store"
)

// stateFile is the run history database inside the state directory.
const stateFile = "state.db"

// filterOptions holds the flags of the root command that override the
// config file.
type filterOptions struct {
	configPath string
	ext        string
	mapTmpl    string
	include    []string
	exclude    []string
	prefetch   int
	workers    int
	stateDir   string

	sync       bool
	checksum   bool
	tui        bool
	noMetadata bool
}

// loadConfig reads the config file named by --config, or gonewer.yaml in
// dir when there is one, and falls back to the defaults otherwise.
func (o *filterOptions) loadConfig(dir string) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		found, ok := config.Discover(dir)
		if !ok {
			return config.Default(), nil
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// apply copies positional arguments and explicitly set flags over cfg.
// changed reports whether a flag was given on the command line.
func (o *filterOptions) apply(cfg *config.Config, args []string, changed func(name string) bool) {
	if len(args) > 0 {
		cfg.Source = args[0]
	}
	if len(args) > 1 {
		cfg.Dest = args[1]
	}
	if changed("ext") {
		cfg.Ext = o.ext
	}
	if changed("map") {
		cfg.Map = o.mapTmpl
	}
	if changed("include") {
		cfg.Include = o.include
	}
	if changed("exclude") {
		cfg.Exclude = o.exclude
	}
	if changed("prefetch") {
		cfg.Prefetch = o.prefetch
	}
	if changed("workers") {
		cfg.Workers = o.workers
	}
	if changed("state-dir") {
		cfg.StateDir = o.stateDir
	}
}

// createProvider returns the provider serving location and the root to use
// on it. S3 providers are rooted at the URL prefix, so their root is ".".
func createProvider(ctx context.Context, location string, withMetadata bool) (provider.Provider, string, error) {
	if provider.IsS3URL(location) {
		bucket, prefix, err := provider.ParseS3URL(location)
		if err != nil {
			return nil, "", err
		}
		p, err := provider.NewS3Provider(ctx, bucket, prefix)
		if err != nil {
			return nil, "", fmt.Errorf("creating S3 provider for %s: %w", location, err)
		}
		return p, ".", nil
	}

	local := provider.NewLocalProvider("")
	if !withMetadata {
		local.WithMetadataMapper(nil)
	}
	return local, location, nil
}

// openStore opens the run history in dir, creating the directory if needed.
func openStore(dir string) (*store.BoltStore, error) {
	if dir == "" {
		dir = config.DefaultStateDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	st, err := store.NewBoltStore(filepath.Join(dir, stateFile))
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}
	return st, nil
}
