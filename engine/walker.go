package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/franksops/gonewer/internal/log"
	"github.com/franksops/gonewer/newer"
	"github.com/franksops/gonewer/provider"
)

// Walker lists a source tree iteratively and sends every selected file as a
// *newer.Source. Within a directory, files come first in name order, then
// each subdirectory in name order, so repeated walks of an unchanged tree
// produce the same sequence.
type Walker struct {
	SourceProvider provider.Provider
	Include        []string
	Exclude        []string

	log     *slog.Logger
	scanned atomic.Int64
}

// NewWalker validates the include and exclude globs (doublestar syntax,
// matched against slash-separated paths relative to the walk root).
func NewWalker(src provider.Provider, include, exclude []string) (*Walker, error) {
	for _, set := range [][]string{include, exclude} {
		for _, pattern := range set {
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("invalid glob %q", pattern)
			}
		}
	}
	return &Walker{
		SourceProvider: src,
		Include:        include,
		Exclude:        exclude,
		log:            log.Component("walker"),
	}, nil
}

// Scanned returns the number of files sent so far.
func (w *Walker) Scanned() int64 {
	return w.scanned.Load()
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *Walker) selected(rel string) bool {
	slash := filepath.ToSlash(rel)
	if len(w.Include) > 0 && !matchAny(w.Include, slash) {
		return false
	}
	return !matchAny(w.Exclude, slash)
}

func (w *Walker) send(ctx context.Context, out chan<- *newer.Source, src *newer.Source) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- src:
		w.scanned.Add(1)
		return nil
	}
}

// Walk sends the files below root to out. It does not close out. A root
// that is a single file is sent as one Source named by its base name.
func (w *Walker) Walk(ctx context.Context, root string, out chan<- *newer.Source) error {
	stat, err := w.SourceProvider.Stat(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", root, err)
	}

	if !stat.IsDir() {
		return w.send(ctx, out, &newer.Source{
			Path:     root,
			Relative: path.Base(filepath.ToSlash(root)),
			Info:     stat,
		})
	}

	stack := []string{""}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dir := root
		if rel != "" {
			dir = filepath.Join(root, rel)
		}

		entries, err := w.SourceProvider.List(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to list directory %s: %w", dir, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		var subdirs []string
		for _, entry := range entries {
			entryRel := filepath.Join(rel, entry.Name())

			if entry.IsDir() {
				if matchAny(w.Exclude, filepath.ToSlash(entryRel)) {
					w.log.Debug("skipping excluded directory", "dir", entryRel)
					continue
				}
				subdirs = append(subdirs, entryRel)
				continue
			}

			if !w.selected(entryRel) {
				continue
			}
			src := &newer.Source{
				Path:     filepath.Join(root, entryRel),
				Relative: entryRel,
				Info:     entry,
			}
			if err := w.send(ctx, out, src); err != nil {
				return err
			}
		}

		// Push in reverse so the first subdirectory is walked next.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	return nil
}
