// Package newer filters a stream of source files down to the ones that are
// newer than their destination artifacts.
//
// A Filter is configured with a destination root. If the root is a
// directory, each source is compared with its mirror below the root
// (optionally with a different extension, or at a path computed by a
// MapFunc). If the root is a single file, every source is compared with that
// one aggregate artifact, and as soon as any source is newer all sources are
// passed so the aggregate can be rebuilt from its complete input set. If the
// root does not exist, every source passes.
package newer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/franksops/gonewer/internal/log"
	"github.com/franksops/gonewer/provider"
)

// EmitFunc receives each source the filter passes, in arrival order.
// A non-nil error stops the run and is returned from Run as an *EmitError.
type EmitFunc func(*Source) error

// Observer is told about every decision. dest is the destination path the
// source was compared against ("" when the destination root is absent).
// It is called from the goroutine applying decisions and must not block.
type Observer func(src *Source, d Decision, dest string)

// Option configures a Filter.
type Option func(*Filter)

// WithProvider sets the provider used to stat destinations. The default is
// the local filesystem.
func WithProvider(p provider.Provider) Option {
	return func(f *Filter) { f.fs = p }
}

// WithLogger sets the logger for probe and decision records.
func WithLogger(l *slog.Logger) Option {
	return func(f *Filter) { f.log = l }
}

// WithPrefetch lets up to n destination stats run ahead of the decision
// loop. Values below 2 keep the run strictly sequential.
func WithPrefetch(n int) Option {
	return func(f *Filter) { f.prefetch = n }
}

// WithObserver registers a decision observer.
func WithObserver(o Observer) Option {
	return func(f *Filter) { f.observers = append(f.observers, o) }
}

type strategy int

const (
	passAll strategy = iota
	perFile
	shared
)

// rootInfo is the memoized result of probing the destination root.
type rootInfo struct {
	strategy strategy
	mode     Mode
	modTime  time.Time
}

// target is the resolved destination of one source.
type target struct {
	strategy strategy
	path     string
	modTime  time.Time
	exists   bool
}

// Stats counts decisions made so far. Emitted includes Flushed.
type Stats struct {
	Seen       int64
	Emitted    int64
	Suppressed int64
	Buffered   int64
	Flushed    int64
	Discarded  int64
}

type counters struct {
	seen, emitted, suppressed, buffered, flushed, discarded atomic.Int64
}

// Filter passes sources that are newer than their destination. A Filter is
// single-use: build a new one for every run.
type Filter struct {
	dest      destination
	fs        provider.Provider
	log       *slog.Logger
	prefetch  int
	observers []Observer

	root  *memo[rootInfo]
	agg   aggregateState
	stats counters
	used  atomic.Bool
}

// NewDest creates a Filter for a destination path.
func NewDest(dest string, opts ...Option) (*Filter, error) {
	if dest == "" {
		return nil, &ConfigError{Field: "dest", Reason: "requires a dest string"}
	}
	return New(Config{Dest: dest}, opts...)
}

// New creates a Filter from cfg. Configuration errors are returned before
// any filesystem access.
func New(cfg Config, opts ...Option) (*Filter, error) {
	dest, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	f := &Filter{
		dest: dest,
		fs:   provider.NewLocalProvider(""),
		log:  log.Component("newer"),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.root = newMemo(f.probe)
	return f, nil
}

// Mode returns the effective mode. Before the destination root has been
// probed it is the mode implied by the configuration.
func (f *Filter) Mode() Mode {
	if info, ok := f.root.Peek(); ok {
		return info.mode
	}
	return f.dest.mode
}

// Stats returns a snapshot of the decision counters. It is safe to call
// while the filter runs.
func (f *Filter) Stats() Stats {
	return Stats{
		Seen:       f.stats.seen.Load(),
		Emitted:    f.stats.emitted.Load(),
		Suppressed: f.stats.suppressed.Load(),
		Buffered:   f.stats.buffered.Load(),
		Flushed:    f.stats.flushed.Load(),
		Discarded:  f.stats.discarded.Load(),
	}
}

// Probe resolves the destination root now rather than on the first source
// and returns the effective mode. The result is shared with Run.
func (f *Filter) Probe(ctx context.Context) (Mode, error) {
	info, err := f.root.Get(ctx)
	if err != nil {
		return f.dest.mode, err
	}
	return info.mode, nil
}

// DestinationFor returns the destination path src is compared against. In
// single-file mode that is the root for every source.
func (f *Filter) DestinationFor(src *Source) string {
	if info, ok := f.root.Peek(); ok && info.strategy == shared {
		return f.dest.root
	}
	return f.dest.pathFor(src)
}

// probe stats the destination root once per run.
func (f *Filter) probe(ctx context.Context) (rootInfo, error) {
	if f.dest.mapper != nil {
		return rootInfo{strategy: perFile, mode: CustomMapped}, nil
	}

	info, err := f.fs.Stat(ctx, f.dest.root)
	var ri rootInfo
	switch {
	case err == nil && info.IsDir():
		ri = rootInfo{strategy: perFile, mode: f.dest.mode}
	case err == nil:
		ri = rootInfo{strategy: shared, mode: SingleFile, modTime: info.ModTime()}
	case provider.IsNotFound(err):
		ri = rootInfo{strategy: passAll, mode: f.dest.mode}
	case ctx.Err() != nil:
		return rootInfo{}, ctx.Err()
	default:
		return rootInfo{}, &FileError{Op: "stat", Path: f.dest.root, Err: err}
	}

	f.log.Info("destination probed", "dest", f.dest.root, "mode", ri.mode, "exists", ri.strategy != passAll)
	return ri, nil
}

// lookup resolves and stats the destination of src. It performs I/O but
// does not touch filter state, so lookups may run concurrently.
func (f *Filter) lookup(ctx context.Context, src *Source) (target, error) {
	if err := src.check(); err != nil {
		return target{}, err
	}

	root, err := f.root.Get(ctx)
	if err != nil {
		return target{}, err
	}

	switch root.strategy {
	case passAll:
		return target{strategy: passAll}, nil
	case shared:
		return target{strategy: shared, path: f.dest.root, modTime: root.modTime, exists: true}, nil
	}

	p := f.dest.pathFor(src)
	if p == "" {
		return target{}, &FileError{Op: "map", Path: src.name(), Err: ErrEmptyMapping}
	}
	info, err := f.fs.Stat(ctx, p)
	switch {
	case err == nil:
		return target{strategy: perFile, path: p, modTime: info.ModTime(), exists: true}, nil
	case provider.IsNotFound(err):
		return target{strategy: perFile, path: p}, nil
	case ctx.Err() != nil:
		return target{}, ctx.Err()
	default:
		return target{}, &FileError{Op: "stat", Path: p, Err: err}
	}
}

// apply makes the decision for src. Calls are serialized by the run loops.
func (f *Filter) apply(src *Source, t target, emit EmitFunc) error {
	f.stats.seen.Add(1)

	switch t.strategy {
	case passAll:
		return f.emit(src, Emitted, "", emit)

	case perFile:
		if t.exists && !src.newerThan(t.modTime) {
			f.record(src, Suppressed, t.path)
			return nil
		}
		return f.emit(src, Emitted, t.path, emit)

	case shared:
		var out []*Source
		var d Decision
		f.agg, out, d = f.agg.next(src, t.modTime)
		if d == Buffered {
			f.record(src, Buffered, t.path)
			return nil
		}
		for i, s := range out {
			decision := Flushed
			if i == len(out)-1 {
				decision = Emitted
			}
			if err := f.emit(s, decision, t.path, emit); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Filter) emit(src *Source, d Decision, dest string, emit EmitFunc) error {
	if err := emit(src); err != nil {
		return &EmitError{Path: src.name(), Err: err}
	}
	f.record(src, d, dest)
	return nil
}

func (f *Filter) record(src *Source, d Decision, dest string) {
	switch d {
	case Emitted:
		f.stats.emitted.Add(1)
	case Flushed:
		f.stats.emitted.Add(1)
		f.stats.flushed.Add(1)
	case Suppressed:
		f.stats.suppressed.Add(1)
	case Buffered:
		f.stats.buffered.Add(1)
	case Discarded:
		f.stats.discarded.Add(1)
	}

	f.log.Debug("decision", "source", src.name(), "decision", d.String(), "dest", dest)
	for _, o := range f.observers {
		o(src, d, dest)
	}
}

// finish releases buffered sources at end of stream.
func (f *Filter) finish(completed bool) {
	var rest []*Source
	f.agg, rest = f.agg.drain()
	if !completed {
		return
	}
	for _, src := range rest {
		f.record(src, Discarded, f.dest.root)
	}
}

// Run reads sources from in until it is closed and passes the newer ones to
// emit in arrival order. It returns after every lookup it started has
// finished. Missing metadata, destination stat failures, consumer failures
// and context cancellation end the run with an error.
func (f *Filter) Run(ctx context.Context, in <-chan *Source, emit EmitFunc) error {
	if !f.used.CompareAndSwap(false, true) {
		return ErrFilterUsed
	}

	var err error
	if f.prefetch > 1 {
		err = f.runPrefetch(ctx, in, emit)
	} else {
		err = f.runSequential(ctx, in, emit)
	}
	f.finish(err == nil)
	return err
}

func (f *Filter) runSequential(ctx context.Context, in <-chan *Source, emit EmitFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case src, ok := <-in:
			if !ok {
				return nil
			}
			t, err := f.lookup(ctx, src)
			if err != nil {
				return err
			}
			if err := f.apply(src, t, emit); err != nil {
				return err
			}
		}
	}
}

type pendingLookup struct {
	src  *Source
	done chan struct{}
	t    target
	err  error
}

// runPrefetch overlaps destination stats while decisions are still applied
// one at a time in arrival order.
func (f *Filter) runPrefetch(ctx context.Context, in <-chan *Source, emit EmitFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan *pendingLookup, f.prefetch)
	slots := make(chan struct{}, f.prefetch)
	var lookups sync.WaitGroup

	g.Go(func() error {
		defer close(queue)
		for {
			var src *Source
			var ok bool
			select {
			case <-gctx.Done():
				return gctx.Err()
			case src, ok = <-in:
			}
			if !ok {
				return nil
			}

			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}

			p := &pendingLookup{src: src, done: make(chan struct{})}
			lookups.Add(1)
			go func() {
				defer lookups.Done()
				defer func() { <-slots }()
				p.t, p.err = f.lookup(gctx, p.src)
				close(p.done)
			}()

			select {
			case queue <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		for p := range queue {
			select {
			case <-p.done:
			case <-gctx.Done():
				return gctx.Err()
			}
			if p.err != nil {
				return p.err
			}
			if err := f.apply(p.src, p.t, emit); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	lookups.Wait()
	return err
}

// Stream runs the filter in a goroutine and returns the passed sources as a
// channel. The error channel yields at most one error after the source
// channel is closed. Stop consuming by cancelling ctx.
func (f *Filter) Stream(ctx context.Context, in <-chan *Source) (<-chan *Source, <-chan error) {
	out := make(chan *Source)
	errc := make(chan error, 1)

	go func() {
		err := f.Run(ctx, in, func(src *Source) error {
			select {
			case out <- src:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		close(out)
		if err != nil {
			errc <- err
		}
		close(errc)
	}()

	return out, errc
}

// Apply filters a slice of sources.
func (f *Filter) Apply(ctx context.Context, srcs []*Source) ([]*Source, error) {
	in := make(chan *Source, len(srcs))
	for _, src := range srcs {
		in <- src
	}
	close(in)

	var out []*Source
	err := f.Run(ctx, in, func(src *Source) error {
		out = append(out, src)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
