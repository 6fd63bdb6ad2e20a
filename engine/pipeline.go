package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/franksops/gonewer/internal/log"
	"github.com/franksops/gonewer/newer"
	"github.com/franksops/gonewer/provider"
	"github.com/franksops/gonewer/store"
)

// ErrSyncAggregate is returned when copying is requested for a single-file
// destination. Rebuilding an aggregate is the build tool's job.
var ErrSyncAggregate = errors.New("sync is not supported when dest is a single file")

// DefaultWorkers is the copy worker count when none is configured.
const DefaultWorkers = 4

// Options configures a Pipeline.
type Options struct {
	// SourceRoot is walked on the source provider.
	SourceRoot string
	// Dest is recorded with the run; the filter owns the real destination.
	Dest string

	// Out receives one emitted source path per line. Nil disables printing.
	Out io.Writer

	// Sync copies emitted sources to their destination.
	Sync       bool
	Workers    int
	Verify     bool
	BufferSize int
}

// Summary is the outcome of one Pipeline run.
type Summary struct {
	RunID      string
	Mode       newer.Mode
	Filter     newer.Stats
	Scanned    int64
	Copied     int64
	CopyFailed int64
	Bytes      int64
	Duration   time.Duration
}

// Snapshot is a point-in-time view of a running pipeline.
type Snapshot struct {
	Scanned      int64
	Filter       newer.Stats
	Mode         newer.Mode
	Copied       int64
	CopyFailed   int64
	Bytes        int64
	ActiveCopies int64
	Workers      int
	Sync         bool
}

// Pipeline walks a source tree, filters it and hands stale sources to the
// print and copy sinks.
type Pipeline struct {
	opts   Options
	walker *Walker
	filter *newer.Filter
	src    provider.Provider
	dst    provider.Provider
	store  store.Store
	log    *slog.Logger

	progress CopyProgress

	mu   sync.Mutex
	pool *WorkerPool
}

// NewPipeline wires the parts together. st may be nil to skip run and job
// records. dst is only used when opts.Sync is set.
func NewPipeline(opts Options, walker *Walker, filter *newer.Filter, src, dst provider.Provider, st store.Store) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Pipeline{
		opts:   opts,
		walker: walker,
		filter: filter,
		src:    src,
		dst:    dst,
		store:  st,
		log:    log.Component("pipeline"),
	}
}

// SetWorkers resizes the copy pool while a sync run is in progress, and sets
// the initial size otherwise.
func (p *Pipeline) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.Workers = n
	if p.pool != nil {
		p.pool.SetWorkerCount(n)
	}
}

// Workers returns the configured copy worker count.
func (p *Pipeline) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.Workers
}

// Snapshot reports progress. It is safe to call from another goroutine.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	pool := p.pool
	workers := p.opts.Workers
	p.mu.Unlock()

	s := Snapshot{
		Scanned:    p.walker.Scanned(),
		Filter:     p.filter.Stats(),
		Mode:       p.filter.Mode(),
		Copied:     p.progress.Copied.Load(),
		CopyFailed: p.progress.Failed.Load(),
		Bytes:      p.progress.Bytes.Load(),
		Workers:    workers,
		Sync:       p.opts.Sync,
	}
	if pool != nil {
		s.ActiveCopies = pool.Active()
	}
	return s
}

// Run performs one pass and records it in the store when one is set.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}
	runID := id.String()
	start := time.Now()

	record := &store.RunRecord{
		ID:        runID,
		Source:    p.opts.SourceRoot,
		Dest:      p.opts.Dest,
		Mode:      p.filter.Mode().String(),
		State:     store.RunRunning,
		StartedAt: start,
	}
	p.saveRun(record)

	p.log.Info("run started", "run", runID, "source", p.opts.SourceRoot, "dest", p.opts.Dest, "sync", p.opts.Sync)
	runErr := p.run(ctx, runID)

	summary := &Summary{
		RunID:      runID,
		Mode:       p.filter.Mode(),
		Filter:     p.filter.Stats(),
		Scanned:    p.walker.Scanned(),
		Copied:     p.progress.Copied.Load(),
		CopyFailed: p.progress.Failed.Load(),
		Bytes:      p.progress.Bytes.Load(),
		Duration:   time.Since(start),
	}

	record.Mode = summary.Mode.String()
	record.FinishedAt = start.Add(summary.Duration)
	record.Seen = summary.Filter.Seen
	record.Emitted = summary.Filter.Emitted
	record.Suppressed = summary.Filter.Suppressed
	record.Discarded = summary.Filter.Discarded
	record.Copied = summary.Copied
	record.CopyFailed = summary.CopyFailed
	record.State = store.RunSucceeded
	if runErr != nil {
		record.State = store.RunFailed
		record.Error = runErr.Error()
	}
	p.saveRun(record)

	p.log.Info("run finished", "run", runID, "emitted", summary.Filter.Emitted,
		"suppressed", summary.Filter.Suppressed, "copied", summary.Copied, "duration", summary.Duration)
	return summary, runErr
}

// saveRun is best effort; history must not fail a run.
func (p *Pipeline) saveRun(r *store.RunRecord) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveRun(r); err != nil {
		p.log.Warn("failed to save run record", "run", r.ID, "error", err)
	}
}

func (p *Pipeline) run(ctx context.Context, runID string) error {
	if p.opts.Sync {
		mode, err := p.filter.Probe(ctx)
		if err != nil {
			return err
		}
		if mode == newer.SingleFile {
			return ErrSyncAggregate
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	sources := make(chan *newer.Source, 64)

	g.Go(func() error {
		defer close(sources)
		return p.walker.Walk(gctx, p.opts.SourceRoot, sources)
	})

	var jobs JobChannel
	var pool *WorkerPool
	if p.opts.Sync {
		copier := NewCopier(p.src, p.dst)
		copier.Buffers = NewBufferPool(p.opts.BufferSize)
		copier.Verify = p.opts.Verify
		copier.Progress = &p.progress
		if p.store != nil {
			copier.Tracker = NewJobTracker(p.store, DefaultCheckpointConfig)
		}

		jobs = make(JobChannel, 2*p.Workers())
		pool = NewWorkerPool(gctx, jobs, copier.Copy)

		p.mu.Lock()
		p.pool = pool
		pool.SetWorkerCount(p.opts.Workers)
		p.mu.Unlock()
	}

	emit := func(src *newer.Source) error {
		if p.opts.Out != nil {
			if _, err := fmt.Fprintln(p.opts.Out, src.Path); err != nil {
				return err
			}
		}
		if jobs == nil {
			return nil
		}
		job := CopyJob{
			ID:              uuid.NewString(),
			RunID:           runID,
			Source:          src,
			DestinationPath: p.filter.DestinationFor(src),
		}
		select {
		case jobs <- job:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	}

	g.Go(func() error {
		err := p.filter.Run(gctx, sources, emit)
		if pool == nil {
			return err
		}
		close(jobs)
		pool.Wait()
		if err == nil && pool.Err() != nil {
			err = fmt.Errorf("%d copies failed, first: %w", pool.Failed(), pool.Err())
		}
		return err
	})

	err := g.Wait()
	if pool != nil {
		pool.Stop()
		p.mu.Lock()
		p.pool = nil
		p.mu.Unlock()
	}
	return err
}
