package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/franksops/gonewer/internal/log"
	"github.com/franksops/gonewer/provider"
)

// CopyProgress counts copy outcomes across all workers.
type CopyProgress struct {
	Copied atomic.Int64
	Failed atomic.Int64
	Bytes  atomic.Int64
}

// Copier streams emitted sources to their destination. The destination
// provider applies the source modification time on close, so a copied file
// is no longer stale on the next run.
type Copier struct {
	Source   provider.Provider
	Dest     provider.Provider
	Buffers  *BufferPool
	Tracker  *JobTracker
	Verify   bool
	Progress *CopyProgress

	log *slog.Logger
}

// NewCopier creates a Copier with a default buffer pool. Tracker and
// Progress are optional.
func NewCopier(src, dst provider.Provider) *Copier {
	return &Copier{
		Source:  src,
		Dest:    dst,
		Buffers: NewBufferPool(0),
		log:     log.Component("copier"),
	}
}

type writeCounter struct {
	w       io.Writer
	onWrite func(int64)
}

func (wc writeCounter) Write(p []byte) (int, error) {
	n, err := wc.w.Write(p)
	if n > 0 {
		wc.onWrite(int64(n))
	}
	return n, err
}

func (c *Copier) addBytes(n int64) {
	if c.Progress != nil {
		c.Progress.Bytes.Add(n)
	}
}

// Copy is a JobHandler.
func (c *Copier) Copy(ctx context.Context, job CopyJob) error {
	if job.Source == nil {
		return fmt.Errorf("copy job %s has no source", job.ID)
	}

	if c.Tracker != nil {
		if err := c.Tracker.Start(job); err != nil {
			return fmt.Errorf("failed to init job: %w", err)
		}
		if err := c.Tracker.MarkInProgress(job.ID); err != nil {
			return fmt.Errorf("failed to mark job in progress: %w", err)
		}
	}

	written, sum, err := c.copy(ctx, job)
	if err == nil && c.Verify {
		err = c.verify(ctx, job.DestinationPath, sum)
	}

	if err != nil {
		if c.Progress != nil {
			c.Progress.Failed.Add(1)
		}
		if c.Tracker != nil {
			_ = c.Tracker.MarkFailed(job.ID, err)
		}
		c.log.Warn("copy failed", "source", job.Source.Path, "dest", job.DestinationPath, "error", err)
		return fmt.Errorf("copy %s: %w", job.Source.Path, err)
	}

	if c.Progress != nil {
		c.Progress.Copied.Add(1)
	}
	if c.Tracker != nil {
		if err := c.Tracker.MarkCompleted(job.ID, written, sum); err != nil {
			return fmt.Errorf("failed to mark job completed: %w", err)
		}
	}
	c.log.Debug("copied", "source", job.Source.Path, "dest", job.DestinationPath, "bytes", written)
	return nil
}

func (c *Copier) copy(ctx context.Context, job CopyJob) (int64, uint64, error) {
	r, err := c.Source.OpenRead(ctx, job.Source.Path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer r.Close()

	w, err := c.Dest.OpenWrite(ctx, job.DestinationPath, job.Source.Info)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open destination: %w", err)
	}

	var dst io.Writer
	if c.Tracker != nil {
		dst = c.Tracker.NewTrackedWriter(w, job.ID, c.addBytes)
	} else {
		dst = writeCounter{w: w, onWrite: c.addBytes}
	}

	hr := NewHashingReader(r)
	buf := c.Buffers.Get()
	defer c.Buffers.Put(buf)

	if _, err := io.CopyBuffer(dst, hr, *buf); err != nil {
		w.Close()
		return 0, 0, fmt.Errorf("transfer failed: %w", err)
	}

	// Close applies metadata, including the modification time.
	if err := w.Close(); err != nil {
		return 0, 0, fmt.Errorf("failed to close destination: %w", err)
	}
	return hr.BytesRead(), hr.Sum64(), nil
}

func (c *Copier) verify(ctx context.Context, path string, want uint64) error {
	r, err := c.Dest.OpenRead(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to reopen destination: %w", err)
	}
	defer r.Close()

	buf := c.Buffers.Get()
	defer c.Buffers.Put(buf)

	got, _, err := HashStream(r, *buf)
	if err != nil {
		return fmt.Errorf("failed to read back destination: %w", err)
	}
	return VerifyChecksum(path, want, got)
}
