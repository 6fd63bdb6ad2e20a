package engine

import (
	"io"
	"sync"
	"time"

	"github.com/franksops/gonewer/store"
)

// CheckpointConfig decides when a running copy saves its progress.
type CheckpointConfig struct {
	// BytesInterval saves after this many bytes since the last save.
	BytesInterval int64
	// TimeInterval saves after this much time since the last save.
	TimeInterval time.Duration
}

// DefaultCheckpointConfig checkpoints every 8 MB or 2 seconds.
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 8 * 1024 * 1024,
	TimeInterval:  2 * time.Second,
}

// JobTracker records the lifecycle of copy jobs in a store.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig
}

// NewJobTracker creates a JobTracker.
func NewJobTracker(s store.Store, config CheckpointConfig) *JobTracker {
	return &JobTracker{store: s, config: config}
}

// Start records job as pending.
func (jt *JobTracker) Start(job CopyJob) error {
	record := &store.JobRecord{
		ID:              job.ID,
		RunID:           job.RunID,
		DestinationPath: job.DestinationPath,
		State:           store.StatePending,
	}
	if job.Source != nil {
		record.SourcePath = job.Source.Path
		record.SourceModTime = job.Source.ModTime()
		if job.Source.Info != nil {
			record.TotalBytes = job.Source.Info.Size()
		}
	}
	return jt.store.SaveJob(record)
}

func (jt *JobTracker) update(jobID string, fn func(*store.JobRecord)) error {
	record, err := jt.store.GetJob(jobID)
	if err != nil {
		return err
	}
	fn(record)
	return jt.store.SaveJob(record)
}

// MarkInProgress moves a job to InProgress.
func (jt *JobTracker) MarkInProgress(jobID string) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateInProgress
	})
}

// MarkCompleted records the final size and checksum of a finished copy.
func (jt *JobTracker) MarkCompleted(jobID string, written int64, checksum uint64) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateCompleted
		r.BytesTransferred = written
		r.Checksum = checksum
	})
}

// MarkFailed records cause on the job.
func (jt *JobTracker) MarkFailed(jobID string, cause error) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateFailed
		if cause != nil {
			r.Error = cause.Error()
		}
	})
}

// TrackedWriter counts bytes written and checkpoints them into the job
// record.
type TrackedWriter struct {
	io.Writer
	tracker  *JobTracker
	jobID    string
	onWrite  func(n int64)
	mu       sync.Mutex
	written  int64
	lastSave int64
	lastTime time.Time
}

// NewTrackedWriter wraps w for jobID. onWrite, if not nil, is called with
// the size of every successful write.
func (jt *JobTracker) NewTrackedWriter(w io.Writer, jobID string, onWrite func(n int64)) *TrackedWriter {
	return &TrackedWriter{
		Writer:   w,
		tracker:  jt,
		jobID:    jobID,
		onWrite:  onWrite,
		lastTime: time.Now(),
	}
}

func (tw *TrackedWriter) Write(p []byte) (int, error) {
	n, err := tw.Writer.Write(p)
	if n <= 0 {
		return n, err
	}
	if tw.onWrite != nil {
		tw.onWrite(int64(n))
	}

	tw.mu.Lock()
	tw.written += int64(n)
	due := tw.written-tw.lastSave >= tw.tracker.config.BytesInterval ||
		time.Since(tw.lastTime) >= tw.tracker.config.TimeInterval
	current := tw.written
	tw.mu.Unlock()

	if due {
		tw.checkpoint(current)
	}
	return n, err
}

// checkpoint is best effort; a failed save leaves the previous checkpoint.
func (tw *TrackedWriter) checkpoint(written int64) {
	err := tw.tracker.update(tw.jobID, func(r *store.JobRecord) {
		r.BytesTransferred = written
	})
	if err != nil {
		return
	}
	tw.mu.Lock()
	tw.lastSave = written
	tw.lastTime = time.Now()
	tw.mu.Unlock()
}

// BytesWritten returns the total number of bytes written.
func (tw *TrackedWriter) BytesWritten() int64 {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.written
}
