// Package store persists run history and copy-job progress in a bbolt file
// under the state directory.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// ErrJobNotFound is returned when a copy job is not in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrRunNotFound is returned when a run is not in the store.
	ErrRunNotFound = errors.New("run not found")
)

var (
	runsBucket = []byte("runs")
	jobsBucket = []byte("jobs")
)

// JobState is the lifecycle state of a copy job.
type JobState string

const (
	StatePending    JobState = "Pending"
	StateInProgress JobState = "InProgress"
	StateCompleted  JobState = "Completed"
	StateFailed     JobState = "Failed"
)

// RunState is the outcome of a filter run.
type RunState string

const (
	RunRunning   RunState = "Running"
	RunSucceeded RunState = "Succeeded"
	RunFailed    RunState = "Failed"
)

// JobRecord is one copy of an emitted source to its destination.
type JobRecord struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id,omitempty"`
	SourcePath       string    `json:"source_path"`
	DestinationPath  string    `json:"destination_path"`
	SourceModTime    time.Time `json:"source_mod_time"`
	State            JobState  `json:"state"`
	BytesTransferred int64     `json:"bytes_transferred"`
	TotalBytes       int64     `json:"total_bytes"`
	Checksum         uint64    `json:"checksum,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// RunRecord summarizes one pass of the filter over a source tree.
type RunRecord struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Dest       string    `json:"dest"`
	Mode       string    `json:"mode"`
	State      RunState  `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	Seen       int64 `json:"seen"`
	Emitted    int64 `json:"emitted"`
	Suppressed int64 `json:"suppressed"`
	Discarded  int64 `json:"discarded"`
	Copied     int64 `json:"copied"`
	CopyFailed int64 `json:"copy_failed"`

	Error string `json:"error,omitempty"`
}

// Duration is how long the run took, or zero while it is running.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists runs and copy jobs.
type Store interface {
	SaveJob(job *JobRecord) error
	GetJob(id string) (*JobRecord, error)
	SaveRun(run *RunRecord) error
	GetRun(id string) (*RunRecord, error)
	// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all.
	ListRuns(limit int) ([]*RunRecord, error)
	Close() error
}

// BoltStore is a Store implementation backed by bbolt. Run IDs are expected
// to sort by creation time (UUIDv7) so the key order is the run order.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{runsBucket, jobsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func put(tx *bbolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", bucket, err)
	}
	if err := tx.Bucket(bucket).Put([]byte(key), data); err != nil {
		return fmt.Errorf("failed to put %s record: %w", bucket, err)
	}
	return nil
}

func get(tx *bbolt.Tx, bucket []byte, key string, v any, notFound error) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return notFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s record: %w", bucket, err)
	}
	return nil
}

// SaveJob saves a job to the state store.
func (s *BoltStore) SaveJob(job *JobRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, jobsBucket, job.ID, job)
	})
}

// GetJob retrieves a job from the state store.
func (s *BoltStore) GetJob(id string) (*JobRecord, error) {
	var job JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx, jobsBucket, id, &job, ErrJobNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// SaveRun saves a run to the state store.
func (s *BoltStore) SaveRun(run *RunRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, runsBucket, run.ID, run)
	})
}

// GetRun retrieves a run from the state store.
func (s *BoltStore) GetRun(id string) (*RunRecord, error) {
	var run RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx, runsBucket, id, &run, ErrRunNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns walks the runs bucket backwards.
func (s *BoltStore) ListRuns(limit int) ([]*RunRecord, error) {
	var runs []*RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("failed to unmarshal run %s: %w", k, err)
			}
			runs = append(runs, &run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Close closes the underlying store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
