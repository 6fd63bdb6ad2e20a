package engine

import "github.com/franksops/gonewer/newer"

// CopyJob copies one stale source to the destination the filter compared it
// against.
type CopyJob struct {
	// ID identifies the job in the state store.
	ID string

	// RunID links the job to the run that emitted the source.
	RunID string

	// Source is the emitted source. Its Info provides size and the
	// modification time applied to the copy.
	Source *newer.Source

	// DestinationPath is the path on the destination provider.
	DestinationPath string
}

// JobChannel queues CopyJobs for the worker pool.
type JobChannel chan CopyJob
