package provider

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned (wrapped) by Stat when the path does not exist.
// Callers should test for it with errors.Is or IsNotFound.
var ErrNotFound = errors.New("not found")

// FileInfo represents the standard metadata for a file or a directory
// across different storage abstractions.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Provider represents a storage backend abstraction.
// Source trees are listed through a Provider and destination artifacts are
// probed through one, so local disk and S3 can be mixed freely.
type Provider interface {
	// Stat returns the FileInfo for the given path. A missing path yields an
	// error matching ErrNotFound; any other error is an I/O failure.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the contents of the given directory.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// OpenRead opens a file for streaming reads.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens a file for streaming writes, applying metadata if supported.
	OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error)
}

// IsNotFound reports whether err means the stat target does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// staticFileInfo is a plain FileInfo value, used where a backend has no
// native info type and in tests.
type staticFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (s *staticFileInfo) Name() string       { return s.name }
func (s *staticFileInfo) Size() int64        { return s.size }
func (s *staticFileInfo) IsDir() bool        { return s.isDir }
func (s *staticFileInfo) ModTime() time.Time { return s.modTime }

// NewFileInfo builds a FileInfo from raw values.
func NewFileInfo(name string, size int64, isDir bool, modTime time.Time) FileInfo {
	return &staticFileInfo{name: name, size: size, isDir: isDir, modTime: modTime}
}
