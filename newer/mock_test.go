package newer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/franksops/gonewer/provider"
)

// mockFS is an in-memory provider. Paths not in files are missing.
type mockFS struct {
	mu    sync.Mutex
	files map[string]provider.FileInfo
	errs  map[string]error
	delay map[string]time.Duration
	stats map[string]int
}

func newMockFS() *mockFS {
	return &mockFS{
		files: make(map[string]provider.FileInfo),
		errs:  make(map[string]error),
		delay: make(map[string]time.Duration),
		stats: make(map[string]int),
	}
}

func (m *mockFS) addFile(path string, mtime time.Time) {
	m.files[path] = provider.NewFileInfo(path, 1, false, mtime)
}

func (m *mockFS) addDir(path string) {
	m.files[path] = provider.NewFileInfo(path, 0, true, time.Unix(1, 0))
}

func (m *mockFS) statCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats[path]
}

func (m *mockFS) Stat(ctx context.Context, path string) (provider.FileInfo, error) {
	m.mu.Lock()
	m.stats[path]++
	d := m.delay[path]
	m.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := m.errs[path]; ok {
		return nil, err
	}
	if info, ok := m.files[path]; ok {
		return info, nil
	}
	return nil, fmt.Errorf("stat %s: %w", path, provider.ErrNotFound)
}

func (m *mockFS) List(ctx context.Context, path string) ([]provider.FileInfo, error) {
	return nil, errors.New("not implemented")
}

func (m *mockFS) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (m *mockFS) OpenWrite(ctx context.Context, path string, metadata provider.FileInfo) (io.WriteCloser, error) {
	return nil, errors.New("not implemented")
}

func src(rel string, mtime time.Time) *Source {
	return &Source{
		Path:     "/src/" + rel,
		Relative: rel,
		Info:     provider.NewFileInfo(rel, 1, false, mtime),
	}
}

func at(sec int64) time.Time {
	return time.Unix(sec, 0)
}

func relatives(srcs []*Source) []string {
	out := make([]string, len(srcs))
	for i, s := range srcs {
		out[i] = s.Relative
	}
	return out
}
