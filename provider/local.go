package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// LocalProvider implements the Provider interface for posix-compliant local filesystems.
type LocalProvider struct {
	basePath string
	mapper   *MetadataMapper
}

// NewLocalProvider creates a new LocalProvider rooted at basePath.
// If basePath is empty, it acts upon absolute or relative paths directly.
func NewLocalProvider(basePath string) *LocalProvider {
	return &LocalProvider{
		basePath: basePath,
		mapper:   NewMetadataMapper(),
	}
}

// WithMetadataMapper sets the ownership mapper applied on OpenWrite close.
// A nil mapper disables ownership and permission carry-over.
func (p *LocalProvider) WithMetadataMapper(mapper *MetadataMapper) *LocalProvider {
	p.mapper = mapper
	return p
}

func (p *LocalProvider) resolve(path string) string {
	if p.basePath == "" {
		return path
	}
	return filepath.Join(p.basePath, filepath.Clean(path))
}

func (p *LocalProvider) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := p.resolve(path)
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", fullPath, ErrNotFound)
		}
		return nil, err
	}

	return WrapOSFileInfo(info), nil
}

// List returns the directory entries sorted by name.
func (p *LocalProvider) List(ctx context.Context, path string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := p.resolve(path)
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list %s: %w", fullPath, ErrNotFound)
		}
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		infos = append(infos, WrapOSFileInfo(info))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func (p *LocalProvider) OpenRead(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(p.resolve(path))
}

func (p *LocalProvider) OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := p.resolve(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, err
	}

	mode := os.FileMode(0644)
	if uInfo, ok := metadata.(UnixFileInfo); ok && uInfo.Mode() != 0 {
		mode = uInfo.Mode()
	}

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return nil, err
	}

	return &localWriteCloser{
		File:     file,
		fullPath: fullPath,
		metadata: metadata,
		mapper:   p.mapper,
	}, nil
}

// localWriteCloser applies ownership and then the source modification time
// on Close, so the copy is not stale on the next run.
type localWriteCloser struct {
	*os.File
	fullPath string
	metadata FileInfo
	mapper   *MetadataMapper
}

func (l *localWriteCloser) Close() error {
	if err := l.File.Close(); err != nil {
		return err
	}

	if l.mapper != nil && l.metadata != nil {
		// Ownership changes usually need privileges; a copy without them is still valid.
		_ = ApplyMetadata(l.fullPath, l.metadata, l.mapper)
	}

	if l.metadata != nil && !l.metadata.ModTime().IsZero() {
		if err := os.Chtimes(l.fullPath, time.Now(), l.metadata.ModTime()); err != nil {
			return fmt.Errorf("set mtime on %s: %w", l.fullPath, err)
		}
	}

	return nil
}
