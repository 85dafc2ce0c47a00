package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem writes archives into a local directory
type Filesystem struct {
	dir string
}

// NewFilesystem creates dir if needed
func NewFilesystem(dir string) (*Filesystem, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Filesystem{dir: dir}, nil
}

// Put writes data atomically to dir/name, replacing an existing file.
func (f *Filesystem) Put(_ context.Context, name string, data []byte) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid archive name %q", name)
	}

	tmp, err := os.CreateTemp(f.dir, ".archive-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}

	path := filepath.Join(f.dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}
	return path, nil
}
