// Package media downloads inbound media assets and records failed
// ingestions for later retry.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage persists downloaded media bytes under a key.
type Storage interface {
	Put(ctx context.Context, key string, reader io.Reader) (int64, error)
}

// DiskStorage writes assets under <root>/storage, the directory exposed
// by the public file server.
type DiskStorage struct {
	root string
}

// NewDiskStorage creates a disk-backed storage rooted at dataRoot.
func NewDiskStorage(dataRoot string) (*DiskStorage, error) {
	abs, err := filepath.Abs(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	return &DiskStorage{root: abs}, nil
}

// Put writes the reader's content to disk and returns the byte count.
func (d *DiskStorage) Put(_ context.Context, key string, reader io.Reader) (int64, error) {
	dest, err := d.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	n, err := io.Copy(f, reader)
	if err != nil {
		return 0, fmt.Errorf("write file: %w", err)
	}
	return n, nil
}

// Dir returns the directory served under /storage.
func (d *DiskStorage) Dir() string {
	return filepath.Join(d.root, "storage")
}

func (d *DiskStorage) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute key is forbidden: %s", key)
	}
	if strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("path traversal is forbidden: %s", key)
	}
	return filepath.Join(d.Dir(), clean), nil
}
