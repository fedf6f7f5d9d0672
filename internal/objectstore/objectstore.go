// Package objectstore persists archived documents and their metadata
// sidecars under a content-addressed layout. Writes are atomic and
// idempotent so a re-executed archive stage never corrupts or duplicates
// an already stored object.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store is the archive destination for the pipeline.
type Store interface {
	// Put copies the file at srcPath to key, creating parent directories.
	// Re-putting an existing key succeeds without rewriting it.
	Put(ctx context.Context, key, srcPath string) error
	// PutBytes writes data under key with the same atomicity guarantees.
	PutBytes(ctx context.Context, key string, data []byte) error
	// Exists reports whether key has been stored.
	Exists(ctx context.Context, key string) (bool, error)
	// Open reads back a stored object.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// HealthCheck verifies the backing location is writable.
	HealthCheck(ctx context.Context) error
}

// FS is a Store rooted at a local directory. Objects land via a temp file
// and rename on the same filesystem, so readers never observe partial
// writes.
type FS struct {
	root string
}

// NewFS creates the root directory if needed and returns a filesystem
// store.
func NewFS(root string) (*FS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("archive root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root %s: %w", root, err)
	}
	return &FS{root: root}, nil
}

// Root returns the store's base directory.
func (s *FS) Root() string { return s.root }

func (s *FS) resolve(key string) (string, error) {
	key = filepath.ToSlash(strings.TrimSpace(key))
	if key == "" {
		return "", fmt.Errorf("object key is empty")
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("object key %q escapes the archive root", key)
	}
	return filepath.Join(s.root, cleaned), nil
}

func (s *FS) Put(ctx context.Context, key, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source %s: %w", srcPath, err)
	}
	defer src.Close()
	return s.write(ctx, key, src)
}

func (s *FS) PutBytes(ctx context.Context, key string, data []byte) error {
	return s.write(ctx, key, strings.NewReader(string(data)))
}

func (s *FS) write(ctx context.Context, key string, src io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := s.resolve(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".docket-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		// A concurrent writer finishing first is fine; the content for a
		// given key is deterministic.
		if _, statErr := os.Stat(dest); statErr == nil {
			return nil
		}
		return fmt.Errorf("finalize object %s: %w", key, err)
	}
	return nil
}

func (s *FS) Exists(_ context.Context, key string) (bool, error) {
	dest, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dest); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FS) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return f, nil
}

// HealthCheck writes and removes a probe file under the root.
func (s *FS) HealthCheck(_ context.Context) error {
	probe, err := os.CreateTemp(s.root, ".health-*")
	if err != nil {
		return fmt.Errorf("archive root %s not writable: %w", s.root, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
