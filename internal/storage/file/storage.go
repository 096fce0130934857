package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/wb-go/wbf/retry"
)

// TempSuffix marks in-progress writes. Files carrying it are never outputs.
const TempSuffix = ".tmp"

// Storage provides the filesystem primitives used by the pipeline stages.
// Writes go to a temporary file in the target directory and are renamed
// over the target only after the content is complete.
type Storage struct {
	fs       afero.Fs
	strategy retry.Strategy
}

// NewStorage creates a new Storage on top of fs. Renames and removals are
// retried according to strategy.
func NewStorage(fs afero.Fs, strategy retry.Strategy) *Storage {
	if strategy.Attempts < 1 {
		strategy.Attempts = 1
	}

	return &Storage{fs: fs, strategy: strategy}
}

// Save writes src to path atomically and returns the number of bytes written.
// Parent directories are created as needed. On failure the target is left
// untouched and the temporary file is removed.
func (s *Storage) Save(ctx context.Context, path string, src io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := s.MkdirAll(dir); err != nil {
		return 0, err
	}

	tmp := TempName(path)
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := io.Copy(f, src)
	if err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := s.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return 0, err
	}

	return n, nil
}

// Load opens the file at path for reading.
func (s *Storage) Load(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}

	return f, nil
}

// Exists reports whether anything exists at path.
func (s *Storage) Exists(path string) (bool, error) {
	return afero.Exists(s.fs, path)
}

// Stat returns file info for path.
func (s *Storage) Stat(path string) (os.FileInfo, error) {
	return s.fs.Stat(path)
}

// MkdirAll creates path and its parents. It is a no-op for existing
// directories.
func (s *Storage) MkdirAll(path string) error {
	if err := s.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// Rename moves oldPath to newPath, retrying transient failures.
func (s *Storage) Rename(oldPath, newPath string) error {
	err := retry.Do(func() error {
		return s.fs.Rename(oldPath, newPath)
	}, s.strategy)
	if err != nil {
		return fmt.Errorf("failed to rename %s: %w", oldPath, err)
	}

	return nil
}

// Remove deletes a single file or an empty directory.
func (s *Storage) Remove(path string) error {
	return s.fs.Remove(path)
}

// RemoveAll deletes path recursively. A missing path is not an error.
func (s *Storage) RemoveAll(path string) error {
	err := retry.Do(func() error {
		return s.fs.RemoveAll(path)
	}, s.strategy)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

// Walk walks the tree rooted at root in lexical order.
func (s *Storage) Walk(root string, fn filepath.WalkFunc) error {
	return afero.Walk(s.fs, root, fn)
}

// TempName returns the temporary path used while writing path.
func TempName(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+TempSuffix)
}

// IsTemp reports whether name looks like a temporary file written by Save.
func IsTemp(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") && strings.HasSuffix(base, TempSuffix)
}
