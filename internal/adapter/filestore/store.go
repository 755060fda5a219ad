package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidName is returned by Write for names that are not a single file
// name inside the directory.
var ErrInvalidName = errors.New("invalid snapshot file name")

// Store writes snapshot files into a single directory. It implements
// snapshot.Store.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. The directory is not created; call
// EnsureDir once before the first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the destination directory.
func (s *Store) Dir() string { return s.dir }

// EnsureDir creates the destination directory (and parents) if missing.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	return nil
}

// Write stores data as name inside the directory, replacing any existing
// file, and returns the full path. Missing directories are not created.
// name must be a plain file name: no separators, no "..".
func (s *Store) Write(name string, data []byte) (string, error) {
	if name != filepath.Base(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return path, err
	}
	return path, nil
}
