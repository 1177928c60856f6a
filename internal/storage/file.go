package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ashita-ai/archdoc/internal/model"
)

// FileStore keeps the project list in a single JSON file.
// Writes go to a temporary file that is renamed over the target.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by the file at path. The file and its
// directory are created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Name identifies the backend in health output.
func (s *FileStore) Name() string { return "file" }

// Load reads the project list. A missing file is an empty list.
func (s *FileStore) Load(_ context.Context) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", s.path, err)
	}
	return decodeProjects(raw)
}

// Save replaces the stored project list.
func (s *FileStore) Save(ctx context.Context, projects []model.Project) error {
	raw, err := encodeProjects(projects)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("storage: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("storage: replace %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
