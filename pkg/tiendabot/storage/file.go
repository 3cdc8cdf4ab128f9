package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const recordExt = ".txt"

// FileStore keeps each record in <dir>/<name>.txt.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With("component", "text-store", "backend", BackendFile),
	}, nil
}

// SaveText writes the record atomically so readers never see a partial file.
func (s *FileStore) SaveText(_ context.Context, name, content string) bool {
	if !ValidName(name) {
		s.logger.Warn("rejected record name", "name", name)
		return false
	}
	path := s.path(name)
	if err := writeAtomic(path, []byte(content)); err != nil {
		s.logger.Error("failed to save record", "name", name, "error", err)
		return false
	}
	s.logger.Debug("record saved", "name", name, "size", len(content))
	return true
}

// ReadText returns the record content.
func (s *FileStore) ReadText(_ context.Context, name string) (string, bool) {
	if !ValidName(name) {
		return "", false
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("failed to read record", "name", name, "error", err)
		}
		return "", false
	}
	return string(data), true
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+recordExt)
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}
