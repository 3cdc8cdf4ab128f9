package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Asset is a media file written to the asset directory.
type Asset struct {
	FileName string
	Path     string
	Size     int64
}

// AssetStore writes downloaded media under a single directory. It is a
// separate namespace from text records.
type AssetStore interface {
	// SaveAsset writes data under fileName, overwriting any existing file.
	SaveAsset(ctx context.Context, fileName string, data []byte) (*Asset, error)
}

// FileSystemStore implements AssetStore on the local filesystem.
type FileSystemStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileSystemStore creates a store rooted at dir.
func NewFileSystemStore(dir string, logger *slog.Logger) *FileSystemStore {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = "./assets"
	}
	return &FileSystemStore{
		dir:    dir,
		logger: logger.With("component", "asset-store"),
	}
}

// Dir returns the asset directory.
func (s *FileSystemStore) Dir() string { return s.dir }

// EnsureDir creates the asset directory if it does not exist.
func (s *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", s.dir, err)
	}
	return nil
}

// SaveAsset writes data to <dir>/<fileName>.
func (s *FileSystemStore) SaveAsset(_ context.Context, fileName string, data []byte) (*Asset, error) {
	name := sanitizeFilename(fileName)
	if name == "" {
		return nil, errors.New("asset file name is required")
	}
	if err := s.EnsureDir(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing asset file: %w", err)
	}

	s.logger.Debug("asset saved", "file", name, "size", len(data))

	return &Asset{
		FileName: name,
		Path:     path,
		Size:     int64(len(data)),
	}, nil
}

// Prune removes assets last modified before now-maxAge and returns how many
// were deleted.
func (s *FileSystemStore) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading asset directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	count := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to delete asset", "path", path, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// sanitizeFilename strips path components and control characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}

	var result strings.Builder
	for _, r := range name {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}
