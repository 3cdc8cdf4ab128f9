// Package storage persists named text records saved by store employees.
// Failures never propagate as errors: writes report a bool and reads report
// whether a record was found, with the cause logged by the backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// TextStore is the text-record namespace. Saving an existing name overwrites it.
type TextStore interface {
	// SaveText writes content under name. Returns false on invalid name or I/O failure.
	SaveText(ctx context.Context, name, content string) bool

	// ReadText returns the content under name and whether it could be read.
	ReadText(ctx context.Context, name string) (string, bool)

	// Close releases backend resources.
	Close() error
}

// Backend names accepted in Config.Backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config selects and configures the text store backend.
type Config struct {
	// Backend is "file" (one .txt per record) or "sqlite".
	Backend string `yaml:"backend"`

	// DataDir holds the .txt records for the file backend.
	DataDir string `yaml:"data_dir"`

	// DatabasePath is the SQLite file for the sqlite backend.
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the file backend under ./data.
func DefaultConfig() Config {
	return Config{
		Backend:      BackendFile,
		DataDir:      "./data",
		DatabasePath: "./data/tiendabot.db",
	}
}

// Open builds the configured backend.
func Open(cfg Config, logger *slog.Logger) (TextStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "", BackendFile:
		s, err := NewFileStore(cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		s, err := OpenSQLite(cfg.DatabasePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ValidName reports whether name can be used as a record key.
// Blank names and names that could escape the data directory are rejected.
func ValidName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return false
	}
	return filepath.Base(name) == name
}
