package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const recordsSchema = `
CREATE TABLE IF NOT EXISTS records (
	name       TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore keeps records in a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "./data/tiendabot.db"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(recordsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "text-store", "backend", BackendSQLite),
	}, nil
}

// SaveText upserts the record.
func (s *SQLiteStore) SaveText(ctx context.Context, name, content string) bool {
	if !ValidName(name) {
		s.logger.Warn("rejected record name", "name", name)
		return false
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (name, content, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		name, content)
	if err != nil {
		s.logger.Error("failed to save record", "name", name, "error", err)
		return false
	}
	return true
}

// ReadText returns the record content.
func (s *SQLiteStore) ReadText(ctx context.Context, name string) (string, bool) {
	if !ValidName(name) {
		return "", false
	}
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM records WHERE name = ?`, name).Scan(&content)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("failed to read record", "name", name, "error", err)
		}
		return "", false
	}
	return content, true
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
