// Package store persists long-term statistics in a local SQLite database,
// mirroring the shape of the host recorder: a metadata row per statistic
// and one (metadata_id, start) row per hourly point.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the SQL database connection with statistics-specific methods
type Store struct {
	*sql.DB
	path string
}

// Open creates the database connection and initializes the schema
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.PingContext(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{DB: sqlDB, path: path}

	if err := s.configure(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := s.createSchema(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return s, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := s.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS statistics_meta (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			statistic_id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			name TEXT NOT NULL,
			unit_of_measurement TEXT NOT NULL,
			has_sum INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS statistics (
			metadata_id INTEGER NOT NULL REFERENCES statistics_meta(id) ON DELETE CASCADE,
			start INTEGER NOT NULL,
			sum REAL NOT NULL,
			PRIMARY KEY (metadata_id, start)
		)`,
		`CREATE TABLE IF NOT EXISTS source_versions (
			source TEXT PRIMARY KEY,
			version INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_statistics_start ON statistics(start)`,
	}

	for _, stmt := range statements {
		if _, err := s.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
