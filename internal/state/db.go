// Package state provides SQLite-based persistence for chunkd.
// It is the single source of truth for work units, conflict analyses, and
// runtime settings; every mutation is durable immediately so the daemon can
// be killed and resumed without losing lifecycle state.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrIntegrity marks a malformed persisted row. The daemon treats this as
// fatal rather than silently dropping state.
var ErrIntegrity = errors.New("state integrity error")

// DB wraps an SQLite database connection with chunkd-specific operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// ProjectDBPath returns the path to the project-local database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".chunkd", "state.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories if needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// OpenProject opens the project-local database under projectRoot.
func OpenProject(projectRoot string) (*DB, error) {
	return Open(ProjectDBPath(projectRoot))
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations. Migrations are additive
// only; existing columns and tables are never altered or removed.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1WorkUnits},
		{2, migrationV2Conflicts},
		{3, migrationV3Settings},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationV1WorkUnits = `
CREATE TABLE IF NOT EXISTS work_units (
	chunk TEXT PRIMARY KEY,
	phase TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'READY',
	priority INTEGER NOT NULL DEFAULT 0,
	blocked_by TEXT NOT NULL DEFAULT '[]',
	displaced_chunk TEXT NOT NULL DEFAULT '',
	displaced_status TEXT NOT NULL DEFAULT '',
	attention_reason TEXT NOT NULL DEFAULT '',
	attention_kind TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	pending_answer TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_work_units_status ON work_units(status);
`

const migrationV2Conflicts = `
CREATE TABLE IF NOT EXISTS conflict_analyses (
	chunk_a TEXT NOT NULL,
	chunk_b TEXT NOT NULL,
	stage TEXT NOT NULL,
	verdict TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0.0,
	overlapping_files TEXT NOT NULL DEFAULT '[]',
	overlapping_symbols TEXT NOT NULL DEFAULT '[]',
	rationale TEXT NOT NULL DEFAULT '',
	computed_at DATETIME NOT NULL,
	PRIMARY KEY (chunk_a, chunk_b)
);

CREATE INDEX IF NOT EXISTS idx_conflicts_chunk_b ON conflict_analyses(chunk_b);
`

const migrationV3Settings = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// Exec executes a query that doesn't return rows.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRow(query, args...)
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Rows written before sub-second precision was stored.
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}
