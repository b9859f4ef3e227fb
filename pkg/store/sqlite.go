// Package store provides SQLite-based persistence for the selector
// registry and the audit log.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// appName is used for the default state directory path.
const appName = "pcrgate"

// Store backs the selector registry and audit log with a single SQLite
// database. Safe for concurrent use; SQLite serializes writes and WAL
// mode keeps readers unblocked.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database path under XDG_DATA_HOME.
func DefaultPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, appName, appName+".db")
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode lets concurrent evaluations read selectors while a
	// registration is in flight.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Without a busy timeout concurrent writes immediately return
	// SQLITE_BUSY; 5 seconds allows retries under contention.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS selectors (
		principal_id TEXT NOT NULL,
		pcr_index INTEGER NOT NULL,
		algorithm TEXT NOT NULL,
		digest BLOB NOT NULL,
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (principal_id, pcr_index)
	);
	CREATE INDEX IF NOT EXISTS idx_selectors_principal ON selectors(principal_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		verdict_id TEXT NOT NULL,
		principal_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		evaluated_at INTEGER NOT NULL,
		mismatches TEXT,
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_principal ON audit_log(principal_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_outcome ON audit_log(outcome);
	CREATE INDEX IF NOT EXISTS idx_audit_log_evaluated ON audit_log(evaluated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
// This should only be used in tests to manipulate state for testing edge cases.
func (s *Store) DB() *sql.DB {
	return s.db
}
