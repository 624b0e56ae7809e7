// ABOUTME: SQLite-backed history log using modernc.org/sqlite
// ABOUTME: Opens the database, applies pragmas and creates the schema on first use

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists studio lifecycle events and dispatch outcomes.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the history database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY between the recorder and API reads.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			studio_id TEXT NOT NULL,
			place_id INTEGER NOT NULL DEFAULT 0,
			place_name TEXT NOT NULL DEFAULT '',
			transport TEXT NOT NULL DEFAULT '',
			request_id TEXT,
			session_key TEXT,
			tool TEXT,
			outcome TEXT,
			failed_requests INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			ts_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_history_ts ON history(ts_ms);
		CREATE INDEX IF NOT EXISTS idx_history_studio ON history(studio_id);
		CREATE INDEX IF NOT EXISTS idx_history_kind ON history(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing history store")
	return s.db.Close()
}
