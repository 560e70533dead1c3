package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a binding or session row does not exist.
var ErrNotFound = errors.New("not found")

type DB struct {
	conn *sql.DB
}

// Open opens the database and initializes the schema
func Open(configDir string) (*DB, error) {
	dbPath := filepath.Join(configDir, "rebind.db")

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets the web handlers read while a commit writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bindings (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		current_binding TEXT NOT NULL DEFAULT '',
		default_binding TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rebind_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		shortcut_id TEXT NOT NULL REFERENCES bindings(id) ON DELETE CASCADE,
		mode TEXT NOT NULL,

		-- committed, cancelled, failed, inconsistent, hook_failed
		outcome TEXT NOT NULL,
		original_binding TEXT NOT NULL,
		new_binding TEXT NOT NULL DEFAULT '',
		error_message TEXT,

		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_rebind_sessions_started_at ON rebind_sessions(started_at);
	CREATE INDEX IF NOT EXISTS idx_rebind_sessions_shortcut ON rebind_sessions(shortcut_id);
	CREATE INDEX IF NOT EXISTS idx_rebind_sessions_outcome ON rebind_sessions(outcome);
	`

	_, err := db.conn.Exec(schema)
	return err
}
