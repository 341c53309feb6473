// Package store provides the embedded SQLite database behind the sync
// engine.
//
// The database runs in embedded mode using ncruces/go-sqlite3 with WAL
// for concurrent reads. Connections are cheap to open; the sync server
// opens one per request and relies on SQLite's single-writer locking
// for write serialization at the file level.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/aatrooox/zotepad/internal/schema"
)

// Store wraps the SQLite connection with sync-specific functionality.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent
// reads. If the file doesn't exist it is created; call InitSchema to
// create the replicated tables.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open("~/.zotepad/app.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{
		conn: conn,
		path: path,
	}

	// WAL mode so pulls keep working while a push is writing
	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return st, nil
}

// RawDB returns the underlying sql.DB connection.
func (st *Store) RawDB() *sql.DB {
	return st.conn
}

// Path returns the database file path.
func (st *Store) Path() string {
	return st.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (st *Store) Close() error {
	if st.conn == nil {
		return nil
	}

	if _, err := st.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := st.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	st.conn = nil
	return nil
}

// InitSchema creates the replicated tables if they don't exist.
//
// Every table carries a uuid primary key, sync columns (version,
// updated_at, deleted_at), and an index on version for fast
// incremental pulls. Idempotent - safe to call multiple times.
func (st *Store) InitSchema() error {
	return st.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (st *Store) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		title TEXT,
		content TEXT,
		tags TEXT DEFAULT '[]',
		created_at TEXT DEFAULT (datetime('now')),
		updated_at TEXT DEFAULT (datetime('now')),
		deleted_at TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS moments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		content TEXT,
		images TEXT DEFAULT '[]',
		tags TEXT DEFAULT '[]',
		created_at TEXT DEFAULT (datetime('now')),
		updated_at TEXT DEFAULT (datetime('now')),
		deleted_at TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		url TEXT,
		path TEXT,
		filename TEXT,
		size INTEGER,
		mime_type TEXT,
		storage_type TEXT DEFAULT 'cos',
		created_at TEXT DEFAULT (datetime('now')),
		updated_at TEXT DEFAULT (datetime('now')),
		deleted_at TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS workflows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		name TEXT,
		description TEXT,
		steps TEXT DEFAULT '[]',
		schema_id INTEGER,
		type TEXT,
		created_at TEXT DEFAULT (datetime('now')),
		updated_at TEXT DEFAULT (datetime('now')),
		deleted_at TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS workflow_schemas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE,
		name TEXT,
		description TEXT,
		fields TEXT DEFAULT '[]',
		created_at TEXT DEFAULT (datetime('now')),
		updated_at TEXT DEFAULT (datetime('now')),
		deleted_at TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);

	-- Incremental pulls scan version > ? ORDER BY version
	CREATE INDEX IF NOT EXISTS idx_notes_version ON notes(version);
	CREATE INDEX IF NOT EXISTS idx_moments_version ON moments(version);
	CREATE INDEX IF NOT EXISTS idx_assets_version ON assets(version);
	CREATE INDEX IF NOT EXISTS idx_workflows_version ON workflows(version);
	CREATE INDEX IF NOT EXISTS idx_workflow_schemas_version ON workflow_schemas(version);
	`

	if _, err := st.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// MaxVersion returns the maximum assigned version in one table.
// Rows with version <= 0 (never synced) are ignored.
func (st *Store) MaxVersion(ctx context.Context, table string) (int64, error) {
	if schema.Lookup(table) == nil {
		return 0, fmt.Errorf("unknown table: %s", table)
	}

	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s WHERE version > 0", table)

	var v int64
	if err := st.conn.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to query max version for %s: %w", table, err)
	}
	return v, nil
}

// GlobalMaxVersion returns the maximum assigned version across all
// registered tables. Versions share one global space, so this is the
// store's true replication position.
func (st *Store) GlobalMaxVersion(ctx context.Context) (int64, error) {
	var max int64
	for _, table := range schema.TableNames() {
		v, err := st.MaxVersion(ctx, table)
		if err != nil {
			return 0, err
		}
		if v > max {
			max = v
		}
	}
	return max, nil
}

// RowCount returns the number of live (non-tombstoned) rows in a table.
func (st *Store) RowCount(ctx context.Context, table string) (int, error) {
	if schema.Lookup(table) == nil {
		return 0, fmt.Errorf("unknown table: %s", table)
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE deleted_at IS NULL", table)

	var count int
	if err := st.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}
