// Package store provides the embedded SQLite store backing the offline-first
// sync core.
//
// The store holds nine typed tables: read-mostly server projections for
// offline browsing (tasks, devices, stations, templates, defects), locally
// authored records, the pending_files and pending_requests queues, and the
// sync_logs audit trail. Records flagged is_offline act as the third queue.
//
// The database runs in embedded mode with WAL for concurrent access. Writes
// are atomic per table operation; there are no cross-table transactions, so
// callers must treat each entity type's drain as an independently-failing
// unit.
//
// Workflow:
//  1. The request gateway appends pending_requests while offline
//  2. The capture watcher appends pending_files
//  3. The sync orchestrator drains queues on reconnect and flips statuses
//  4. Retention cleanup prunes aged sync_logs and pending_requests
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
)

// Store wraps the embedded SQLite connection with the offline-cache schema.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it is created; call InitSchema to create
// the tables.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	db, err := store.Open(".fieldsync/offline.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
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

	s := &Store{
		conn: conn,
		path: path,
	}

	// WAL so queue appends don't block queue drains
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
//
// This is idempotent - safe to call multiple times.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	-- Read-mostly server projections
	CREATE TABLE IF NOT EXISTS tasks (
		task_id TEXT PRIMARY KEY,
		task_code TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		station_id TEXT NOT NULL DEFAULT '',
		assignee_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		plan_date TEXT,
		is_offline INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS devices (
		device_id TEXT PRIMARY KEY,
		device_code TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		qr_code TEXT NOT NULL DEFAULT '',
		station_id TEXT NOT NULL DEFAULT '',
		category_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS stations (
		station_id TEXT PRIMARY KEY,
		station_code TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		address TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS templates (
		template_id TEXT PRIMARY KEY,
		template_code TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		items TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS defects (
		defect_id TEXT PRIMARY KEY,
		defect_code TEXT NOT NULL,
		device_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		level TEXT,
		description TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);

	-- Locally authored inspection records
	CREATE TABLE IF NOT EXISTS records (
		record_id TEXT PRIMARY KEY,
		record_code TEXT NOT NULL DEFAULT '',
		task_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		is_offline INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0,
		payload TEXT,
		created_at INTEGER NOT NULL
	);

	-- Sync queues
	CREATE TABLE IF NOT EXISTS pending_files (
		file_id TEXT PRIMARY KEY,
		business_type TEXT NOT NULL,
		business_id TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pending_requests (
		request_id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		method TEXT NOT NULL,
		data TEXT,
		params TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL
	);

	-- Append-only audit trail of sync runs
	CREATE TABLE IF NOT EXISTS sync_logs (
		log_id TEXT PRIMARY KEY,
		sync_type TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		data_count INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL
	);

	-- Indexes for queue drains and offline lookups
	CREATE INDEX IF NOT EXISTS idx_devices_qr ON devices(qr_code);
	CREATE INDEX IF NOT EXISTS idx_devices_station ON devices(station_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_records_offline ON records(is_offline);
	CREATE INDEX IF NOT EXISTS idx_records_task ON records(task_id);
	CREATE INDEX IF NOT EXISTS idx_files_status ON pending_files(status);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON pending_requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_ts ON pending_requests(timestamp);
	CREATE INDEX IF NOT EXISTS idx_synclogs_ts ON sync_logs(timestamp);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RawDB returns the underlying sql.DB connection.
// This is useful for integrating with other libraries that expect *sql.DB.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}
