// Package db is the durable local store for offline inspections.
//
// The store is an embedded SQLite database (ncruces/go-sqlite3) running in
// WAL mode so the sync daemon, the CLI and the dashboard can read while a
// capture is being written.
//
// Layout:
//   - Database file: .vistoria/offline.db
//   - Tables: inspections, inspection_items, evidences, signatures,
//     sync_metadata, checklists
//   - Indexes: inspections by sync_state, status, owning user and team;
//     owned records by inspection_external_id
//
// Timestamps are stored as fixed-width UTC text so that SQL comparisons on
// them order chronologically.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// timeLayout is fixed width so lexical order equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the SQLite connection holding the offline inspection data.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The parent directory is created when missing. Foreign keys and the busy
// timeout are set per connection through the DSN; journal mode is set once
// since WAL is persistent.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open(".vistoria/offline.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return db, nil
}

// OpenAndInit opens the database and makes sure the schema exists.
func OpenAndInit(ctx context.Context, path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection after a WAL checkpoint.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// It is idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS inspections (
		external_id TEXT PRIMARY KEY,
		server_id TEXT,
		module TEXT NOT NULL DEFAULT '',
		checklist_id TEXT NOT NULL,
		team_id TEXT NOT NULL,
		collaborator_ids TEXT,  -- JSON array
		service_description TEXT NOT NULL DEFAULT '',
		location_description TEXT NOT NULL DEFAULT '',
		created_by_user_id TEXT NOT NULL DEFAULT '',
		created_offline INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'DRAFT',
		score_percent INTEGER,
		pending_resolution_notes TEXT NOT NULL DEFAULT '',
		sync_state TEXT NOT NULL DEFAULT 'PENDING_SYNC',
		sync_error_message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		finalized_at TEXT,
		synced_at TEXT
	);

	CREATE TABLE IF NOT EXISTS inspection_items (
		id TEXT PRIMARY KEY,
		inspection_external_id TEXT NOT NULL,
		checklist_item_id TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		resolved_at TEXT,
		resolved_by_user_id TEXT NOT NULL DEFAULT '',
		resolution_notes TEXT NOT NULL DEFAULT '',
		resolution_evidence_path TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (inspection_external_id) REFERENCES inspections(external_id) ON DELETE CASCADE
	);

	-- inspection_item_id is not a foreign key: items are replaced as a set
	-- while evidences keep pointing at the stable item id.
	CREATE TABLE IF NOT EXISTS evidences (
		id TEXT PRIMARY KEY,
		inspection_external_id TEXT NOT NULL,
		inspection_item_id TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		local_path TEXT NOT NULL DEFAULT '',
		public_id TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		bytes INTEGER NOT NULL DEFAULT 0,
		format TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		FOREIGN KEY (inspection_external_id) REFERENCES inspections(external_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS signatures (
		id TEXT PRIMARY KEY,
		inspection_external_id TEXT NOT NULL UNIQUE,
		signer_name TEXT NOT NULL DEFAULT '',
		signer_role_label TEXT NOT NULL DEFAULT '',
		local_path TEXT NOT NULL DEFAULT '',
		public_id TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		signed_at TEXT NOT NULL,
		FOREIGN KEY (inspection_external_id) REFERENCES inspections(external_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sync_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checklists (
		id TEXT PRIMARY KEY,
		module TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		definition TEXT NOT NULL,  -- JSON document
		cached_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_inspections_sync_state ON inspections(sync_state);
	CREATE INDEX IF NOT EXISTS idx_inspections_status ON inspections(status);
	CREATE INDEX IF NOT EXISTS idx_inspections_created_by ON inspections(created_by_user_id);
	CREATE INDEX IF NOT EXISTS idx_inspections_team ON inspections(team_id);
	CREATE INDEX IF NOT EXISTS idx_items_inspection ON inspection_items(inspection_external_id);
	CREATE INDEX IF NOT EXISTS idx_evidences_inspection ON evidences(inspection_external_id);
	CREATE INDEX IF NOT EXISTS idx_evidences_item ON evidences(inspection_item_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC()
		}
		return time.Time{}
	}
	return t
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
