// Package cache provides the durable client-local store for the sync
// engine, backed by embedded SQLite with WAL mode.
//
// It holds two kinds of state:
//
//   - Snapshots: per-scope (user id) full copies of the dashboard and
//     template collections, overwritten wholesale on every save.
//   - Oplog: the durable FIFO queue of pending sync operations (see
//     oplog.go).
//
// The store is intentionally forgiving on the read path: a missing or
// corrupt snapshot loads as an empty collection instead of failing, so a
// damaged cache never blocks the UI from starting.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vivek100/dashwizard/internal/schema"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection with snapshot and oplog functionality.
type DB struct {
	conn *sql.DB
	path string
}

// Snapshot is the unit of local persistence: the complete dashboard and
// template collections for one scope, plus bookkeeping.
type Snapshot struct {
	Dashboards []schema.Dashboard `json:"dashboards"`
	Templates  []schema.Dashboard `json:"templates"`
	Version    int64              `json:"version"`
	SavedAt    time.Time          `json:"savedAt"`
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created along with the schema. The caller
// MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
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
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	db.conn = nil
	return nil
}

// Path returns the filesystem location of the cache database.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) initSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS snapshots (
		scope TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		saved_at TEXT NOT NULL,
		last_synced_at TEXT
	);

	CREATE TABLE IF NOT EXISTS oplog (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		scope TEXT NOT NULL,
		kind TEXT NOT NULL,
		target_id TEXT NOT NULL,
		payload TEXT,
		enqueued_at TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_oplog_scope ON oplog(scope, seq);
	CREATE INDEX IF NOT EXISTS idx_oplog_target ON oplog(scope, target_id);
	`
	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// SaveSnapshot overwrites the stored collections for one scope.
//
// An empty scope is the anonymous/demo scope. Callers always pass the
// complete current collections; saves are never incremental. The stored
// version counter increases by one on every save.
func (db *DB) SaveSnapshot(scope string, dashboards, templates []schema.Dashboard) error {
	return db.SaveSnapshotContext(context.Background(), scope, dashboards, templates)
}

// SaveSnapshotContext saves a snapshot with context support.
func (db *DB) SaveSnapshotContext(ctx context.Context, scope string, dashboards, templates []schema.Dashboard) error {
	snap := Snapshot{
		Dashboards: dashboards,
		Templates:  templates,
		SavedAt:    time.Now().UTC(),
	}
	if snap.Dashboards == nil {
		snap.Dashboards = []schema.Dashboard{}
	}
	if snap.Templates == nil {
		snap.Templates = []schema.Dashboard{}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
	INSERT INTO snapshots (scope, data, version, saved_at)
	VALUES (?, ?, 1, ?)
	ON CONFLICT(scope) DO UPDATE SET
		data = excluded.data,
		version = snapshots.version + 1,
		saved_at = excluded.saved_at
	`
	if _, err := db.conn.ExecContext(ctx, query, scope, string(data), snap.SavedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored collections for one scope.
//
// A missing row or undecodable stored data yields an empty snapshot, not
// an error: the cache must never prevent the application from starting.
func (db *DB) LoadSnapshot(scope string) (*Snapshot, error) {
	return db.LoadSnapshotContext(context.Background(), scope)
}

// LoadSnapshotContext loads a snapshot with context support.
func (db *DB) LoadSnapshotContext(ctx context.Context, scope string) (*Snapshot, error) {
	var data string
	var version int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT data, version FROM snapshots WHERE scope = ?", scope,
	).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		// Corrupt stored data: start over rather than fail.
		return emptySnapshot(), nil
	}
	snap.Version = version
	if snap.Dashboards == nil {
		snap.Dashboards = []schema.Dashboard{}
	}
	if snap.Templates == nil {
		snap.Templates = []schema.Dashboard{}
	}
	return &snap, nil
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Dashboards: []schema.Dashboard{},
		Templates:  []schema.Dashboard{},
	}
}

// SetLastSyncedAt records when the scope last completed a full sync.
func (db *DB) SetLastSyncedAt(scope string, t time.Time) error {
	query := `
	INSERT INTO snapshots (scope, data, version, saved_at, last_synced_at)
	VALUES (?, '{}', 1, ?, ?)
	ON CONFLICT(scope) DO UPDATE SET
		last_synced_at = excluded.last_synced_at
	`
	ts := t.UTC().Format(time.RFC3339Nano)
	if _, err := db.conn.Exec(query, scope, ts, ts); err != nil {
		return fmt.Errorf("failed to record last sync time: %w", err)
	}
	return nil
}

// LastSyncedAt returns when the scope last completed a full sync, or the
// zero time if it never has.
func (db *DB) LastSyncedAt(scope string) (time.Time, error) {
	var ts sql.NullString
	err := db.conn.QueryRow(
		"SELECT last_synced_at FROM snapshots WHERE scope = ?", scope,
	).Scan(&ts)
	if err == sql.ErrNoRows || (err == nil && !ts.Valid) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last sync time: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts.String)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}
