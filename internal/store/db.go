// Package store provides the local SQLite cache that backs offline-first access
// to workers, work entries and leave requests.
//
// Every entity type lives in its own partition of a single records table. A
// record carries the JSON payload of the domain value plus the bookkeeping the
// sync engine needs: an optional server ID, an application-assigned local key,
// a sync state and the time of the last local modification.
//
// Architecture:
//   - Database file: crewsync.db (path from config)
//   - WAL mode: readers see a consistent snapshot while a writer commits
//   - Writes: BEGIN IMMEDIATE transactions, so one writer at a time and
//     concurrent upserts of the same key never interleave
package store

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
	"go.uber.org/zap"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity TEXT NOT NULL,
	local_key TEXT NOT NULL,
	server_id INTEGER,
	payload TEXT NOT NULL,
	sync_state TEXT NOT NULL DEFAULT 'pending',
	deleted INTEGER NOT NULL DEFAULT 0,
	sync_error TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_modified_at TEXT NOT NULL,

	CHECK (sync_state IN ('synced', 'pending', 'failed')),
	CHECK (sync_state != 'synced' OR server_id IS NOT NULL)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_records_local_key
	ON records(entity, local_key);
CREATE UNIQUE INDEX IF NOT EXISTS idx_records_server_id
	ON records(entity, server_id) WHERE server_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_records_state
	ON records(entity, sync_state);
`

// DB wraps the SQLite connection used as the local cache.
type DB struct {
	conn   *sql.DB
	path   string
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for non-fatal store diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger.Named("store")
		}
	}
}

// WithClock overrides the clock used to stamp LastModifiedAt.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		if now != nil {
			db.now = now
		}
	}
}

// Open creates a new database connection at the specified path.
//
// The database is opened with WAL journaling, a busy timeout and immediate
// transaction locking. If the file doesn't exist it is created; call
// InitSchema before first use.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open("data/crewsync.db", 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string, busyTimeout time.Duration, opts ...Option) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	// Pragmas go in the DSN so that every pooled connection gets them.
	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=journal_mode(wal)&_pragma=busy_timeout(%d)&_pragma=synchronous(normal)",
		path, busyTimeout.Milliseconds(),
	)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := New(conn, opts...)
	db.path = path
	return db, nil
}

// New wraps an already opened connection. Open is the normal entry point;
// New exists for callers that manage the *sql.DB themselves.
func New(conn *sql.DB, opts ...Option) *DB {
	db := &DB{
		conn:   conn,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Path returns the database file path, or "" for wrapped connections.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint first so the main file holds every change.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if db.path != "" {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			db.logger.Warn("failed to checkpoint WAL", zap.Error(err))
		}
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the records table and its indexes. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return &StorageError{Op: "init_schema", Err: err}
	}
	return nil
}

// Table returns the partition of the cache holding records of one entity type.
func (db *DB) Table(entity string) *Table {
	return &Table{db: db, entity: entity}
}

// EntityCount summarizes one entity partition.
type EntityCount struct {
	Entity  string `json:"entity"`
	Synced  int    `json:"synced"`
	Pending int    `json:"pending"`
	Failed  int    `json:"failed"`
}

// Counts returns per-entity record counts grouped by sync state, ordered by entity name.
func (db *DB) Counts(ctx context.Context) ([]EntityCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT entity,
	       SUM(CASE WHEN sync_state = 'synced' THEN 1 ELSE 0 END),
	       SUM(CASE WHEN sync_state = 'pending' THEN 1 ELSE 0 END),
	       SUM(CASE WHEN sync_state = 'failed' THEN 1 ELSE 0 END)
	FROM records
	GROUP BY entity
	ORDER BY entity ASC
	`)
	if err != nil {
		return nil, &StorageError{Op: "counts", Err: err}
	}
	defer rows.Close()

	var counts []EntityCount
	for rows.Next() {
		var c EntityCount
		if err := rows.Scan(&c.Entity, &c.Synced, &c.Pending, &c.Failed); err != nil {
			return nil, &StorageError{Op: "counts", Err: err}
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "counts", Err: err}
	}
	return counts, nil
}

// withTx runs fn inside a write transaction. The transaction is rolled back
// if fn returns an error.
func (db *DB) withTx(ctx context.Context, op, entity string, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: op, Entity: entity, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		var se *StorageError
		if errors.As(err, &se) || errors.Is(err, ErrInvalidRecord) || errors.Is(err, ErrNotFound) {
			return err
		}
		return &StorageError{Op: op, Entity: entity, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: op, Entity: entity, Err: err}
	}
	return nil
}
