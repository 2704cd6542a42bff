package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStorage marks every failure that originates in the underlying database.
var ErrStorage = errors.New("storage failure")

// DB wraps SQLite database operations
type DB struct {
	db          *sql.DB
	uniqueMarks bool
	busyTimeout time.Duration
}

// Option configures Open.
type Option func(*DB)

// WithUniqueBookmarkPositions enforces at most one bookmark per (book, cfi)
// with a unique index instead of relying on the caller's existence check.
func WithUniqueBookmarkPositions() Option {
	return func(d *DB) {
		d.uniqueMarks = true
	}
}

// WithBusyTimeout sets how long a writer waits on a locked database.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(d *DB) {
		d.busyTimeout = timeout
	}
}

// Open opens or creates a SQLite database
func Open(path string, opts ...Option) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, wrapErr("open database", err)
	}

	// One connection keeps the per-connection pragmas in force and
	// serialises writers the way a single local process expects.
	db.SetMaxOpenConns(1)

	storage := &DB{db: db, busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(storage)
		}
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", storage.busyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, wrapErr(pragma, err)
		}
	}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, wrapErr("init schema", err)
	}

	return storage, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates tables if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		added_at INTEGER NOT NULL,
		last_read_at INTEGER NOT NULL,
		last_location TEXT,
		progress INTEGER NOT NULL DEFAULT 0,
		file_size INTEGER NOT NULL,
		file_data BLOB NOT NULL,
		cover_data BLOB,
		cover_type TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_documents_last_read ON documents(last_read_at);
	CREATE INDEX IF NOT EXISTS idx_documents_added ON documents(added_at);
	CREATE INDEX IF NOT EXISTS idx_documents_title ON documents(title);

	CREATE TABLE IF NOT EXISTS bookmarks (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		cfi TEXT NOT NULL,
		chapter_name TEXT NOT NULL,
		excerpt TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookmarks_book ON bookmarks(book_id);
	CREATE INDEX IF NOT EXISTS idx_bookmarks_created ON bookmarks(created_at);

	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		value TEXT NOT NULL
	);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return err
	}

	position := `CREATE INDEX IF NOT EXISTS idx_bookmarks_position ON bookmarks(book_id, cfi)`
	if d.uniqueMarks {
		position = `CREATE UNIQUE INDEX IF NOT EXISTS idx_bookmarks_position_unique ON bookmarks(book_id, cfi)`
	}
	_, err := d.db.Exec(position)
	return err
}

// InTx runs fn inside a single transaction. Nothing fn wrote is visible if
// it returns an error.
func (d *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, ErrStorage) {
			return err
		}
		return wrapErr("transaction", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit transaction", err)
	}
	return nil
}

func wrapErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
