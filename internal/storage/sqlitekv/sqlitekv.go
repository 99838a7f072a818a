// Package sqlitekv is a storage engine backed by a single SQLite table.
package sqlitekv

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/causetdb/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty file
// 1 - kv table
const currentSchemaVersion = 1

// Engine stores keys in a WITHOUT ROWID table so rows are clustered by key.
type Engine struct {
	db *sql.DB
}

var _ storage.Engine = (*Engine)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - IMMEDIATE transactions, so batch expectations are read under the
//     write lock
//
// Safe to call on an existing database.
func Open(path string) (*Engine, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Engine{db: db}, nil
}

// Close closes the database connection.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if version < 1 {
		if _, err := db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (e *Engine) open() (*sql.DB, error) {
	if e.db == nil {
		return nil, storage.ErrClosed
	}
	return e.db, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, key []byte) ([]byte, bool, error) {
	var v []byte
	err := q.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select key: %w", err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, true, nil
}

// Get returns the value stored at key.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, error) {
	db, err := e.open()
	if err != nil {
		return nil, err
	}
	v, found, err := get(ctx, db, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

const upsertSQL = "INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v"

// Put writes one key.
func (e *Engine) Put(ctx context.Context, key, value []byte) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, upsertSQL, key, nonNil(value)); err != nil {
		return fmt.Errorf("put key: %w", err)
	}
	return nil
}

// Delete removes one key.
func (e *Engine) Delete(ctx context.Context, key []byte) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM kv WHERE k = ?", key); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

// AtomicWrite checks expectations and applies the batch in one SQL
// transaction.
func (e *Engine) AtomicWrite(ctx context.Context, batch *storage.Batch) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			// Another writer holds the lock; nothing was read or written.
			return fmt.Errorf("begin transaction: %w: %w", storage.ErrConflict, err)
		}
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = batch.CheckExpectations(func(key []byte) ([]byte, bool, error) {
		return get(ctx, tx, key)
	})
	if err != nil {
		return err
	}

	put, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare put: %w", err)
	}
	defer put.Close()
	del, err := tx.PrepareContext(ctx, "DELETE FROM kv WHERE k = ?")
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer del.Close()

	for _, op := range batch.Ops {
		switch op.Kind {
		case storage.OpPut:
			_, err = put.ExecContext(ctx, op.Key, nonNil(op.Value))
		case storage.OpDelete:
			_, err = del.ExecContext(ctx, op.Key)
		default:
			err = fmt.Errorf("unknown op kind %d", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Scan reads the range into memory before calling fn, so fn may call back
// into the engine while the single connection is free.
func (e *Engine) Scan(ctx context.Context, start, end []byte, fn func(k, v []byte) error) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	if start == nil {
		start = []byte{}
	}
	var rows *sql.Rows
	if end == nil {
		rows, err = db.QueryContext(ctx, "SELECT k, v FROM kv WHERE k >= ? ORDER BY k", start)
	} else {
		rows, err = db.QueryContext(ctx, "SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k", start, end)
	}
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	type row struct{ k, v []byte }
	var buf []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.k, &r.v); err != nil {
			rows.Close()
			return fmt.Errorf("scan row: %w", err)
		}
		buf = append(buf, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("scan rows: %w", err)
	}
	rows.Close()

	for _, r := range buf {
		if err := fn(r.k, r.v); err != nil {
			return err
		}
	}
	return nil
}

func nonNil(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}

func isBusy(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked)
}
