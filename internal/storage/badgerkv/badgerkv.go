// Package badgerkv is a storage engine backed by Badger.
package badgerkv

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/causetdb/internal/storage"
)

// Engine wraps a Badger database.
type Engine struct {
	db       *badger.DB
	inMemory bool
}

var _ storage.Engine = (*Engine)(nil)

// Open opens or creates a Badger database in dir.
func Open(dir string) (*Engine, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	return &Engine{db: db}, nil
}

// OpenInMemory opens a Badger database that lives only in memory.
func OpenInMemory() (*Engine, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &Engine{db: db, inMemory: true}, nil
}

// IsInMemory reports whether the engine has no backing files.
func (e *Engine) IsInMemory() bool { return e.inMemory }

// Close closes the database.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

func (e *Engine) open() (*badger.DB, error) {
	if e.db == nil {
		return nil, storage.ErrClosed
	}
	return e.db, nil
}

// Get returns a copy of the value at key.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, error) {
	db, err := e.open()
	if err != nil {
		return nil, err
	}
	var value []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	return value, err
}

// Put writes one key.
func (e *Engine) Put(ctx context.Context, key, value []byte) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes one key.
func (e *Engine) Delete(ctx context.Context, key []byte) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// AtomicWrite applies the batch in one Badger transaction. Badger's own
// conflict detection covers the keys read by the expectations, so a racing
// writer surfaces as badger.ErrConflict, reported as storage.ErrConflict.
func (e *Engine) AtomicWrite(ctx context.Context, batch *storage.Batch) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err = db.Update(func(txn *badger.Txn) error {
		err := batch.CheckExpectations(func(key []byte) ([]byte, bool, error) {
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			v, err := item.ValueCopy(nil)
			return v, err == nil, err
		})
		if err != nil {
			return err
		}
		for _, op := range batch.Ops {
			switch op.Kind {
			case storage.OpPut:
				err = txn.Set(op.Key, op.Value)
			case storage.OpDelete:
				err = txn.Delete(op.Key)
			default:
				err = fmt.Errorf("unknown op kind %d", op.Kind)
			}
			if err != nil {
				return fmt.Errorf("apply batch: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrConflict
	}
	return err
}

// Scan iterates [start, end).
func (e *Engine) Scan(ctx context.Context, start, end []byte, fn func(k, v []byte) error) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(start); it.Valid(); it.Next() {
			item := it.Item()
			k := item.Key()
			if end != nil && bytes.Compare(k, end) >= 0 {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			err := item.Value(func(v []byte) error {
				return fn(k, v)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
