// Package boltkv is a storage engine backed by a single bbolt bucket.
package boltkv

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/causetdb/internal/storage"
)

var bucketName = []byte("causet")

// Engine wraps a bbolt database. bbolt serialises writers itself, so
// AtomicWrite needs no extra locking.
type Engine struct {
	db *bolt.DB
}

var _ storage.Engine = (*Engine)(nil)

// Open opens or creates the database file at path.
func Open(path string) (*Engine, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Engine{db: db}, nil
}

// Close closes the database.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

func (e *Engine) open() (*bolt.DB, error) {
	if e.db == nil {
		return nil, storage.ErrClosed
	}
	return e.db, nil
}

// Get returns a copy of the value at key. bbolt values are only valid for
// the life of the transaction.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, error) {
	db, err := e.open()
	if err != nil {
		return nil, err
	}
	var value []byte
	err = db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v == nil {
			return storage.ErrNotFound
		}
		value = bytes.Clone(v)
		return nil
	})
	return value, err
}

// Put writes one key.
func (e *Engine) Put(ctx context.Context, key, value []byte) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, nonNil(value))
	})
}

// Delete removes one key.
func (e *Engine) Delete(ctx context.Context, key []byte) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
}

// AtomicWrite applies the batch in one bbolt update. Returning an error
// from the update function rolls everything back.
func (e *Engine) AtomicWrite(ctx context.Context, batch *storage.Batch) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		err := batch.CheckExpectations(func(key []byte) ([]byte, bool, error) {
			v := b.Get(key)
			return v, v != nil, nil
		})
		if err != nil {
			return err
		}
		for _, op := range batch.Ops {
			switch op.Kind {
			case storage.OpPut:
				err = b.Put(op.Key, nonNil(op.Value))
			case storage.OpDelete:
				err = b.Delete(op.Key)
			default:
				err = fmt.Errorf("unknown op kind %d", op.Kind)
			}
			if err != nil {
				return fmt.Errorf("apply batch: %w", err)
			}
		}
		return nil
	})
}

// Scan walks [start, end) with a cursor. fn must not write to the engine.
func (e *Engine) Scan(ctx context.Context, start, end []byte, fn func(k, v []byte) error) error {
	db, err := e.open()
	if err != nil {
		return err
	}
	return db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			if end != nil && bytes.Compare(k, end) >= 0 {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func nonNil(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}
