// Package memkv is an in-memory storage engine over a copy-on-write B-tree.
// It is the engine used by tests and by stores opened without a path.
package memkv

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/roach88/causetdb/internal/storage"
)

type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Engine is safe for concurrent use. Scans run against a clone, so fn may
// write to the engine.
type Engine struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[item]
	closed bool
}

var _ storage.Engine = (*Engine)(nil)

// New returns an empty engine.
func New() *Engine {
	return &Engine{tree: btree.NewG(32, less)}
}

// Close drops the contents.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.tree = btree.NewG(32, less)
	return nil
}

// Len returns the number of keys.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tree.Len()
}

// Get returns a copy of the value at key.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, storage.ErrClosed
	}
	it, ok := e.tree.Get(item{key: key})
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(it.value), nil
}

// Put writes one key.
func (e *Engine) Put(ctx context.Context, key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return storage.ErrClosed
	}
	e.tree.ReplaceOrInsert(item{key: bytes.Clone(key), value: cloneValue(value)})
	return nil
}

// Delete removes one key.
func (e *Engine) Delete(ctx context.Context, key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return storage.ErrClosed
	}
	e.tree.Delete(item{key: key})
	return nil
}

// AtomicWrite applies the batch to a clone of the tree and swaps it in, so
// a failure part way leaves the engine untouched.
func (e *Engine) AtomicWrite(ctx context.Context, batch *storage.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return storage.ErrClosed
	}
	err := batch.CheckExpectations(func(key []byte) ([]byte, bool, error) {
		it, ok := e.tree.Get(item{key: key})
		return it.value, ok, nil
	})
	if err != nil {
		return err
	}
	next := e.tree.Clone()
	for _, op := range batch.Ops {
		switch op.Kind {
		case storage.OpPut:
			next.ReplaceOrInsert(item{key: bytes.Clone(op.Key), value: cloneValue(op.Value)})
		case storage.OpDelete:
			next.Delete(item{key: op.Key})
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
	}
	e.tree = next
	return nil
}

// Scan iterates [start, end) over the tree as it was when Scan began.
func (e *Engine) Scan(ctx context.Context, start, end []byte, fn func(k, v []byte) error) error {
	// Clone marks the shared nodes copy-on-write, which is a write.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return storage.ErrClosed
	}
	snap := e.tree.Clone()
	e.mu.Unlock()

	var err error
	visit := func(it item) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		err = fn(it.key, it.value)
		return err == nil
	}
	if end == nil {
		snap.AscendGreaterOrEqual(item{key: start}, visit)
	} else {
		snap.AscendRange(item{key: start}, item{key: end}, visit)
	}
	return err
}

func cloneValue(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return bytes.Clone(v)
}
