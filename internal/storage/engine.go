// Package storage defines the key-value engine the transactor commits to,
// the key layout of datoms, indexes, log and metadata on top of it, and the
// msgpack records stored under those keys.
//
// Concrete engines live in subpackages. Each must make AtomicWrite all or
// nothing and must check a batch's expectations inside the same atomic
// section that applies its writes.
package storage

import (
	"bytes"
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("storage: key not found")

// ErrConflict is returned by AtomicWrite when an expectation does not hold.
// Nothing in the batch was applied.
var ErrConflict = errors.New("storage: write conflict")

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("storage: engine closed")

// Engine is an ordered byte-keyed store.
type Engine interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Put writes a single key.
	Put(ctx context.Context, key, value []byte) error
	// Delete removes a single key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key []byte) error
	// AtomicWrite checks every expectation and applies every op, or does
	// neither.
	AtomicWrite(ctx context.Context, batch *Batch) error
	// Scan calls fn for each key in [start, end) in ascending order. A nil
	// end scans to the last key. Returning an error from fn stops the scan
	// and Scan returns that error. fn must not retain k or v.
	Scan(ctx context.Context, start, end []byte, fn func(k, v []byte) error) error
	// Close releases the engine.
	Close() error
}

// OpKind is the kind of write in a batch.
type OpKind uint8

const (
	OpPut OpKind = iota + 1
	OpDelete
)

// WriteOp is one write in a batch.
type WriteOp struct {
	Kind  OpKind
	Key   []byte
	Value []byte
}

// Expectation requires key to hold exactly Value at commit time. A nil
// Value requires the key to be absent.
type Expectation struct {
	Key   []byte
	Value []byte
}

// Matches reports whether the stored value (found or not) satisfies e.
func (e Expectation) Matches(stored []byte, found bool) bool {
	if e.Value == nil {
		return !found
	}
	return found && bytes.Equal(stored, e.Value)
}

// Batch is an ordered list of writes plus the expectations guarding them.
// Later ops on the same key win.
type Batch struct {
	Ops    []WriteOp
	Expect []Expectation
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put appends a put.
func (b *Batch) Put(key, value []byte) {
	b.Ops = append(b.Ops, WriteOp{Kind: OpPut, Key: key, Value: value})
}

// Delete appends a delete.
func (b *Batch) Delete(key []byte) {
	b.Ops = append(b.Ops, WriteOp{Kind: OpDelete, Key: key})
}

// ExpectValue guards the batch on key holding value (nil for absent).
func (b *Batch) ExpectValue(key, value []byte) {
	b.Expect = append(b.Expect, Expectation{Key: key, Value: value})
}

// Len returns the number of writes.
func (b *Batch) Len() int {
	return len(b.Ops)
}

// CheckExpectations evaluates every expectation with get, which reports the
// stored value and whether the key exists. Engines call it inside their
// write transaction.
func (b *Batch) CheckExpectations(get func(key []byte) ([]byte, bool, error)) error {
	for _, e := range b.Expect {
		stored, found, err := get(e.Key)
		if err != nil {
			return err
		}
		if !e.Matches(stored, found) {
			return ErrConflict
		}
	}
	return nil
}

// PrefixEnd returns the smallest key greater than every key with prefix p,
// or nil when no such key exists.
func PrefixEnd(p []byte) []byte {
	end := bytes.Clone(p)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// ScanPrefix scans every key starting with prefix.
func ScanPrefix(ctx context.Context, eng Engine, prefix []byte, fn func(k, v []byte) error) error {
	return eng.Scan(ctx, prefix, PrefixEnd(prefix), fn)
}
