package storagetest

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/causetdb/internal/storage"
)

// ErrInjected is the failure FaultEngine returns by default.
var ErrInjected = errors.New("injected storage failure")

// FaultEngine wraps an engine and fails chosen atomic writes without
// applying them.
type FaultEngine struct {
	storage.Engine

	mu      sync.Mutex
	failOn  map[int]error
	writes  int
	batches []*storage.Batch
}

// NewFaultEngine wraps eng. No writes fail until FailWrite is called.
func NewFaultEngine(eng storage.Engine) *FaultEngine {
	return &FaultEngine{Engine: eng, failOn: make(map[int]error)}
}

// FailWrite makes the n-th AtomicWrite from now (1-based) return err, or
// ErrInjected when err is nil.
func (f *FaultEngine) FailWrite(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	f.failOn[f.writes+n] = err
}

// Writes returns how many atomic writes were attempted.
func (f *FaultEngine) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// LastBatch returns the most recent batch passed to AtomicWrite.
func (f *FaultEngine) LastBatch() *storage.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

// AtomicWrite fails if this write was chosen, otherwise delegates.
func (f *FaultEngine) AtomicWrite(ctx context.Context, batch *storage.Batch) error {
	f.mu.Lock()
	f.writes++
	f.batches = append(f.batches, batch)
	err, fail := f.failOn[f.writes]
	delete(f.failOn, f.writes)
	f.mu.Unlock()
	if fail {
		return err
	}
	return f.Engine.AtomicWrite(ctx, batch)
}
