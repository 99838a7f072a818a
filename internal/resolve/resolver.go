// Package resolve maps transaction-scoped tempids to stable entids.
package resolve

import (
	"maps"

	"github.com/roach88/causetdb/internal/causet"
)

// Allocator hands out fresh entids. The transactor backs it with its private
// copy of the user partition, so allocations only become durable on commit.
type Allocator func() (causet.Entid, error)

// Resolver is the per-transaction tempid table. It is owned by one
// transaction and is not safe for concurrent use.
type Resolver struct {
	alloc      Allocator
	bound      map[causet.TempID]causet.Entid
	upserted   map[causet.TempID]bool
	registered map[int64]bool
	next       int64
}

// New returns an empty resolver drawing fresh entids from alloc.
func New(alloc Allocator) *Resolver {
	return &Resolver{
		alloc:      alloc,
		bound:      make(map[causet.TempID]causet.Entid),
		upserted:   make(map[causet.TempID]bool),
		registered: make(map[int64]bool),
	}
}

// Register mints a new internal tempid. Only registered internal tempids
// resolve.
func (r *Resolver) Register() causet.TempID {
	r.next++
	r.registered[r.next] = true
	return causet.Internal(r.next)
}

// Bind records that t upserts to the existing entity e. Binding t again to
// the same entity is a no-op; binding it to a different one is a
// TempIDConflict.
func (r *Resolver) Bind(t causet.TempID, e causet.Entid) error {
	if t.IsInternal() && !r.registered[t.Index()] {
		return Errorf(CodeUnknownInternalTempID, "internal tempid %d was never registered", t.Index())
	}
	if prev, ok := r.bound[t]; ok {
		if prev == e {
			return nil
		}
		return Errorf(CodeTempIDConflict, "tempid %s resolves to both %d and %d", t, prev, e)
	}
	r.bound[t] = e
	r.upserted[t] = true
	return nil
}

// Bound returns the entid t is already bound to, without allocating.
func (r *Resolver) Bound(t causet.TempID) (causet.Entid, bool) {
	e, ok := r.bound[t]
	return e, ok
}

// Upserted reports whether t was bound to a pre-existing entity rather than
// allocated.
func (r *Resolver) Upserted(t causet.TempID) bool {
	return r.upserted[t]
}

// Resolve returns the entid for t, allocating one on first use. Repeated
// calls with the same tempid return the same entid.
func (r *Resolver) Resolve(t causet.TempID) (causet.Entid, error) {
	if e, ok := r.bound[t]; ok {
		return e, nil
	}
	if t.IsInternal() && !r.registered[t.Index()] {
		return 0, Errorf(CodeUnknownInternalTempID, "internal tempid %d was never registered", t.Index())
	}
	e, err := r.alloc()
	if err != nil {
		return 0, &Error{Code: CodeAllocation, Message: "allocate entid for tempid " + t.String(), Err: err}
	}
	r.bound[t] = e
	return e, nil
}

// Mapping returns the entids of every external tempid, keyed by name.
// Internal tempids are an implementation detail and are left out.
func (r *Resolver) Mapping() map[string]causet.Entid {
	out := make(map[string]causet.Entid)
	for t, e := range r.bound {
		if !t.IsInternal() {
			out[t.Name()] = e
		}
	}
	return out
}

// Len returns how many tempids have an entid.
func (r *Resolver) Len() int { return len(r.bound) }

// Snapshot copies the binding table, for tests and diagnostics.
func (r *Resolver) Snapshot() map[causet.TempID]causet.Entid {
	return maps.Clone(r.bound)
}
