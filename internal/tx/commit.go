package tx

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/fold"
	"github.com/roach88/causetdb/internal/schema"
	"github.com/roach88/causetdb/internal/storage"
	"github.com/roach88/causetdb/internal/validate"
)

// foldKey groups the datoms of one transaction. Cardinality-one attributes
// fold per (e, a) so a new value replaces the old; cardinality-many fold
// per (e, a, v).
type foldKey struct {
	e, a causet.Entid
	v    causet.TypedValue
	many bool
}

func compareFoldKeys(x, y foldKey) int {
	if c := cmp.Compare(x.e, y.e); c != 0 {
		return c
	}
	if c := cmp.Compare(x.a, y.a); c != 0 {
		return c
	}
	return causet.Compare(x.v, y.v)
}

// fold reduces the resolved datoms to at most one net change per key.
func (r *run) fold() error {
	r.upsert = fold.New[foldKey, causet.TypedValue](compareFoldKeys)
	for _, d := range r.datoms {
		attr, _ := r.schema.Attribute(d.A)
		k := foldKey{e: d.E, a: d.A}
		if attr.Multival {
			k.v, k.many = d.V, true
		} else if d.Added {
			pending, ok := r.upsert.AssertedValue(k)
			if err := validate.Cardinality(r.schema, d.E, d.A, attr, pending, ok, d.V); err != nil {
				return err
			}
		}
		r.upsert.Witness(k, d.V, d.Added, !d.Added)
	}
	return nil
}

// validate turns the fold into the datoms to write, checks uniqueness
// against storage and derives the schema the next transaction will see.
func (r *run) validate() error {
	if err := r.plan(); err != nil {
		return err
	}

	var puts []causet.Datom
	for _, d := range r.changes {
		if d.Added {
			puts = append(puts, d)
		}
	}
	owner := func(a causet.Entid, v causet.TypedValue) (causet.Entid, bool, error) {
		e, ok, err := r.store.reader.Owner(r.ctx, a, v)
		if err != nil || !ok {
			return e, ok, err
		}
		if r.deleted[datomKey{e, a, v}] {
			return 0, false, nil
		}
		return e, true, nil
	}
	if err := validate.Uniqueness(r.schema, puts, owner); err != nil {
		return err
	}

	var meta []causet.Datom
	for _, d := range r.changes {
		if schema.MetaAttributes[d.A] && !d.Added {
			meta = append(meta, d)
		}
	}
	for _, d := range r.changes {
		if schema.MetaAttributes[d.A] && d.Added {
			meta = append(meta, d)
		}
	}
	newSchema, err := validate.SchemaChanges(r.schema, meta)
	if err != nil {
		return err
	}
	r.newSchema = newSchema
	return nil
}

// plan compares the fold with what storage holds. Asserting a stored datom
// or retracting an absent one changes nothing and is dropped.
func (r *run) plan() error {
	r.deleted = make(map[datomKey]bool)
	seen := make(map[datomKey]bool)
	var dels, puts []causet.Datom
	del := func(e, a causet.Entid, v causet.TypedValue) {
		k := datomKey{e, a, v}
		if !r.deleted[k] {
			r.deleted[k] = true
			dels = append(dels, causet.Datom{E: e, A: a, V: v, Tx: r.txID})
		}
	}
	put := func(e, a causet.Entid, v causet.TypedValue) {
		k := datomKey{e, a, v}
		if !seen[k] {
			seen[k] = true
			puts = append(puts, causet.Datom{E: e, A: a, V: v, Tx: r.txID, Added: true})
		}
	}

	// Every value explicitly retracted per cardinality-one (e, a). The fold
	// keeps only the last one, but each stored value named by a retraction
	// must go unless the key ends asserted.
	retractions := make(map[foldKey][]causet.TypedValue)
	for _, d := range r.datoms {
		if d.Added {
			continue
		}
		if attr, _ := r.schema.Attribute(d.A); !attr.Multival {
			k := foldKey{e: d.E, a: d.A}
			retractions[k] = append(retractions[k], d.V)
		}
	}

	for _, k := range r.upsert.Keys() {
		if k.many {
			stored, err := r.store.reader.Has(r.ctx, k.e, k.a, k.v)
			if err != nil {
				return err
			}
			if _, ok := r.upsert.AssertedValue(k); ok && !stored {
				put(k.e, k.a, k.v)
			} else if _, ok := r.upsert.RetractedValue(k); ok && stored {
				del(k.e, k.a, k.v)
			}
			continue
		}

		stored, err := r.store.reader.Values(r.ctx, k.e, k.a)
		if err != nil {
			return err
		}
		has := func(v causet.TypedValue) bool {
			for _, s := range stored {
				if s == v {
					return true
				}
			}
			return false
		}
		if n, ok := r.upsert.AssertedValue(k); ok {
			for _, s := range stored {
				if s != n {
					del(k.e, k.a, s)
				}
			}
			if !has(n) {
				put(k.e, k.a, n)
			}
			continue
		}
		if _, ok := r.upsert.RetractedValue(k); ok {
			for _, v := range retractions[k] {
				if has(v) {
					del(k.e, k.a, v)
				}
			}
			continue
		}
		if alt, ok := r.upsert.AlteredValue(k); ok && alt.Old != alt.New {
			for _, v := range append([]causet.TypedValue{alt.Old, alt.New}, retractions[k]...) {
				if has(v) {
					del(k.e, k.a, v)
				}
			}
		}
	}

	r.changes = append(dels, puts...)
	return nil
}

// commit writes the planned changes, the tx metadata and the new head in
// one atomic batch, then publishes the new snapshot.
func (r *run) commit(payload edn.Array, prevHead []byte) (*TxReport, error) {
	w := storage.NewWriter(r.txID)
	for _, d := range r.changes {
		if d.Added {
			continue
		}
		w.Retract(d.E, d.A, d.V)
		if d.A == schema.DBIdent {
			w.RemoveIdent(d.V.AsKeyword(), d.E)
		}
	}
	for _, d := range r.changes {
		if !d.Added {
			continue
		}
		w.Assert(d.E, d.A, d.V)
		if d.A == schema.DBIdent {
			w.SetIdent(d.V.AsKeyword(), d.E)
		}
	}
	for _, name := range r.parts.Names() {
		if p := r.parts[name]; p != r.snap.Partitions[name] {
			w.SetPartition(name, p)
		}
	}

	hash, err := edn.PayloadHash(payload)
	if err != nil {
		return nil, fmt.Errorf("hash payload: %w", err)
	}
	w.Finish(storage.TxRecord{
		Instant:     r.instant.UnixMicro(),
		Datoms:      len(r.changes),
		PayloadHash: hash,
	}, prevHead)

	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.store.eng.AtomicWrite(r.ctx, w.Batch()); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, &ConflictError{TxID: r.txID, Err: err}
		}
		return nil, &CommitFailedError{TxID: r.txID, Err: err}
	}

	r.store.cache.Publish(&schema.Snapshot{
		Head:       r.txID,
		Partitions: r.parts,
		Schema:     r.newSchema,
	})
	return &TxReport{
		TxID:          r.txID,
		Instant:       r.instant.UTC().Truncate(time.Microsecond),
		TempIDs:       r.resolver.Mapping(),
		Datoms:        r.changes,
		SchemaChanged: r.newSchema != r.schema,
	}, nil
}
