// Package tx is the transactor. It turns raw transaction payloads into
// committed datoms: classify, resolve tempids and upserts, fold, validate,
// then write the net effect to storage in one atomic batch.
//
// A Store is safe for concurrent use. Each InProgress belongs to one
// goroutine. Concurrent commits race on the storage head; the loser gets a
// ConflictError and nothing is written.
package tx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/resolve"
	"github.com/roach88/causetdb/internal/schema"
	"github.com/roach88/causetdb/internal/storage"
	"github.com/roach88/causetdb/internal/validate"
)

// Store is a datastore over one storage engine.
type Store struct {
	eng     storage.Engine
	reader  *storage.Reader
	cache   *schema.Cache
	opts    options
	logger  *slog.Logger
	metrics *metrics
}

// Open bootstraps eng if it is empty and loads its schema. The engine stays
// owned by the caller; Close does not close it.
func Open(ctx context.Context, eng storage.Engine, opts ...Option) (*Store, error) {
	o := buildOptions(opts)
	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	s := &Store{
		eng:     eng,
		reader:  storage.NewReader(eng),
		opts:    o,
		logger:  o.logger,
		metrics: m,
	}

	_, _, found, err := s.reader.Head(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := storage.WriteBootstrap(ctx, eng); err != nil {
			return nil, err
		}
		s.logger.Info("store bootstrapped", "tx", schema.TxPartitionStart)
	}

	snap, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.cache = schema.NewCache(snap)
	s.logger.Debug("store opened",
		"head", snap.Head,
		"idents", snap.Schema.Len(),
	)
	return s, nil
}

// load reads the head, partitions and schema from storage.
func (s *Store) load(ctx context.Context) (*schema.Snapshot, []byte, error) {
	head, raw, found, err := s.reader.Head(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("store has no head")
	}
	if head.Version != storage.FormatVersion {
		return nil, nil, fmt.Errorf("store format version %d, want %d", head.Version, storage.FormatVersion)
	}
	parts, err := s.reader.Partitions(ctx)
	if err != nil {
		return nil, nil, err
	}
	datoms, err := s.reader.SchemaDatoms(ctx)
	if err != nil {
		return nil, nil, err
	}
	sch, err := validate.SchemaChanges(schema.New(), datoms)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild schema: %w", err)
	}
	return &schema.Snapshot{Head: head.Tx, Partitions: parts, Schema: sch}, raw, nil
}

// current returns a snapshot matching the stored head, plus the raw head
// record a commit must expect. Another process or store sharing the engine
// may have moved the head; then the snapshot is reloaded.
func (s *Store) current(ctx context.Context) (*schema.Snapshot, []byte, error) {
	head, raw, found, err := s.reader.Head(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("store has no head")
	}
	if snap := s.cache.Load(); snap.Head == head.Tx {
		return snap, raw, nil
	}
	snap, raw, err := s.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	s.cache.Publish(snap)
	return snap, raw, nil
}

// Close releases nothing today; the engine belongs to the caller.
func (s *Store) Close() error {
	return nil
}

// Schema returns the schema of the latest commit this store has seen.
func (s *Store) Schema() *schema.Schema {
	return s.cache.Load().Schema
}

// Head returns the id of the latest committed transaction this store has
// seen.
func (s *Store) Head() causet.Entid {
	return s.cache.Load().Head
}

// Partitions returns the partition counters as of Head.
func (s *Store) Partitions() schema.PartitionMap {
	return s.cache.Load().Partitions.Clone()
}

// Transact runs raw as one transaction: Begin, Add, Commit.
func (s *Store) Transact(ctx context.Context, raw edn.Value) (*TxReport, error) {
	in := s.Begin()
	if err := in.Add(raw); err != nil {
		in.Abort()
		return nil, err
	}
	return in.Commit(ctx)
}

// Entity returns the datoms currently asserted about e.
func (s *Store) Entity(ctx context.Context, e causet.Entid) ([]causet.Datom, error) {
	return s.reader.Entity(ctx, e)
}

// EntityByIdent resolves k and returns its datoms.
func (s *Store) EntityByIdent(ctx context.Context, k causet.Keyword) (causet.Entid, []causet.Datom, error) {
	e, ok := s.Schema().Entid(k)
	if !ok {
		return 0, nil, resolve.Errorf(resolve.CodeUnknownIdent, "no entity has ident %s", k)
	}
	datoms, err := s.reader.Entity(ctx, e)
	return e, datoms, err
}

// Lookup finds the entity holding v for the unique attribute a.
func (s *Store) Lookup(ctx context.Context, a causet.Keyword, v causet.TypedValue) (causet.Entid, bool, error) {
	sch := s.Schema()
	ae, attr, err := validate.RequireAttribute(sch, causet.Attr(a))
	if err != nil {
		return 0, false, err
	}
	if !attr.IsUnique() {
		return 0, false, resolve.Errorf(resolve.CodeInvalidLookupRef, "attribute %s is not unique", a)
	}
	return s.reader.Owner(ctx, ae, v)
}

// Resolve names an existing entity the way an entity position does: an
// entid, an ident keyword or an [attribute value] lookup ref. Tempids do
// not resolve outside a transaction.
func (s *Store) Resolve(ctx context.Context, ref edn.Value) (causet.Entid, error) {
	r := &run{ctx: ctx, store: s, schema: s.Schema()}
	switch x := ref.(type) {
	case edn.Int:
		return causet.Entid(x), nil
	case edn.String:
		if !x.IsKeyword() {
			return 0, resolve.Errorf(resolve.CodeUnknownIdent, "%q is a tempid, not an entity reference", string(x))
		}
		return r.entid(causet.Ident(causet.Keyword(x)))
	case edn.Array:
		if len(x) != 2 {
			return 0, resolve.Errorf(resolve.CodeInvalidLookupRef, "lookup ref needs [attribute value], got %d elements", len(x))
		}
		a, ok := x[0].(edn.String)
		if !ok || !a.IsKeyword() {
			return 0, resolve.Errorf(resolve.CodeInvalidLookupRef, "lookup ref attribute must be a keyword")
		}
		ae, attr, err := validate.RequireAttribute(r.schema, causet.Attr(causet.Keyword(a)))
		if err != nil {
			return 0, err
		}
		if !attr.IsUnique() {
			return 0, resolve.Errorf(resolve.CodeInvalidLookupRef, "attribute %s is not unique", a)
		}
		v, err := r.coerce(0, ae, attr, x[1])
		if err != nil {
			return 0, err
		}
		if v.temp {
			return 0, resolve.Errorf(resolve.CodeInvalidLookupRef, "lookup ref value cannot be a tempid")
		}
		e, found, err := s.reader.Owner(ctx, ae, v.v)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, resolve.Errorf(resolve.CodeLookupRefNotFound, "no entity has %s %s", a, v.v)
		}
		return e, nil
	}
	return 0, resolve.Errorf(resolve.CodeInvalidLookupRef, "cannot resolve a %s as an entity", edn.TypeName(ref))
}

// Log returns the datoms tx changed, retractions with Added false.
func (s *Store) Log(ctx context.Context, tx causet.Entid) ([]causet.Datom, error) {
	return s.reader.Log(ctx, tx)
}

// TxMeta describes one committed transaction.
type TxMeta struct {
	TxID        causet.Entid
	Instant     time.Time
	Datoms      int
	PayloadHash string
}

// TxMeta returns the metadata of tx.
func (s *Store) TxMeta(ctx context.Context, tx causet.Entid) (TxMeta, bool, error) {
	rec, ok, err := s.reader.TxMeta(ctx, tx)
	if err != nil || !ok {
		return TxMeta{}, ok, err
	}
	return TxMeta{
		TxID:        tx,
		Instant:     time.UnixMicro(rec.Instant).UTC(),
		Datoms:      rec.Datoms,
		PayloadHash: rec.PayloadHash,
	}, true, nil
}

// Transactions lists every committed transaction id in order.
func (s *Store) Transactions(ctx context.Context) ([]causet.Entid, error) {
	return s.reader.Transactions(ctx)
}
