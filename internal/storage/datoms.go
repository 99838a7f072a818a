package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/schema"
)

// errStop ends a scan early without reporting an error.
var errStop = errors.New("stop")

// Reader reads datoms, indexes and metadata from an engine.
type Reader struct {
	eng Engine
}

// NewReader wraps eng.
func NewReader(eng Engine) *Reader {
	return &Reader{eng: eng}
}

// Head returns the head record, or found=false for an empty engine.
func (r *Reader) Head(ctx context.Context) (head HeadRecord, raw []byte, found bool, err error) {
	raw, err = r.eng.Get(ctx, HeadKey)
	if errors.Is(err, ErrNotFound) {
		return head, nil, false, nil
	}
	if err != nil {
		return head, nil, false, fmt.Errorf("read head: %w", err)
	}
	if err := Decode(raw, &head); err != nil {
		return head, nil, false, err
	}
	return head, raw, true, nil
}

// Has reports whether the datom [e a v] is currently asserted.
func (r *Reader) Has(ctx context.Context, e, a causet.Entid, v causet.TypedValue) (bool, error) {
	_, err := r.eng.Get(ctx, EAVTKey(e, a, v))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read datom: %w", err)
	}
	return true, nil
}

// Values returns every value currently asserted for (e, a) in key order.
func (r *Reader) Values(ctx context.Context, e, a causet.Entid) ([]causet.TypedValue, error) {
	var out []causet.TypedValue
	err := ScanPrefix(ctx, r.eng, EntityAttrPrefix(e, a), func(k, _ []byte) error {
		_, _, v, err := DecodeEAVT(k)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read values of %d %d: %w", e, a, err)
	}
	return out, nil
}

// Entity returns every datom currently asserted about e.
func (r *Reader) Entity(ctx context.Context, e causet.Entid) ([]causet.Datom, error) {
	var out []causet.Datom
	err := ScanPrefix(ctx, r.eng, EntityPrefix(e), func(k, v []byte) error {
		d, err := decodeDatom(k, v)
		if err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read entity %d: %w", e, err)
	}
	return out, nil
}

func decodeDatom(k, v []byte) (causet.Datom, error) {
	e, a, val, err := DecodeEAVT(k)
	if err != nil {
		return causet.Datom{}, err
	}
	var rec DatomRecord
	if err := Decode(v, &rec); err != nil {
		return causet.Datom{}, err
	}
	return causet.Datom{E: e, A: a, V: val, Tx: rec.Tx, Added: true}, nil
}

// Owner returns the lowest entity holding v for attribute a, read from
// AVET. For unique attributes it is the only one.
func (r *Reader) Owner(ctx context.Context, a causet.Entid, v causet.TypedValue) (causet.Entid, bool, error) {
	var (
		owner causet.Entid
		found bool
	)
	err := ScanPrefix(ctx, r.eng, AVETValuePrefix(a, v), func(k, _ []byte) error {
		_, _, e, err := DecodeAVET(k)
		if err != nil {
			return err
		}
		owner, found = e, true
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return 0, false, fmt.Errorf("read AVET %d: %w", a, err)
	}
	return owner, found, nil
}

// Log returns the datoms changed by tx, in key order.
func (r *Reader) Log(ctx context.Context, tx causet.Entid) ([]causet.Datom, error) {
	var out []causet.Datom
	err := ScanPrefix(ctx, r.eng, LogPrefix(tx), func(k, v []byte) error {
		t, e, a, val, err := DecodeLog(k)
		if err != nil {
			return err
		}
		var rec LogRecord
		if err := Decode(v, &rec); err != nil {
			return err
		}
		out = append(out, causet.Datom{E: e, A: a, V: val, Tx: t, Added: rec.Added})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read log of tx %d: %w", tx, err)
	}
	return out, nil
}

// TxMeta returns the metadata record of tx.
func (r *Reader) TxMeta(ctx context.Context, tx causet.Entid) (TxRecord, bool, error) {
	var rec TxRecord
	raw, err := r.eng.Get(ctx, TxMetaKey(tx))
	if errors.Is(err, ErrNotFound) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("read tx %d: %w", tx, err)
	}
	if err := Decode(raw, &rec); err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// Transactions returns the ids of every committed transaction in order.
func (r *Reader) Transactions(ctx context.Context) ([]causet.Entid, error) {
	var out []causet.Entid
	err := ScanPrefix(ctx, r.eng, []byte{PrefixTxMeta}, func(k, _ []byte) error {
		tx, err := DecodeEntid(k[1:])
		if err != nil {
			return err
		}
		out = append(out, tx)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// Partitions reads every partition counter.
func (r *Reader) Partitions(ctx context.Context) (schema.PartitionMap, error) {
	parts := schema.PartitionMap{}
	err := ScanPrefix(ctx, r.eng, []byte{PrefixPartition}, func(k, v []byte) error {
		var p schema.Partition
		if err := Decode(v, &p); err != nil {
			return err
		}
		parts[causet.Keyword(k[1:])] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read partitions: %w", err)
	}
	return parts, nil
}

// Idents reads the ident table.
func (r *Reader) Idents(ctx context.Context) (map[causet.Keyword]causet.Entid, error) {
	idents := make(map[causet.Keyword]causet.Entid)
	err := ScanPrefix(ctx, r.eng, []byte{PrefixIdent}, func(k, v []byte) error {
		e, err := DecodeEntid(v)
		if err != nil {
			return err
		}
		idents[causet.Keyword(k[1:])] = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read idents: %w", err)
	}
	return idents, nil
}

// SchemaDatoms returns every schema metadata datom of every entity with an
// ident, the input for rebuilding the schema at open.
func (r *Reader) SchemaDatoms(ctx context.Context) ([]causet.Datom, error) {
	idents, err := r.Idents(ctx)
	if err != nil {
		return nil, err
	}
	entids := slices.Sorted(maps.Values(idents))
	entids = slices.Compact(entids)
	var out []causet.Datom
	for _, e := range entids {
		datoms, err := r.Entity(ctx, e)
		if err != nil {
			return nil, err
		}
		for _, d := range datoms {
			if schema.MetaAttributes[d.A] {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

// avetMarker is the value of every AVET entry. Some engines cannot tell an
// empty value from an absent one.
var avetMarker = []byte{1}

// Writer accumulates the writes of one commit into a batch.
type Writer struct {
	batch *Batch
	tx    causet.Entid
}

// NewWriter starts a batch for tx.
func NewWriter(tx causet.Entid) *Writer {
	return &Writer{batch: NewBatch(), tx: tx}
}

// Batch returns the accumulated batch.
func (w *Writer) Batch() *Batch { return w.batch }

// Assert stores [e a v] in EAVT and AVET and logs it. Every attribute is in
// AVET, so turning on :db/unique or :db/index needs no backfill.
func (w *Writer) Assert(e, a causet.Entid, v causet.TypedValue) {
	w.batch.Put(EAVTKey(e, a, v), MustEncode(DatomRecord{Tx: w.tx}))
	w.batch.Put(AVETKey(a, v, e), avetMarker)
	w.batch.Put(LogKey(w.tx, e, a, v), MustEncode(LogRecord{Added: true}))
}

// Retract removes [e a v] and logs the retraction.
func (w *Writer) Retract(e, a causet.Entid, v causet.TypedValue) {
	w.batch.Delete(EAVTKey(e, a, v))
	w.batch.Delete(AVETKey(a, v, e))
	w.batch.Put(LogKey(w.tx, e, a, v), MustEncode(LogRecord{Added: false}))
}

// SetIdent maps k to e in both directions.
func (w *Writer) SetIdent(k causet.Keyword, e causet.Entid) {
	w.batch.Put(IdentKey(k), EncodeEntid(e))
	w.batch.Put(EntidNameKey(e), []byte(k))
}

// RemoveIdent drops the mapping of k to e.
func (w *Writer) RemoveIdent(k causet.Keyword, e causet.Entid) {
	w.batch.Delete(IdentKey(k))
	w.batch.Delete(EntidNameKey(e))
}

// SetPartition stores a partition counter.
func (w *Writer) SetPartition(name causet.Keyword, p schema.Partition) {
	w.batch.Put(PartitionKey(name), EncodePartition(p))
}

// Finish records the tx metadata and moves the head, guarded on the head
// still holding prevHead (nil for an empty engine).
func (w *Writer) Finish(meta TxRecord, prevHead []byte) {
	w.batch.Put(TxMetaKey(w.tx), MustEncode(meta))
	w.batch.Put(HeadKey, MustEncode(HeadRecord{Tx: w.tx, Version: FormatVersion}))
	w.batch.ExpectValue(HeadKey, prevHead)
}
