package storage

import (
	"context"
	"fmt"

	"github.com/roach88/causetdb/internal/schema"
)

// WriteBootstrap writes the bootstrap transaction into an empty engine: the
// core idents, the core attribute metadata, the partition counters and the
// head. It fails with ErrConflict if the engine already has a head.
func WriteBootstrap(ctx context.Context, eng Engine) error {
	s, parts := schema.Bootstrap()
	w := NewWriter(schema.TxPartitionStart)
	datoms := schema.BootstrapDatoms()
	for _, d := range datoms {
		w.Assert(d.E, d.A, d.V)
	}
	for _, k := range s.Idents() {
		e, _ := s.Entid(k)
		w.SetIdent(k, e)
	}
	for _, name := range parts.Names() {
		w.SetPartition(name, parts[name])
	}
	w.Finish(TxRecord{Instant: 0, Datoms: len(datoms)}, nil)
	if err := eng.AtomicWrite(ctx, w.Batch()); err != nil {
		return fmt.Errorf("write bootstrap: %w", err)
	}
	return nil
}
