package tx

import (
	"context"
	"time"

	"github.com/roach88/causetdb/internal/classify"
	"github.com/roach88/causetdb/internal/edn"
)

// State is the lifecycle stage of an InProgress transaction.
type State int

const (
	StateCollecting State = iota
	StateResolving
	StateFolding
	StateValidating
	StateCommitting
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateResolving:
		return "resolving"
	case StateFolding:
		return "folding"
	case StateValidating:
		return "validating"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// InProgress collects terms until Commit or Abort. It is not safe for
// concurrent use.
type InProgress struct {
	store   *Store
	state   State
	terms   []classify.Term
	payload edn.Array
}

// Begin starts a transaction against s.
func (s *Store) Begin() *InProgress {
	return &InProgress{store: s}
}

// State returns the current lifecycle stage.
func (in *InProgress) State() State {
	return in.state
}

// Add classifies raw, an array of terms, and queues them. A shape error
// rejects raw alone; terms queued earlier stay queued.
func (in *InProgress) Add(raw edn.Value) error {
	if in.state != StateCollecting {
		return ErrFinished
	}
	terms, err := classify.Classify(raw)
	if err != nil {
		return err
	}
	in.terms = append(in.terms, terms...)
	in.payload = append(in.payload, raw.(edn.Array)...)
	return nil
}

// Len returns the number of queued terms.
func (in *InProgress) Len() int {
	return len(in.terms)
}

// Abort discards the transaction. Nothing reaches storage.
func (in *InProgress) Abort() {
	if in.state == StateCollecting {
		in.state = StateAborted
		in.store.metrics.transactions.WithLabelValues(OutcomeAborted).Inc()
	}
}

// Commit resolves, folds, validates and writes the queued terms. On any
// error the transaction ends Aborted; only a CommitFailedError leaves the
// stored outcome unknown.
func (in *InProgress) Commit(ctx context.Context) (*TxReport, error) {
	if in.state != StateCollecting {
		return nil, ErrFinished
	}
	s := in.store
	start := time.Now()

	report, err := in.commit(ctx)
	if err != nil {
		in.state = StateAborted
		outcome := OutcomeAborted
		switch {
		case IsConflict(err):
			outcome = OutcomeConflict
		case IsOutcomeUnknown(err):
			outcome = OutcomeCommitFailed
		}
		s.metrics.transactions.WithLabelValues(outcome).Inc()
		s.logger.Warn("transaction aborted",
			"code", Code(err),
			"terms", len(in.terms),
			"error", err,
		)
		return nil, err
	}

	in.state = StateCommitted
	s.metrics.transactions.WithLabelValues(OutcomeCommitted).Inc()
	s.metrics.datomsWritten.Add(float64(len(report.Datoms)))
	s.metrics.commitDuration.Observe(time.Since(start).Seconds())
	if report.SchemaChanged {
		s.metrics.schemaChanges.Inc()
	}
	s.logger.Info("transaction committed",
		"tx", report.TxID,
		"datoms", len(report.Datoms),
		"tempids", len(report.TempIDs),
		"schema_changed", report.SchemaChanged,
		"duration", time.Since(start),
	)
	return report, nil
}

func (in *InProgress) commit(ctx context.Context) (*TxReport, error) {
	in.state = StateResolving
	snap, prevHead, err := in.store.current(ctx)
	if err != nil {
		return nil, err
	}
	r, err := newRun(ctx, in.store, snap)
	if err != nil {
		return nil, err
	}
	if err := r.resolve(in.terms); err != nil {
		return nil, err
	}

	in.state = StateFolding
	if err := r.fold(); err != nil {
		return nil, err
	}

	in.state = StateValidating
	if err := r.validate(); err != nil {
		return nil, err
	}

	in.state = StateCommitting
	return r.commit(in.payload, prevHead)
}
