package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/schema"
	"github.com/roach88/causetdb/internal/schemacue"
	"github.com/roach88/causetdb/internal/storage/memkv"
	"github.com/roach88/causetdb/internal/testutil"
	"github.com/roach88/causetdb/internal/tx"
)

// Harness runs one scenario against its own store.
type Harness struct {
	store  *tx.Store
	logger *slog.Logger

	// names holds the first tempid that named each entity.
	names     map[causet.Entid]string
	committed int
}

// Run executes a scenario in a fresh in-memory store.
//
// Schema and setup failures are returned as errors. Failed step
// expectations and assertions are recorded on the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	policy, err := tx.ParseLookupRefPolicy(scenario.LookupRefPolicy)
	if err != nil {
		return nil, err
	}
	clock := testutil.NewDeterministicClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := tx.Open(ctx, memkv.New(),
		tx.WithClock(clock.Now),
		tx.WithLogger(logger),
		tx.WithLookupRefPolicy(policy),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		logger: logger,
		names:  make(map[causet.Entid]string),
	}

	if err := h.installSchema(ctx, scenario.Schema); err != nil {
		return nil, fmt.Errorf("failed to install schema: %w", err)
	}
	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("failed to execute step %q: %w", step.Name, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) installSchema(ctx context.Context, paths []string) error {
	for _, path := range paths {
		defs, err := schemacue.Load(path)
		if err != nil {
			return err
		}
		report, err := h.store.Transact(ctx, defs.Transaction())
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		h.record(report)
		h.logger.Info("schema installed", "path", path, "definitions", defs.Len(), "tx", report.TxID)
	}
	return nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []any) error {
	for i, raw := range setup {
		payload, err := payloadValue(raw)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		report, err := h.store.Transact(ctx, payload)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		h.record(report)
	}
	return nil
}

// executeStep runs one step and checks its expectation. Only payload
// conversion errors are returned; transaction errors are part of the trace.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	payload, err := payloadValue(step.Transact)
	if err != nil {
		return err
	}

	expect := step.Expect
	if expect == nil {
		expect = &Expect{}
	}

	report, err := h.store.Transact(ctx, payload)
	if err != nil {
		code := tx.Code(err)
		result.Steps = append(result.Steps, StepTrace{Step: step.Name, Error: code})
		h.logger.Info("step failed", "step", i, "name", step.Name, "code", code)
		switch {
		case expect.Error == "":
			result.AddError(fmt.Sprintf("step %q: unexpected error %s: %v", step.Name, code, err))
		case expect.Error != code:
			result.AddError(fmt.Sprintf("step %q: expected error %s, got %s: %v", step.Name, expect.Error, code, err))
		}
		return nil
	}

	h.record(report)
	trace := h.trace(step.Name, report)
	result.Steps = append(result.Steps, trace)
	h.logger.Info("step committed", "step", i, "name", step.Name, "tx", report.TxID, "datoms", len(trace.Datoms))

	if expect.Error != "" {
		result.AddError(fmt.Sprintf("step %q: expected error %s, but it committed", step.Name, expect.Error))
		return nil
	}
	for _, id := range expect.TempIDs {
		if _, ok := report.TempIDs[id]; !ok {
			result.AddError(fmt.Sprintf("step %q: tempid %q was not resolved", step.Name, id))
		}
	}
	if expect.Datoms != nil && *expect.Datoms != len(trace.Datoms) {
		result.AddError(fmt.Sprintf("step %q: expected %d datoms, got %d", step.Name, *expect.Datoms, len(trace.Datoms)))
	}
	if expect.SchemaChanged != nil && *expect.SchemaChanged != report.SchemaChanged {
		result.AddError(fmt.Sprintf("step %q: expected schema_changed %t", step.Name, *expect.SchemaChanged))
	}
	return nil
}

// record counts a committed transaction and learns the names its tempids
// gave to entities. The lexically first tempid wins within a transaction.
func (h *Harness) record(report *tx.TxReport) {
	h.committed++
	ids := make([]string, 0, len(report.TempIDs))
	for id := range report.TempIDs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		e := report.TempIDs[id]
		if _, ok := h.names[e]; !ok {
			h.names[e] = id
		}
	}
}

func (h *Harness) trace(step string, report *tx.TxReport) StepTrace {
	st := StepTrace{Step: step, Tx: h.committed}
	if len(report.TempIDs) > 0 {
		st.TempIDs = make(map[string]string, len(report.TempIDs))
		for id, e := range report.TempIDs {
			st.TempIDs[id] = h.name(e, report.TxID)
		}
	}
	for _, d := range report.Datoms {
		if d.E == report.TxID && d.A == schema.DBTxInstant {
			continue
		}
		op := "+"
		if !d.Added {
			op = "-"
		}
		st.Datoms = append(st.Datoms, Row{
			Op:    op,
			E:     h.name(d.E, report.TxID),
			A:     h.name(d.A, report.TxID),
			Value: h.render(d.V, report.TxID),
		})
	}
	sortRows(st.Datoms)
	return st
}

// name renders an entity as its ident, the tempid that created it, "tx"
// for the transaction itself, or its entid.
func (h *Harness) name(e, txID causet.Entid) string {
	if k, ok := h.store.Schema().Ident(e); ok {
		return string(k)
	}
	if n, ok := h.names[e]; ok {
		return n
	}
	if e == txID {
		return "tx"
	}
	return fmt.Sprintf("#%d", e)
}

func (h *Harness) render(v causet.TypedValue, txID causet.Entid) edn.Value {
	if v.Type == causet.TypeRef {
		return edn.String(h.name(v.AsRef(), txID))
	}
	return v.EDN()
}
