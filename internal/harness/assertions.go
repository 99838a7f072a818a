package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/tx"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

var attributeFields = map[string]bool{
	"type":        true,
	"cardinality": true,
	"unique":      true,
	"index":       true,
	"component":   true,
	"fulltext":    true,
	"no_history":  true,
	"doc":         true,
}

// EvaluateAssertions checks every assertion against the harness store and
// returns one message per failure.
func EvaluateAssertions(ctx context.Context, h *Harness, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEntity:
			err = h.assertEntity(ctx, a)
		case AssertAbsent:
			err = h.assertAbsent(ctx, a)
		case AssertTxCount:
			err = h.assertTxCount(ctx, a)
		case AssertAttribute:
			err = h.assertAttribute(a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func (h *Harness) assertEntity(ctx context.Context, a Assertion) error {
	ref, err := edn.FromGo(a.Entity)
	if err != nil {
		return fmt.Errorf("entity: %w", err)
	}
	e, err := h.store.Resolve(ctx, ref)
	if err != nil {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("entity %s", canonical(ref)),
			Actual:   fmt.Sprintf("%s: %v", tx.Code(err), err),
		}
	}
	datoms, err := h.store.Entity(ctx, e)
	if err != nil {
		return fmt.Errorf("read entity %d: %w", e, err)
	}

	sch := h.store.Schema()
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		ae, attr, ok := sch.AttributeFor(causet.Keyword(k))
		if !ok {
			return fmt.Errorf("entity: unknown attribute %s", k)
		}
		var got []string
		for _, d := range datoms {
			if d.A == ae {
				got = append(got, canonical(h.render(d.V, 0)))
			}
		}
		want, err := expectedValues(a.Expect[k], attr.Multival)
		if err != nil {
			return fmt.Errorf("entity: %s: %w", k, err)
		}
		slices.Sort(got)
		slices.Sort(want)
		if !slices.Equal(got, want) {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("%s %s = %v", canonical(ref), k, want),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	}
	return nil
}

// expectedValues turns a YAML expectation into canonical value strings.
// null means no value; lists are only accepted for cardinality many.
func expectedValues(raw any, many bool) ([]string, error) {
	if raw == nil {
		return []string{}, nil
	}
	list, isList := raw.([]any)
	if isList && !many {
		return nil, fmt.Errorf("cardinality-one attribute cannot expect a list")
	}
	if !isList {
		list = []any{raw}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		v, err := edn.FromGo(item)
		if err != nil {
			return nil, err
		}
		out = append(out, canonical(v))
	}
	return out, nil
}

func (h *Harness) assertAbsent(ctx context.Context, a Assertion) error {
	ref, err := edn.FromGo(a.Entity)
	if err != nil {
		return fmt.Errorf("absent: %w", err)
	}
	e, err := h.store.Resolve(ctx, ref)
	if err == nil {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("no entity for %s", canonical(ref)),
			Actual:   fmt.Sprintf("entity %s", h.name(e, 0)),
		}
	}
	if !tx.IsResolutionError(err) {
		return fmt.Errorf("absent: %w", err)
	}
	return nil
}

func (h *Harness) assertTxCount(ctx context.Context, a Assertion) error {
	txs, err := h.store.Transactions(ctx)
	if err != nil {
		return fmt.Errorf("tx_count: %w", err)
	}
	if got := len(txs) - 1; got != a.Count {
		return &AssertionError{
			Type:     AssertTxCount,
			Expected: fmt.Sprintf("%d transactions", a.Count),
			Actual:   fmt.Sprintf("%d transactions", got),
		}
	}
	return nil
}

func (h *Harness) assertAttribute(a Assertion) error {
	_, attr, ok := h.store.Schema().AttributeFor(causet.Keyword(a.Ident))
	if !ok {
		return &AssertionError{
			Type:     AssertAttribute,
			Expected: fmt.Sprintf("attribute %s", a.Ident),
			Actual:   "not installed",
		}
	}
	card := "one"
	if attr.Multival {
		card = "many"
	}
	actual := map[string]any{
		"type":        attr.ValueType.String(),
		"cardinality": card,
		"unique":      attr.Unique.String(),
		"index":       attr.Index,
		"component":   attr.Component,
		"fulltext":    attr.Fulltext,
		"no_history":  attr.NoHistory,
		"doc":         attr.Doc,
	}
	for k, want := range a.Expect {
		w, err := edn.FromGo(want)
		if err != nil {
			return fmt.Errorf("attribute: %s: %w", k, err)
		}
		g, _ := edn.FromGo(actual[k])
		if canonical(w) != canonical(g) {
			return &AssertionError{
				Type:     AssertAttribute,
				Expected: fmt.Sprintf("%s %s = %s", a.Ident, k, canonical(w)),
				Actual:   canonical(g),
			}
		}
	}
	return nil
}

func canonical(v edn.Value) string {
	b, err := edn.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}
