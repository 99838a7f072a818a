package harness

import (
	"slices"

	"github.com/roach88/causetdb/internal/edn"
)

// Row is one traced datom: op ("+" or "-"), entity, attribute, value.
// Entities and ref values are rendered as names.
type Row struct {
	Op    string
	E     string
	A     string
	Value edn.Value
}

func (r Row) edn() edn.Array {
	return edn.ArrayOf(edn.String(r.Op), edn.String(r.E), edn.String(r.A), r.Value)
}

// StepTrace is what one step did.
type StepTrace struct {
	Step string
	// Tx is the ordinal of the committed transaction, bootstrap excluded.
	Tx      int
	Error   string
	TempIDs map[string]string
	Datoms  []Row
}

func (s StepTrace) edn() edn.Object {
	obj := edn.Object{"step": edn.String(s.Step)}
	if s.Error != "" {
		obj["error"] = edn.String(s.Error)
		return obj
	}
	obj["tx"] = edn.Int(s.Tx)
	if len(s.TempIDs) > 0 {
		ids := make(edn.Object, len(s.TempIDs))
		for k, v := range s.TempIDs {
			ids[k] = edn.String(v)
		}
		obj["tempids"] = ids
	}
	rows := make(edn.Array, len(s.Datoms))
	for i, r := range s.Datoms {
		rows[i] = r.edn()
	}
	obj["datoms"] = rows
	return obj
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool

	// Steps has one entry per scenario step, in order.
	Steps []StepTrace

	// Errors lists failed expectations and assertions.
	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepTrace{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// sortRows orders rows by their canonical encoding so traces do not depend
// on entid order.
func sortRows(rows []Row) {
	slices.SortFunc(rows, func(a, b Row) int {
		return slices.Compare(edn.MustMarshalCanonical(a.edn()), edn.MustMarshalCanonical(b.edn()))
	})
}
