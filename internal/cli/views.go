package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/schema"
	"github.com/roach88/causetdb/internal/tx"
)

// DatomView is a datom with its attribute named.
type DatomView struct {
	E     causet.Entid    `json:"e"`
	A     string          `json:"a"`
	V     json.RawMessage `json:"v"`
	Tx    causet.Entid    `json:"tx"`
	Added bool            `json:"added"`
}

func (d DatomView) String() string {
	op := "+"
	if !d.Added {
		op = "-"
	}
	return fmt.Sprintf("%s [%d %s %s %d]", op, d.E, d.A, d.V, d.Tx)
}

func datomViews(sch *schema.Schema, datoms []causet.Datom) []DatomView {
	out := make([]DatomView, len(datoms))
	for i, d := range datoms {
		a := fmt.Sprintf("%d", d.A)
		if k, ok := sch.Ident(d.A); ok {
			a = string(k)
		}
		out[i] = DatomView{
			E:     d.E,
			A:     a,
			V:     edn.MustMarshalCanonical(d.V.EDN()),
			Tx:    d.Tx,
			Added: d.Added,
		}
	}
	return out
}

func writeDatoms(b *strings.Builder, datoms []DatomView) {
	for _, d := range datoms {
		fmt.Fprintf(b, "  %s\n", d)
	}
}

// ReportView is a committed transaction.
type ReportView struct {
	TxID          causet.Entid            `json:"tx"`
	Instant       time.Time               `json:"instant"`
	TempIDs       map[string]causet.Entid `json:"tempids,omitempty"`
	Datoms        []DatomView             `json:"datoms"`
	SchemaChanged bool                    `json:"schema_changed"`
}

func newReportView(sch *schema.Schema, r *tx.TxReport) ReportView {
	return ReportView{
		TxID:          r.TxID,
		Instant:       r.Instant,
		TempIDs:       r.TempIDs,
		Datoms:        datomViews(sch, r.Datoms),
		SchemaChanged: r.SchemaChanged,
	}
}

func (r ReportView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Committed tx %d at %s (%d datoms)\n", r.TxID, r.Instant.Format(time.RFC3339Nano), len(r.Datoms))
	if r.SchemaChanged {
		b.WriteString("  schema changed\n")
	}
	for _, k := range sortedKeys(r.TempIDs) {
		fmt.Fprintf(&b, "  %s -> %d\n", k, r.TempIDs[k])
	}
	writeDatoms(&b, r.Datoms)
	return strings.TrimSuffix(b.String(), "\n")
}

// EntityView is every current datom of one entity.
type EntityView struct {
	Entid  causet.Entid `json:"entid"`
	Datoms []DatomView  `json:"datoms"`
}

func (e EntityView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entity %d (%d datoms)\n", e.Entid, len(e.Datoms))
	for _, d := range e.Datoms {
		fmt.Fprintf(&b, "  %s %s\n", d.A, d.V)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// TxView is one logged transaction.
type TxView struct {
	TxID        causet.Entid `json:"tx"`
	Instant     time.Time    `json:"instant"`
	PayloadHash string       `json:"payload_hash,omitempty"`
	Datoms      []DatomView  `json:"datoms,omitempty"`
	Count       int          `json:"count"`
}

func newTxView(m tx.TxMeta) TxView {
	return TxView{TxID: m.TxID, Instant: m.Instant, PayloadHash: m.PayloadHash, Count: m.Datoms}
}

func (t TxView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tx %d  %s  %d datoms", t.TxID, t.Instant.Format(time.RFC3339Nano), t.Count)
	if t.PayloadHash != "" {
		fmt.Fprintf(&b, "  %s", t.PayloadHash)
	}
	b.WriteString("\n")
	writeDatoms(&b, t.Datoms)
	return strings.TrimSuffix(b.String(), "\n")
}

// TxListView lists transactions.
type TxListView struct {
	Transactions []TxView `json:"transactions"`
}

func (l TxListView) String() string {
	lines := make([]string, len(l.Transactions))
	for i, t := range l.Transactions {
		lines[i] = t.String()
	}
	return strings.Join(lines, "\n")
}

// IdentView is one ident and, for attributes, its schema.
type IdentView struct {
	Ident       causet.Keyword `json:"ident"`
	Entid       causet.Entid   `json:"entid"`
	ValueType   string         `json:"value_type,omitempty"`
	Cardinality string         `json:"cardinality,omitempty"`
	Unique      string         `json:"unique,omitempty"`
}

// IdentsView lists idents in keyword order.
type IdentsView struct {
	Idents []IdentView `json:"idents"`
}

func newIdentsView(sch *schema.Schema) IdentsView {
	var out IdentsView
	for _, k := range sch.Idents() {
		e, _ := sch.Entid(k)
		v := IdentView{Ident: k, Entid: e}
		if attr, ok := sch.Attribute(e); ok {
			v.ValueType = attr.ValueType.String()
			v.Cardinality = "one"
			if attr.Multival {
				v.Cardinality = "many"
			}
			if attr.IsUnique() {
				v.Unique = attr.Unique.String()
			}
		}
		out.Idents = append(out.Idents, v)
	}
	return out
}

func (v IdentsView) String() string {
	var b strings.Builder
	for _, id := range v.Idents {
		fmt.Fprintf(&b, "%-32s %d", id.Ident, id.Entid)
		if id.ValueType != "" {
			fmt.Fprintf(&b, "  %s/%s", id.ValueType, id.Cardinality)
		}
		if id.Unique != "" {
			fmt.Fprintf(&b, "  unique:%s", id.Unique)
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
