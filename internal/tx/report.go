package tx

import (
	"time"

	"github.com/roach88/causetdb/internal/causet"
)

// TxReport describes a committed transaction.
type TxReport struct {
	TxID    causet.Entid
	Instant time.Time

	// TempIDs maps every external tempid of the payload to its entid.
	TempIDs map[string]causet.Entid

	// Datoms are the net changes written, retractions first. Assertions of
	// stored datoms and retractions of absent ones are not included.
	Datoms []causet.Datom

	// SchemaChanged is set when the transaction installed or altered
	// attributes or idents. The new schema applies from the next
	// transaction.
	SchemaChanged bool
}

// Added returns the asserted datoms of the report.
func (r *TxReport) Added() []causet.Datom {
	var out []causet.Datom
	for _, d := range r.Datoms {
		if d.Added {
			out = append(out, d)
		}
	}
	return out
}

// Retracted returns the retracted datoms of the report.
func (r *TxReport) Retracted() []causet.Datom {
	var out []causet.Datom
	for _, d := range r.Datoms {
		if !d.Added {
			out = append(out, d)
		}
	}
	return out
}
