package causet

import (
	"fmt"
	"strings"
)

// Entid is a stable numeric entity identifier.
type Entid int64

// Keyword is a namespaced symbolic name such as ":person/name".
type Keyword string

// ParseKeyword validates the ":ns/name" or ":name" form.
func ParseKeyword(s string) (Keyword, error) {
	if len(s) < 2 || s[0] != ':' {
		return "", fmt.Errorf("keyword %q must start with ':'", s)
	}
	body := s[1:]
	if strings.ContainsAny(body, " \t\n\"") {
		return "", fmt.Errorf("keyword %q contains whitespace or quotes", s)
	}
	if i := strings.IndexByte(body, '/'); i == 0 || i == len(body)-1 {
		return "", fmt.Errorf("keyword %q has an empty namespace or name", s)
	}
	return Keyword(s), nil
}

// Namespace returns the part between ':' and '/', or "" for a bare keyword.
func (k Keyword) Namespace() string {
	body := string(k)[1:]
	if i := strings.IndexByte(body, '/'); i >= 0 {
		return body[:i]
	}
	return ""
}

// Name returns the part after '/'.
func (k Keyword) Name() string {
	body := string(k)[1:]
	if i := strings.IndexByte(body, '/'); i >= 0 {
		return body[i+1:]
	}
	return body
}

// IsReversed reports whether k names an attribute in reverse, ":ns/_name".
func (k Keyword) IsReversed() bool {
	return k.Namespace() != "" && strings.HasPrefix(k.Name(), "_")
}

// Unreversed turns ":ns/_name" into ":ns/name".
func (k Keyword) Unreversed() Keyword {
	if !k.IsReversed() {
		return k
	}
	return Keyword(":" + k.Namespace() + "/" + k.Name()[1:])
}

func (k Keyword) String() string { return string(k) }

// TempID is a transaction-scoped placeholder. Exactly one of the two
// forms is meaningful: External names come from the caller, Internal ids are
// minted while expanding map notation.
type TempID struct {
	external string
	internal int64
	isIntern bool
}

// External returns a caller-named tempid.
func External(name string) TempID {
	return TempID{external: name}
}

// Internal returns a system-allocated tempid.
func Internal(n int64) TempID {
	return TempID{internal: n, isIntern: true}
}

// IsInternal reports whether t was minted by the system.
func (t TempID) IsInternal() bool { return t.isIntern }

// Name returns the external name, or "" for internal tempids.
func (t TempID) Name() string { return t.external }

// Index returns the internal index, or 0 for external tempids.
func (t TempID) Index() int64 { return t.internal }

func (t TempID) String() string {
	if t.isIntern {
		return fmt.Sprintf("#tmp%d", t.internal)
	}
	return fmt.Sprintf("%q", t.external)
}

// EntidOrIdent is either a resolved entid or an ident that still needs the
// schema to resolve.
type EntidOrIdent struct {
	Entid Entid
	Ident Keyword
}

// ID wraps a resolved entid.
func ID(e Entid) EntidOrIdent { return EntidOrIdent{Entid: e} }

// Ident wraps a keyword.
func Ident(k Keyword) EntidOrIdent { return EntidOrIdent{Ident: k} }

// IsIdent reports whether the ident form is active.
func (x EntidOrIdent) IsIdent() bool { return x.Ident != "" }

func (x EntidOrIdent) String() string {
	if x.IsIdent() {
		return string(x.Ident)
	}
	return fmt.Sprintf("%d", x.Entid)
}

// AttributePlace is the attribute position of a fact.
type AttributePlace struct {
	EntidOrIdent
}

// Attr builds an attribute place from an ident.
func Attr(k Keyword) AttributePlace { return AttributePlace{Ident(k)} }

// AttrID builds an attribute place from an entid.
func AttrID(e Entid) AttributePlace { return AttributePlace{ID(e)} }

// LookupRef names an existing entity by a unique attribute/value pair.
type LookupRef[V Transactable] struct {
	Attr  AttributePlace
	Value V
}

// TxFunction is a function evaluated at transaction time. Only
// "transaction-tx", the id of the current transaction, is defined.
type TxFunction struct {
	Op string
	// Source is the "(op)" string the function was written as, empty for
	// the object form. A non-ref attribute stores it as a plain string.
	Source string
}

// TransactionTx is the op name of the current-transaction function.
const TransactionTx = "transaction-tx"

// OpType is Add or Retract.
type OpType int

const (
	OpAdd OpType = iota
	OpRetract
)

func (o OpType) String() string {
	if o == OpRetract {
		return ":db/retract"
	}
	return ":db/add"
}
