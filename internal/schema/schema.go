package schema

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/causetdb/internal/causet"
)

// Unique is the uniqueness constraint of an attribute.
type Unique uint8

const (
	UniqueNone Unique = iota
	UniqueValue
	UniqueIdentity
)

func (u Unique) String() string {
	switch u {
	case UniqueValue:
		return "value"
	case UniqueIdentity:
		return "identity"
	default:
		return "none"
	}
}

// Attribute is the metadata the transactor enforces for one attribute.
type Attribute struct {
	ValueType causet.ValueType
	Multival  bool
	Unique    Unique
	Index     bool
	Component bool
	Fulltext  bool
	NoHistory bool
	Doc       string
}

// IsUnique reports whether any uniqueness constraint applies.
func (a Attribute) IsUnique() bool { return a.Unique != UniqueNone }

// Indexed reports whether values get an AVET entry. Unique and ref
// attributes are always indexed.
func (a Attribute) Indexed() bool {
	return a.Index || a.IsUnique() || a.ValueType == causet.TypeRef
}

// Schema maps idents to entids and back, and holds attribute metadata keyed
// by entid. A Schema is immutable once published; use Clone and the
// mutators to derive a new one.
type Schema struct {
	idents map[causet.Keyword]causet.Entid
	entids map[causet.Entid]causet.Keyword
	attrs  map[causet.Entid]Attribute
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{
		idents: make(map[causet.Keyword]causet.Entid),
		entids: make(map[causet.Entid]causet.Keyword),
		attrs:  make(map[causet.Entid]Attribute),
	}
}

// Clone returns a deep copy safe to mutate.
func (s *Schema) Clone() *Schema {
	return &Schema{
		idents: maps.Clone(s.idents),
		entids: maps.Clone(s.entids),
		attrs:  maps.Clone(s.attrs),
	}
}

// Entid resolves an ident.
func (s *Schema) Entid(k causet.Keyword) (causet.Entid, bool) {
	e, ok := s.idents[k]
	return e, ok
}

// Ident returns the ident naming e.
func (s *Schema) Ident(e causet.Entid) (causet.Keyword, bool) {
	k, ok := s.entids[e]
	return k, ok
}

// Resolve turns an entid-or-ident into an entid.
func (s *Schema) Resolve(x causet.EntidOrIdent) (causet.Entid, bool) {
	if x.IsIdent() {
		return s.Entid(x.Ident)
	}
	return x.Entid, true
}

// Attribute returns the metadata of attribute e.
func (s *Schema) Attribute(e causet.Entid) (Attribute, bool) {
	a, ok := s.attrs[e]
	return a, ok
}

// AttributeFor resolves an ident and returns its attribute metadata.
func (s *Schema) AttributeFor(k causet.Keyword) (causet.Entid, Attribute, bool) {
	e, ok := s.idents[k]
	if !ok {
		return 0, Attribute{}, false
	}
	a, ok := s.attrs[e]
	return e, a, ok
}

// Idents returns every ident in keyword order.
func (s *Schema) Idents() []causet.Keyword {
	keys := slices.Collect(maps.Keys(s.idents))
	slices.Sort(keys)
	return keys
}

// Attributes returns every attribute entid in ascending order.
func (s *Schema) Attributes() []causet.Entid {
	ids := slices.Collect(maps.Keys(s.attrs))
	slices.Sort(ids)
	return ids
}

// Len returns the number of idents.
func (s *Schema) Len() int { return len(s.idents) }

// SetIdent names e. Any previous name of e, and any previous owner of k,
// loses its mapping so the two tables stay inverse.
func (s *Schema) SetIdent(e causet.Entid, k causet.Keyword) {
	if old, ok := s.entids[e]; ok {
		delete(s.idents, old)
	}
	if prev, ok := s.idents[k]; ok {
		delete(s.entids, prev)
	}
	s.idents[k] = e
	s.entids[e] = k
}

// RemoveIdent drops the name of e.
func (s *Schema) RemoveIdent(e causet.Entid) {
	if k, ok := s.entids[e]; ok {
		delete(s.idents, k)
		delete(s.entids, e)
	}
}

// SetAttribute installs or replaces attribute metadata.
func (s *Schema) SetAttribute(e causet.Entid, a Attribute) {
	s.attrs[e] = a
}

// RemoveAttribute drops attribute metadata.
func (s *Schema) RemoveAttribute(e causet.Entid) {
	delete(s.attrs, e)
}

// Verify checks that the ident tables are mutual inverses and that every
// attribute has a name.
func (s *Schema) Verify() error {
	if len(s.idents) != len(s.entids) {
		return fmt.Errorf("ident tables differ in size: %d idents, %d entids", len(s.idents), len(s.entids))
	}
	for k, e := range s.idents {
		if back, ok := s.entids[e]; !ok || back != k {
			return fmt.Errorf("ident %s -> %d does not map back", k, e)
		}
	}
	for e := range s.attrs {
		if _, ok := s.entids[e]; !ok {
			return fmt.Errorf("attribute %d has no ident", e)
		}
	}
	return nil
}
