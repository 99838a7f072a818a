// Package validate checks resolved operations against a schema snapshot:
// attribute existence, value typing, cardinality, uniqueness and schema
// alteration rules. Every check is read-only; storage-backed checks take a
// lookup function instead of a store.
package validate

import (
	"strconv"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/schema"
)

// AttrName renders attribute a for messages: its ident, or "#<entid>".
func AttrName(s *schema.Schema, a causet.Entid) string {
	if k, ok := s.Ident(a); ok {
		return string(k)
	}
	return "#" + strconv.FormatInt(int64(a), 10)
}

// RequireAttribute resolves an attribute place to an installed attribute.
func RequireAttribute(s *schema.Schema, place causet.AttributePlace) (causet.Entid, schema.Attribute, error) {
	e, ok := s.Resolve(place.EntidOrIdent)
	if !ok {
		return 0, schema.Attribute{}, Errorf(CodeAttributeNotFound, 0, place.String(), "no such ident")
	}
	attr, ok := s.Attribute(e)
	if !ok {
		return 0, schema.Attribute{}, Errorf(CodeAttributeNotFound, 0, place.String(), "not an attribute")
	}
	return e, attr, nil
}

// CheckValueType rejects a value whose type differs from the attribute's.
func CheckValueType(s *schema.Schema, e, a causet.Entid, attr schema.Attribute, v causet.TypedValue) error {
	if v.Type != attr.ValueType {
		return Errorf(CodeValueTypeMismatch, e, AttrName(s, a),
			"expected %s value, got %s %s", attr.ValueType, v.Type, v)
	}
	return nil
}

// Datom runs the per-operation checks: the attribute exists and the value
// has its declared type.
func Datom(s *schema.Schema, d causet.Datom) error {
	attr, ok := s.Attribute(d.A)
	if !ok {
		return Errorf(CodeAttributeNotFound, d.E, AttrName(s, d.A), "not an attribute")
	}
	return CheckValueType(s, d.E, d.A, attr, d.V)
}

// Cardinality rejects a second distinct assertion of a cardinality-one
// attribute on the same entity within one transaction. pending is the value
// already asserted for (e, a) and still standing, if any.
func Cardinality(s *schema.Schema, e, a causet.Entid, attr schema.Attribute, pending causet.TypedValue, hasPending bool, v causet.TypedValue) error {
	if attr.Multival || !hasPending || pending == v {
		return nil
	}
	return Errorf(CodeCardinalityConflict, e, AttrName(s, a),
		"cardinality-one attribute asserted as both %s and %s", pending, v)
}

// OwnerFunc finds the entity currently holding value v of unique attribute
// a, after this transaction's retractions.
type OwnerFunc func(a causet.Entid, v causet.TypedValue) (causet.Entid, bool, error)

// Uniqueness checks every assertion of a unique attribute. Two entities may
// not assert the same value within the transaction, and no entity may take a
// value another entity already holds. An entity asserting a value it already
// holds is fine; that is how upserts look once resolved.
func Uniqueness(s *schema.Schema, asserted []causet.Datom, owner OwnerFunc) error {
	type av struct {
		a causet.Entid
		v causet.TypedValue
	}
	claimed := make(map[av]causet.Entid)
	for _, d := range asserted {
		attr, ok := s.Attribute(d.A)
		if !ok || !attr.IsUnique() {
			continue
		}
		k := av{d.A, d.V}
		if prev, ok := claimed[k]; ok && prev != d.E {
			return Errorf(CodeUniqueConflict, d.E, AttrName(s, d.A),
				"value %s asserted for both %d and %d", d.V, prev, d.E)
		}
		claimed[k] = d.E

		holder, found, err := owner(d.A, d.V)
		if err != nil {
			return err
		}
		if found && holder != d.E {
			return Errorf(CodeUniqueConflict, d.E, AttrName(s, d.A),
				"value %s already belongs to entity %d", d.V, holder)
		}
	}
	return nil
}
