package validate

import (
	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/schema"
)

type attrBuilder struct {
	attr     schema.Attribute
	existed  bool
	cardSet  bool
	typeSet  bool
	isSchema bool
}

// SchemaChanges applies the net changes of a transaction to schema
// attributes (:db/ident, :db/valueType, :db/cardinality and friends) to
// old, returning the schema later transactions will see. old is not
// modified. The new schema is rejected when an attribute ends up without a
// value type or cardinality, when an installed attribute's value type
// changes, when a cardinality-many attribute becomes cardinality-one, or
// when a unique or component flag does not suit the value type.
func SchemaChanges(old *schema.Schema, changes []causet.Datom) (*schema.Schema, error) {
	if len(changes) == 0 {
		return old, nil
	}
	s := old.Clone()

	for _, d := range changes {
		if d.A != schema.DBIdent {
			continue
		}
		kw := d.V.AsKeyword()
		if d.Added {
			if owner, ok := s.Entid(kw); ok && owner != d.E {
				return nil, Errorf(CodeSchemaAlteration, d.E, string(kw), "ident already names entity %d", owner)
			}
			s.SetIdent(d.E, kw)
		} else if cur, ok := s.Ident(d.E); ok && cur == kw {
			s.RemoveIdent(d.E)
		}
	}

	builders := make(map[causet.Entid]*attrBuilder)
	var order []causet.Entid
	builder := func(e causet.Entid) *attrBuilder {
		if b, ok := builders[e]; ok {
			return b
		}
		b := &attrBuilder{}
		if a, ok := old.Attribute(e); ok {
			b.attr, b.existed, b.cardSet, b.typeSet, b.isSchema = a, true, true, true, true
		}
		builders[e] = b
		order = append(order, e)
		return b
	}

	for _, d := range changes {
		if d.A == schema.DBIdent || !schema.MetaAttributes[d.A] {
			continue
		}
		b := builder(d.E)
		if d.A != schema.DBDoc {
			b.isSchema = true
		}
		if err := applyMeta(s, b, d); err != nil {
			return nil, err
		}
	}

	for _, e := range order {
		b := builders[e]
		if !b.isSchema {
			continue
		}
		name := AttrName(s, e)
		if b.existed && !b.typeSet && !b.cardSet {
			return nil, Errorf(CodeSchemaAlteration, e, name, "installed attributes cannot be removed")
		}
		if !b.typeSet {
			return nil, Errorf(CodeSchemaAlteration, e, name, "attribute is missing :db/valueType")
		}
		if !b.cardSet {
			return nil, Errorf(CodeSchemaAlteration, e, name, "attribute is missing :db/cardinality")
		}
		if _, ok := s.Ident(e); !ok {
			return nil, Errorf(CodeSchemaAlteration, e, name, "attribute has no :db/ident")
		}
		if b.existed {
			prev, _ := old.Attribute(e)
			if prev.ValueType != b.attr.ValueType {
				return nil, Errorf(CodeSchemaAlteration, e, name,
					"cannot change :db/valueType from %s to %s", prev.ValueType, b.attr.ValueType)
			}
			if prev.Multival && !b.attr.Multival {
				return nil, Errorf(CodeSchemaAlteration, e, name, "cannot change cardinality from many to one")
			}
		}
		if b.attr.IsUnique() && !b.attr.ValueType.IsScalar() {
			return nil, Errorf(CodeSchemaAlteration, e, name, "%s attributes cannot be unique", b.attr.ValueType)
		}
		if b.attr.Component && b.attr.ValueType != causet.TypeRef {
			return nil, Errorf(CodeSchemaAlteration, e, name, "only ref attributes can be components")
		}
		s.SetAttribute(e, b.attr)
	}

	for _, e := range s.Attributes() {
		if _, ok := s.Ident(e); !ok {
			return nil, Errorf(CodeSchemaAlteration, e, AttrName(s, e), "cannot retract the ident of an installed attribute")
		}
	}
	return s, nil
}

func applyMeta(s *schema.Schema, b *attrBuilder, d causet.Datom) error {
	name := AttrName(s, d.E)
	switch d.A {
	case schema.DBValueType:
		if !d.Added {
			if b.typeSet && schema.ValueTypeEntid(b.attr.ValueType) == d.V.AsRef() {
				b.typeSet = false
			}
			return nil
		}
		vt, ok := schema.ValueTypeFor(d.V.AsRef())
		if !ok {
			return Errorf(CodeSchemaAlteration, d.E, name, "%d is not a :db.type/* value", d.V.AsRef())
		}
		b.attr.ValueType, b.typeSet = vt, true
	case schema.DBCardinality:
		if !d.Added {
			if b.cardSet && cardinalityEntid(b.attr.Multival) == d.V.AsRef() {
				b.cardSet = false
			}
			return nil
		}
		switch d.V.AsRef() {
		case schema.DBCardinalityOne:
			b.attr.Multival = false
		case schema.DBCardinalityMany:
			b.attr.Multival = true
		default:
			return Errorf(CodeSchemaAlteration, d.E, name, "%d is not a :db.cardinality/* value", d.V.AsRef())
		}
		b.cardSet = true
	case schema.DBUnique:
		if !d.Added {
			if uniqueEntid(b.attr.Unique) == d.V.AsRef() {
				b.attr.Unique = schema.UniqueNone
			}
			return nil
		}
		switch d.V.AsRef() {
		case schema.DBUniqueValue:
			b.attr.Unique = schema.UniqueValue
		case schema.DBUniqueIdentity:
			b.attr.Unique = schema.UniqueIdentity
		default:
			return Errorf(CodeSchemaAlteration, d.E, name, "%d is not a :db.unique/* value", d.V.AsRef())
		}
	case schema.DBIsComponent:
		setFlag(&b.attr.Component, d)
	case schema.DBIndex:
		setFlag(&b.attr.Index, d)
	case schema.DBFulltext:
		setFlag(&b.attr.Fulltext, d)
	case schema.DBNoHistory:
		setFlag(&b.attr.NoHistory, d)
	case schema.DBDoc:
		if d.Added {
			b.attr.Doc = d.V.S
		} else if b.attr.Doc == d.V.S {
			b.attr.Doc = ""
		}
	}
	return nil
}

func setFlag(flag *bool, d causet.Datom) {
	if d.Added {
		*flag = d.V.AsBool()
	} else if *flag == d.V.AsBool() {
		*flag = false
	}
}

func cardinalityEntid(multival bool) causet.Entid {
	if multival {
		return schema.DBCardinalityMany
	}
	return schema.DBCardinalityOne
}

func uniqueEntid(u schema.Unique) causet.Entid {
	switch u {
	case schema.UniqueValue:
		return schema.DBUniqueValue
	case schema.UniqueIdentity:
		return schema.DBUniqueIdentity
	}
	return 0
}
