package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/schema"
)

const (
	personName  causet.Entid = 100
	personEmail causet.Entid = 101
	personTags  causet.Entid = 102
	personBlob  causet.Entid = 103
)

func testSchema() *schema.Schema {
	s, _ := schema.Bootstrap()
	s.SetIdent(personName, ":person/name")
	s.SetAttribute(personName, schema.Attribute{ValueType: causet.TypeString})
	s.SetIdent(personEmail, ":person/email")
	s.SetAttribute(personEmail, schema.Attribute{ValueType: causet.TypeString, Unique: schema.UniqueIdentity})
	s.SetIdent(personTags, ":person/tags")
	s.SetAttribute(personTags, schema.Attribute{ValueType: causet.TypeKeyword, Multival: true})
	s.SetIdent(personBlob, ":person/blob")
	s.SetAttribute(personBlob, schema.Attribute{ValueType: causet.TypeBytes})
	return s
}

func noOwner(causet.Entid, causet.TypedValue) (causet.Entid, bool, error) { return 0, false, nil }

func TestRequireAttribute(t *testing.T) {
	s := testSchema()

	e, attr, err := RequireAttribute(s, causet.Attr(":person/name"))
	require.NoError(t, err)
	assert.Equal(t, personName, e)
	assert.Equal(t, causet.TypeString, attr.ValueType)

	e, _, err = RequireAttribute(s, causet.AttrID(personEmail))
	require.NoError(t, err)
	assert.Equal(t, personEmail, e)

	_, _, err = RequireAttribute(s, causet.Attr(":person/shoe-size"))
	assert.Equal(t, CodeAttributeNotFound, CodeOf(err))

	// :db.part/user is an ident but not an attribute.
	_, _, err = RequireAttribute(s, causet.Attr(":db.part/user"))
	assert.Equal(t, CodeAttributeNotFound, CodeOf(err))
	assert.Contains(t, err.Error(), "not an attribute")
}

func TestDatomChecksValueType(t *testing.T) {
	s := testSchema()
	require.NoError(t, Datom(s, causet.Datom{E: 70000, A: personName, V: causet.Str("Ada"), Added: true}))

	err := Datom(s, causet.Datom{E: 70000, A: personName, V: causet.Long(1), Added: true})
	require.Error(t, err)
	assert.Equal(t, CodeValueTypeMismatch, CodeOf(err))
	assert.Contains(t, err.Error(), ":person/name")
	assert.Contains(t, err.Error(), "expected string value")

	err = Datom(s, causet.Datom{E: 70000, A: 9999, V: causet.Long(1), Added: true})
	assert.Equal(t, CodeAttributeNotFound, CodeOf(err))
	assert.Contains(t, err.Error(), "#9999")
}

func TestCardinality(t *testing.T) {
	s := testSchema()
	one, _ := s.Attribute(personName)
	many, _ := s.Attribute(personTags)

	assert.NoError(t, Cardinality(s, 1, personName, one, causet.TypedValue{}, false, causet.Str("a")))
	assert.NoError(t, Cardinality(s, 1, personName, one, causet.Str("a"), true, causet.Str("a")))
	assert.NoError(t, Cardinality(s, 1, personTags, many, causet.KeywordValue(":a"), true, causet.KeywordValue(":b")))

	err := Cardinality(s, 1, personName, one, causet.Str("a"), true, causet.Str("b"))
	require.Error(t, err)
	assert.Equal(t, CodeCardinalityConflict, CodeOf(err))
	assert.True(t, IsValidationError(err))
}

func TestUniquenessWithinTransaction(t *testing.T) {
	s := testSchema()
	err := Uniqueness(s, []causet.Datom{
		{E: 70000, A: personEmail, V: causet.Str("a@x"), Added: true},
		{E: 70001, A: personEmail, V: causet.Str("a@x"), Added: true},
	}, noOwner)
	require.Error(t, err)
	assert.Equal(t, CodeUniqueConflict, CodeOf(err))
}

func TestUniquenessAgainstStorage(t *testing.T) {
	s := testSchema()
	owner := func(a causet.Entid, v causet.TypedValue) (causet.Entid, bool, error) {
		if a == personEmail && v == causet.Str("taken@x") {
			return 65536, true, nil
		}
		return 0, false, nil
	}

	err := Uniqueness(s, []causet.Datom{{E: 70000, A: personEmail, V: causet.Str("taken@x"), Added: true}}, owner)
	assert.Equal(t, CodeUniqueConflict, CodeOf(err))
	assert.Contains(t, err.Error(), "already belongs to entity 65536")

	// Re-asserting a value the entity already holds is an upsert, not a conflict.
	assert.NoError(t, Uniqueness(s, []causet.Datom{{E: 65536, A: personEmail, V: causet.Str("taken@x"), Added: true}}, owner))

	// Non-unique attributes are never looked up.
	assert.NoError(t, Uniqueness(s, []causet.Datom{{E: 1, A: personName, V: causet.Str("taken@x"), Added: true}}, owner))
}

func TestUniquenessPropagatesLookupErrors(t *testing.T) {
	s := testSchema()
	boom := errors.New("disk on fire")
	err := Uniqueness(s, []causet.Datom{{E: 1, A: personEmail, V: causet.Str("x"), Added: true}},
		func(causet.Entid, causet.TypedValue) (causet.Entid, bool, error) { return 0, false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestValidationErrorMessages(t *testing.T) {
	assert.Equal(t, "validation error [unique_conflict]: x",
		(&ValidationError{Code: CodeUniqueConflict, Message: "x"}).Error())
	assert.Equal(t, "validation error [unique_conflict] on entity 5: x",
		(&ValidationError{Code: CodeUniqueConflict, Entity: 5, Message: "x"}).Error())
	assert.Equal(t, "validation error [unique_conflict] on attribute :a/b: x",
		(&ValidationError{Code: CodeUniqueConflict, Attribute: ":a/b", Message: "x"}).Error())
}
