package schemacue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/schema"
	"github.com/roach88/causetdb/internal/storage/memkv"
	"github.com/roach88/causetdb/internal/tx"
)

const people = `
attribute: "person/name": {
	type:   "string"
	unique: "identity"
	doc:    "Full name"
}
attribute: "person/friends": {type: "ref", cardinality: "many"}
attribute: "person/tags": {type: "keyword", cardinality: "many", index: true}
ident: ["status/active"]
`

func TestCompile_Defaults(t *testing.T) {
	defs, err := CompileBytes("people.cue", []byte(people))
	require.NoError(t, err)
	require.Len(t, defs.Attributes, 3)
	assert.Equal(t, 4, defs.Len())

	friends := defs.Attributes[0]
	assert.Equal(t, causet.Keyword(":person/friends"), friends.Ident)
	assert.Equal(t, causet.TypeRef, friends.ValueType)
	assert.True(t, friends.Multival)
	assert.Equal(t, schema.UniqueNone, friends.Unique)
	assert.False(t, friends.Index)

	name := defs.Attributes[1]
	assert.Equal(t, causet.Keyword(":person/name"), name.Ident)
	assert.False(t, name.Multival, "cardinality defaults to one")
	assert.Equal(t, schema.UniqueIdentity, name.Unique)
	assert.Equal(t, "Full name", name.Doc)
	assert.Equal(t, "people.cue", name.Pos.Filename())

	assert.True(t, defs.Attributes[2].Index)
	assert.Equal(t, []causet.Keyword{":status/active"}, defs.Idents)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{
			name:  "missing type",
			src:   `attribute: "a/b": {cardinality: "many"}`,
			field: "attribute.a/b.type",
			msg:   "type is required",
		},
		{
			name:  "unknown type",
			src:   `attribute: "a/b": {type: "text"}`,
			field: "cue",
		},
		{
			name:  "unknown field",
			src:   `attribute: "a/b": {type: "long", colour: "red"}`,
			field: "cue",
			msg:   "not allowed",
		},
		{
			name:  "no namespace",
			src:   `attribute: "name": {type: "string"}`,
			field: "attribute.name",
			msg:   "needs a namespace",
		},
		{
			name:  "reversed name",
			src:   `attribute: "person/_friends": {type: "ref"}`,
			field: "attribute.person/_friends",
			msg:   "reserved",
		},
		{
			name:  "unique bytes",
			src:   `attribute: "file/hash": {type: "bytes", unique: "value"}`,
			field: "attribute.file/hash.unique",
			msg:   "cannot be unique",
		},
		{
			name:  "component of a scalar",
			src:   `attribute: "a/b": {type: "long", isComponent: true}`,
			field: "attribute.a/b.isComponent",
			msg:   "only ref attributes",
		},
		{
			name:  "ident defined twice",
			src:   `attribute: "a/b": {type: "long"}, ident: ["a/b"]`,
			field: "ident",
			msg:   "defined twice",
		},
		{
			name:  "bad ident",
			src:   `ident: ["has space/x"]`,
			field: "ident",
			msg:   "whitespace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileBytes("bad.cue", []byte(tt.src))
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
			if tt.msg != "" {
				assert.Contains(t, ce.Message, tt.msg)
			}
		})
	}
}

func TestCompile_SyntaxErrorHasPosition(t *testing.T) {
	_, err := CompileBytes("broken.cue", []byte("attribute: {\n  \"a/b\": {type: \n"))
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "broken.cue:")
}

func TestTransaction_Golden(t *testing.T) {
	defs, err := CompileBytes("people.cue", []byte(people))
	require.NoError(t, err)

	out, err := edn.MarshalCanonical(defs.Transaction())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "people_transaction", append(out, '\n'))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(src), 0644))
		return path
	}
	person := write("person.cue", "package model\n\nattribute: \"person/name\": {type: \"string\", unique: \"identity\"}\n")
	write("status.cue", "package model\n\nident: [\"status/active\", \"status/inactive\"]\n")

	t.Run("file", func(t *testing.T) {
		defs, err := Load(person)
		require.NoError(t, err)
		assert.Len(t, defs.Attributes, 1)
		assert.Empty(t, defs.Idents)
	})

	t.Run("directory", func(t *testing.T) {
		defs, err := Load(dir)
		require.NoError(t, err)
		assert.Len(t, defs.Attributes, 1)
		assert.Equal(t, []causet.Keyword{":status/active", ":status/inactive"}, defs.Idents)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := LoadDir(t.TempDir())
		assert.ErrorContains(t, err, "no CUE files")
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.cue"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestTransaction_InstallsAndReinstalls(t *testing.T) {
	defs, err := CompileBytes("people.cue", []byte(people))
	require.NoError(t, err)

	ctx := context.Background()
	store, err := tx.Open(ctx, memkv.New())
	require.NoError(t, err)
	defer store.Close()

	report, err := store.Transact(ctx, defs.Transaction())
	require.NoError(t, err)
	assert.True(t, report.SchemaChanged)

	_, attr, ok := store.Schema().AttributeFor(":person/name")
	require.True(t, ok)
	assert.Equal(t, schema.Attribute{
		ValueType: causet.TypeString,
		Unique:    schema.UniqueIdentity,
		Doc:       "Full name",
	}, attr)
	_, attr, ok = store.Schema().AttributeFor(":person/tags")
	require.True(t, ok)
	assert.True(t, attr.Multival)
	assert.True(t, attr.Index)
	_, ok = store.Schema().Entid(":status/active")
	assert.True(t, ok)

	// Idents upsert, so a second install only records the transaction.
	again, err := store.Transact(ctx, defs.Transaction())
	require.NoError(t, err)
	assert.False(t, again.SchemaChanged)
	assert.Len(t, again.Datoms, 1)
}
