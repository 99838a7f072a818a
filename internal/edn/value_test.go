package edn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScalars(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{"null", `null`, Null{}},
		{"true", `true`, Bool(true)},
		{"int", `42`, Int(42)},
		{"negative int", `-7`, Int(-7)},
		{"float", `1.5`, Float(1.5)},
		{"exponent is float", `1e3`, Float(1000)},
		{"string", `"hello"`, String("hello")},
		{"keyword", `":db/add"`, String(":db/add")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNested(t *testing.T) {
	got, err := Parse([]byte(`[[":db/add", "t", ":person/name", "Ada"], {":db/id": 100, ":person/age": 36}]`))
	require.NoError(t, err)

	want := ArrayOf(
		ArrayOf(String(":db/add"), String("t"), String(":person/name"), String("Ada")),
		ObjectOf(P(":db/id", Int(100)), P(":person/age", Int(36))),
	)
	assert.Equal(t, want, got)
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`[1] [2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing data")
}

func TestParseRejectsHugeInteger(t *testing.T) {
	_, err := Parse([]byte(`99999999999999999999`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of int64 range")
}

func TestFromGoYAMLShapes(t *testing.T) {
	got, err := FromGo(map[string]any{
		":db/id":      "alice",
		":person/age": 30,
		":tags":       []any{"a", "b"},
		":ratio":      0.5,
		":nothing":    nil,
	})
	require.NoError(t, err)

	obj, ok := got.(Object)
	require.True(t, ok)
	assert.Equal(t, String("alice"), obj[":db/id"])
	assert.Equal(t, Int(30), obj[":person/age"])
	assert.Equal(t, ArrayOf(String("a"), String("b")), obj[":tags"])
	assert.Equal(t, Float(0.5), obj[":ratio"])
	assert.Equal(t, Null{}, obj[":nothing"])
}

func TestFromGoUnsupported(t *testing.T) {
	_, err := FromGo(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported payload type")
}

func TestStringIsKeyword(t *testing.T) {
	assert.True(t, String(":db/ident").IsKeyword())
	assert.False(t, String("db/ident").IsKeyword())
	assert.False(t, String(":").IsKeyword())
	assert.False(t, String("").IsKeyword())
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+E000 sorts before U+1F600 in UTF-8 but after it in UTF-16.
	obj := ObjectOf(P("\U0001F600", Int(1)), P("\uE000", Int(2)), P("a", Int(3)))
	assert.Equal(t, []string{"a", "\U0001F600", "\uE000"}, obj.SortedKeys())
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "integer", TypeName(Int(1)))
	assert.Equal(t, "float", TypeName(Float(1.5)))
	assert.Equal(t, "object", TypeName(Object{}))
}
