package edn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"null", Null{}, `null`},
		{"bool", Bool(false), `false`},
		{"int", Int(-12), `-12`},
		{"float", Float(1.5), `1.5`},
		{"zero float", Float(0), `0`},
		{"small float", Float(1e-7), `1e-7`},
		{"large float", Float(1e21), `1e+21`},
		{"string no html escape", String("<a&b>"), `"<a&b>"`},
		{"string control", String("a\nb\x01"), `"a\nb\u0001"`},
		{"line separator kept", String("a\u2028b"), "\"a\u2028b\""},
		{"object sorted", ObjectOf(P("b", Int(1)), P("a", Int(2))), `{"a":2,"b":1}`},
		{"nested", ArrayOf(ObjectOf(P(":db/id", String("x"))), Array{}), `[{":db/id":"x"},[]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalises to U+00E9.
	got, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonicalRejectsNaN(t *testing.T) {
	_, err := MarshalCanonical(Float(math.NaN()))
	require.Error(t, err)
}

func TestPayloadHashIgnoresKeyOrder(t *testing.T) {
	a, err := Parse([]byte(`[{":db/id":"a",":person/name":"Ada"}]`))
	require.NoError(t, err)
	b, err := Parse([]byte(`[{":person/name":"Ada",":db/id":"a"}]`))
	require.NoError(t, err)

	ha, err := PayloadHash(a)
	require.NoError(t, err)
	hb, err := PayloadHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestPayloadHashDiffers(t *testing.T) {
	ha, err := PayloadHash(ArrayOf(Int(1)))
	require.NoError(t, err)
	hb, err := PayloadHash(ArrayOf(Int(2)))
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}
