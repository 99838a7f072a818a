package memkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causetdb/internal/storage"
	"github.com/roach88/causetdb/internal/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Engine { return New() })
}

func TestScanCallbackMayWrite(t *testing.T) {
	ctx := context.Background()
	eng := New()
	for _, k := range []string{"a", "b"} {
		require.NoError(t, eng.Put(ctx, []byte(k), []byte("v")))
	}

	var seen []string
	err := eng.Scan(ctx, nil, nil, func(k, v []byte) error {
		seen = append(seen, string(k))
		return eng.Put(ctx, append([]byte("z"), k...), v)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, 4, eng.Len())
}

func TestValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	eng := New()
	val := []byte("abc")
	require.NoError(t, eng.Put(ctx, []byte("k"), val))
	val[0] = 'x'

	got, err := eng.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}
