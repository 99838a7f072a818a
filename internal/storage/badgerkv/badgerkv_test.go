package badgerkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causetdb/internal/storage"
	"github.com/roach88/causetdb/internal/storage/storagetest"
)

func TestConformanceInMemory(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Engine {
		eng, err := OpenInMemory()
		require.NoError(t, err)
		assert.True(t, eng.IsInMemory())
		return eng
	})
}

func TestConformanceOnDisk(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Engine {
		eng, err := Open(t.TempDir())
		require.NoError(t, err)
		return eng
	})
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	eng, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, eng.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, eng.Close())

	eng, err = Open(dir)
	require.NoError(t, err)
	defer eng.Close()
	v, err := eng.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
