// Package storagetest holds a conformance suite every storage engine runs,
// plus engine wrappers used by transactor tests.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causetdb/internal/storage"
)

// Opener returns a fresh, empty engine. The suite closes it.
type Opener func(t *testing.T) storage.Engine

// Run executes the conformance suite against engines made by open.
func Run(t *testing.T, open Opener) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("PutGetDelete", func(t *testing.T) { testPutGetDelete(t, open(t)) })
	t.Run("ScanOrderAndBounds", func(t *testing.T) { testScan(t, open(t)) })
	t.Run("ScanStopsOnError", func(t *testing.T) { testScanStops(t, open(t)) })
	t.Run("AtomicWriteApplies", func(t *testing.T) { testAtomicWrite(t, open(t)) })
	t.Run("AtomicWriteExpectationFails", func(t *testing.T) { testExpectationFails(t, open(t)) })
	t.Run("AtomicWriteExpectAbsent", func(t *testing.T) { testExpectAbsent(t, open(t)) })
	t.Run("AtomicWriteLastOpWins", func(t *testing.T) { testLastOpWins(t, open(t)) })
	t.Run("ConcurrentWritersOneWins", func(t *testing.T) { testConcurrentWriters(t, open(t)) })
	t.Run("ClosedEngine", func(t *testing.T) { testClosed(t, open(t)) })
}

func testGetMissing(t *testing.T, eng storage.Engine) {
	defer eng.Close()
	_, err := eng.Get(context.Background(), []byte("nope"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testPutGetDelete(t *testing.T, eng storage.Engine) {
	defer eng.Close()
	ctx := context.Background()

	require.NoError(t, eng.Put(ctx, []byte("k"), []byte("v1")))
	v, err := eng.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, eng.Put(ctx, []byte("k"), []byte("v2")))
	v, err = eng.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, eng.Delete(ctx, []byte("k")))
	_, err = eng.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, eng.Delete(ctx, []byte("never-there")))
}

func testScan(t *testing.T, eng storage.Engine) {
	defer eng.Close()
	ctx := context.Background()
	for _, k := range []string{"b2", "a", "b1", "b\xff", "c", "b"} {
		require.NoError(t, eng.Put(ctx, []byte(k), []byte("v-"+k)))
	}

	assert.Equal(t, []string{"b", "b1", "b2", "b\xff"}, keys(t, eng, []byte("b"), storage.PrefixEnd([]byte("b"))))
	assert.Equal(t, []string{"b2", "b\xff", "c"}, keys(t, eng, []byte("b2"), nil))
	assert.Empty(t, keys(t, eng, []byte("d"), nil))

	var got []string
	require.NoError(t, storage.ScanPrefix(ctx, eng, []byte("b1"), func(k, v []byte) error {
		got = append(got, string(v))
		return nil
	}))
	assert.Equal(t, []string{"v-b1"}, got)
}

func testScanStops(t *testing.T, eng storage.Engine) {
	defer eng.Close()
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, eng.Put(ctx, []byte(k), []byte("v")))
	}
	stop := errors.New("stop")
	n := 0
	err := eng.Scan(ctx, nil, nil, func(k, v []byte) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
}

func testAtomicWrite(t *testing.T, eng storage.Engine) {
	defer eng.Close()
	ctx := context.Background()
	require.NoError(t, eng.Put(ctx, []byte("old"), []byte("x")))

	b := storage.NewBatch()
	b.Put([]byte("n1"), []byte("1"))
	b.Put([]byte("n2"), []byte("2"))
	b.Delete([]byte("old"))
	require.NoError(t, eng.AtomicWrite(ctx, b))

	assert.Equal(t, []string{"n1", "n2"}, keys(t, eng, nil, nil))
}

func testExpectationFails(t *testing.T, eng storage.Engine) {
	defer eng.Close()
	ctx := context.Background()
	require.NoError(t, eng.Put(ctx, []byte("head"), []byte("7")))
	require.NoError(t, eng.Put(ctx, []byte("keep"), []byte("k")))

	b := storage.NewBatch()
	b.Put([]byte("new"), []byte("n"))
	b.Delete([]byte("keep"))
	b.Put([]byte("head"), []byte("8"))
	b.ExpectValue([]byte("head"), []byte("6"))
	err := eng.AtomicWrite(ctx, b)
	assert.ErrorIs(t, err, storage.ErrConflict)

	assert.Equal(t, []string{"head", "keep"}, keys(t, eng, nil, nil))
	v, err := eng.Get(ctx, []byte("head"))
	require.NoError(t, err)
	assert.Equal(t, []byte("7"), v)
}

func testExpectAbsent(t *testing.T, eng storage.Engine) {
	defer eng.Close()
	ctx := context.Background()

	b := storage.NewBatch()
	b.Put([]byte("head"), []byte("1"))
	b.ExpectValue([]byte("head"), nil)
	require.NoError(t, eng.AtomicWrite(ctx, b))

	b = storage.NewBatch()
	b.Put([]byte("head"), []byte("1"))
	b.ExpectValue([]byte("head"), nil)
	assert.ErrorIs(t, eng.AtomicWrite(ctx, b), storage.ErrConflict)
}

func testLastOpWins(t *testing.T, eng storage.Engine) {
	defer eng.Close()
	ctx := context.Background()

	b := storage.NewBatch()
	b.Put([]byte("k"), []byte("1"))
	b.Delete([]byte("k"))
	b.Put([]byte("j"), []byte("1"))
	b.Delete([]byte("j"))
	b.Put([]byte("j"), []byte("2"))
	require.NoError(t, eng.AtomicWrite(ctx, b))

	_, err := eng.Get(ctx, []byte("k"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	v, err := eng.Get(ctx, []byte("j"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func testConcurrentWriters(t *testing.T, eng storage.Engine) {
	defer eng.Close()
	ctx := context.Background()
	require.NoError(t, eng.Put(ctx, []byte("head"), []byte("0")))

	const writers = 8
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := storage.NewBatch()
			b.Put([]byte("head"), []byte(fmt.Sprint(i+1)))
			b.ExpectValue([]byte("head"), []byte("0"))
			err := eng.AtomicWrite(ctx, b)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, storage.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())
}

func testClosed(t *testing.T, eng storage.Engine) {
	require.NoError(t, eng.Close())
	_, err := eng.Get(context.Background(), []byte("k"))
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func keys(t *testing.T, eng storage.Engine, start, end []byte) []string {
	t.Helper()
	var out []string
	require.NoError(t, eng.Scan(context.Background(), start, end, func(k, v []byte) error {
		out = append(out, string(k))
		return nil
	}))
	return out
}

// Dump renders every key and value of eng, one pair per line in key order,
// for comparing whole stores byte for byte.
func Dump(t *testing.T, eng storage.Engine) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, eng.Scan(context.Background(), nil, nil, func(k, v []byte) error {
		fmt.Fprintf(&sb, "%x=%x\n", k, v)
		return nil
	}))
	return sb.String()
}

// DumpExcept is Dump without keys starting with any of the prefixes.
func DumpExcept(t *testing.T, eng storage.Engine, prefixes ...[]byte) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, eng.Scan(context.Background(), nil, nil, func(k, v []byte) error {
		for _, p := range prefixes {
			if bytes.HasPrefix(k, p) {
				return nil
			}
		}
		fmt.Fprintf(&sb, "%x=%x\n", k, v)
		return nil
	}))
	return sb.String()
}
