package resolve

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/schema"
)

func counter(start causet.Entid) Allocator {
	next := start
	return func() (causet.Entid, error) {
		e := next
		next++
		return e, nil
	}
}

func TestResolveExternalIsIdempotent(t *testing.T) {
	r := New(counter(100))

	first, err := r.Resolve(causet.External("alice"))
	require.NoError(t, err)
	second, err := r.Resolve(causet.External("alice"))
	require.NoError(t, err)
	other, err := r.Resolve(causet.External("bob"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, causet.Entid(100), first)
	assert.Equal(t, causet.Entid(101), other)
	assert.Equal(t, map[string]causet.Entid{"alice": 100, "bob": 101}, r.Mapping())
}

func TestResolveUnregisteredInternalFails(t *testing.T) {
	r := New(counter(100))
	_, err := r.Resolve(causet.Internal(7))
	require.Error(t, err)
	assert.Equal(t, CodeUnknownInternalTempID, CodeOf(err))
	assert.Equal(t, 0, r.Len())
}

func TestResolveRegisteredInternal(t *testing.T) {
	r := New(counter(100))
	tmp := r.Register()
	assert.True(t, tmp.IsInternal())

	e, err := r.Resolve(tmp)
	require.NoError(t, err)
	again, err := r.Resolve(tmp)
	require.NoError(t, err)
	assert.Equal(t, e, again)
	assert.Empty(t, r.Mapping())
}

func TestRegisterMintsDistinctTempIDs(t *testing.T) {
	r := New(counter(1))
	assert.NotEqual(t, r.Register(), r.Register())
}

func TestBindThenResolveSkipsAllocation(t *testing.T) {
	calls := 0
	r := New(func() (causet.Entid, error) {
		calls++
		return 999, nil
	})
	require.NoError(t, r.Bind(causet.External("alice"), 70000))

	e, err := r.Resolve(causet.External("alice"))
	require.NoError(t, err)
	assert.Equal(t, causet.Entid(70000), e)
	assert.Zero(t, calls)
	assert.True(t, r.Upserted(causet.External("alice")))
}

func TestBindConflict(t *testing.T) {
	r := New(counter(1))
	tmp := causet.External("alice")
	require.NoError(t, r.Bind(tmp, 70000))
	require.NoError(t, r.Bind(tmp, 70000))

	err := r.Bind(tmp, 70001)
	require.Error(t, err)
	assert.Equal(t, CodeTempIDConflict, CodeOf(err))
	assert.Contains(t, err.Error(), "70000")
	assert.Contains(t, err.Error(), "70001")
}

func TestBindUnregisteredInternal(t *testing.T) {
	r := New(counter(1))
	err := r.Bind(causet.Internal(3), 5)
	assert.Equal(t, CodeUnknownInternalTempID, CodeOf(err))
}

func TestResolveAllocationFailure(t *testing.T) {
	boom := errors.New("partition exhausted")
	r := New(func() (causet.Entid, error) { return 0, boom })
	_, err := r.Resolve(causet.External("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsError(err))
}

func TestResolverDrawsFromPartition(t *testing.T) {
	_, parts := schema.Bootstrap()
	local := parts.Clone()
	r := New(func() (causet.Entid, error) { return local.Allocate(schema.PartUser) })

	e, err := r.Resolve(causet.External("a"))
	require.NoError(t, err)
	assert.Equal(t, schema.UserPartitionStart, e)
	assert.Equal(t, schema.UserPartitionStart, parts[schema.PartUser].Next)
}
