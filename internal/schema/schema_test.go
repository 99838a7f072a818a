package schema

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causetdb/internal/causet"
)

func TestBootstrapSchemaIsConsistent(t *testing.T) {
	s, parts := Bootstrap()
	require.NoError(t, s.Verify())

	e, ok := s.Entid(":db/ident")
	require.True(t, ok)
	assert.Equal(t, DBIdent, e)

	attr, ok := s.Attribute(DBIdent)
	require.True(t, ok)
	assert.Equal(t, causet.TypeKeyword, attr.ValueType)
	assert.Equal(t, UniqueIdentity, attr.Unique)

	_, attr, ok = s.AttributeFor(":db.install/attribute")
	require.True(t, ok)
	assert.True(t, attr.Multival)

	assert.Equal(t, firstUnreservedDBEid, parts[PartDB].Next)
	assert.Equal(t, UserPartitionStart, parts[PartUser].Next)
	assert.Equal(t, TxPartitionStart+1, parts[PartTx].Next)
}

func TestBootstrapDatomsCoverEveryIdent(t *testing.T) {
	s, _ := Bootstrap()
	datoms := BootstrapDatoms()

	idents := 0
	for _, d := range datoms {
		assert.Equal(t, TxPartitionStart, d.Tx)
		assert.True(t, d.Added)
		if d.A == DBIdent {
			idents++
			k, ok := s.Ident(d.E)
			require.True(t, ok)
			assert.Equal(t, k, d.V.AsKeyword())
		}
	}
	assert.Equal(t, s.Len(), idents)

	last := datoms[len(datoms)-1]
	assert.Equal(t, DBTxInstant, last.A)
	assert.Equal(t, causet.TypeInstant, last.V.Type)
}

func TestSetIdentKeepsTablesInverse(t *testing.T) {
	s := New()
	s.SetIdent(100, ":a/x")
	s.SetIdent(100, ":a/y")
	require.NoError(t, s.Verify())
	_, ok := s.Entid(":a/x")
	assert.False(t, ok)

	s.SetIdent(101, ":a/y")
	require.NoError(t, s.Verify())
	_, ok = s.Ident(100)
	assert.False(t, ok)
	e, _ := s.Entid(":a/y")
	assert.Equal(t, causet.Entid(101), e)

	s.RemoveIdent(101)
	require.NoError(t, s.Verify())
	assert.Equal(t, 0, s.Len())
}

func TestVerifyCatchesAnonymousAttribute(t *testing.T) {
	s := New()
	s.SetAttribute(5, Attribute{ValueType: causet.TypeLong})
	require.Error(t, s.Verify())
}

func TestCloneIsIndependent(t *testing.T) {
	s, _ := Bootstrap()
	c := s.Clone()
	c.SetIdent(70000, ":person/name")
	c.SetAttribute(70000, Attribute{ValueType: causet.TypeString})

	_, ok := s.Entid(":person/name")
	assert.False(t, ok)
	_, ok = s.Attribute(70000)
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	s, _ := Bootstrap()
	e, ok := s.Resolve(causet.Ident(":db/doc"))
	require.True(t, ok)
	assert.Equal(t, DBDoc, e)

	e, ok = s.Resolve(causet.ID(12345))
	require.True(t, ok)
	assert.Equal(t, causet.Entid(12345), e)

	_, ok = s.Resolve(causet.Ident(":nope/nothing"))
	assert.False(t, ok)
}

func TestAttributeIndexed(t *testing.T) {
	assert.True(t, Attribute{ValueType: causet.TypeRef}.Indexed())
	assert.True(t, Attribute{ValueType: causet.TypeString, Unique: UniqueValue}.Indexed())
	assert.True(t, Attribute{ValueType: causet.TypeLong, Index: true}.Indexed())
	assert.False(t, Attribute{ValueType: causet.TypeLong}.Indexed())
}

func TestPartitionAllocate(t *testing.T) {
	parts := PartitionMap{
		PartUser: {Start: 10, End: 12, Next: 10},
	}
	e, err := parts.Allocate(PartUser)
	require.NoError(t, err)
	assert.Equal(t, causet.Entid(10), e)
	e, err = parts.Allocate(PartUser)
	require.NoError(t, err)
	assert.Equal(t, causet.Entid(11), e)

	_, err = parts.Allocate(PartUser)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, PartUser, exhausted.Partition)

	_, err = parts.Allocate(":db.part/nowhere")
	require.Error(t, err)
}

func TestPartitionCloneIsolatesAllocation(t *testing.T) {
	_, parts := Bootstrap()
	local := parts.Clone()
	_, err := local.Allocate(PartUser)
	require.NoError(t, err)
	assert.Equal(t, UserPartitionStart, parts[PartUser].Next)
	assert.Equal(t, UserPartitionStart+1, local[PartUser].Next)
}

func TestPartitionOf(t *testing.T) {
	_, parts := Bootstrap()
	name, ok := parts.PartitionOf(DBDoc)
	require.True(t, ok)
	assert.Equal(t, PartDB, name)
	name, ok = parts.PartitionOf(TxPartitionStart + 5)
	require.True(t, ok)
	assert.Equal(t, PartTx, name)
}

func TestValueTypeEntidRoundTrip(t *testing.T) {
	for vt := causet.TypeRef; vt <= causet.TypeBytes; vt++ {
		back, ok := ValueTypeFor(ValueTypeEntid(vt))
		require.True(t, ok)
		assert.Equal(t, vt, back)
	}
}

func TestCachePublishOnlyMovesForward(t *testing.T) {
	s, parts := Bootstrap()
	c := NewCache(&Snapshot{Head: 10, Partitions: parts, Schema: s})

	assert.False(t, c.Publish(&Snapshot{Head: 9, Partitions: parts, Schema: s}))
	assert.Equal(t, causet.Entid(10), c.Load().Head)

	held := c.Load()
	assert.True(t, c.Publish(&Snapshot{Head: 11, Partitions: parts, Schema: s}))
	assert.Equal(t, causet.Entid(11), c.Load().Head)
	assert.Equal(t, causet.Entid(10), held.Head)
}

func TestCacheConcurrentPublish(t *testing.T) {
	s, parts := Bootstrap()
	c := NewCache(&Snapshot{Head: 0, Partitions: parts, Schema: s})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(h causet.Entid) {
			defer wg.Done()
			c.Publish(&Snapshot{Head: h, Partitions: parts, Schema: s})
		}(causet.Entid(i))
	}
	wg.Wait()
	assert.Equal(t, causet.Entid(50), c.Load().Head)
}
