package schema

import (
	"sync/atomic"

	"github.com/roach88/causetdb/internal/causet"
)

// Snapshot is the store metadata a transaction runs against: the last
// committed transaction, the partition counters and the schema. Snapshots
// are immutable; a transaction clones what it needs to change.
type Snapshot struct {
	Head       causet.Entid
	Partitions PartitionMap
	Schema     *Schema
}

// Cache publishes snapshots to concurrent readers. Readers keep whatever
// snapshot they loaded; Publish only affects later loads.
type Cache struct {
	current atomic.Pointer[Snapshot]
}

// NewCache returns a cache holding snap.
func NewCache(snap *Snapshot) *Cache {
	c := &Cache{}
	c.current.Store(snap)
	return c
}

// Load returns the current snapshot.
func (c *Cache) Load() *Snapshot {
	return c.current.Load()
}

// Publish replaces the current snapshot if it is newer than the one held.
// It reports whether snap was installed.
func (c *Cache) Publish(snap *Snapshot) bool {
	for {
		cur := c.current.Load()
		if cur != nil && cur.Head >= snap.Head {
			return false
		}
		if c.current.CompareAndSwap(cur, snap) {
			return true
		}
	}
}
