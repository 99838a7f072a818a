package schema

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/roach88/causetdb/internal/causet"
)

// Partition bounds.
const (
	DBPartitionStart   causet.Entid = 0
	UserPartitionStart causet.Entid = 0x10000
	TxPartitionStart   causet.Entid = 0x10000000
	TxPartitionEnd     causet.Entid = math.MaxInt64
)

// Partition is a named half-open entid range [Start, End) with the next
// entid to hand out.
type Partition struct {
	Start causet.Entid `msgpack:"start"`
	End   causet.Entid `msgpack:"end"`
	Next  causet.Entid `msgpack:"next"`
}

// Contains reports whether e falls in the partition.
func (p Partition) Contains(e causet.Entid) bool {
	return e >= p.Start && e < p.End
}

// ExhaustedError reports a partition with no entids left.
type ExhaustedError struct {
	Partition causet.Keyword
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("partition %s is exhausted", e.Partition)
}

// PartitionMap is the set of partitions keyed by ident. A transaction works
// on its own copy and publishes it only on commit.
type PartitionMap map[causet.Keyword]Partition

// Clone copies the map.
func (m PartitionMap) Clone() PartitionMap {
	return maps.Clone(m)
}

// Allocate hands out the next entid of the named partition.
func (m PartitionMap) Allocate(name causet.Keyword) (causet.Entid, error) {
	p, ok := m[name]
	if !ok {
		return 0, fmt.Errorf("unknown partition %s", name)
	}
	if p.Next >= p.End {
		return 0, &ExhaustedError{Partition: name}
	}
	e := p.Next
	p.Next++
	m[name] = p
	return e, nil
}

// PartitionOf returns the name of the partition containing e.
func (m PartitionMap) PartitionOf(e causet.Entid) (causet.Keyword, bool) {
	for _, name := range m.Names() {
		if m[name].Contains(e) {
			return name, true
		}
	}
	return "", false
}

// Names returns partition idents in keyword order.
func (m PartitionMap) Names() []causet.Keyword {
	names := slices.Collect(maps.Keys(m))
	slices.Sort(names)
	return names
}
