// Package engines opens a storage engine by name.
package engines

import (
	"fmt"
	"slices"

	"github.com/roach88/causetdb/internal/storage"
	"github.com/roach88/causetdb/internal/storage/badgerkv"
	"github.com/roach88/causetdb/internal/storage/boltkv"
	"github.com/roach88/causetdb/internal/storage/memkv"
	"github.com/roach88/causetdb/internal/storage/sqlitekv"
)

// Engine names accepted by Open.
const (
	SQLite = "sqlite"
	Bolt   = "bolt"
	Badger = "badger"
	Memory = "memory"
)

// Names lists every engine name.
func Names() []string {
	return []string{SQLite, Bolt, Badger, Memory}
}

// Valid reports whether name is a known engine.
func Valid(name string) bool {
	return slices.Contains(Names(), name)
}

// Open opens the named engine at path. SQLite and bolt take a file path,
// badger a directory. memory ignores path, and badger with an empty path
// runs in memory.
func Open(name, path string) (storage.Engine, error) {
	switch name {
	case SQLite:
		if path == "" {
			return nil, fmt.Errorf("engine %s needs a path", name)
		}
		return wrap(sqlitekv.Open(path))
	case Bolt:
		if path == "" {
			return nil, fmt.Errorf("engine %s needs a path", name)
		}
		return wrap(boltkv.Open(path))
	case Badger:
		if path == "" {
			return wrap(badgerkv.OpenInMemory())
		}
		return wrap(badgerkv.Open(path))
	case Memory:
		return memkv.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q (want one of %v)", name, Names())
	}
}

// wrap keeps a failed open from returning a non-nil interface around a nil
// pointer.
func wrap[E storage.Engine](eng E, err error) (storage.Engine, error) {
	if err != nil {
		return nil, err
	}
	return eng, nil
}
