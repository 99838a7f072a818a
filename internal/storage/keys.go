package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/roach88/causetdb/internal/causet"
)

// Key prefixes. Every key starts with one of these bytes.
const (
	PrefixEAVT      byte = 'd'
	PrefixAVET      byte = 'v'
	PrefixLog       byte = 'l'
	PrefixTxMeta    byte = 't'
	PrefixIdent     byte = 'i'
	PrefixEntidName byte = 'I'
	PrefixPartition byte = 'p'
	PrefixMeta      byte = 'm'
)

// HeadKey holds the id of the last committed transaction. Every commit
// rewrites it and expects the value it read, which serialises writers.
var HeadKey = []byte{PrefixMeta, 'h', 'e', 'a', 'd'}

func appendEntid(b []byte, e causet.Entid) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(e))
}

func readEntid(b []byte) (causet.Entid, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("decode entid: need 8 bytes, have %d", len(b))
	}
	return causet.Entid(binary.BigEndian.Uint64(b[:8])), b[8:], nil
}

// EAVTKey is d|e|a|v.
func EAVTKey(e, a causet.Entid, v causet.TypedValue) []byte {
	k := appendEntid([]byte{PrefixEAVT}, e)
	k = appendEntid(k, a)
	return append(k, v.Key()...)
}

// EntityPrefix covers every datom of e.
func EntityPrefix(e causet.Entid) []byte {
	return appendEntid([]byte{PrefixEAVT}, e)
}

// EntityAttrPrefix covers every value of attribute a on e.
func EntityAttrPrefix(e, a causet.Entid) []byte {
	return appendEntid(EntityPrefix(e), a)
}

// DecodeEAVT splits an EAVT key.
func DecodeEAVT(k []byte) (e, a causet.Entid, v causet.TypedValue, err error) {
	if len(k) == 0 || k[0] != PrefixEAVT {
		return 0, 0, v, fmt.Errorf("not an EAVT key")
	}
	rest := k[1:]
	if e, rest, err = readEntid(rest); err != nil {
		return
	}
	if a, rest, err = readEntid(rest); err != nil {
		return
	}
	v, rest, err = causet.DecodeKey(rest)
	if err == nil && len(rest) != 0 {
		err = fmt.Errorf("EAVT key has %d trailing bytes", len(rest))
	}
	return
}

// AVETKey is v|a|v|e.
func AVETKey(a causet.Entid, v causet.TypedValue, e causet.Entid) []byte {
	return appendEntid(AVETValuePrefix(a, v), e)
}

// AVETValuePrefix covers every entity holding v for a.
func AVETValuePrefix(a causet.Entid, v causet.TypedValue) []byte {
	k := appendEntid([]byte{PrefixAVET}, a)
	return append(k, v.Key()...)
}

// DecodeAVET splits an AVET key.
func DecodeAVET(k []byte) (a causet.Entid, v causet.TypedValue, e causet.Entid, err error) {
	if len(k) == 0 || k[0] != PrefixAVET {
		return 0, v, 0, fmt.Errorf("not an AVET key")
	}
	rest := k[1:]
	if a, rest, err = readEntid(rest); err != nil {
		return
	}
	if v, rest, err = causet.DecodeKey(rest); err != nil {
		return
	}
	e, _, err = readEntid(rest)
	return
}

// LogKey is l|tx|e|a|v.
func LogKey(tx, e, a causet.Entid, v causet.TypedValue) []byte {
	k := appendEntid(LogPrefix(tx), e)
	k = appendEntid(k, a)
	return append(k, v.Key()...)
}

// LogPrefix covers every datom changed by tx.
func LogPrefix(tx causet.Entid) []byte {
	return appendEntid([]byte{PrefixLog}, tx)
}

// DecodeLog splits a log key.
func DecodeLog(k []byte) (tx, e, a causet.Entid, v causet.TypedValue, err error) {
	if len(k) == 0 || k[0] != PrefixLog {
		return 0, 0, 0, v, fmt.Errorf("not a log key")
	}
	rest := k[1:]
	if tx, rest, err = readEntid(rest); err != nil {
		return
	}
	if e, rest, err = readEntid(rest); err != nil {
		return
	}
	if a, rest, err = readEntid(rest); err != nil {
		return
	}
	v, _, err = causet.DecodeKey(rest)
	return
}

// TxMetaKey is t|tx.
func TxMetaKey(tx causet.Entid) []byte {
	return appendEntid([]byte{PrefixTxMeta}, tx)
}

// IdentKey is i|keyword, mapping an ident to its entid.
func IdentKey(k causet.Keyword) []byte {
	return append([]byte{PrefixIdent}, k...)
}

// EntidNameKey is I|e, mapping an entid to its ident.
func EntidNameKey(e causet.Entid) []byte {
	return appendEntid([]byte{PrefixEntidName}, e)
}

// PartitionKey is p|name.
func PartitionKey(name causet.Keyword) []byte {
	return append([]byte{PrefixPartition}, name...)
}

// EncodeEntid renders e as the value stored under an IdentKey.
func EncodeEntid(e causet.Entid) []byte {
	return appendEntid(nil, e)
}

// DecodeEntid reads a value written by EncodeEntid.
func DecodeEntid(b []byte) (causet.Entid, error) {
	e, rest, err := readEntid(b)
	if err == nil && len(rest) != 0 {
		err = fmt.Errorf("entid value has %d trailing bytes", len(rest))
	}
	return e, err
}
