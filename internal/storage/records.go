package storage

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/schema"
)

// FormatVersion is written into the head record. Opening a store written
// with a different version fails.
const FormatVersion = 1

// DatomRecord is stored under an EAVT key.
type DatomRecord struct {
	Tx causet.Entid `msgpack:"tx"`
}

// LogRecord is stored under a log key.
type LogRecord struct {
	Added bool `msgpack:"added"`
}

// TxRecord is stored under a tx meta key.
type TxRecord struct {
	Instant     int64  `msgpack:"instant"`
	Datoms      int    `msgpack:"datoms"`
	PayloadHash string `msgpack:"payload_hash,omitempty"`
}

// HeadRecord is stored under HeadKey.
type HeadRecord struct {
	Tx      causet.Entid `msgpack:"tx"`
	Version int          `msgpack:"version"`
}

// Encode serialises a record.
func Encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

// MustEncode is Encode for records that cannot fail to serialise.
func MustEncode(v any) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode deserialises a record into v.
func Decode(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// EncodePartition serialises a partition counter.
func EncodePartition(p schema.Partition) []byte {
	return MustEncode(p)
}
