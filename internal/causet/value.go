package causet

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/causetdb/internal/edn"
)

// ValueType is the declared type of an attribute's values.
type ValueType uint8

const (
	TypeRef ValueType = iota + 1
	TypeKeyword
	TypeLong
	TypeDouble
	TypeString
	TypeBoolean
	TypeInstant
	TypeUUID
	TypeBytes
)

var valueTypeIdents = map[ValueType]Keyword{
	TypeRef:     ":db.type/ref",
	TypeKeyword: ":db.type/keyword",
	TypeLong:    ":db.type/long",
	TypeDouble:  ":db.type/double",
	TypeString:  ":db.type/string",
	TypeBoolean: ":db.type/boolean",
	TypeInstant: ":db.type/instant",
	TypeUUID:    ":db.type/uuid",
	TypeBytes:   ":db.type/bytes",
}

// Ident returns the schema keyword naming t, e.g. ":db.type/long".
func (t ValueType) Ident() Keyword { return valueTypeIdents[t] }

func (t ValueType) String() string {
	if k, ok := valueTypeIdents[t]; ok {
		return k.Name()
	}
	return fmt.Sprintf("ValueType(%d)", uint8(t))
}

// ValueTypeFromIdent is the inverse of Ident.
func ValueTypeFromIdent(k Keyword) (ValueType, bool) {
	for t, ident := range valueTypeIdents {
		if ident == k {
			return t, true
		}
	}
	return 0, false
}

// IsScalar reports whether t can back a unique attribute.
func (t ValueType) IsScalar() bool {
	return t != TypeBytes
}

// TypedValue is a literal tagged with its value type. It is comparable with
// ==, so it can key maps and sit in fold buckets directly. Instants are
// held as microseconds since the Unix epoch; strings, keywords and bytes
// share S.
type TypedValue struct {
	Type ValueType
	I    int64
	F    float64
	S    string
	U    uuid.UUID
}

func Ref(e Entid) TypedValue { return TypedValue{Type: TypeRef, I: int64(e)} }
func Long(n int64) TypedValue { return TypedValue{Type: TypeLong, I: n} }
func Double(f float64) TypedValue { return TypedValue{Type: TypeDouble, F: f} }
func Str(s string) TypedValue { return TypedValue{Type: TypeString, S: s} }
func KeywordValue(k Keyword) TypedValue { return TypedValue{Type: TypeKeyword, S: string(k)} }
func UUIDValue(u uuid.UUID) TypedValue { return TypedValue{Type: TypeUUID, U: u} }
func Bytes(b []byte) TypedValue { return TypedValue{Type: TypeBytes, S: string(b)} }

func Boolean(b bool) TypedValue {
	if b {
		return TypedValue{Type: TypeBoolean, I: 1}
	}
	return TypedValue{Type: TypeBoolean}
}

// Instant truncates t to microseconds.
func Instant(t time.Time) TypedValue {
	return TypedValue{Type: TypeInstant, I: t.UnixMicro()}
}

// AsRef returns the entid of a ref value.
func (v TypedValue) AsRef() Entid { return Entid(v.I) }

// AsBool returns the boolean payload.
func (v TypedValue) AsBool() bool { return v.I != 0 }

// AsKeyword returns the keyword payload.
func (v TypedValue) AsKeyword() Keyword { return Keyword(v.S) }

// AsTime returns the instant payload in UTC.
func (v TypedValue) AsTime() time.Time { return time.UnixMicro(v.I).UTC() }

// Key encodes v as tag, payload. The encoding is self-delimiting so it can
// sit in the middle of storage keys, and fixed-width payloads sort in value
// order.
func (v TypedValue) Key() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(v.Type))
	switch v.Type {
	case TypeRef, TypeLong, TypeInstant:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.I)^(1<<63))
		buf.Write(b[:])
	case TypeDouble:
		bits := math.Float64bits(v.F)
		if v.F < 0 || (v.F == 0 && math.Signbit(v.F)) {
			bits = ^bits
		} else {
			bits ^= 1 << 63
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], bits)
		buf.Write(b[:])
	case TypeBoolean:
		buf.WriteByte(byte(v.I))
	case TypeUUID:
		buf.Write(v.U[:])
	case TypeString, TypeKeyword, TypeBytes:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(len(v.S)))
		buf.Write(b[:])
		buf.WriteString(v.S)
	}
	return buf.Bytes()
}

// DecodeKey reads one encoded value off the front of b and returns the rest.
func DecodeKey(b []byte) (TypedValue, []byte, error) {
	if len(b) == 0 {
		return TypedValue{}, nil, fmt.Errorf("decode value: empty input")
	}
	t := ValueType(b[0])
	b = b[1:]
	need := func(n int) error {
		if len(b) < n {
			return fmt.Errorf("decode %s value: need %d bytes, have %d", t, n, len(b))
		}
		return nil
	}
	switch t {
	case TypeRef, TypeLong, TypeInstant:
		if err := need(8); err != nil {
			return TypedValue{}, nil, err
		}
		n := int64(binary.BigEndian.Uint64(b[:8]) ^ (1 << 63))
		return TypedValue{Type: t, I: n}, b[8:], nil
	case TypeDouble:
		if err := need(8); err != nil {
			return TypedValue{}, nil, err
		}
		bits := binary.BigEndian.Uint64(b[:8])
		if bits&(1<<63) != 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return Double(math.Float64frombits(bits)), b[8:], nil
	case TypeBoolean:
		if err := need(1); err != nil {
			return TypedValue{}, nil, err
		}
		return Boolean(b[0] != 0), b[1:], nil
	case TypeUUID:
		if err := need(16); err != nil {
			return TypedValue{}, nil, err
		}
		var u uuid.UUID
		copy(u[:], b[:16])
		return UUIDValue(u), b[16:], nil
	case TypeString, TypeKeyword, TypeBytes:
		if err := need(4); err != nil {
			return TypedValue{}, nil, err
		}
		n := int(binary.BigEndian.Uint32(b[:4]))
		b = b[4:]
		if err := need(n); err != nil {
			return TypedValue{}, nil, err
		}
		return TypedValue{Type: t, S: string(b[:n])}, b[n:], nil
	default:
		return TypedValue{}, nil, fmt.Errorf("decode value: unknown type tag %d", uint8(t))
	}
}

// Compare orders values by type tag, then by encoded payload.
func Compare(a, b TypedValue) int {
	return bytes.Compare(a.Key(), b.Key())
}

// EDN renders v for reports and CLI output.
func (v TypedValue) EDN() edn.Value {
	switch v.Type {
	case TypeRef, TypeLong:
		return edn.Int(v.I)
	case TypeDouble:
		return edn.Float(v.F)
	case TypeBoolean:
		return edn.Bool(v.AsBool())
	case TypeInstant:
		return edn.String(v.AsTime().Format(time.RFC3339Nano))
	case TypeUUID:
		return edn.String(v.U.String())
	case TypeBytes:
		return edn.String(base64.StdEncoding.EncodeToString([]byte(v.S)))
	default:
		return edn.String(v.S)
	}
}

func (v TypedValue) String() string {
	switch v.Type {
	case TypeString:
		return fmt.Sprintf("%q", v.S)
	case TypeKeyword:
		return v.S
	default:
		return string(edn.MustMarshalCanonical(v.EDN()))
	}
}

// Datom is one fact as stored: entity, attribute, value, the transaction
// that asserted or retracted it, and which of the two it was.
type Datom struct {
	E     Entid
	A     Entid
	V     TypedValue
	Tx    Entid
	Added bool
}

func (d Datom) String() string {
	return fmt.Sprintf("[%d %d %s %d %t]", d.E, d.A, d.V, d.Tx, d.Added)
}
