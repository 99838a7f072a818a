package causet

import (
	"github.com/roach88/causetdb/internal/edn"
)

// Transactable constrains the literal type carried by value places. Only
// edn payload types satisfy it: edn.Value is sealed, and no place type
// implements it, so a place can never be smuggled in as a literal.
type Transactable interface {
	edn.Value
}

// PlaceKind tags the active variant of a place.
type PlaceKind int

const (
	PlaceEntid PlaceKind = iota
	PlaceTempID
	PlaceLookupRef
	PlaceTxFunction
	PlaceVector
	PlaceAtom
	PlaceMap
)

func (k PlaceKind) String() string {
	switch k {
	case PlaceEntid:
		return "entid"
	case PlaceTempID:
		return "tempid"
	case PlaceLookupRef:
		return "lookup-ref"
	case PlaceTxFunction:
		return "tx-function"
	case PlaceVector:
		return "vector"
	case PlaceAtom:
		return "atom"
	case PlaceMap:
		return "map"
	default:
		return "unknown"
	}
}

// EntityPlace is the entity position of a fact.
type EntityPlace[V Transactable] struct {
	Kind       PlaceKind
	Entid      EntidOrIdent
	TempID     TempID
	LookupRef  LookupRef[V]
	TxFunction TxFunction
}

// EntityID places a resolved entid or ident.
func EntityID[V Transactable](x EntidOrIdent) EntityPlace[V] {
	return EntityPlace[V]{Kind: PlaceEntid, Entid: x}
}

// EntityTemp places a tempid.
func EntityTemp[V Transactable](t TempID) EntityPlace[V] {
	return EntityPlace[V]{Kind: PlaceTempID, TempID: t}
}

// EntityLookup places a lookup ref.
func EntityLookup[V Transactable](ref LookupRef[V]) EntityPlace[V] {
	return EntityPlace[V]{Kind: PlaceLookupRef, LookupRef: ref}
}

// EntityTxFunction places a transaction function.
func EntityTxFunction[V Transactable](fn TxFunction) EntityPlace[V] {
	return EntityPlace[V]{Kind: PlaceTxFunction, TxFunction: fn}
}

// ValuePlace is the value position of a fact. Entity places are a subset of
// value places; vectors, atoms and nested maps only appear here.
type ValuePlace[V Transactable] struct {
	Kind       PlaceKind
	Entid      EntidOrIdent
	TempID     TempID
	LookupRef  LookupRef[V]
	TxFunction TxFunction
	Vector     []ValuePlace[V]
	Atom       V
	Map        MapNotation[V]
}

// Atom places a literal.
func Atom[V Transactable](v V) ValuePlace[V] {
	return ValuePlace[V]{Kind: PlaceAtom, Atom: v}
}

// Vector places a sequence of values.
func Vector[V Transactable](vs ...ValuePlace[V]) ValuePlace[V] {
	return ValuePlace[V]{Kind: PlaceVector, Vector: vs}
}

// ValueLookup places a lookup ref.
func ValueLookup[V Transactable](ref LookupRef[V]) ValuePlace[V] {
	return ValuePlace[V]{Kind: PlaceLookupRef, LookupRef: ref}
}

// ValueTxFunction places a transaction function.
func ValueTxFunction[V Transactable](fn TxFunction) ValuePlace[V] {
	return ValuePlace[V]{Kind: PlaceTxFunction, TxFunction: fn}
}

// ValueMap places a nested entity.
func ValueMap[V Transactable](m MapNotation[V]) ValuePlace[V] {
	return ValuePlace[V]{Kind: PlaceMap, Map: m}
}

// AsEntity narrows a value place to an entity place. Vectors, atoms and maps
// have no entity form.
func (p ValuePlace[V]) AsEntity() (EntityPlace[V], bool) {
	switch p.Kind {
	case PlaceEntid:
		return EntityID[V](p.Entid), true
	case PlaceTempID:
		return EntityTemp[V](p.TempID), true
	case PlaceLookupRef:
		return EntityLookup(p.LookupRef), true
	case PlaceTxFunction:
		return EntityTxFunction[V](p.TxFunction), true
	}
	return EntityPlace[V]{}, false
}

// AsValue widens an entity place.
func (p EntityPlace[V]) AsValue() ValuePlace[V] {
	return ValuePlace[V]{
		Kind:       p.Kind,
		Entid:      p.Entid,
		TempID:     p.TempID,
		LookupRef:  p.LookupRef,
		TxFunction: p.TxFunction,
	}
}

// MapEntry is one attribute of a map-notation entity.
type MapEntry[V Transactable] struct {
	Attr  AttributePlace
	Value ValuePlace[V]
}

// MapNotation is an entity described by attribute. Entries keep the
// order in which the classifier produced them.
type MapNotation[V Transactable] []MapEntry[V]

// CausetKind distinguishes quads from map notation.
type CausetKind int

const (
	KindAddOrRetract CausetKind = iota
	KindMapNotation
)

// Causet is one proposed fact operation: a single quad or a whole entity in
// map notation.
type Causet[V Transactable] struct {
	Kind   CausetKind
	Op     OpType
	Entity EntityPlace[V]
	Attr   AttributePlace
	Value  ValuePlace[V]
	Map    MapNotation[V]
}

// AddOrRetract builds a quad term.
func AddOrRetract[V Transactable](op OpType, e EntityPlace[V], a AttributePlace, v ValuePlace[V]) Causet[V] {
	return Causet[V]{Kind: KindAddOrRetract, Op: op, Entity: e, Attr: a, Value: v}
}

// MapTerm builds a map-notation term.
func MapTerm[V Transactable](m MapNotation[V]) Causet[V] {
	return Causet[V]{Kind: KindMapNotation, Map: m}
}
