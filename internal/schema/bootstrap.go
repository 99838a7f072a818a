package schema

import (
	"time"

	"github.com/roach88/causetdb/internal/causet"
)

// Core entids. These are fixed by the bootstrap transaction and never move.
const (
	DBIdent              causet.Entid = 1
	DBPartDB             causet.Entid = 2
	DBTxInstant          causet.Entid = 3
	DBInstallPartition   causet.Entid = 4
	DBInstallValueType   causet.Entid = 5
	DBInstallAttribute   causet.Entid = 6
	DBValueType          causet.Entid = 7
	DBCardinality        causet.Entid = 8
	DBUnique             causet.Entid = 9
	DBIsComponent        causet.Entid = 10
	DBIndex              causet.Entid = 11
	DBFulltext           causet.Entid = 12
	DBNoHistory          causet.Entid = 13
	DBAdd                causet.Entid = 14
	DBRetract            causet.Entid = 15
	DBPartUser           causet.Entid = 16
	DBPartTx             causet.Entid = 17
	DBTypeRef            causet.Entid = 18
	DBTypeKeyword        causet.Entid = 19
	DBTypeLong           causet.Entid = 20
	DBTypeDouble         causet.Entid = 21
	DBTypeString         causet.Entid = 22
	DBTypeUUID           causet.Entid = 23
	DBTypeBoolean        causet.Entid = 24
	DBTypeInstant        causet.Entid = 25
	DBTypeBytes          causet.Entid = 26
	DBCardinalityOne     causet.Entid = 27
	DBCardinalityMany    causet.Entid = 28
	DBUniqueValue        causet.Entid = 29
	DBUniqueIdentity     causet.Entid = 30
	DBDoc                causet.Entid = 31
	DBSchemaVersion      causet.Entid = 32
	firstUnreservedDBEid causet.Entid = 33
)

// Partition idents.
const (
	PartDB   causet.Keyword = ":db.part/db"
	PartUser causet.Keyword = ":db.part/user"
	PartTx   causet.Keyword = ":db.part/tx"
)

// Well-known idents the transactor refers to by name.
const (
	IdentDBID        causet.Keyword = ":db/id"
	IdentIdent       causet.Keyword = ":db/ident"
	IdentTxInstant   causet.Keyword = ":db/txInstant"
	IdentValueType   causet.Keyword = ":db/valueType"
	IdentCardinality causet.Keyword = ":db/cardinality"
	IdentUnique      causet.Keyword = ":db/unique"
)

var coreIdents = []struct {
	ident causet.Keyword
	entid causet.Entid
}{
	{":db/ident", DBIdent},
	{":db.part/db", DBPartDB},
	{":db/txInstant", DBTxInstant},
	{":db.install/partition", DBInstallPartition},
	{":db.install/valueType", DBInstallValueType},
	{":db.install/attribute", DBInstallAttribute},
	{":db/valueType", DBValueType},
	{":db/cardinality", DBCardinality},
	{":db/unique", DBUnique},
	{":db/isComponent", DBIsComponent},
	{":db/index", DBIndex},
	{":db/fulltext", DBFulltext},
	{":db/noHistory", DBNoHistory},
	{":db/add", DBAdd},
	{":db/retract", DBRetract},
	{":db.part/user", DBPartUser},
	{":db.part/tx", DBPartTx},
	{":db.type/ref", DBTypeRef},
	{":db.type/keyword", DBTypeKeyword},
	{":db.type/long", DBTypeLong},
	{":db.type/double", DBTypeDouble},
	{":db.type/string", DBTypeString},
	{":db.type/uuid", DBTypeUUID},
	{":db.type/boolean", DBTypeBoolean},
	{":db.type/instant", DBTypeInstant},
	{":db.type/bytes", DBTypeBytes},
	{":db.cardinality/one", DBCardinalityOne},
	{":db.cardinality/many", DBCardinalityMany},
	{":db.unique/value", DBUniqueValue},
	{":db.unique/identity", DBUniqueIdentity},
	{":db/doc", DBDoc},
	{":db.schema/version", DBSchemaVersion},
}

var coreAttributes = map[causet.Entid]Attribute{
	DBIdent:            {ValueType: causet.TypeKeyword, Unique: UniqueIdentity, Index: true},
	DBTxInstant:        {ValueType: causet.TypeInstant, Index: true},
	DBValueType:        {ValueType: causet.TypeRef},
	DBCardinality:      {ValueType: causet.TypeRef},
	DBUnique:           {ValueType: causet.TypeRef},
	DBIsComponent:      {ValueType: causet.TypeBoolean},
	DBIndex:            {ValueType: causet.TypeBoolean},
	DBFulltext:         {ValueType: causet.TypeBoolean},
	DBNoHistory:        {ValueType: causet.TypeBoolean},
	DBDoc:              {ValueType: causet.TypeString},
	DBSchemaVersion:    {ValueType: causet.TypeLong},
	DBInstallPartition: {ValueType: causet.TypeRef, Multival: true},
	DBInstallValueType: {ValueType: causet.TypeRef, Multival: true},
	DBInstallAttribute: {ValueType: causet.TypeRef, Multival: true},
}

// MetaAttributes are the attributes whose datoms change the schema itself.
var MetaAttributes = map[causet.Entid]bool{
	DBIdent:       true,
	DBValueType:   true,
	DBCardinality: true,
	DBUnique:      true,
	DBIsComponent: true,
	DBIndex:       true,
	DBFulltext:    true,
	DBNoHistory:   true,
	DBDoc:         true,
}

// Bootstrap returns the schema and partitions of a fresh store, as they
// stand after the bootstrap transaction TxPartitionStart.
func Bootstrap() (*Schema, PartitionMap) {
	s := New()
	for _, ci := range coreIdents {
		s.SetIdent(ci.entid, ci.ident)
	}
	for e, a := range coreAttributes {
		s.SetAttribute(e, a)
	}
	parts := PartitionMap{
		PartDB:   {Start: DBPartitionStart, End: UserPartitionStart, Next: firstUnreservedDBEid},
		PartUser: {Start: UserPartitionStart, End: TxPartitionStart, Next: UserPartitionStart},
		PartTx:   {Start: TxPartitionStart, End: TxPartitionEnd, Next: TxPartitionStart + 1},
	}
	return s, parts
}

// BootstrapDatoms returns the datoms asserted by the bootstrap transaction:
// one :db/ident per core entid and the metadata of every core attribute.
func BootstrapDatoms() []causet.Datom {
	tx := TxPartitionStart
	var out []causet.Datom
	add := func(e, a causet.Entid, v causet.TypedValue) {
		out = append(out, causet.Datom{E: e, A: a, V: v, Tx: tx, Added: true})
	}
	for _, ci := range coreIdents {
		add(ci.entid, DBIdent, causet.KeywordValue(ci.ident))
	}
	for _, e := range coreAttributeOrder() {
		a := coreAttributes[e]
		add(e, DBValueType, causet.Ref(ValueTypeEntid(a.ValueType)))
		card := DBCardinalityOne
		if a.Multival {
			card = DBCardinalityMany
		}
		add(e, DBCardinality, causet.Ref(card))
		switch a.Unique {
		case UniqueValue:
			add(e, DBUnique, causet.Ref(DBUniqueValue))
		case UniqueIdentity:
			add(e, DBUnique, causet.Ref(DBUniqueIdentity))
		}
		if a.Index {
			add(e, DBIndex, causet.Boolean(true))
		}
	}
	add(tx, DBTxInstant, causet.Instant(time.Unix(0, 0)))
	return out
}

func coreAttributeOrder() []causet.Entid {
	ids := make([]causet.Entid, 0, len(coreAttributes))
	for _, ci := range coreIdents {
		if _, ok := coreAttributes[ci.entid]; ok {
			ids = append(ids, ci.entid)
		}
	}
	return ids
}

var valueTypeEntids = map[causet.ValueType]causet.Entid{
	causet.TypeRef:     DBTypeRef,
	causet.TypeKeyword: DBTypeKeyword,
	causet.TypeLong:    DBTypeLong,
	causet.TypeDouble:  DBTypeDouble,
	causet.TypeString:  DBTypeString,
	causet.TypeUUID:    DBTypeUUID,
	causet.TypeBoolean: DBTypeBoolean,
	causet.TypeInstant: DBTypeInstant,
	causet.TypeBytes:   DBTypeBytes,
}

// ValueTypeEntid returns the entid of the :db.type/* ident for t.
func ValueTypeEntid(t causet.ValueType) causet.Entid {
	return valueTypeEntids[t]
}

// ValueTypeFor maps a :db.type/* entid back to its value type.
func ValueTypeFor(e causet.Entid) (causet.ValueType, bool) {
	for t, id := range valueTypeEntids {
		if id == e {
			return t, true
		}
	}
	return 0, false
}
