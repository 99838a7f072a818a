package tx

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/classify"
	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/fold"
	"github.com/roach88/causetdb/internal/resolve"
	"github.com/roach88/causetdb/internal/schema"
	"github.com/roach88/causetdb/internal/validate"
)

type (
	term        = classify.Term
	mapNotation = causet.MapNotation[edn.Value]
	entityPlace = causet.EntityPlace[edn.Value]
	valuePlace  = causet.ValuePlace[edn.Value]
	lookupRef   = causet.LookupRef[edn.Value]
)

// entity is an entity position after expansion: a known entid or a tempid
// still waiting for one.
type entity struct {
	temp bool
	id   causet.TempID
	e    causet.Entid
}

func known(e causet.Entid) entity { return entity{e: e} }

func tempEntity(t causet.TempID) entity { return entity{temp: true, id: t} }

func (en entity) asValue() value {
	return value{temp: en.temp, id: en.id, v: causet.Ref(en.e)}
}

// entid for error messages; 0 while still a tempid.
func (en entity) entid() causet.Entid {
	if en.temp {
		return 0
	}
	return en.e
}

// value is a value position after expansion: a typed value, or a tempid
// for ref attributes.
type value struct {
	temp bool
	id   causet.TempID
	v    causet.TypedValue
}

func (v value) asEntity() entity {
	return entity{temp: v.temp, id: v.id, e: v.v.AsRef()}
}

// op is one expanded assertion or retraction.
type op struct {
	op   causet.OpType
	e    entity
	a    causet.Entid
	attr schema.Attribute
	v    value
}

type avKey struct {
	a causet.Entid
	v causet.TypedValue
}

type datomKey struct {
	e, a causet.Entid
	v    causet.TypedValue
}

// run carries one transaction from Resolving to Committed.
type run struct {
	ctx      context.Context
	store    *Store
	snap     *schema.Snapshot
	schema   *schema.Schema
	parts    schema.PartitionMap
	txID     causet.Entid
	instant  time.Time
	resolver *resolve.Resolver
	lookups  map[avKey]causet.Entid

	ops    []op
	datoms []causet.Datom

	upsert    *fold.Upsert[foldKey, causet.TypedValue]
	changes   []causet.Datom
	deleted   map[datomKey]bool
	newSchema *schema.Schema
}

func newRun(ctx context.Context, s *Store, snap *schema.Snapshot) (*run, error) {
	parts := snap.Partitions.Clone()
	txID, err := parts.Allocate(schema.PartTx)
	if err != nil {
		return nil, &resolve.Error{Code: resolve.CodeAllocation, Message: "allocate transaction id", Err: err}
	}
	return &run{
		ctx:    ctx,
		store:  s,
		snap:   snap,
		schema: snap.Schema,
		parts:  parts,
		txID:   txID,
		resolver: resolve.New(func() (causet.Entid, error) {
			return parts.Allocate(schema.PartUser)
		}),
		lookups: make(map[avKey]causet.Entid),
	}, nil
}

// resolve expands every term, evolves upserts and assigns every tempid an
// entid, leaving r.datoms ready to fold.
func (r *run) resolve(terms []term) error {
	for i, t := range terms {
		var err error
		if t.Kind == causet.KindMapNotation {
			_, err = r.expandMap(t.Map)
		} else {
			err = r.expandQuad(t)
		}
		if err != nil {
			return fmt.Errorf("term %d: %w", i, err)
		}
	}
	if err := r.evolveUpserts(); err != nil {
		return err
	}
	if err := r.allocateIdentities(); err != nil {
		return err
	}
	return r.finish()
}

func (r *run) emit(o causet.OpType, e entity, a causet.Entid, attr schema.Attribute, v value) {
	r.ops = append(r.ops, op{op: o, e: e, a: a, attr: attr, v: v})
}

func (r *run) expandQuad(t term) error {
	e, err := r.entity(t.Entity)
	if err != nil {
		return err
	}
	a, attr, reversed, err := r.attribute(t.Attr)
	if err != nil {
		return err
	}
	if reversed {
		targets, err := r.reverseTargets(a, attr, t.Value, t.Op)
		if err != nil {
			return err
		}
		for _, target := range targets {
			r.emit(t.Op, target, a, attr, e.asValue())
		}
		return nil
	}
	vals, err := r.values(e, a, attr, t.Value, t.Op)
	if err != nil {
		return err
	}
	for _, v := range vals {
		r.emit(t.Op, e, a, attr, v)
	}
	return nil
}

// expandMap flattens one map-notation entity into assertions. Without
// :db/id the entity gets a fresh internal tempid, which may still upsert
// through a unique identity attribute.
func (r *run) expandMap(m mapNotation) (entity, error) {
	var (
		self  entity
		hasID bool
	)
	for _, entry := range m {
		if entry.Attr.Ident != schema.IdentDBID {
			continue
		}
		ep, ok := entry.Value.AsEntity()
		if !ok {
			return entity{}, resolve.Errorf(resolve.CodeUnknownIdent, ":db/id must name an entity")
		}
		e, err := r.entity(ep)
		if err != nil {
			return entity{}, err
		}
		self, hasID = e, true
	}
	if !hasID {
		self = tempEntity(r.resolver.Register())
	}

	for _, entry := range m {
		if entry.Attr.Ident == schema.IdentDBID {
			continue
		}
		a, attr, reversed, err := r.attribute(entry.Attr)
		if err != nil {
			return entity{}, err
		}
		if reversed {
			targets, err := r.reverseTargets(a, attr, entry.Value, causet.OpAdd)
			if err != nil {
				return entity{}, err
			}
			for _, target := range targets {
				r.emit(causet.OpAdd, target, a, attr, self.asValue())
			}
			continue
		}
		vals, err := r.values(self, a, attr, entry.Value, causet.OpAdd)
		if err != nil {
			return entity{}, err
		}
		for _, v := range vals {
			r.emit(causet.OpAdd, self, a, attr, v)
		}
	}
	return self, nil
}

// attribute resolves an attribute place. ":ns/_name" resolves to ":ns/name"
// with reversed set, which must be a ref attribute.
func (r *run) attribute(place causet.AttributePlace) (causet.Entid, schema.Attribute, bool, error) {
	if place.IsIdent() && place.Ident.IsReversed() {
		a, attr, err := validate.RequireAttribute(r.schema, causet.Attr(place.Ident.Unreversed()))
		if err != nil {
			return 0, attr, false, err
		}
		if attr.ValueType != causet.TypeRef {
			return 0, attr, false, validate.Errorf(validate.CodeValueTypeMismatch, 0, string(place.Ident),
				"reverse attribute needs a ref attribute, %s is %s", place.Ident.Unreversed(), attr.ValueType)
		}
		return a, attr, true, nil
	}
	a, attr, err := validate.RequireAttribute(r.schema, place)
	return a, attr, false, err
}

func (r *run) entity(place entityPlace) (entity, error) {
	switch place.Kind {
	case causet.PlaceEntid:
		e, err := r.entid(place.Entid)
		return known(e), err
	case causet.PlaceTempID:
		return tempEntity(place.TempID), nil
	case causet.PlaceLookupRef:
		e, err := r.lookup(place.LookupRef)
		return known(e), err
	case causet.PlaceTxFunction:
		e, err := r.txFunction(place.TxFunction)
		return known(e), err
	}
	return entity{}, fmt.Errorf("unexpected entity place %s", place.Kind)
}

func (r *run) entid(x causet.EntidOrIdent) (causet.Entid, error) {
	if !x.IsIdent() {
		return x.Entid, nil
	}
	e, ok := r.schema.Entid(x.Ident)
	if !ok {
		return 0, resolve.Errorf(resolve.CodeUnknownIdent, "no entity has ident %s", x.Ident)
	}
	return e, nil
}

func (r *run) txFunction(fn causet.TxFunction) (causet.Entid, error) {
	if fn.Op == causet.TransactionTx {
		return r.txID, nil
	}
	return 0, resolve.Errorf(resolve.CodeUnknownTxFunction, "unknown tx function %q", fn.Op)
}

// lookup resolves [a v] to the entity holding v for the unique attribute
// a. Under LookupRefCreate a miss allocates a new entity and asserts the
// pair on it; later lookups of the same pair in this transaction reuse it.
func (r *run) lookup(ref lookupRef) (causet.Entid, error) {
	if ref.Attr.IsIdent() && ref.Attr.Ident.IsReversed() {
		return 0, resolve.Errorf(resolve.CodeInvalidLookupRef, "lookup ref cannot use reverse attribute %s", ref.Attr.Ident)
	}
	a, attr, err := validate.RequireAttribute(r.schema, ref.Attr)
	if err != nil {
		return 0, err
	}
	name := validate.AttrName(r.schema, a)
	if !attr.IsUnique() {
		return 0, resolve.Errorf(resolve.CodeInvalidLookupRef, "lookup ref attribute %s is not unique", name)
	}
	v, err := r.coerce(0, a, attr, ref.Value)
	if err != nil {
		return 0, err
	}
	if v.temp {
		return 0, resolve.Errorf(resolve.CodeInvalidLookupRef, "lookup ref value for %s cannot be a tempid", name)
	}

	key := avKey{a, v.v}
	if e, ok := r.lookups[key]; ok {
		return e, nil
	}
	owner, found, err := r.store.reader.Owner(r.ctx, a, v.v)
	if err != nil {
		return 0, err
	}
	if found {
		r.lookups[key] = owner
		return owner, nil
	}
	if r.store.opts.lookupRefs != LookupRefCreate {
		return 0, resolve.Errorf(resolve.CodeLookupRefNotFound, "no entity has %s %s", name, v.v)
	}
	e, err := r.parts.Allocate(schema.PartUser)
	if err != nil {
		return 0, &resolve.Error{Code: resolve.CodeAllocation, Message: "allocate entity for lookup ref", Err: err}
	}
	r.emit(causet.OpAdd, known(e), a, attr, v)
	r.lookups[key] = e
	return e, nil
}

// values expands a value place for attribute a on entity e.
func (r *run) values(e entity, a causet.Entid, attr schema.Attribute, place valuePlace, o causet.OpType) ([]value, error) {
	name := validate.AttrName(r.schema, a)
	switch place.Kind {
	case causet.PlaceVector:
		if !attr.Multival {
			return nil, validate.Errorf(validate.CodeValueTypeMismatch, e.entid(), name, "vector value for cardinality-one attribute")
		}
		out := make([]value, 0, len(place.Vector))
		for _, p := range place.Vector {
			vs, err := r.values(e, a, attr, p, o)
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
		}
		return out, nil
	case causet.PlaceAtom:
		v, err := r.coerce(e.entid(), a, attr, place.Atom)
		if err != nil {
			return nil, err
		}
		return []value{v}, nil
	case causet.PlaceMap:
		if attr.ValueType != causet.TypeRef {
			return nil, validate.Errorf(validate.CodeValueTypeMismatch, e.entid(), name, "nested map for %s attribute", attr.ValueType)
		}
		if o == causet.OpRetract {
			return nil, validate.Errorf(validate.CodeValueTypeMismatch, e.entid(), name, "nested map cannot be retracted")
		}
		child, err := r.expandMap(place.Map)
		if err != nil {
			return nil, err
		}
		return []value{child.asValue()}, nil
	}

	ep, ok := place.AsEntity()
	if !ok {
		return nil, fmt.Errorf("unexpected value place %s", place.Kind)
	}
	if src := place.TxFunction.Source; ep.Kind == causet.PlaceTxFunction && src != "" && attr.ValueType != causet.TypeRef {
		v, err := r.coerce(e.entid(), a, attr, edn.String(src))
		if err != nil {
			return nil, err
		}
		return []value{v}, nil
	}
	if attr.ValueType != causet.TypeRef {
		return nil, validate.Errorf(validate.CodeValueTypeMismatch, e.entid(), name, "%s for %s attribute", place.Kind, attr.ValueType)
	}
	target, err := r.entity(ep)
	if err != nil {
		return nil, err
	}
	return []value{target.asValue()}, nil
}

// reverseTargets expands the value of a reverse attribute into the entities
// that will point back at the map's entity. Vectors are allowed whatever
// the attribute's cardinality, as each target is a different entity.
func (r *run) reverseTargets(a causet.Entid, attr schema.Attribute, place valuePlace, o causet.OpType) ([]entity, error) {
	many := attr
	many.Multival = true
	vals, err := r.values(entity{}, a, many, place, o)
	if err != nil {
		return nil, err
	}
	out := make([]entity, len(vals))
	for i, v := range vals {
		out[i] = v.asEntity()
	}
	return out, nil
}

// coerce turns a payload literal into a value of attr's type. For ref
// attributes an integer is an entid, a keyword an ident and any other
// string a tempid.
func (r *run) coerce(e causet.Entid, a causet.Entid, attr schema.Attribute, atom edn.Value) (value, error) {
	mismatch := func(detail string) error {
		return validate.Errorf(validate.CodeValueTypeMismatch, e, validate.AttrName(r.schema, a),
			"expected %s value, got %s%s", attr.ValueType, edn.TypeName(atom), detail)
	}
	switch attr.ValueType {
	case causet.TypeRef:
		switch x := atom.(type) {
		case edn.Int:
			if x < 0 {
				return value{}, mismatch(" (negative entid)")
			}
			return value{v: causet.Ref(causet.Entid(x))}, nil
		case edn.String:
			if x.IsKeyword() {
				target, err := r.entid(causet.Ident(causet.Keyword(x)))
				return value{v: causet.Ref(target)}, err
			}
			return value{temp: true, id: causet.External(string(x))}, nil
		}
	case causet.TypeKeyword:
		if x, ok := atom.(edn.String); ok && x.IsKeyword() {
			kw, err := causet.ParseKeyword(string(x))
			if err != nil {
				return value{}, mismatch(": " + err.Error())
			}
			return value{v: causet.KeywordValue(kw)}, nil
		}
	case causet.TypeLong:
		if x, ok := atom.(edn.Int); ok {
			return value{v: causet.Long(int64(x))}, nil
		}
	case causet.TypeDouble:
		switch x := atom.(type) {
		case edn.Float:
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return value{}, mismatch(" (not finite)")
			}
			return value{v: causet.Double(float64(x))}, nil
		case edn.Int:
			return value{v: causet.Double(float64(x))}, nil
		}
	case causet.TypeString:
		if x, ok := atom.(edn.String); ok {
			return value{v: causet.Str(string(x))}, nil
		}
	case causet.TypeBoolean:
		if x, ok := atom.(edn.Bool); ok {
			return value{v: causet.Boolean(bool(x))}, nil
		}
	case causet.TypeInstant:
		switch x := atom.(type) {
		case edn.String:
			t, err := time.Parse(time.RFC3339Nano, string(x))
			if err != nil {
				return value{}, mismatch(": " + err.Error())
			}
			return value{v: causet.Instant(t)}, nil
		case edn.Int:
			return value{v: causet.Instant(time.UnixMilli(int64(x)))}, nil
		}
	case causet.TypeUUID:
		if x, ok := atom.(edn.String); ok {
			u, err := uuid.Parse(string(x))
			if err != nil {
				return value{}, mismatch(": " + err.Error())
			}
			return value{v: causet.UUIDValue(u)}, nil
		}
	case causet.TypeBytes:
		if x, ok := atom.(edn.String); ok {
			b, err := base64.StdEncoding.DecodeString(string(x))
			if err != nil {
				return value{}, mismatch(": " + err.Error())
			}
			return value{v: causet.Bytes(b)}, nil
		}
	}
	return value{}, mismatch("")
}

// boundValue returns v's typed value if it has one yet.
func (r *run) boundValue(v value) (causet.TypedValue, bool) {
	if !v.temp {
		return v.v, true
	}
	e, ok := r.resolver.Bound(v.id)
	if !ok {
		return causet.TypedValue{}, false
	}
	return causet.Ref(e), true
}

func isIdentityUpsert(o op) bool {
	return o.op == causet.OpAdd && o.e.temp && o.attr.Unique == schema.UniqueIdentity
}

// evolveUpserts binds tempids that assert a unique identity value some
// stored entity already holds. Binding one tempid can give another op its
// value (a tempid in value position), so it repeats until nothing new
// binds. A tempid upserting to two different entities is a conflict.
func (r *run) evolveUpserts() error {
	checked := make(map[int]bool)
	for {
		progress := false
		for i, o := range r.ops {
			if checked[i] || !isIdentityUpsert(o) {
				continue
			}
			v, ok := r.boundValue(o.v)
			if !ok {
				continue
			}
			checked[i] = true
			owner, found, err := r.store.reader.Owner(r.ctx, o.a, v)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			_, wasBound := r.resolver.Bound(o.e.id)
			if err := r.resolver.Bind(o.e.id, owner); err != nil {
				return err
			}
			if !wasBound {
				progress = true
			}
		}
		if !progress {
			return nil
		}
	}
}

// allocateIdentities gives tempids that assert the same new unique identity
// value one shared entity, in op order. An entity a lookup ref created for
// that value claims it first.
func (r *run) allocateIdentities() error {
	claims := make(map[avKey]causet.Entid)
	for key, e := range r.lookups {
		if attr, _ := r.schema.Attribute(key.a); attr.Unique == schema.UniqueIdentity {
			claims[key] = e
		}
	}
	for _, o := range r.ops {
		if !isIdentityUpsert(o) {
			continue
		}
		v, ok := r.boundValue(o.v)
		if !ok {
			continue
		}
		key := avKey{o.a, v}
		if e, ok := claims[key]; ok {
			if err := r.resolver.Bind(o.e.id, e); err != nil {
				return err
			}
			continue
		}
		e, err := r.resolver.Resolve(o.e.id)
		if err != nil {
			return err
		}
		claims[key] = e
	}
	return nil
}

// finish resolves every remaining tempid, checks each datom against the
// schema and adds :db/txInstant unless the payload set it.
func (r *run) finish() error {
	r.datoms = make([]causet.Datom, 0, len(r.ops)+1)
	for _, o := range r.ops {
		e := o.e.e
		if o.e.temp {
			var err error
			if e, err = r.resolver.Resolve(o.e.id); err != nil {
				return err
			}
		}
		v := o.v.v
		if o.v.temp {
			target, err := r.resolver.Resolve(o.v.id)
			if err != nil {
				return err
			}
			v = causet.Ref(target)
		}
		d := causet.Datom{E: e, A: o.a, V: v, Tx: r.txID, Added: o.op == causet.OpAdd}
		if err := validate.Datom(r.schema, d); err != nil {
			return err
		}
		r.datoms = append(r.datoms, d)
	}

	for _, d := range r.datoms {
		if d.E == r.txID && d.A == schema.DBTxInstant && d.Added {
			r.instant = d.V.AsTime()
			return nil
		}
	}
	now := causet.Instant(r.store.opts.clock())
	r.instant = now.AsTime()
	r.datoms = append(r.datoms, causet.Datom{E: r.txID, A: schema.DBTxInstant, V: now, Tx: r.txID, Added: true})
	return nil
}
