package fold

import (
	"fmt"
	"slices"
	"strings"
)

// Alteration pairs the value a key had before the transaction touched it
// with the value it ends on.
type Alteration[V comparable] struct {
	Old V
	New V
}

// Entry is one key of a bucket, in key order.
type Entry[K comparable, V comparable] struct {
	Key   K
	Value V
}

// AlteredEntry is one key of the altered bucket, in key order.
type AlteredEntry[K comparable, V comparable] struct {
	Key K
	Alteration[V]
}

// Upsert folds a stream of assert/retract witnesses into three buckets:
// asserted, retracted and altered. Buckets iterate in key order as defined
// by the compare function; witnesses are folded strictly in arrival order.
//
// An Upsert is owned by a single transaction and is not safe for concurrent
// use.
type Upsert[K comparable, V comparable] struct {
	compare   func(a, b K) int
	asserted  map[K]V
	retracted map[K]V
	altered   map[K]Alteration[V]
	witnesses int
}

// New returns an empty Upsert ordered by compare.
func New[K comparable, V comparable](compare func(a, b K) int) *Upsert[K, V] {
	return &Upsert[K, V]{
		compare:   compare,
		asserted:  make(map[K]V),
		retracted: make(map[K]V),
		altered:   make(map[K]Alteration[V]),
	}
}

// Witness folds one observation of key. A witness that is neither an assert
// nor a retract folds as an assert; one that is both folds as a retract
// followed by an assert of the same value.
//
// Folding rules:
//   - assert v when key is pending retraction of o: the retraction is
//     cancelled and the key becomes altered (o, v).
//   - assert v when key is already altered (o, _): the alteration becomes
//     (o, v); the first old value is kept, the latest witness wins.
//   - assert v always leaves asserted[key] = v.
//   - retract v when asserted[key] == v: the assertion is cancelled and the
//     key becomes altered (o, v), where o is the existing old value or v
//     itself.
//   - any other retract records retracted[key] = v.
//
// Witness panics with *InvariantViolation if the buckets ever disagree.
func (u *Upsert[K, V]) Witness(key K, value V, isAssert, isRetract bool) {
	u.witnesses++
	switch {
	case isAssert && isRetract:
		u.retract(key, value)
		u.assert(key, value)
	case isRetract:
		u.retract(key, value)
	default:
		u.assert(key, value)
	}
	u.check(key)
}

// Assert is Witness(key, value, true, false).
func (u *Upsert[K, V]) Assert(key K, value V) { u.Witness(key, value, true, false) }

// Retract is Witness(key, value, false, true).
func (u *Upsert[K, V]) Retract(key K, value V) { u.Witness(key, value, false, true) }

func (u *Upsert[K, V]) assert(key K, value V) {
	if old, ok := u.retracted[key]; ok {
		delete(u.retracted, key)
		if alt, ok := u.altered[key]; ok {
			old = alt.Old
		}
		u.altered[key] = Alteration[V]{Old: old, New: value}
	} else if alt, ok := u.altered[key]; ok {
		u.altered[key] = Alteration[V]{Old: alt.Old, New: value}
	}
	u.asserted[key] = value
}

func (u *Upsert[K, V]) retract(key K, value V) {
	if cur, ok := u.asserted[key]; ok && cur == value {
		delete(u.asserted, key)
		old := value
		if alt, ok := u.altered[key]; ok {
			old = alt.Old
		}
		u.altered[key] = Alteration[V]{Old: old, New: value}
		return
	}
	u.retracted[key] = value
}

func (u *Upsert[K, V]) check(key K) {
	a, inAsserted := u.asserted[key]
	r, inRetracted := u.retracted[key]
	alt, inAltered := u.altered[key]
	if inAsserted && inRetracted && a == r {
		panic(&InvariantViolation{
			Key:    fmt.Sprint(key),
			Reason: fmt.Sprintf("value %v both asserted and retracted", a),
		})
	}
	if inAsserted && inAltered && alt.New != a {
		panic(&InvariantViolation{
			Key:    fmt.Sprint(key),
			Reason: fmt.Sprintf("altered to %v but asserted %v", alt.New, a),
		})
	}
}

// Witnesses returns how many witnesses have been folded.
func (u *Upsert[K, V]) Witnesses() int { return u.witnesses }

// AssertedValue returns the pending assertion for key.
func (u *Upsert[K, V]) AssertedValue(key K) (V, bool) {
	v, ok := u.asserted[key]
	return v, ok
}

// RetractedValue returns the pending retraction for key.
func (u *Upsert[K, V]) RetractedValue(key K) (V, bool) {
	v, ok := u.retracted[key]
	return v, ok
}

// AlteredValue returns the alteration recorded for key.
func (u *Upsert[K, V]) AlteredValue(key K) (Alteration[V], bool) {
	v, ok := u.altered[key]
	return v, ok
}

// Asserted returns the asserted bucket in key order.
func (u *Upsert[K, V]) Asserted() []Entry[K, V] {
	return u.entries(u.asserted)
}

// Retracted returns the retracted bucket in key order.
func (u *Upsert[K, V]) Retracted() []Entry[K, V] {
	return u.entries(u.retracted)
}

// Altered returns the altered bucket in key order.
func (u *Upsert[K, V]) Altered() []AlteredEntry[K, V] {
	out := make([]AlteredEntry[K, V], 0, len(u.altered))
	for _, k := range sortedKeys(u.altered, u.compare) {
		out = append(out, AlteredEntry[K, V]{Key: k, Alteration: u.altered[k]})
	}
	return out
}

// Keys returns every key present in any bucket, in key order, once each.
func (u *Upsert[K, V]) Keys() []K {
	seen := make(map[K]struct{}, len(u.asserted)+len(u.retracted)+len(u.altered))
	for k := range u.asserted {
		seen[k] = struct{}{}
	}
	for k := range u.retracted {
		seen[k] = struct{}{}
	}
	for k := range u.altered {
		seen[k] = struct{}{}
	}
	return sortedKeys(seen, u.compare)
}

// Equal reports whether u and other hold the same three buckets.
func (u *Upsert[K, V]) Equal(other *Upsert[K, V]) bool {
	return mapsEqual(u.asserted, other.asserted) &&
		mapsEqual(u.retracted, other.retracted) &&
		mapsEqual(u.altered, other.altered)
}

func (u *Upsert[K, V]) entries(m map[K]V) []Entry[K, V] {
	out := make([]Entry[K, V], 0, len(m))
	for _, k := range sortedKeys(m, u.compare) {
		out = append(out, Entry[K, V]{Key: k, Value: m[k]})
	}
	return out
}

func sortedKeys[K comparable, X any](m map[K]X, compare func(a, b K) int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compare)
	return keys
}

func mapsEqual[K comparable, V comparable](a, b map[K]V) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// String renders the buckets one entry per line, in key order.
func (u *Upsert[K, V]) String() string {
	var b strings.Builder
	b.WriteString("asserted:\n")
	for _, e := range u.Asserted() {
		fmt.Fprintf(&b, "  %v => %v\n", e.Key, e.Value)
	}
	b.WriteString("retracted:\n")
	for _, e := range u.Retracted() {
		fmt.Fprintf(&b, "  %v => %v\n", e.Key, e.Value)
	}
	b.WriteString("altered:\n")
	for _, e := range u.Altered() {
		fmt.Fprintf(&b, "  %v => (%v, %v)\n", e.Key, e.Old, e.New)
	}
	return b.String()
}
