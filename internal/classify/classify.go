// Package classify turns a raw transaction payload into typed operations.
//
// Classification is a pure function of the payload: it checks shape only.
// Whether an attribute exists, or whether a value suits it, is decided
// later against the schema.
package classify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/edn"
)

// Special object keys in entity and value positions.
const (
	KeyLookupRef  = "lookup-ref"
	KeyTxFunction = "tx-function"
	KeyDBID       = ":db/id"
)

// Term is a classified operation over the raw payload's literal type.
type Term = causet.Causet[edn.Value]

// ShapeError reports a payload that is neither a vector of quads nor map
// notation. Path points at the offending element, JSON-pointer style.
type ShapeError struct {
	Path    string
	Message string
}

func (e *ShapeError) Error() string {
	if e.Path == "" {
		return "invalid transaction shape: " + e.Message
	}
	return fmt.Sprintf("invalid transaction shape at %s: %s", e.Path, e.Message)
}

// IsShapeError reports whether err is a ShapeError.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

func shapeErr(path, format string, args ...any) error {
	return &ShapeError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// Classify walks raw, which must be an array of terms. Each term is either
// a four-element [op e a v] array or a map-notation object.
func Classify(raw edn.Value) ([]Term, error) {
	arr, ok := raw.(edn.Array)
	if !ok {
		return nil, shapeErr("", "expected an array of terms, got %s", edn.TypeName(raw))
	}
	terms := make([]Term, 0, len(arr))
	for i, item := range arr {
		term, err := classifyTerm(item, index("", i))
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func classifyTerm(v edn.Value, path string) (Term, error) {
	switch val := v.(type) {
	case edn.Array:
		return classifyQuad(val, path)
	case edn.Object:
		m, err := classifyMap(val, path)
		if err != nil {
			return Term{}, err
		}
		return causet.MapTerm(m), nil
	default:
		return Term{}, shapeErr(path, "expected [op e a v] or map notation, got %s", edn.TypeName(v))
	}
}

func classifyQuad(arr edn.Array, path string) (Term, error) {
	if len(arr) != 4 {
		return Term{}, shapeErr(path, "expected [op e a v], got %d elements", len(arr))
	}
	op, err := classifyOp(arr[0], index(path, 0))
	if err != nil {
		return Term{}, err
	}
	e, err := entityPlace(arr[1], index(path, 1))
	if err != nil {
		return Term{}, err
	}
	a, err := attributePlace(arr[2], index(path, 2))
	if err != nil {
		return Term{}, err
	}
	v, err := valuePlace(arr[3], index(path, 3))
	if err != nil {
		return Term{}, err
	}
	return causet.AddOrRetract(op, e, a, v), nil
}

func classifyOp(v edn.Value, path string) (causet.OpType, error) {
	s, ok := v.(edn.String)
	if ok {
		switch s {
		case ":db/add":
			return causet.OpAdd, nil
		case ":db/retract":
			return causet.OpRetract, nil
		}
	}
	return 0, shapeErr(path, "expected :db/add or :db/retract, got %s", describe(v))
}

func classifyMap(obj edn.Object, path string) (causet.MapNotation[edn.Value], error) {
	if len(obj) == 0 {
		return nil, shapeErr(path, "empty map notation")
	}
	m := make(causet.MapNotation[edn.Value], 0, len(obj))
	for _, k := range obj.SortedKeys() {
		p := key(path, k)
		if k == KeyDBID {
			e, err := entityPlace(obj[k], p)
			if err != nil {
				return nil, err
			}
			m = append(m, causet.MapEntry[edn.Value]{Attr: causet.Attr(KeyDBID), Value: e.AsValue()})
			continue
		}
		a, err := attributeKey(k, p)
		if err != nil {
			return nil, err
		}
		v, err := valuePlace(obj[k], p)
		if err != nil {
			return nil, err
		}
		m = append(m, causet.MapEntry[edn.Value]{Attr: a, Value: v})
	}
	return m, nil
}

func attributeKey(k, path string) (causet.AttributePlace, error) {
	if n, err := strconv.ParseInt(k, 10, 64); err == nil {
		if n <= 0 {
			return causet.AttributePlace{}, shapeErr(path, "attribute entid must be positive, got %d", n)
		}
		return causet.AttrID(causet.Entid(n)), nil
	}
	kw, err := causet.ParseKeyword(k)
	if err != nil {
		return causet.AttributePlace{}, shapeErr(path, "map key: %v", err)
	}
	return causet.Attr(kw), nil
}

func attributePlace(v edn.Value, path string) (causet.AttributePlace, error) {
	switch val := v.(type) {
	case edn.Int:
		if val <= 0 {
			return causet.AttributePlace{}, shapeErr(path, "attribute entid must be positive, got %d", val)
		}
		return causet.AttrID(causet.Entid(val)), nil
	case edn.String:
		kw, err := causet.ParseKeyword(string(val))
		if err != nil {
			return causet.AttributePlace{}, shapeErr(path, "attribute: %v", err)
		}
		return causet.Attr(kw), nil
	default:
		return causet.AttributePlace{}, shapeErr(path, "attribute must be a keyword or entid, got %s", edn.TypeName(v))
	}
}

func entityPlace(v edn.Value, path string) (causet.EntityPlace[edn.Value], error) {
	switch val := v.(type) {
	case edn.Int:
		if val < 0 {
			return causet.EntityPlace[edn.Value]{}, shapeErr(path, "entid must not be negative, got %d", val)
		}
		return causet.EntityID[edn.Value](causet.ID(causet.Entid(val))), nil
	case edn.String:
		if val == "" {
			return causet.EntityPlace[edn.Value]{}, shapeErr(path, "empty tempid")
		}
		if val.IsKeyword() {
			kw, err := causet.ParseKeyword(string(val))
			if err != nil {
				return causet.EntityPlace[edn.Value]{}, shapeErr(path, "ident: %v", err)
			}
			return causet.EntityID[edn.Value](causet.Ident(kw)), nil
		}
		if fn, ok := callForm(val); ok {
			return causet.EntityTxFunction[edn.Value](fn), nil
		}
		return causet.EntityTemp[edn.Value](causet.External(string(val))), nil
	case edn.Array:
		ref, err := lookupRef(val, path)
		if err != nil {
			return causet.EntityPlace[edn.Value]{}, err
		}
		return causet.EntityLookup(ref), nil
	case edn.Object:
		if ref, ok, err := specialLookupRef(val, path); ok || err != nil {
			return causet.EntityLookup(ref), err
		}
		if fn, ok, err := specialTxFunction(val, path); ok || err != nil {
			return causet.EntityTxFunction[edn.Value](fn), err
		}
		return causet.EntityPlace[edn.Value]{}, shapeErr(path, "object in entity position must be a lookup-ref or tx-function")
	default:
		return causet.EntityPlace[edn.Value]{}, shapeErr(path, "entity must be an entid, ident, tempid or lookup ref, got %s", edn.TypeName(v))
	}
}

func valuePlace(v edn.Value, path string) (causet.ValuePlace[edn.Value], error) {
	switch val := v.(type) {
	case edn.Null:
		return causet.ValuePlace[edn.Value]{}, shapeErr(path, "null is not a transactable value")
	case edn.String:
		if fn, ok := callForm(val); ok {
			return causet.ValueTxFunction[edn.Value](fn), nil
		}
		return causet.Atom[edn.Value](val), nil
	case edn.Bool, edn.Int, edn.Float:
		return causet.Atom[edn.Value](val), nil
	case edn.Array:
		elems := make([]causet.ValuePlace[edn.Value], 0, len(val))
		for i, item := range val {
			if _, nested := item.(edn.Array); nested {
				return causet.ValuePlace[edn.Value]{}, shapeErr(index(path, i), "nested vectors are not allowed")
			}
			ep, err := valuePlace(item, index(path, i))
			if err != nil {
				return causet.ValuePlace[edn.Value]{}, err
			}
			elems = append(elems, ep)
		}
		return causet.Vector(elems...), nil
	case edn.Object:
		if ref, ok, err := specialLookupRef(val, path); ok || err != nil {
			return causet.ValueLookup(ref), err
		}
		if fn, ok, err := specialTxFunction(val, path); ok || err != nil {
			return causet.ValueTxFunction[edn.Value](fn), err
		}
		m, err := classifyMap(val, path)
		if err != nil {
			return causet.ValuePlace[edn.Value]{}, err
		}
		return causet.ValueMap(m), nil
	default:
		return causet.ValuePlace[edn.Value]{}, shapeErr(path, "unsupported value %s", edn.TypeName(v))
	}
}

func specialLookupRef(obj edn.Object, path string) (causet.LookupRef[edn.Value], bool, error) {
	inner, ok := obj[KeyLookupRef]
	if !ok {
		return causet.LookupRef[edn.Value]{}, false, nil
	}
	if len(obj) != 1 {
		return causet.LookupRef[edn.Value]{}, true, shapeErr(path, "lookup-ref object must have exactly one key")
	}
	arr, ok := inner.(edn.Array)
	if !ok {
		return causet.LookupRef[edn.Value]{}, true, shapeErr(key(path, KeyLookupRef), "expected [attribute value], got %s", edn.TypeName(inner))
	}
	ref, err := lookupRef(arr, key(path, KeyLookupRef))
	return ref, true, err
}

func specialTxFunction(obj edn.Object, path string) (causet.TxFunction, bool, error) {
	inner, ok := obj[KeyTxFunction]
	if !ok {
		return causet.TxFunction{}, false, nil
	}
	if len(obj) != 1 {
		return causet.TxFunction{}, true, shapeErr(path, "tx-function object must have exactly one key")
	}
	s, ok := inner.(edn.String)
	if !ok || s == "" {
		return causet.TxFunction{}, true, shapeErr(key(path, KeyTxFunction), "tx-function name must be a non-empty string")
	}
	return causet.TxFunction{Op: string(s)}, true, nil
}

// callForm recognizes the "(op)" string form of a tx function: a single
// name in parentheses with no whitespace.
func callForm(s edn.String) (causet.TxFunction, bool) {
	str := string(s)
	if len(str) < 3 || str[0] != '(' || str[len(str)-1] != ')' {
		return causet.TxFunction{}, false
	}
	op := str[1 : len(str)-1]
	if strings.ContainsAny(op, "() \t\r\n") {
		return causet.TxFunction{}, false
	}
	return causet.TxFunction{Op: op, Source: str}, true
}

func lookupRef(arr edn.Array, path string) (causet.LookupRef[edn.Value], error) {
	if len(arr) != 2 {
		return causet.LookupRef[edn.Value]{}, shapeErr(path, "lookup ref must be [attribute value], got %d elements", len(arr))
	}
	a, err := attributePlace(arr[0], index(path, 0))
	if err != nil {
		return causet.LookupRef[edn.Value]{}, err
	}
	switch arr[1].(type) {
	case edn.Bool, edn.Int, edn.Float, edn.String:
	default:
		return causet.LookupRef[edn.Value]{}, shapeErr(index(path, 1), "lookup ref value must be a scalar, got %s", edn.TypeName(arr[1]))
	}
	return causet.LookupRef[edn.Value]{Attr: a, Value: arr[1]}, nil
}

func index(path string, i int) string {
	return path + "/" + strconv.Itoa(i)
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func key(path, k string) string {
	return path + "/" + pointerEscaper.Replace(k)
}

func describe(v edn.Value) string {
	if s, ok := v.(edn.String); ok {
		return strconv.Quote(string(s))
	}
	return edn.TypeName(v)
}
