// Package schemacue reads attribute definitions written in CUE and turns
// them into the transaction that installs them.
//
// A definition file looks like:
//
//	attribute: "person/name": {
//		type:   "string"
//		unique: "identity"
//		doc:    "Full name"
//	}
//	attribute: "person/friends": {type: "ref", cardinality: "many"}
//	ident: ["status/active", "status/inactive"]
//
// Files are checked against the embedded #Schema definition, so unknown
// fields and bad enum values are reported with their source position.
package schemacue

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/causetdb/internal/causet"
	"github.com/roach88/causetdb/internal/edn"
	"github.com/roach88/causetdb/internal/schema"
)

//go:embed schema.cue
var schemaCUE string

// Attribute is one attribute definition.
type Attribute struct {
	Ident     causet.Keyword
	ValueType causet.ValueType
	Multival  bool
	Unique    schema.Unique
	Index     bool
	Component bool
	Fulltext  bool
	NoHistory bool
	Doc       string
	Pos       token.Pos
}

// Definitions is everything one CUE value defines.
type Definitions struct {
	Attributes []Attribute
	Idents     []causet.Keyword
}

// Len returns the number of definitions.
func (d *Definitions) Len() int {
	return len(d.Attributes) + len(d.Idents)
}

// CompileError is a definition error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile checks v against #Schema and extracts its definitions, sorted by
// ident.
func Compile(v cue.Value) (*Definitions, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}
	v = def.LookupPath(cue.ParsePath("#Schema")).Unify(v)
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	defs := &Definitions{}
	attrs := v.LookupPath(cue.ParsePath("attribute"))
	if attrs.Exists() {
		iter, err := attrs.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			a, err := compileAttribute(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			defs.Attributes = append(defs.Attributes, a)
		}
	}

	idents := v.LookupPath(cue.ParsePath("ident"))
	if idents.Exists() {
		iter, err := idents.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			kw, err := keyword(s)
			if err != nil {
				return nil, &CompileError{Field: "ident", Message: err.Error(), Pos: iter.Value().Pos()}
			}
			defs.Idents = append(defs.Idents, kw)
		}
	}

	slices.SortFunc(defs.Attributes, func(a, b Attribute) int { return strings.Compare(string(a.Ident), string(b.Ident)) })
	slices.Sort(defs.Idents)
	return defs, defs.checkDuplicates()
}

func compileAttribute(label string, v cue.Value) (Attribute, error) {
	field := "attribute." + label
	kw, err := keyword(label)
	if err != nil {
		return Attribute{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	a := Attribute{Ident: kw, Pos: v.Pos()}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.IsConcrete() {
		return Attribute{}, &CompileError{Field: field + ".type", Message: "type is required", Pos: v.Pos()}
	}
	typ, err := typeVal.String()
	if err != nil {
		return Attribute{}, formatCUEError(err)
	}
	vt, ok := causet.ValueTypeFromIdent(causet.Keyword(":db.type/" + typ))
	if !ok {
		return Attribute{}, &CompileError{Field: field + ".type", Message: fmt.Sprintf("unknown type %q", typ), Pos: typeVal.Pos()}
	}
	a.ValueType = vt

	card, err := stringField(v, "cardinality")
	if err != nil {
		return Attribute{}, err
	}
	a.Multival = card == "many"

	if uv := v.LookupPath(cue.ParsePath("unique")); uv.Exists() {
		u, err := uv.String()
		if err != nil {
			return Attribute{}, formatCUEError(err)
		}
		a.Unique = schema.UniqueValue
		if u == "identity" {
			a.Unique = schema.UniqueIdentity
		}
		if !vt.IsScalar() {
			return Attribute{}, &CompileError{Field: field + ".unique", Message: fmt.Sprintf("%s attributes cannot be unique", vt), Pos: uv.Pos()}
		}
	}

	for name, dst := range map[string]*bool{
		"index":       &a.Index,
		"isComponent": &a.Component,
		"fulltext":    &a.Fulltext,
		"noHistory":   &a.NoHistory,
	} {
		if *dst, err = boolField(v, name); err != nil {
			return Attribute{}, err
		}
	}
	if a.Component && vt != causet.TypeRef {
		return Attribute{}, &CompileError{Field: field + ".isComponent", Message: "only ref attributes can be components", Pos: v.Pos()}
	}

	if dv := v.LookupPath(cue.ParsePath("doc")); dv.Exists() {
		if a.Doc, err = dv.String(); err != nil {
			return Attribute{}, formatCUEError(err)
		}
	}
	return a, nil
}

func stringField(v cue.Value, name string) (string, error) {
	f, _ := v.LookupPath(cue.ParsePath(name)).Default()
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func boolField(v cue.Value, name string) (bool, error) {
	f, _ := v.LookupPath(cue.ParsePath(name)).Default()
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// keyword accepts "ns/name" or ":ns/name".
func keyword(s string) (causet.Keyword, error) {
	if !strings.HasPrefix(s, ":") {
		s = ":" + s
	}
	kw, err := causet.ParseKeyword(s)
	if err != nil {
		return "", err
	}
	if kw.Namespace() == "" {
		return "", fmt.Errorf("%s needs a namespace", kw)
	}
	if kw.IsReversed() {
		return "", fmt.Errorf("%s: names starting with _ are reserved for reverse attributes", kw)
	}
	return kw, nil
}

func (d *Definitions) checkDuplicates() error {
	seen := make(map[causet.Keyword]bool)
	for _, a := range d.Attributes {
		seen[a.Ident] = true
	}
	for _, k := range d.Idents {
		if seen[k] {
			return &CompileError{Field: "ident", Message: fmt.Sprintf("%s is defined twice", k)}
		}
		seen[k] = true
	}
	return nil
}

// Transaction renders the definitions as map-notation terms. Each term
// names its entity by :db/ident only, so transacting it twice upserts
// instead of installing duplicates. Flags left at their defaults are
// omitted and never retracted.
func (d *Definitions) Transaction() edn.Array {
	out := make(edn.Array, 0, d.Len())
	for _, a := range d.Attributes {
		card := ":db.cardinality/one"
		if a.Multival {
			card = ":db.cardinality/many"
		}
		term := edn.Object{
			":db/ident":       edn.String(a.Ident),
			":db/valueType":   edn.String(a.ValueType.Ident()),
			":db/cardinality": edn.String(card),
		}
		switch a.Unique {
		case schema.UniqueValue:
			term[":db/unique"] = edn.String(":db.unique/value")
		case schema.UniqueIdentity:
			term[":db/unique"] = edn.String(":db.unique/identity")
		}
		if a.Index {
			term[":db/index"] = edn.Bool(true)
		}
		if a.Component {
			term[":db/isComponent"] = edn.Bool(true)
		}
		if a.Fulltext {
			term[":db/fulltext"] = edn.Bool(true)
		}
		if a.NoHistory {
			term[":db/noHistory"] = edn.Bool(true)
		}
		if a.Doc != "" {
			term[":db/doc"] = edn.String(a.Doc)
		}
		out = append(out, term)
	}
	for _, k := range d.Idents {
		out = append(out, edn.Object{":db/ident": edn.String(k)})
	}
	return out
}

// CompileBytes compiles one CUE source.
func CompileBytes(filename string, src []byte) (*Definitions, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileBytes(src, cue.Filename(filename)))
}

// LoadFile compiles the CUE file at path.
func LoadFile(path string) (*Definitions, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return CompileBytes(path, src)
}

// LoadDir loads the CUE package in dir. All files must share one package
// clause, as with any CUE instance.
func LoadDir(dir string) (*Definitions, error) {
	files, err := findCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load CUE files: %w", inst.Err)
	}
	return Compile(ctx.BuildInstance(inst))
}

// Load compiles path, which may be a single .cue file or a directory.
func Load(path string) (*Definitions, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema path: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

func findCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// formatCUEError keeps the position of the first CUE error.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
