package field

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"vmscope/internal/diag"
	"vmscope/internal/vmtypes"
)

// KindFor picks the kind for a field whose declared type is ty. Oop types
// become NarrowOop when compressed references are in use; a declared
// narrowOop is always narrow. It reports false for types no accessor can
// represent, such as embedded structs.
func KindFor(ty *vmtypes.Type, compressed bool) (Kind, bool) {
	switch ty.Name {
	case vmtypes.JByte:
		return Byte, true
	case vmtypes.JShort:
		return Short, true
	case vmtypes.JInt:
		return Int, true
	case vmtypes.JLong:
		return Long, true
	case "narrowOop":
		return NarrowOop, ty.IsOopType
	}
	switch {
	case ty.IsOopType:
		if compressed {
			return NarrowOop, true
		}
		return Oop, true
	case ty.IsInteger && sizeOK(ty.Size, 1, 2, 4, 8):
		return CInteger, true
	case !ty.IsInteger && sizeOK(ty.Size, 4, 8) && isPointerName(ty.Name):
		return Address, true
	}
	return 0, false
}

func isPointerName(name string) bool {
	return name == "address" || strings.HasSuffix(name, "*")
}

// Decls turns database entries into declarations. An entry with an
// explicit kind keeps it; otherwise KindFor decides. Entries that cannot
// be represented are reported and skipped.
func Decls(db vmtypes.Database, entries []vmtypes.FieldEntry, compressed bool) ([]Decl, []diag.Diag) {
	var diags diag.Diags
	out := make([]Decl, 0, len(entries))
	for _, e := range entries {
		d := Decl{
			Type:          e.Type,
			Name:          e.Name,
			DeclaredType:  e.TypeName,
			Static:        e.Static,
			Offset:        e.Offset,
			StaticAddress: e.Address,
		}
		if e.Kind != "" {
			k, err := ParseKind(e.Kind)
			if err != nil {
				diags.Addf(e.Address, diag.KindUnknown, "%s: %v", e.ID(), err)
				continue
			}
			d.Kind = k
			out = append(out, d)
			continue
		}
		ty, err := db.LookupType(e.TypeName)
		if err != nil {
			diags.Addf(e.Address, diag.KindUnknown, "%s: %v", e.ID(), err)
			continue
		}
		k, ok := KindFor(ty, compressed)
		if !ok {
			diags.Addf(e.Address, diag.KindUnknown, "%s: no accessor for declared type %s", e.ID(), ty.Name)
			continue
		}
		d.Kind = k
		out = append(out, d)
	}
	return out, diags.Items()
}

// Schema is a compiled set of fields, keyed by "Type::name".
type Schema struct {
	fields map[string]*Field
	order  []*Field
}

// BuildSchema constructs every declared field. In best-effort mode a field
// that fails construction is recorded as a diagnostic and skipped; in
// strict mode the first failure is returned.
func BuildSchema(db vmtypes.Database, decls []Decl, opts diag.Options) (*Schema, []diag.Diag, error) {
	var diags diag.Diags
	s := &Schema{fields: make(map[string]*Field, len(decls))}
	for _, d := range decls {
		if _, dup := s.fields[d.ID()]; dup {
			if opts.Strict() {
				return nil, nil, fmt.Errorf("field: duplicate declaration %s", d.ID())
			}
			diags.Addf(d.StaticAddress, diag.KindCorrupt, "duplicate declaration %s", d.ID())
			continue
		}
		f, err := New(db, d)
		if err != nil {
			if opts.Strict() {
				return nil, nil, err
			}
			kind := diag.KindUnknown
			if errors.Is(err, ErrWrongType) {
				kind = diag.KindWrongType
			}
			diags.Add(d.StaticAddress, kind, err.Error())
			continue
		}
		s.fields[d.ID()] = f
		s.order = append(s.order, f)
	}
	sort.SliceStable(s.order, func(i, j int) bool { return s.order[i].ID() < s.order[j].ID() })
	return s, diags.Items(), nil
}

// Lookup returns the field typeName::name.
func (s *Schema) Lookup(typeName, name string) (*Field, error) {
	f, ok := s.fields[typeName+"::"+name]
	if !ok {
		return nil, fmt.Errorf("%w: %s::%s", vmtypes.ErrUnknownField, typeName, name)
	}
	return f, nil
}

// Fields returns all fields sorted by ID.
func (s *Schema) Fields() []*Field { return s.order }

// FieldsOf returns the fields of typeName, instance fields ordered by
// offset and statics last.
func (s *Schema) FieldsOf(typeName string) []*Field {
	var out []*Field
	for _, f := range s.order {
		if f.ContainingType() == typeName {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsStatic() != b.IsStatic() {
			return !a.IsStatic()
		}
		return a.Offset() < b.Offset()
	})
	return out
}

func (s *Schema) Len() int { return len(s.order) }
