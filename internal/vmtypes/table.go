package vmtypes

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Table is an in-memory Database. The zero value is not usable; create
// tables with NewTable or LoadJSON.
type Table struct {
	AddressSize int

	types     map[string]*Type
	fields    []FieldEntry
	fieldIdx  map[string]int
	constants map[string]int64
}

// NewTable returns a table holding only the canonical Java scalar types.
func NewTable(addressSize int) *Table {
	t := &Table{
		AddressSize: addressSize,
		types:       make(map[string]*Type),
		fieldIdx:    make(map[string]int),
		constants:   make(map[string]int64),
	}
	for _, ty := range []Type{
		{Name: JByte, Size: 1, IsInteger: true},
		{Name: JShort, Size: 2, IsInteger: true},
		{Name: JInt, Size: 4, IsInteger: true},
		{Name: JLong, Size: 8, IsInteger: true},
	} {
		t.types[ty.Name] = &ty
	}
	return t
}

// AddType registers ty. Registering an identical type twice is a no-op;
// a conflicting redefinition is an error.
func (t *Table) AddType(ty Type) error {
	if ty.Name == "" {
		return fmt.Errorf("vmtypes: type with empty name")
	}
	if old, ok := t.types[ty.Name]; ok {
		if *old != ty {
			return fmt.Errorf("vmtypes: conflicting definitions of %s: %v vs %v", ty.Name, old, &ty)
		}
		return nil
	}
	t.types[ty.Name] = &ty
	return nil
}

// AddField registers a field. Each Type::name may be registered once.
func (t *Table) AddField(e FieldEntry) error {
	if e.Type == "" || e.Name == "" {
		return fmt.Errorf("vmtypes: field %q has empty type or name", e.ID())
	}
	if _, ok := t.fieldIdx[e.ID()]; ok {
		return fmt.Errorf("vmtypes: duplicate field %s", e.ID())
	}
	t.fieldIdx[e.ID()] = len(t.fields)
	t.fields = append(t.fields, e)
	return nil
}

// SetConstant records a named integer constant.
func (t *Table) SetConstant(name string, v int64) { t.constants[name] = v }

// Constant returns a named integer constant.
func (t *Table) Constant(name string) (int64, bool) {
	v, ok := t.constants[name]
	return v, ok
}

// LookupType implements Database. Names ending in "*" resolve to pointer
// types of the table's address size.
func (t *Table) LookupType(name string) (*Type, error) {
	if ty, ok := t.types[name]; ok {
		return ty, nil
	}
	if strings.HasSuffix(name, "*") {
		return &Type{Name: name, Size: uint64(t.AddressSize), IsUnsigned: true}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
}

// LookupField returns the entry for typeName::fieldName.
func (t *Table) LookupField(typeName, fieldName string) (FieldEntry, error) {
	i, ok := t.fieldIdx[typeName+"::"+fieldName]
	if !ok {
		return FieldEntry{}, fmt.Errorf("%w: %s::%s", ErrUnknownField, typeName, fieldName)
	}
	return t.fields[i], nil
}

// LookupStaticFieldAddress implements Database.
func (t *Table) LookupStaticFieldAddress(typeName, fieldName string) (uint64, error) {
	e, err := t.LookupField(typeName, fieldName)
	if err != nil {
		return 0, err
	}
	if !e.Static {
		return 0, fmt.Errorf("%w: %s", ErrNotStatic, e.ID())
	}
	return e.Address, nil
}

// Fields returns all fields in registration order.
func (t *Table) Fields() []FieldEntry { return t.fields }

// Types returns all registered types sorted by name.
func (t *Table) Types() []*Type {
	out := make([]*Type, 0, len(t.types))
	for _, ty := range t.types {
		out = append(out, ty)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Constants returns the named constants sorted by name.
func (t *Table) Constants() []string {
	names := make([]string, 0, len(t.constants))
	for n := range t.constants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// tableFile is the on-disk JSON form of a Table.
type tableFile struct {
	AddressSize int              `json:"address_size"`
	Types       []Type           `json:"types"`
	Fields      []FieldEntry     `json:"fields"`
	Constants   map[string]int64 `json:"constants,omitempty"`
}

// LoadJSON reads a table from its JSON form.
func LoadJSON(r io.Reader) (*Table, error) {
	var f tableFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("vmtypes: decode: %w", err)
	}
	if f.AddressSize != 4 && f.AddressSize != 8 {
		return nil, fmt.Errorf("vmtypes: address_size must be 4 or 8, got %d", f.AddressSize)
	}
	t := NewTable(f.AddressSize)
	for _, ty := range f.Types {
		if err := t.AddType(ty); err != nil {
			return nil, err
		}
	}
	for _, e := range f.Fields {
		if err := t.AddField(e); err != nil {
			return nil, err
		}
	}
	for n, v := range f.Constants {
		t.SetConstant(n, v)
	}
	return t, nil
}

// LoadFile reads a table from a JSON file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vmtypes: open: %w", err)
	}
	defer f.Close()
	return LoadJSON(f)
}

// WriteJSON writes t in the form read by LoadJSON.
func (t *Table) WriteJSON(w io.Writer) error {
	f := tableFile{
		AddressSize: t.AddressSize,
		Fields:      t.fields,
		Constants:   t.constants,
	}
	for _, ty := range t.Types() {
		f.Types = append(f.Types, *ty)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}
