// Package field implements typed accessors for fields of target-VM objects
// and process-wide static fields.
package field

import (
	"fmt"

	"vmscope/internal/addrspace"
	"vmscope/internal/oops"
	"vmscope/internal/vmtypes"
)

// Decl declares a field: its containing type, name, declared type and
// kind, plus where it lives.
type Decl struct {
	Type          string
	Name          string
	DeclaredType  string
	Kind          Kind
	Static        bool
	Offset        uint64 // instance fields
	StaticAddress uint64 // static fields; 0 = resolve through the database
}

// ID returns "Type::name".
func (d Decl) ID() string { return d.Type + "::" + d.Name }

// Target is the attached address space together with its narrow-oop codec.
type Target struct {
	Space  *addrspace.Space
	Narrow oops.Codec
}

// Field is an immutable typed accessor. Construct with New.
type Field struct {
	decl     Decl
	declared *vmtypes.Type
	width    int
	addr     uint64
}

// New validates d against db and returns the accessor.
func New(db vmtypes.Database, d Decl) (*Field, error) {
	declared, err := db.LookupType(d.DeclaredType)
	if err != nil {
		return nil, fmt.Errorf("field: %s: %w", d.ID(), err)
	}
	width, err := checkType(db, d, declared)
	if err != nil {
		return nil, err
	}
	f := &Field{decl: d, declared: declared, width: width}
	if d.Static {
		f.addr = d.StaticAddress
		if f.addr == 0 {
			f.addr, err = db.LookupStaticFieldAddress(d.Type, d.Name)
			if err != nil {
				return nil, fmt.Errorf("field: %s: %w", d.ID(), err)
			}
		}
	}
	return f, nil
}

// canonical maps the fixed-width Java kinds to their canonical types.
var canonical = map[Kind]string{
	Byte:  vmtypes.JByte,
	Short: vmtypes.JShort,
	Int:   vmtypes.JInt,
	Long:  vmtypes.JLong,
}

// checkType validates declared against the kind and returns the access
// width in bytes.
func checkType(db vmtypes.Database, d Decl, declared *vmtypes.Type) (int, error) {
	wrong := func(want string) error {
		return &WrongTypeError{Field: d.ID(), Kind: d.Kind, Declared: declared, Want: want}
	}
	switch d.Kind {
	case Byte, Short, Int, Long:
		name := canonical[d.Kind]
		want, err := db.LookupType(name)
		if err != nil {
			return 0, fmt.Errorf("field: %s: canonical type: %w", d.ID(), err)
		}
		if *declared != *want {
			return 0, wrong(name)
		}
		return int(want.Size), nil
	case CInteger:
		if declared.IsOopType || !declared.IsInteger || !sizeOK(declared.Size, 1, 2, 4, 8) {
			return 0, wrong("non-oop integer of size 1, 2, 4 or 8")
		}
		return int(declared.Size), nil
	case Address:
		if declared.IsOopType || !sizeOK(declared.Size, 4, 8) {
			return 0, wrong("non-oop pointer")
		}
		return int(declared.Size), nil
	case Oop:
		if !declared.IsOopType {
			return 0, wrong("oop type")
		}
		return 0, nil // address width of the target
	case NarrowOop:
		if !declared.IsOopType {
			return 0, wrong("oop type")
		}
		return 4, nil
	}
	return 0, fmt.Errorf("field: %s: invalid kind %v", d.ID(), d.Kind)
}

func sizeOK(size uint64, allowed ...uint64) bool {
	for _, a := range allowed {
		if size == a {
			return true
		}
	}
	return false
}

func (f *Field) ID() string                  { return f.decl.ID() }
func (f *Field) Name() string                { return f.decl.Name }
func (f *Field) ContainingType() string      { return f.decl.Type }
func (f *Field) Kind() Kind                  { return f.decl.Kind }
func (f *Field) DeclaredType() *vmtypes.Type { return f.declared }
func (f *Field) IsStatic() bool              { return f.decl.Static }
func (f *Field) Offset() uint64              { return f.decl.Offset }
func (f *Field) StaticAddress() uint64       { return f.addr }
func (f *Field) Decl() Decl                  { return f.decl }

// Width returns the access width in bytes. Oop fields use the address
// width of the target, reported here as 0.
func (f *Field) Width() int { return f.width }

func (f *Field) String() string {
	if f.decl.Static {
		return fmt.Sprintf("static %s %s @0x%x", f.decl.Kind, f.ID(), f.addr)
	}
	return fmt.Sprintf("%s %s +0x%x", f.decl.Kind, f.ID(), f.decl.Offset)
}

// Value reads the instance field of the object at base.
func (f *Field) Value(t Target, base uint64) (Value, error) {
	if f.decl.Static {
		return Value{}, &IllegalStateError{Field: f.ID(), Static: true, Op: "Value"}
	}
	return f.read(t, base+f.decl.Offset)
}

// StaticValue reads the static field.
func (f *Field) StaticValue(t Target) (Value, error) {
	if !f.decl.Static {
		return Value{}, &IllegalStateError{Field: f.ID(), Op: "StaticValue"}
	}
	return f.read(t, f.addr)
}

// Address-space errors are returned unchanged.
func (f *Field) read(t Target, addr uint64) (Value, error) {
	s := t.Space
	v := Value{kind: f.decl.Kind, width: f.width, signed: !f.declared.IsUnsigned}
	switch f.decl.Kind {
	case Byte:
		b, err := s.ReadInt8(addr)
		if err != nil {
			return Value{}, err
		}
		v.bits = uint64(int64(b))
	case Short:
		x, err := s.ReadShort(addr)
		if err != nil {
			return Value{}, err
		}
		v.bits = uint64(int64(x))
	case Int:
		x, err := s.ReadInt(addr)
		if err != nil {
			return Value{}, err
		}
		v.bits = uint64(int64(x))
	case Long:
		x, err := s.ReadLong(addr)
		if err != nil {
			return Value{}, err
		}
		v.bits = uint64(x)
	case CInteger, Address:
		x, err := s.ReadUint(addr, f.width)
		if err != nil {
			return Value{}, err
		}
		v.bits = x
		if f.decl.Kind == CInteger && v.signed {
			v.bits = uint64(signExtend(x, f.width))
		}
	case Oop:
		x, err := s.ReadAddress(addr)
		if err != nil {
			return Value{}, err
		}
		v.width = s.AddressSize()
		v.bits = x
		v.oop = oops.DecodeWide(x)
	case NarrowOop:
		x, err := s.ReadInt(addr)
		if err != nil {
			return Value{}, err
		}
		v.bits = uint64(uint32(x))
		v.oop = t.Narrow.Decode(uint32(x))
	}
	return v, nil
}

// SetValue stores v into the instance field of the object at base.
func (f *Field) SetValue(t Target, base uint64, v int64) error {
	if f.decl.Static {
		return &IllegalStateError{Field: f.ID(), Static: true, Op: "SetValue"}
	}
	return f.write(t, base+f.decl.Offset, v)
}

// SetStaticValue stores v into the static field.
func (f *Field) SetStaticValue(t Target, v int64) error {
	if !f.decl.Static {
		return &IllegalStateError{Field: f.ID(), Op: "SetStaticValue"}
	}
	return f.write(t, f.addr, v)
}

func (f *Field) write(t Target, addr uint64, v int64) error {
	if !f.decl.Kind.writable() {
		return fmt.Errorf("%w: %s (%s)", ErrReadOnlyField, f.ID(), f.decl.Kind)
	}
	s := t.Space
	switch f.decl.Kind {
	case Short:
		return s.WriteShort(addr, int16(v))
	case Int:
		return s.WriteInt(addr, int32(v))
	case Long:
		return s.WriteLong(addr, v)
	}
	return s.WriteUint(addr, f.width, uint64(v))
}

func signExtend(x uint64, width int) int64 {
	shift := uint(64 - 8*width)
	return int64(x<<shift) >> shift
}
