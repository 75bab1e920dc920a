package vmtypes

import (
	"errors"
	"fmt"

	"vmscope/internal/addrspace"
	"vmscope/internal/diag"
)

// Locator resolves the target address of an exported global symbol.
type Locator func(name string) (uint64, error)

// Bounds on values read from the in-target tables.
const (
	maxNameLen = 1024
	maxStride  = 4096
)

// Exported HotSpot table symbols. Each *Offset and *Stride global holds a
// uint64 describing the layout of the corresponding entry struct.
const (
	symStructs          = "gHotSpotVMStructs"
	symStructTypeName   = "gHotSpotVMStructEntryTypeNameOffset"
	symStructFieldName  = "gHotSpotVMStructEntryFieldNameOffset"
	symStructTypeString = "gHotSpotVMStructEntryTypeStringOffset"
	symStructIsStatic   = "gHotSpotVMStructEntryIsStaticOffset"
	symStructOffset     = "gHotSpotVMStructEntryOffsetOffset"
	symStructAddress    = "gHotSpotVMStructEntryAddressOffset"
	symStructStride     = "gHotSpotVMStructEntryArrayStride"
	symTypes            = "gHotSpotVMTypes"
	symTypeName         = "gHotSpotVMTypeEntryTypeNameOffset"
	symTypeSuperclass   = "gHotSpotVMTypeEntrySuperclassNameOffset"
	symTypeIsOop        = "gHotSpotVMTypeEntryIsOopTypeOffset"
	symTypeIsInteger    = "gHotSpotVMTypeEntryIsIntegerTypeOffset"
	symTypeIsUnsigned   = "gHotSpotVMTypeEntryIsUnsignedOffset"
	symTypeSize         = "gHotSpotVMTypeEntrySizeOffset"
	symTypeStride       = "gHotSpotVMTypeEntryArrayStride"
	symIntConstants     = "gHotSpotVMIntConstants"
	symIntConstName     = "gHotSpotVMIntConstantEntryNameOffset"
	symIntConstValue    = "gHotSpotVMIntConstantEntryValueOffset"
	symIntConstStride   = "gHotSpotVMIntConstantEntryArrayStride"
	symLongConstants    = "gHotSpotVMLongConstants"
	symLongConstName    = "gHotSpotVMLongConstantEntryNameOffset"
	symLongConstValue   = "gHotSpotVMLongConstantEntryValueOffset"
	symLongConstStride  = "gHotSpotVMLongConstantEntryArrayStride"
)

// vmReader walks the in-target tables.
type vmReader struct {
	s     *addrspace.Space
	loc   Locator
	opts  diag.Options
	diags diag.Diags
	t     *Table
}

// ReadVMStructs builds a Table from the type and field tables a HotSpot
// virtual machine exports into its own address space. Entries that cannot
// be read are skipped with a diagnostic unless opts is strict. The tables
// themselves must be locatable; a missing table symbol is always an error.
func ReadVMStructs(s *addrspace.Space, loc Locator, opts diag.Options) (*Table, []diag.Diag, error) {
	r := &vmReader{s: s, loc: loc, opts: opts, t: NewTable(s.AddressSize())}
	if err := r.readTypes(); err != nil {
		return nil, r.diags.Items(), err
	}
	if err := r.readStructs(); err != nil {
		return nil, r.diags.Items(), err
	}
	if err := r.readIntConstants(); err != nil {
		return nil, r.diags.Items(), err
	}
	if err := r.readLongConstants(); err != nil {
		return nil, r.diags.Items(), err
	}
	return r.t, r.diags.Items(), nil
}

// global reads the uint64 value of an exported layout global.
func (r *vmReader) global(name string) (uint64, error) {
	addr, err := r.loc(name)
	if err != nil {
		return 0, fmt.Errorf("vmtypes: locate %s: %w", name, err)
	}
	v, err := r.s.ReadUint(addr, 8)
	if err != nil {
		return 0, fmt.Errorf("vmtypes: read %s: %w", name, err)
	}
	return v, nil
}

// globals reads several layout globals at once.
func (r *vmReader) globals(names ...string) ([]uint64, error) {
	out := make([]uint64, len(names))
	for i, n := range names {
		v, err := r.global(n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// table returns the address of the first entry of a table. The exported
// symbol is a pointer to the array.
func (r *vmReader) table(name string) (uint64, error) {
	addr, err := r.loc(name)
	if err != nil {
		return 0, fmt.Errorf("vmtypes: locate %s: %w", name, err)
	}
	p, err := r.s.ReadAddress(addr)
	if err != nil {
		return 0, fmt.Errorf("vmtypes: read %s: %w", name, err)
	}
	return p, nil
}

// entryFailed records a failed entry. It returns a non-nil error when the
// walk must stop.
func (r *vmReader) entryFailed(addr uint64, kind diag.Kind, err error) error {
	if r.opts.Strict() {
		return err
	}
	r.diags.Add(addr, kind, err.Error())
	return nil
}

// str reads a C string through a pointer at addr. A NULL pointer yields "".
func (r *vmReader) str(addr uint64) (string, error) {
	p, err := r.s.ReadAddress(addr)
	if err != nil || p == 0 {
		return "", err
	}
	return r.s.ReadCString(p, maxNameLen)
}

func (r *vmReader) int32At(addr uint64) (int32, error) {
	return r.s.ReadInt(addr)
}

func (r *vmReader) readTypes() error {
	base, err := r.table(symTypes)
	if err != nil {
		return err
	}
	g, err := r.globals(symTypeName, symTypeSuperclass, symTypeIsOop, symTypeIsInteger, symTypeIsUnsigned, symTypeSize, symTypeStride)
	if err != nil {
		return err
	}
	nameOff, superOff, oopOff, intOff, unsOff, sizeOff, stride := g[0], g[1], g[2], g[3], g[4], g[5], g[6]

	return r.walk(base, stride, func(e uint64) (bool, error) {
		name, err := r.str(e + nameOff)
		if err != nil {
			return false, err
		}
		if name == "" {
			return true, nil
		}
		super, err := r.str(e + superOff)
		if err != nil {
			return false, err
		}
		isOop, err := r.int32At(e + oopOff)
		if err != nil {
			return false, err
		}
		isInt, err := r.int32At(e + intOff)
		if err != nil {
			return false, err
		}
		isUns, err := r.int32At(e + unsOff)
		if err != nil {
			return false, err
		}
		size, err := r.s.ReadUint(e+sizeOff, 8)
		if err != nil {
			return false, err
		}
		return false, r.t.AddType(Type{
			Name:       name,
			Superclass: super,
			Size:       size,
			IsOopType:  isOop != 0,
			IsInteger:  isInt != 0,
			IsUnsigned: isUns != 0,
		})
	})
}

func (r *vmReader) readStructs() error {
	base, err := r.table(symStructs)
	if err != nil {
		return err
	}
	g, err := r.globals(symStructTypeName, symStructFieldName, symStructTypeString, symStructIsStatic, symStructOffset, symStructAddress, symStructStride)
	if err != nil {
		return err
	}
	typeOff, fieldOff, typeStrOff, staticOff, offsetOff, addrOff, stride := g[0], g[1], g[2], g[3], g[4], g[5], g[6]

	return r.walk(base, stride, func(e uint64) (bool, error) {
		typeName, err := r.str(e + typeOff)
		if err != nil {
			return false, err
		}
		if typeName == "" {
			return true, nil
		}
		fieldName, err := r.str(e + fieldOff)
		if err != nil {
			return false, err
		}
		typeString, err := r.str(e + typeStrOff)
		if err != nil {
			return false, err
		}
		isStatic, err := r.int32At(e + staticOff)
		if err != nil {
			return false, err
		}
		fe := FieldEntry{Type: typeName, Name: fieldName, TypeName: typeString, Static: isStatic != 0}
		if fe.Static {
			fe.Address, err = r.s.ReadAddress(e + addrOff)
		} else {
			fe.Offset, err = r.s.ReadUint(e+offsetOff, 8)
		}
		if err != nil {
			return false, err
		}
		if typeString == "" {
			r.diags.Addf(e, diag.KindUnknown, "field %s has no declared type", fe.ID())
			return false, nil
		}
		return false, r.t.AddField(fe)
	})
}

func (r *vmReader) readIntConstants() error {
	return r.readConstants(symIntConstants, symIntConstName, symIntConstValue, symIntConstStride, 4)
}

func (r *vmReader) readLongConstants() error {
	return r.readConstants(symLongConstants, symLongConstName, symLongConstValue, symLongConstStride, 8)
}

func (r *vmReader) readConstants(tableSym, nameSym, valueSym, strideSym string, width int) error {
	base, err := r.table(tableSym)
	if err != nil {
		return err
	}
	g, err := r.globals(nameSym, valueSym, strideSym)
	if err != nil {
		return err
	}
	nameOff, valueOff, stride := g[0], g[1], g[2]

	return r.walk(base, stride, func(e uint64) (bool, error) {
		name, err := r.str(e + nameOff)
		if err != nil {
			return false, err
		}
		if name == "" {
			return true, nil
		}
		v, err := r.s.ReadUint(e+valueOff, width)
		if err != nil {
			return false, err
		}
		if width == 4 {
			r.t.SetConstant(name, int64(int32(v)))
		} else {
			r.t.SetConstant(name, int64(v))
		}
		return false, nil
	})
}

// walk visits entries at base, base+stride, ... until visit reports the
// terminating entry. A failing entry is skipped in best-effort mode.
func (r *vmReader) walk(base, stride uint64, visit func(entry uint64) (done bool, err error)) error {
	if stride == 0 || stride > maxStride {
		return fmt.Errorf("vmtypes: implausible table stride %d at 0x%x", stride, base)
	}
	maxSteps := r.opts.EffectiveMaxSteps()
	for i := 0; i < maxSteps; i++ {
		e := base + uint64(i)*stride
		// Without the entry itself the terminator cannot be found.
		if _, err := r.s.ReadBytes(e, int(stride)); err != nil {
			return fmt.Errorf("vmtypes: table entry %d at 0x%x: %w", i, e, err)
		}
		done, err := visit(e)
		if err != nil {
			kind := diag.KindCorrupt
			if errors.Is(err, addrspace.ErrUnmapped) {
				kind = diag.KindUnmapped
			}
			if err := r.entryFailed(e, kind, err); err != nil {
				return err
			}
			continue
		}
		if done {
			return nil
		}
	}
	err := fmt.Errorf("vmtypes: table at 0x%x has no terminator within %d entries", base, maxSteps)
	if r.opts.Strict() {
		return err
	}
	r.diags.Add(base, diag.KindClamped, err.Error())
	return nil
}
