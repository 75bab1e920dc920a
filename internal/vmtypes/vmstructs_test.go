package vmtypes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"vmscope/internal/addrspace"
	"vmscope/internal/diag"
)

// image lays out a fake target with a bump allocator.
type image struct {
	base uint64
	data []byte
	next uint64
	syms map[string]uint64
}

func newImage() *image {
	return &image{base: 0x400000, data: make([]byte, 1<<16), syms: make(map[string]uint64)}
}

func (im *image) alloc(n uint64) uint64 {
	im.next = (im.next + 7) &^ 7
	addr := im.base + im.next
	im.next += n
	return addr
}

func (im *image) u64(addr, v uint64) { binary.LittleEndian.PutUint64(im.data[addr-im.base:], v) }
func (im *image) i32(addr uint64, v int32) {
	binary.LittleEndian.PutUint32(im.data[addr-im.base:], uint32(v))
}

func (im *image) cstr(s string) uint64 {
	addr := im.alloc(uint64(len(s) + 1))
	copy(im.data[addr-im.base:], s)
	return addr
}

// global defines an exported uint64 global.
func (im *image) global(name string, v uint64) {
	addr := im.alloc(8)
	im.u64(addr, v)
	im.syms[name] = addr
}

func (im *image) locator() Locator {
	return func(name string) (uint64, error) {
		if a, ok := im.syms[name]; ok {
			return a, nil
		}
		return 0, fmt.Errorf("no symbol %s", name)
	}
}

func (im *image) space() *addrspace.Space {
	return addrspace.New(addrspace.NewBuffer(im.base, im.data), addrspace.AMD64)
}

type structRow struct {
	typ, field, typeString string
	static                 bool
	offset, address        uint64
}

type typeRow struct {
	name, super string
	oop, integ  bool
	size        uint64
}

func buildHotSpotImage(structs []structRow, types []typeRow, ints map[string]int32) *image {
	im := newImage()

	im.global(symStructTypeName, 0)
	im.global(symStructFieldName, 8)
	im.global(symStructTypeString, 16)
	im.global(symStructIsStatic, 24)
	im.global(symStructOffset, 32)
	im.global(symStructAddress, 40)
	im.global(symStructStride, 48)
	arr := im.alloc(48 * uint64(len(structs)+1))
	for i, r := range structs {
		e := arr + uint64(i)*48
		im.u64(e, im.cstr(r.typ))
		im.u64(e+8, im.cstr(r.field))
		if r.typeString != "" {
			im.u64(e+16, im.cstr(r.typeString))
		}
		if r.static {
			im.i32(e+24, 1)
		}
		im.u64(e+32, r.offset)
		im.u64(e+40, r.address)
	}
	im.global(symStructs, arr)

	im.global(symTypeName, 0)
	im.global(symTypeSuperclass, 8)
	im.global(symTypeIsOop, 16)
	im.global(symTypeIsInteger, 20)
	im.global(symTypeIsUnsigned, 24)
	im.global(symTypeSize, 32)
	im.global(symTypeStride, 40)
	arr = im.alloc(40 * uint64(len(types)+1))
	for i, r := range types {
		e := arr + uint64(i)*40
		im.u64(e, im.cstr(r.name))
		if r.super != "" {
			im.u64(e+8, im.cstr(r.super))
		}
		if r.oop {
			im.i32(e+16, 1)
		}
		if r.integ {
			im.i32(e+20, 1)
		}
		im.u64(e+32, r.size)
	}
	im.global(symTypes, arr)

	im.global(symIntConstName, 0)
	im.global(symIntConstValue, 8)
	im.global(symIntConstStride, 16)
	arr = im.alloc(16 * uint64(len(ints)+1))
	i := 0
	for name, v := range ints {
		e := arr + uint64(i)*16
		im.u64(e, im.cstr(name))
		im.i32(e+8, v)
		i++
	}
	im.global(symIntConstants, arr)

	im.global(symLongConstName, 0)
	im.global(symLongConstValue, 8)
	im.global(symLongConstStride, 16)
	im.global(symLongConstants, im.alloc(16))
	return im
}

func TestReadVMStructs(t *testing.T) {
	im := buildHotSpotImage(
		[]structRow{
			{typ: "TreeList", field: "_size", typeString: "size_t", offset: 16},
			{typ: "BinaryTreeDictionary", field: "_root", typeString: "TreeList*", static: true, address: 0x7000},
		},
		[]typeRow{
			{name: "size_t", integ: true, size: 8},
			{name: "oop", oop: true, size: 8},
			{name: "TreeList", super: "FreeChunk", size: 56},
		},
		map[string]int32{"LogHeapWordSize": 3, "Negative": -5},
	)

	tab, diags, err := ReadVMStructs(im.space(), im.locator(), diag.Options{Mode: diag.ModeStrict})
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diags: %v", diags)
	}

	ty, err := tab.LookupType("TreeList")
	if err != nil {
		t.Fatal(err)
	}
	if ty.Size != 56 || ty.Superclass != "FreeChunk" {
		t.Errorf("TreeList = %+v", ty)
	}
	if ty, _ := tab.LookupType("oop"); ty == nil || !ty.IsOopType {
		t.Errorf("oop type = %v", ty)
	}
	f, err := tab.LookupField("TreeList", "_size")
	if err != nil || f.Offset != 16 || f.Static {
		t.Errorf("TreeList::_size = %+v, %v", f, err)
	}
	addr, err := tab.LookupStaticFieldAddress("BinaryTreeDictionary", "_root")
	if err != nil || addr != 0x7000 {
		t.Errorf("static _root = 0x%x, %v", addr, err)
	}
	if v, ok := tab.Constant("LogHeapWordSize"); !ok || v != 3 {
		t.Errorf("LogHeapWordSize = %d, %v", v, ok)
	}
	if v, _ := tab.Constant("Negative"); v != -5 {
		t.Errorf("int constants must be sign-extended, got %d", v)
	}
}

func TestReadVMStructsBestEffort(t *testing.T) {
	im := buildHotSpotImage(
		[]structRow{
			{typ: "A", field: "_x", typeString: "size_t", offset: 8},
			{typ: "A", field: "_untyped"},
		},
		[]typeRow{{name: "size_t", integ: true, size: 8}},
		nil,
	)
	// Point the second entry's field name into unmapped memory.
	arr, _ := im.space().ReadAddress(im.syms[symStructs])
	entry := arr + 48
	im.u64(entry+8, 0xdead0000)

	_, _, err := ReadVMStructs(im.space(), im.locator(), diag.Options{Mode: diag.ModeStrict})
	if !errors.Is(err, addrspace.ErrUnmapped) {
		t.Fatalf("strict err = %v, want ErrUnmapped", err)
	}

	tab, diags, err := ReadVMStructs(im.space(), im.locator(), diag.Options{Mode: diag.ModeBestEffort})
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 || diags[0].Kind != diag.KindUnmapped || diags[0].Addr != entry {
		t.Errorf("diags = %v", diags)
	}
	if _, err := tab.LookupField("A", "_x"); err != nil {
		t.Errorf("sibling field lost: %v", err)
	}
}

func TestReadVMStructsMissingSymbol(t *testing.T) {
	im := buildHotSpotImage(nil, nil, nil)
	delete(im.syms, symTypeStride)
	if _, _, err := ReadVMStructs(im.space(), im.locator(), diag.Options{Mode: diag.ModeBestEffort}); err == nil {
		t.Fatal("expected error for missing stride symbol")
	}
}

func TestReadVMStructsNoTerminator(t *testing.T) {
	im := buildHotSpotImage(nil, nil, nil)
	// A table pointer into unmapped memory cannot be walked at all.
	im.u64(im.syms[symTypes], 0x10)
	_, _, err := ReadVMStructs(im.space(), im.locator(), diag.Options{Mode: diag.ModeBestEffort})
	if !errors.Is(err, addrspace.ErrUnmapped) {
		t.Fatalf("err = %v, want ErrUnmapped", err)
	}
}
