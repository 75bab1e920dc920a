// Package elfx loads ELF core files and executables as target memory.
package elfx

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"vmscope/internal/addrspace"
)

var (
	ErrNotELF          = errors.New("elfx: not an ELF file")
	ErrUnsupportedArch = errors.New("elfx: unsupported machine")
	ErrUnsupportedType = errors.New("elfx: not a core, executable or shared object")
	ErrNoSymbol        = errors.New("elfx: symbol not found")
	ErrNoSegment       = errors.New("elfx: no PT_LOAD segment covers address")
)

// File wraps a debug/elf.File.
type File struct {
	ELF  *elf.File
	raw  io.ReaderAt
	size int64
	arch addrspace.Arch
}

// Open opens an ELF file and validates its type and machine.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}

	arch, err := machineArch(ef)
	if err != nil {
		ef.Close()
		f.Close()
		return nil, err
	}
	switch ef.Type {
	case elf.ET_CORE, elf.ET_EXEC, elf.ET_DYN:
	default:
		ef.Close()
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, ef.Type)
	}

	return &File{ELF: ef, raw: f, size: info.Size(), arch: arch}, nil
}

func machineArch(ef *elf.File) (addrspace.Arch, error) {
	var a addrspace.Arch
	switch {
	case ef.Machine == elf.EM_X86_64 && ef.Class == elf.ELFCLASS64:
		a = addrspace.AMD64
	case ef.Machine == elf.EM_AARCH64 && ef.Class == elf.ELFCLASS64:
		a = addrspace.ARM64
	case ef.Machine == elf.EM_386 && ef.Class == elf.ELFCLASS32:
		a = addrspace.I386
	default:
		return a, fmt.Errorf("%w: %v/%v", ErrUnsupportedArch, ef.Machine, ef.Class)
	}
	if ef.ByteOrder != a.ByteOrder {
		return a, fmt.Errorf("%w: %v with byte order %v", ErrUnsupportedArch, ef.Machine, ef.ByteOrder)
	}
	return a, nil
}

// Close releases resources.
func (f *File) Close() error {
	err := f.ELF.Close()
	if c, ok := f.raw.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// Arch returns the target architecture.
func (f *File) Arch() addrspace.Arch { return f.arch }

// IsCore reports whether f is a core file.
func (f *File) IsCore() bool { return f.ELF.Type == elf.ET_CORE }

// Symbol looks up a symbol by exact name, first in the static symbol table
// and then in the dynamic one. Returns the symbol's value and size.
func (f *File) Symbol(name string) (addr, size uint64, err error) {
	for _, table := range []func() ([]elf.Symbol, error){f.ELF.Symbols, f.ELF.DynamicSymbols} {
		syms, err := table()
		if err != nil {
			continue
		}
		for _, s := range syms {
			if s.Name == name {
				return s.Value, s.Size, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrNoSymbol, name)
}

// VAToFileOffset converts a virtual address to a file offset using PT_LOAD segments.
func (f *File) VAToFileOffset(va uint64) (uint64, error) {
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if va >= p.Vaddr && va < p.Vaddr+p.Filesz {
			offset := va - p.Vaddr + p.Off
			if offset >= uint64(f.size) {
				return 0, fmt.Errorf("elfx: VA 0x%x maps to offset 0x%x beyond file size 0x%x", va, offset, f.size)
			}
			return offset, nil
		}
	}
	return 0, fmt.Errorf("%w: VA 0x%x", ErrNoSegment, va)
}

// ReadAt reads bytes from the underlying file at the given file offset.
func (f *File) ReadAt(buf []byte, off int64) (int, error) {
	return f.raw.ReadAt(buf, off)
}

// SegmentInfo describes a PT_LOAD segment.
type SegmentInfo struct {
	Vaddr  uint64
	Memsz  uint64
	Filesz uint64
	Offset uint64
	Flags  elf.ProgFlag
}

// LoadSegments returns all PT_LOAD segments.
func (f *File) LoadSegments() []SegmentInfo {
	var segs []SegmentInfo
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		segs = append(segs, SegmentInfo{
			Vaddr:  p.Vaddr,
			Memsz:  p.Memsz,
			Filesz: p.Filesz,
			Offset: p.Off,
			Flags:  p.Flags,
		})
	}
	return segs
}

// ByteOrder returns the ELF byte order.
func (f *File) ByteOrder() binary.ByteOrder {
	return f.ELF.ByteOrder
}

const maxSegmentSize = 1 << 30

// segment reads one PT_LOAD segment relocated by bias. Core files only
// hold the dumped bytes; executables zero-fill up to Memsz.
func (f *File) segment(s SegmentInfo, bias uint64) (addrspace.Segment, error) {
	n := s.Filesz
	if !f.IsCore() && s.Memsz > n {
		n = s.Memsz
	}
	if n > maxSegmentSize {
		return addrspace.Segment{}, fmt.Errorf("elfx: segment at VA 0x%x is too large (0x%x bytes)", s.Vaddr, n)
	}
	if s.Offset+s.Filesz > uint64(f.size) {
		return addrspace.Segment{}, fmt.Errorf("elfx: segment at VA 0x%x extends past end of file", s.Vaddr)
	}
	data := make([]byte, n)
	if _, err := f.raw.ReadAt(data[:s.Filesz], int64(s.Offset)); err != nil && !errors.Is(err, io.EOF) {
		return addrspace.Segment{}, fmt.Errorf("elfx: read segment at VA 0x%x: %w", s.Vaddr, err)
	}
	return addrspace.Segment{
		Addr:     s.Vaddr + bias,
		Data:     data,
		Readable: s.Flags&elf.PF_R != 0,
		Writable: s.Flags&elf.PF_W != 0,
	}, nil
}

// Segments returns the file's PT_LOAD segments as target memory.
// Empty segments are skipped.
func (f *File) Segments() (*addrspace.Segments, error) {
	var ss addrspace.Segments
	for _, s := range f.LoadSegments() {
		if s.Filesz == 0 && (f.IsCore() || s.Memsz == 0) {
			continue
		}
		seg, err := f.segment(s, 0)
		if err != nil {
			return nil, err
		}
		if err := ss.Insert(seg); err != nil {
			return nil, fmt.Errorf("elfx: %w", err)
		}
	}
	return &ss, nil
}

// Overlay fills the ranges of ss not already covered with f's segments,
// relocated by bias. It is used to supply read-only executable pages a
// core file omits.
func (f *File) Overlay(ss *addrspace.Segments, bias uint64) error {
	for _, s := range f.LoadSegments() {
		if s.Memsz == 0 {
			continue
		}
		seg, err := f.segment(s, bias)
		if err != nil {
			return err
		}
		if err := ss.Fill(seg); err != nil {
			return fmt.Errorf("elfx: %w", err)
		}
	}
	return nil
}
