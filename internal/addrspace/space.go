// Package addrspace implements bounded, alignment-checked access to the
// memory of an inspected target: a live process, a core file or an
// in-memory image.
//
// The target is assumed to be stopped for the duration of a session. Reads
// are synchronous and single-shot; a failed read is reported, never retried.
package addrspace

import (
	"bytes"
	"fmt"
)

// Source is a backend that can copy bytes out of (and into) a target.
// Implementations report ranges that are not mapped, or not readable or
// writable as required, with an *UnmappedAddressError.
type Source interface {
	ReadAt(p []byte, addr uint64) error
	WriteAt(p []byte, addr uint64) error
}

// Space provides typed access to a Source.
type Space struct {
	src  Source
	arch Arch
}

// New returns a Space reading src with the word layout of arch.
func New(src Source, arch Arch) *Space {
	return &Space{src: src, arch: arch}
}

// Arch returns the target's word layout.
func (s *Space) Arch() Arch { return s.arch }

// AddressSize returns the width of a target address in bytes.
func (s *Space) AddressSize() int { return s.arch.AddressSize }

// Source returns the backend.
func (s *Space) Source() Source { return s.src }

func (s *Space) read(addr uint64, width int) ([]byte, error) {
	if width > 1 && addr%uint64(width) != 0 {
		return nil, &UnalignedAddressError{Addr: addr, Width: width}
	}
	if addr+uint64(width) < addr {
		return nil, unmapped("read", addr, width)
	}
	buf := make([]byte, width)
	if err := s.src.ReadAt(buf, addr); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Space) write(addr uint64, buf []byte) error {
	width := len(buf)
	if width > 1 && addr%uint64(width) != 0 {
		return &UnalignedAddressError{Addr: addr, Width: width}
	}
	if addr+uint64(width) < addr {
		return unmapped("write", addr, width)
	}
	return s.src.WriteAt(buf, addr)
}

// ReadInt8 reads a signed 8-bit value.
func (s *Space) ReadInt8(addr uint64) (int8, error) {
	b, err := s.read(addr, 1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// ReadShort reads a signed 16-bit value.
func (s *Space) ReadShort(addr uint64) (int16, error) {
	b, err := s.read(addr, 2)
	if err != nil {
		return 0, err
	}
	return int16(s.arch.ByteOrder.Uint16(b)), nil
}

// ReadInt reads a signed 32-bit value.
func (s *Space) ReadInt(addr uint64) (int32, error) {
	b, err := s.read(addr, 4)
	if err != nil {
		return 0, err
	}
	return int32(s.arch.ByteOrder.Uint32(b)), nil
}

// ReadLong reads a signed 64-bit value.
func (s *Space) ReadLong(addr uint64) (int64, error) {
	b, err := s.read(addr, 8)
	if err != nil {
		return 0, err
	}
	return int64(s.arch.ByteOrder.Uint64(b)), nil
}

// ReadUint reads an unsigned integer of width 1, 2, 4 or 8 bytes.
func (s *Space) ReadUint(addr uint64, width int) (uint64, error) {
	if !validWidth(width) {
		return 0, fmt.Errorf("addrspace: unsupported width %d", width)
	}
	b, err := s.read(addr, width)
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(s.arch.ByteOrder.Uint16(b)), nil
	case 4:
		return uint64(s.arch.ByteOrder.Uint32(b)), nil
	default:
		return s.arch.ByteOrder.Uint64(b), nil
	}
}

// ReadAddress reads an address-width value.
func (s *Space) ReadAddress(addr uint64) (uint64, error) {
	return s.ReadUint(addr, s.arch.AddressSize)
}

// ReadBytes copies n raw bytes starting at addr. No alignment is required.
func (s *Space) ReadBytes(addr uint64, n int) ([]byte, error) {
	if n < 0 || addr+uint64(n) < addr {
		return nil, unmapped("read", addr, n)
	}
	buf := make([]byte, n)
	if err := s.src.ReadAt(buf, addr); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadCString reads a NUL-terminated string of at most max bytes.
// A string that reaches max without a terminator is returned truncated.
func (s *Space) ReadCString(addr uint64, max int) (string, error) {
	const chunk = 64
	var out []byte
	for len(out) < max {
		n := chunk
		if rem := max - len(out); rem < n {
			n = rem
		}
		buf, err := s.ReadBytes(addr+uint64(len(out)), n)
		if err != nil {
			// A short string may end just before unmapped memory.
			buf, err = s.readTail(addr+uint64(len(out)), n)
			if err != nil {
				return "", err
			}
		}
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			return string(append(out, buf[:i]...)), nil
		}
		out = append(out, buf...)
	}
	return string(out), nil
}

func (s *Space) readTail(addr uint64, n int) ([]byte, error) {
	var out []byte
	for i := 0; i < n; i++ {
		b, err := s.ReadBytes(addr+uint64(i), 1)
		if err != nil {
			return nil, err
		}
		out = append(out, b[0])
		if b[0] == 0 {
			return out, nil
		}
	}
	return out, nil
}

func validWidth(width int) bool {
	return width == 1 || width == 2 || width == 4 || width == 8
}

// WriteInt8 writes a signed 8-bit value.
func (s *Space) WriteInt8(addr uint64, v int8) error {
	return s.write(addr, []byte{byte(v)})
}

// WriteShort writes a signed 16-bit value.
func (s *Space) WriteShort(addr uint64, v int16) error {
	buf := make([]byte, 2)
	s.arch.ByteOrder.PutUint16(buf, uint16(v))
	return s.write(addr, buf)
}

// WriteInt writes a signed 32-bit value.
func (s *Space) WriteInt(addr uint64, v int32) error {
	buf := make([]byte, 4)
	s.arch.ByteOrder.PutUint32(buf, uint32(v))
	return s.write(addr, buf)
}

// WriteLong writes a signed 64-bit value.
func (s *Space) WriteLong(addr uint64, v int64) error {
	buf := make([]byte, 8)
	s.arch.ByteOrder.PutUint64(buf, uint64(v))
	return s.write(addr, buf)
}

// WriteUint writes the low width bytes of v.
func (s *Space) WriteUint(addr uint64, width int, v uint64) error {
	if !validWidth(width) {
		return fmt.Errorf("addrspace: unsupported width %d", width)
	}
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		s.arch.ByteOrder.PutUint16(buf, uint16(v))
	case 4:
		s.arch.ByteOrder.PutUint32(buf, uint32(v))
	default:
		s.arch.ByteOrder.PutUint64(buf, v)
	}
	return s.write(addr, buf)
}

// WriteAddress writes an address-width value.
func (s *Space) WriteAddress(addr uint64, v uint64) error {
	return s.WriteUint(addr, s.arch.AddressSize, v)
}
