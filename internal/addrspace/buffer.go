package addrspace

// Buffer is an in-memory image mapped at a fixed base address.
type Buffer struct {
	Base     uint64
	Data     []byte
	ReadOnly bool
}

// NewBuffer returns a writable Buffer over data mapped at base.
func NewBuffer(base uint64, data []byte) *Buffer {
	return &Buffer{Base: base, Data: data}
}

func (b *Buffer) contains(addr uint64, n int) bool {
	if addr < b.Base {
		return false
	}
	off := addr - b.Base
	return off <= uint64(len(b.Data)) && uint64(n) <= uint64(len(b.Data))-off
}

// ReadAt implements Source.
func (b *Buffer) ReadAt(p []byte, addr uint64) error {
	if !b.contains(addr, len(p)) {
		return unmapped("read", addr, len(p))
	}
	copy(p, b.Data[addr-b.Base:])
	return nil
}

// WriteAt implements Source.
func (b *Buffer) WriteAt(p []byte, addr uint64) error {
	if b.ReadOnly || !b.contains(addr, len(p)) {
		return unmapped("write", addr, len(p))
	}
	copy(b.Data[addr-b.Base:], p)
	return nil
}
