package addrspace

import (
	"errors"
	"fmt"
)

var (
	ErrUnmapped  = errors.New("addrspace: unmapped address")
	ErrUnaligned = errors.New("addrspace: unaligned address")
	ErrReadOnly  = errors.New("addrspace: range is not writable")
)

// UnmappedAddressError reports an access to memory that does not resolve to
// readable (or, for writes, writable) memory in the target.
type UnmappedAddressError struct {
	Addr uint64
	Size uint64
	Op   string // "read" or "write"
}

func (e *UnmappedAddressError) Error() string {
	return fmt.Sprintf("addrspace: %s of %d bytes at 0x%x: unmapped", e.Op, e.Size, e.Addr)
}

func (e *UnmappedAddressError) Unwrap() error { return ErrUnmapped }

// UnalignedAddressError reports a multi-byte access that is not naturally
// aligned for its width.
type UnalignedAddressError struct {
	Addr  uint64
	Width int
}

func (e *UnalignedAddressError) Error() string {
	return fmt.Sprintf("addrspace: %d-byte access at 0x%x is not %d-byte aligned", e.Width, e.Addr, e.Width)
}

func (e *UnalignedAddressError) Unwrap() error { return ErrUnaligned }

func unmapped(op string, addr uint64, size int) error {
	return &UnmappedAddressError{Addr: addr, Size: uint64(size), Op: op}
}
