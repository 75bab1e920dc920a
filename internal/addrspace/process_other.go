//go:build !linux

package addrspace

import (
	"errors"
	"os"
)

// Process is only supported on linux.
type Process struct {
	PID int
}

// OpenProcess always fails on this platform.
func OpenProcess(pid int, writable bool) (*Process, error) {
	return nil, errors.New("addrspace: live process access requires linux")
}

func (p *Process) Close() error                          { return nil }
func (p *Process) Mappings() []Mapping                   { return nil }
func (p *Process) ReadAt(buf []byte, addr uint64) error  { return os.ErrInvalid }
func (p *Process) WriteAt(buf []byte, addr uint64) error { return os.ErrInvalid }
