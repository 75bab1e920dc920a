package addrspace

import (
	"encoding/binary"
	"fmt"
)

// Arch describes the word layout of a target.
type Arch struct {
	Name        string
	AddressSize int
	ByteOrder   binary.ByteOrder
}

var (
	AMD64 = Arch{Name: "amd64", AddressSize: 8, ByteOrder: binary.LittleEndian}
	ARM64 = Arch{Name: "arm64", AddressSize: 8, ByteOrder: binary.LittleEndian}
	I386  = Arch{Name: "386", AddressSize: 4, ByteOrder: binary.LittleEndian}
)

// ArchByName returns the predefined Arch with the given name.
func ArchByName(name string) (Arch, error) {
	switch name {
	case "amd64", "x86_64", "x86-64":
		return AMD64, nil
	case "arm64", "aarch64":
		return ARM64, nil
	case "386", "i386", "x86":
		return I386, nil
	}
	return Arch{}, fmt.Errorf("addrspace: unknown arch %q", name)
}

func (a Arch) String() string { return a.Name }
