package main

import (
	"flag"
	"fmt"
	"strconv"

	"vmscope/internal/addrspace"
)

func cmdRead(args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	tf := addTargetFlags(fs)
	var addr uintFlag
	fs.Var(&addr, "addr", "address to read")
	width := fs.String("width", "ptr", "access width: 1, 2, 4, 8, ptr or cstr")
	count := fs.Int("count", 1, "number of consecutive values")
	maxLen := fs.Int("max", 256, "maximum C string length")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if !addr.set {
		return fmt.Errorf("--addr is required")
	}
	if *count < 1 {
		return fmt.Errorf("--count must be positive")
	}

	t, err := openTarget(tf)
	if err != nil {
		return err
	}
	defer t.Close()

	if *width == "cstr" {
		s, err := t.space.ReadCString(addr.v, *maxLen)
		if err != nil {
			return err
		}
		fmt.Printf("0x%x: %q\n", addr.v, s)
		return nil
	}

	c := t.space.NewCursor(addr.v)
	next, w, err := cursorReader(t.space, c, *width)
	if err != nil {
		return err
	}
	for i := 0; i < *count; i++ {
		at := c.Position()
		v, err := next()
		if err != nil {
			return err
		}
		fmt.Printf("0x%x: 0x%0*x %d\n", at, 2*w, v, v)
	}
	return nil
}

// cursorReader returns a function reading successive values of the given
// width from c, and the width in bytes.
func cursorReader(s *addrspace.Space, c *addrspace.Cursor, width string) (func() (uint64, error), int, error) {
	switch width {
	case "ptr":
		return c.Address, s.AddressSize(), nil
	case "8":
		return c.Uint64, 8, nil
	case "4":
		return func() (uint64, error) {
			v, err := c.Uint32()
			return uint64(v), err
		}, 4, nil
	case "1", "2":
		w, _ := strconv.Atoi(width)
		return func() (uint64, error) {
			v, err := s.ReadUint(c.Position(), w)
			if err == nil {
				c.Skip(uint64(w))
			}
			return v, err
		}, w, nil
	}
	return nil, 0, fmt.Errorf("bad --width %q", width)
}
