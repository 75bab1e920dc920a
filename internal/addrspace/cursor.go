package addrspace

// Cursor reads consecutive values from a Space, advancing its position
// after each successful read. Table walkers use it to step through arrays
// of structs in the target.
type Cursor struct {
	s   *Space
	pos uint64
}

// NewCursor returns a cursor positioned at addr.
func (s *Space) NewCursor(addr uint64) *Cursor {
	return &Cursor{s: s, pos: addr}
}

// Position returns the current read position.
func (c *Cursor) Position() uint64 { return c.pos }

// Seek sets the read position.
func (c *Cursor) Seek(addr uint64) { c.pos = addr }

// Skip advances the position by n bytes.
func (c *Cursor) Skip(n uint64) { c.pos += n }

// Uint32 reads an unsigned 32-bit value.
func (c *Cursor) Uint32() (uint32, error) {
	v, err := c.s.ReadUint(c.pos, 4)
	if err != nil {
		return 0, err
	}
	c.pos += 4
	return uint32(v), nil
}

// Uint64 reads an unsigned 64-bit value.
func (c *Cursor) Uint64() (uint64, error) {
	v, err := c.s.ReadUint(c.pos, 8)
	if err != nil {
		return 0, err
	}
	c.pos += 8
	return v, nil
}

// Address reads an address-width value.
func (c *Cursor) Address() (uint64, error) {
	v, err := c.s.ReadAddress(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += uint64(c.s.AddressSize())
	return v, nil
}
