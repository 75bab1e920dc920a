package addrspace

import (
	"fmt"
	"sort"
)

// Segment describes one contiguous range of target memory.
type Segment struct {
	Addr uint64
	Data []byte

	// Readable is false for ranges such as stack guards.
	Readable bool
	// Writable is true if the range was writable in the target and the
	// backing bytes may be modified.
	Writable bool
}

func (s Segment) String() string {
	mode := ""
	if s.Readable {
		mode += "R"
	}
	if s.Writable {
		mode += "W"
	}
	return fmt.Sprintf("segment{addr:0x%x, size:0x%x, mode:%v}", s.Addr, s.Size(), mode)
}

// Size reports the size of the segment in bytes.
func (s Segment) Size() uint64 { return uint64(len(s.Data)) }

// End returns the first address past the segment.
func (s Segment) End() uint64 { return s.Addr + s.Size() }

// Contains reports whether the segment contains addr.
func (s Segment) Contains(addr uint64) bool {
	return s.Addr <= addr && addr < s.End()
}

// containsRange reports whether [addr, addr+size) lies inside the segment.
func (s Segment) containsRange(addr, size uint64) bool {
	if size == 0 {
		return s.Contains(addr) || addr == s.End()
	}
	return s.Contains(addr) && addr+size-1 >= addr && s.Contains(addr+size-1)
}

// Segments is a sorted list of non-overlapping segments. A single access
// must lie entirely inside one segment.
type Segments struct {
	list []Segment
}

// Insert adds seg. Overlapping an existing segment is an error.
func (ss *Segments) Insert(seg Segment) error {
	if seg.Size() == 0 {
		return nil
	}
	if seg.End() < seg.Addr {
		return fmt.Errorf("addrspace: %s wraps the address space", seg)
	}
	// First segment that ends after seg starts.
	k := sort.Search(len(ss.list), func(k int) bool {
		return ss.list[k].End() > seg.Addr
	})
	if k < len(ss.list) && ss.list[k].Addr < seg.End() {
		return fmt.Errorf("addrspace: %s overlaps %s", seg, ss.list[k])
	}
	ss.list = append(ss.list, Segment{})
	copy(ss.list[k+1:], ss.list[k:])
	ss.list[k] = seg
	return nil
}

// Fill inserts the parts of seg that are not already covered by an existing
// segment. It is used to layer an executable's file-backed data under a
// core file's memory.
func (ss *Segments) Fill(seg Segment) error {
	addr := seg.Addr
	for addr < seg.End() {
		next, covered := ss.nextGap(addr, seg.End())
		if !covered {
			part := seg
			part.Addr = addr
			part.Data = seg.Data[addr-seg.Addr : next-seg.Addr]
			if err := ss.Insert(part); err != nil {
				return err
			}
		}
		addr = next
	}
	return nil
}

// nextGap returns the end of the run starting at addr (bounded by end) and
// whether that run is already covered by a segment.
func (ss *Segments) nextGap(addr, end uint64) (uint64, bool) {
	if s, ok := ss.Find(addr); ok {
		return min(s.End(), end), true
	}
	k := sort.Search(len(ss.list), func(k int) bool {
		return ss.list[k].Addr > addr
	})
	if k < len(ss.list) && ss.list[k].Addr < end {
		return ss.list[k].Addr, false
	}
	return end, false
}

// Find returns the segment containing addr.
func (ss *Segments) Find(addr uint64) (Segment, bool) {
	// Binary search for an upper-bound segment, then check
	// if the previous segment contains addr.
	k := sort.Search(len(ss.list), func(k int) bool {
		return addr < ss.list[k].Addr
	})
	k--
	if k >= 0 && ss.list[k].Contains(addr) {
		return ss.list[k], true
	}
	return Segment{}, false
}

// List returns the segments in address order.
func (ss *Segments) List() []Segment { return ss.list }

// ReadAt implements Source.
func (ss *Segments) ReadAt(p []byte, addr uint64) error {
	s, ok := ss.Find(addr)
	if !ok || !s.Readable || !s.containsRange(addr, uint64(len(p))) {
		return unmapped("read", addr, len(p))
	}
	copy(p, s.Data[addr-s.Addr:])
	return nil
}

// WriteAt implements Source.
func (ss *Segments) WriteAt(p []byte, addr uint64) error {
	s, ok := ss.Find(addr)
	if !ok || !s.Writable || !s.containsRange(addr, uint64(len(p))) {
		return unmapped("write", addr, len(p))
	}
	copy(s.Data[addr-s.Addr:], p)
	return nil
}
