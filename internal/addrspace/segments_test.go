package addrspace

import (
	"errors"
	"testing"
)

func seg(addr uint64, size int, r, w bool) Segment {
	return Segment{Addr: addr, Data: make([]byte, size), Readable: r, Writable: w}
}

func TestSegmentsInsert(t *testing.T) {
	inserts := []struct {
		addr uint64
		size int
		want bool
	}{
		{20, 8, true},
		{30, 8, true},
		{10, 8, true},
		{8, 2, true},
		{6, 3, false},
		{12, 4, false},
		{17, 4, false},
		{22, 4, false},
		{36, 4, false},
		{50, 4, true},
	}
	var ss Segments
	for _, tt := range inserts {
		got := ss.Insert(seg(tt.addr, tt.size, true, false)) == nil
		if got != tt.want {
			t.Errorf("Insert(addr=%v, size=%v)=%v want %v", tt.addr, tt.size, got, tt.want)
		}
	}

	lookups := []struct {
		addr     uint64
		want     bool
		wantAddr uint64
	}{
		{20, true, 20},
		{27, true, 20},
		{28, false, 0},
		{8, true, 8},
		{5, false, 0},
		{53, true, 50},
		{54, false, 0},
	}
	for _, tt := range lookups {
		s, got := ss.Find(tt.addr)
		if got != tt.want || (got && s.Addr != tt.wantAddr) {
			t.Errorf("Find(%v)=%v,%v want %v,%v", tt.addr, s.Addr, got, tt.wantAddr, tt.want)
		}
	}
}

func TestSegmentsReadDoesNotSpan(t *testing.T) {
	var ss Segments
	ss.Insert(seg(0x1000, 8, true, true))
	ss.Insert(seg(0x1008, 8, true, true))
	s := New(&ss, AMD64)

	if _, err := s.ReadLong(0x1000); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadBytes(0x1004, 8); !errors.Is(err, ErrUnmapped) {
		t.Fatalf("read across segments: err = %v, want ErrUnmapped", err)
	}
}

func TestSegmentsPermissions(t *testing.T) {
	var ss Segments
	ss.Insert(seg(0x1000, 8, false, false)) // guard page
	ss.Insert(seg(0x2000, 8, true, false))
	s := New(&ss, AMD64)

	if _, err := s.ReadLong(0x1000); !errors.Is(err, ErrUnmapped) {
		t.Errorf("read of non-readable segment: err = %v", err)
	}
	if err := s.WriteLong(0x2000, 1); !errors.Is(err, ErrUnmapped) {
		t.Errorf("write of read-only segment: err = %v", err)
	}
}

func TestSegmentsFill(t *testing.T) {
	var ss Segments
	ss.Insert(Segment{Addr: 0x1010, Data: []byte{1, 1, 1, 1, 1, 1, 1, 1}, Readable: true})

	exec := Segment{Addr: 0x1000, Data: make([]byte, 0x30), Readable: true}
	for i := range exec.Data {
		exec.Data[i] = 2
	}
	if err := ss.Fill(exec); err != nil {
		t.Fatal(err)
	}
	if n := len(ss.List()); n != 3 {
		t.Fatalf("got %d segments, want 3: %v", n, ss.List())
	}
	s := New(&ss, AMD64)
	for _, tt := range []struct {
		addr uint64
		want int8
	}{
		{0x1000, 2},
		{0x1010, 1},
		{0x1017, 1},
		{0x1018, 2},
		{0x102f, 2},
	} {
		if v, err := s.ReadInt8(tt.addr); err != nil || v != tt.want {
			t.Errorf("ReadInt8(0x%x) = %d, %v; want %d", tt.addr, v, err, tt.want)
		}
	}
}

func TestParseMapsLine(t *testing.T) {
	m, err := parseMapsLine("7f1c2a000000-7f1c2a021000 rw-p 00000000 00:00 0                          [heap]")
	if err != nil {
		t.Fatal(err)
	}
	if m.Start != 0x7f1c2a000000 || m.End != 0x7f1c2a021000 || !m.Readable || !m.Writable || m.Path != "[heap]" {
		t.Errorf("parsed %+v", m)
	}
	maps := []Mapping{m, {Start: 0x7f1c2b000000, End: 0x7f1c2b001000, Readable: true}}
	if _, ok := findMapping(maps, 0x7f1c2a020fff); !ok {
		t.Error("address inside first mapping not found")
	}
	if _, ok := findMapping(maps, 0x7f1c2a021000); ok {
		t.Error("address past first mapping found")
	}
	if _, err := parseMapsLine("garbage"); err == nil {
		t.Error("expected error for garbage line")
	}
}
