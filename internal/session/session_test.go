package session

import (
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"vmscope/internal/addrspace"
	"vmscope/internal/diag"
	"vmscope/internal/field"
	"vmscope/internal/freelist"
	"vmscope/internal/oops"
	"vmscope/internal/vmtypes"
)

func TestRegistryAttachOnce(t *testing.T) {
	var r Registry
	var calls atomic.Int32
	h := Handle{Kind: "pid", PID: 42}
	init := func() (*Session, error) {
		calls.Add(1)
		return &Session{Handle: h}, nil
	}

	var wg sync.WaitGroup
	got := make([]*Session, 8)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Attach(h, init)
			if err != nil {
				t.Error(err)
			}
			got[i] = s
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("init ran %d times", calls.Load())
	}
	for _, s := range got {
		if s != got[0] {
			t.Fatal("Attach returned different sessions for one handle")
		}
	}

	other, err := r.Attach(Handle{Kind: "pid", PID: 43}, init)
	if err != nil || other == got[0] {
		t.Errorf("second handle: %v, %v", other, err)
	}
	if hs := r.Handles(); len(hs) != 2 || hs[0].String() != "pid:42" {
		t.Errorf("Handles = %v", hs)
	}

	if !r.Detach(h) || r.Detach(h) {
		t.Error("Detach did not report attachment state")
	}
	again, err := r.Attach(h, init)
	if err != nil || again == got[0] || calls.Load() != 3 {
		t.Errorf("re-attach: %v, %v, calls=%d", again, err, calls.Load())
	}
}

func TestRegistryFailedInit(t *testing.T) {
	var r Registry
	h := Handle{Kind: "core", Path: "/tmp/core"}
	boom := errors.New("boom")
	if _, err := r.Attach(h, func() (*Session, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	s, err := r.Attach(h, func() (*Session, error) { return &Session{Handle: h}, nil })
	if err != nil || s == nil {
		t.Errorf("retry after failure: %v, %v", s, err)
	}
}

func testCatalog(t *testing.T) *vmtypes.Table {
	t.Helper()
	tab := vmtypes.NewTable(8)
	for _, ty := range []vmtypes.Type{
		{Name: "oop", Size: 8, IsOopType: true},
		{Name: "address", Size: 8},
		{Name: "int", Size: 4, IsInteger: true},
		{Name: "size_t", Size: 8, IsInteger: true, IsUnsigned: true},
		{Name: "Mutex", Size: 64},
	} {
		if err := tab.AddType(ty); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range []vmtypes.FieldEntry{
		{Type: "oopDesc", Name: "_klass", TypeName: "Klass*", Offset: 8},
		{Type: "Holder", Name: "_obj", TypeName: "oop", Offset: 0},
		{Type: "Holder", Name: "_lock", TypeName: "Mutex", Offset: 8},
		{Type: "Universe", Name: "_main_thread_group", TypeName: "oop", Static: true, Address: 0x2010},
	} {
		if err := tab.AddField(e); err != nil {
			t.Fatal(err)
		}
	}
	return tab
}

func TestCompileCodecFromStatics(t *testing.T) {
	tab := testCatalog(t)
	for _, e := range []vmtypes.FieldEntry{
		{Type: "CompressedOops", Name: "_narrow_oop._base", TypeName: "address", Static: true, Address: 0x2000},
		{Type: "CompressedOops", Name: "_narrow_oop._shift", TypeName: "int", Static: true, Address: 0x2008},
	} {
		if err := tab.AddField(e); err != nil {
			t.Fatal(err)
		}
	}
	data := make([]byte, 0x20)
	binary.LittleEndian.PutUint64(data[0:], 0x800000000)
	binary.LittleEndian.PutUint32(data[8:], 3)
	binary.LittleEndian.PutUint32(data[0x10:], 5)
	space := addrspace.New(addrspace.NewBuffer(0x2000, data), addrspace.AMD64)

	s, err := Compile(Handle{Kind: "image"}, space, tab, Options{Diag: diag.Options{Mode: diag.ModeBestEffort}})
	if err != nil {
		t.Fatal(err)
	}
	if s.Target.Narrow != (oops.Codec{Base: 0x800000000, Shift: 3}) || !s.Compressed {
		t.Errorf("codec = %+v compressed=%v", s.Target.Narrow, s.Compressed)
	}
	if s.CodecSource != "CompressedOops::_narrow_oop._base" {
		t.Errorf("source = %q", s.CodecSource)
	}
	if len(s.Diags) != 1 || s.Diags[0].Kind != diag.KindUnknown {
		t.Errorf("diags = %v", s.Diags)
	}
	f, err := s.Schema.Lookup("Universe", "_main_thread_group")
	if err != nil {
		t.Fatal(err)
	}
	if f.Kind() != field.NarrowOop {
		t.Fatalf("kind = %v", f.Kind())
	}
	v, err := f.StaticValue(s.Target)
	if err != nil {
		t.Fatal(err)
	}
	if v.Oop().Addr() != 0x800000000+5<<3 {
		t.Errorf("decoded %v", v.Oop())
	}
}

func TestCompileCodecSources(t *testing.T) {
	space := addrspace.New(addrspace.NewBuffer(0, make([]byte, 8)), addrspace.AMD64)

	tab := testCatalog(t)
	tab.SetConstant(constNarrowShift, 3)
	s, err := Compile(Handle{}, space, tab, Options{Diag: diag.Options{Mode: diag.ModeBestEffort}})
	if err != nil {
		t.Fatal(err)
	}
	if s.CodecSource != "constants" || s.Target.Narrow.Shift != 3 || !s.Compressed {
		t.Errorf("constants: %+v", s)
	}

	off := false
	codec := oops.Codec{Base: 0x1000, Shift: 4}
	s, err = Compile(Handle{}, space, tab, Options{Diag: diag.Options{Mode: diag.ModeBestEffort}, Narrow: &codec, Compressed: &off})
	if err != nil {
		t.Fatal(err)
	}
	if s.Target.Narrow != codec || s.Compressed {
		t.Errorf("override: %+v", s)
	}
	f, err := s.Schema.Lookup("Holder", "_obj")
	if err != nil || f.Kind() != field.Oop {
		t.Errorf("uncompressed _obj = %v, %v", f, err)
	}

	s, err = Compile(Handle{}, space, testCatalog(t), Options{Diag: diag.Options{Mode: diag.ModeBestEffort}})
	if err != nil || s.Compressed || s.CodecSource != "" {
		t.Errorf("no codec: %+v, %v", s, err)
	}

	bad := oops.Codec{Shift: 40}
	if _, err := Compile(Handle{}, space, testCatalog(t), Options{Narrow: &bad}); err == nil {
		t.Error("shift 40 accepted")
	}
	if _, err := Compile(Handle{}, space, testCatalog(t), Options{}); err == nil {
		t.Error("strict compile accepted an unrepresentable field")
	}
}

func TestCompileNarrowWithoutCodec(t *testing.T) {
	space := addrspace.New(addrspace.NewBuffer(0, make([]byte, 8)), addrspace.AMD64)
	tab := testCatalog(t)
	if err := tab.AddType(vmtypes.Type{Name: "narrowOop", Size: 4, IsOopType: true, IsInteger: true, IsUnsigned: true}); err != nil {
		t.Fatal(err)
	}
	if err := tab.AddField(vmtypes.FieldEntry{Type: "Holder", Name: "_narrow", TypeName: "narrowOop", Offset: 16}); err != nil {
		t.Fatal(err)
	}

	s, err := Compile(Handle{}, space, tab, Options{Diag: diag.Options{Mode: diag.ModeBestEffort}})
	if err != nil {
		t.Fatal(err)
	}
	if s.CodecSource != "" || s.Compressed {
		t.Fatalf("source = %q compressed=%v", s.CodecSource, s.Compressed)
	}
	var found bool
	for _, d := range s.Diags {
		if d.Kind == diag.KindNoCodec {
			found = true
			if !strings.Contains(d.Msg, "Holder::_narrow") {
				t.Errorf("msg = %q", d.Msg)
			}
		}
	}
	if !found {
		t.Errorf("no %s diagnostic in %v", diag.KindNoCodec, s.Diags)
	}
	f, err := s.Schema.Lookup("Holder", "_narrow")
	if err != nil || f.Kind() != field.NarrowOop {
		t.Errorf("_narrow = %v, %v", f, err)
	}

	tab.SetConstant(constNarrowShift, 3)
	s, err = Compile(Handle{}, space, tab, Options{Diag: diag.Options{Mode: diag.ModeBestEffort}})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range s.Diags {
		if d.Kind == diag.KindNoCodec {
			t.Errorf("codec found but got %v", d)
		}
	}
}

func TestCompileCodecUnmapped(t *testing.T) {
	tab := testCatalog(t)
	if err := tab.AddField(vmtypes.FieldEntry{Type: "Universe", Name: "_narrow_oop._base", TypeName: "address", Static: true, Address: 0x9000}); err != nil {
		t.Fatal(err)
	}
	if err := tab.AddField(vmtypes.FieldEntry{Type: "Universe", Name: "_narrow_oop._shift", TypeName: "int", Static: true, Address: 0x9008}); err != nil {
		t.Fatal(err)
	}
	space := addrspace.New(addrspace.NewBuffer(0, make([]byte, 8)), addrspace.AMD64)
	_, err := Compile(Handle{}, space, tab, Options{Diag: diag.Options{Mode: diag.ModeBestEffort}})
	if !errors.Is(err, addrspace.ErrUnmapped) {
		t.Errorf("err = %v", err)
	}
}

func TestSessionDictionary(t *testing.T) {
	space := addrspace.New(addrspace.NewBuffer(0, make([]byte, 8)), addrspace.AMD64)
	s, err := Compile(Handle{}, space, testCatalog(t), Options{Diag: diag.Options{Mode: diag.ModeBestEffort}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Dictionary(freelist.DefaultNames, 0); !errors.Is(err, vmtypes.ErrUnknownField) {
		t.Errorf("err = %v", err)
	}
}
