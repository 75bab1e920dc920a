package main

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vmscope/internal/output"
	"vmscope/internal/vmtypes"
)

const imageBase = 0x1000

// fixture writes a memory image holding a two-node dictionary and the
// matching type database, and returns the target flags for them.
//
//	0x1000 BinaryTreeDictionary::_root       -> 0x1100
//	0x1008 BinaryTreeDictionary::_total_size =  48
//	0x1100 node size 32, left 0x1140
//	0x1140 node size 16, parent 0x1100
func fixture(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()

	img := make([]byte, 0x400)
	put := func(addr, v uint64) { binary.LittleEndian.PutUint64(img[addr-imageBase:], v) }
	put(0x1000, 0x1100)
	put(0x1008, 48)
	put(0x1100, 32)     // _size
	put(0x1110, 32)     // _total_size
	put(0x1118, 0x1140) // _left
	put(0x1140, 16)
	put(0x1150, 16)
	put(0x1168, 0x1100) // _parent
	put(0x1200, 0x7f)   // scratch word
	copy(img[0x1300-imageBase:], "hello\x00")
	imgPath := filepath.Join(dir, "heap.img")
	if err := os.WriteFile(imgPath, img, 0644); err != nil {
		t.Fatal(err)
	}

	tbl := vmtypes.NewTable(8)
	for _, ty := range []vmtypes.Type{
		{Name: "size_t", Size: 8, IsInteger: true, IsUnsigned: true},
		{Name: "BinaryTreeDictionary", Size: 16},
		{Name: "TreeList", Size: 48},
		{Name: "FreeChunk", Size: 16},
		{Name: "Scratch", Size: 8},
	} {
		if err := tbl.AddType(ty); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range []vmtypes.FieldEntry{
		{Type: "BinaryTreeDictionary", Name: "_root", TypeName: "TreeList*", Static: true, Address: 0x1000},
		{Type: "BinaryTreeDictionary", Name: "_total_size", TypeName: "size_t", Static: true, Address: 0x1008},
		{Type: "TreeList", Name: "_size", TypeName: "size_t", Offset: 0},
		{Type: "TreeList", Name: "_total_size", TypeName: "size_t", Offset: 16},
		{Type: "TreeList", Name: "_left", TypeName: "TreeList*", Offset: 24},
		{Type: "TreeList", Name: "_right", TypeName: "TreeList*", Offset: 32},
		{Type: "TreeList", Name: "_parent", TypeName: "TreeList*", Offset: 40},
		{Type: "FreeChunk", Name: "_size", TypeName: "size_t", Offset: 0},
		{Type: "FreeChunk", Name: "_next", TypeName: "FreeChunk*", Offset: 8},
		{Type: "Scratch", Name: "_word", TypeName: "jlong", Static: true, Address: 0x1200},
	} {
		if err := tbl.AddField(e); err != nil {
			t.Fatal(err)
		}
	}
	tbl.SetConstant("narrow_oop_base", 0x800000000)
	tbl.SetConstant("narrow_oop_shift", 3)
	typesPath := filepath.Join(dir, "types.json")
	f, err := os.Create(typesPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.WriteJSON(f); err != nil {
		t.Fatal(err)
	}
	f.Close()

	return []string{"--image", imgPath, "--base", "0x1000", "--types", typesPath}
}

// capture runs fn with os.Stdout redirected and returns what it wrote.
func capture(t *testing.T, fn func() error) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	old := os.Stdout
	os.Stdout = w
	done := make(chan string)
	go func() {
		b, _ := io.ReadAll(r)
		done <- string(b)
	}()
	ferr := fn()
	os.Stdout = old
	w.Close()
	out := <-done
	if ferr != nil {
		t.Fatalf("command failed: %v\noutput:\n%s", ferr, out)
	}
	return out
}

func TestParseUint(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"16", 16, true},
		{"0x10", 16, true},
		{"0X1f", 31, true},
		{"0o17", 15, true},
		{"1_000", 1000, true},
		{"", 0, false},
		{"-1", 0, false},
		{"0xzz", 0, false},
	}
	for _, tt := range tests {
		got, err := parseUint(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseUint(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func TestSplitID(t *testing.T) {
	typ, name, err := splitID("CompressedOops::_narrow_oop._base")
	if err != nil || typ != "CompressedOops" || name != "_narrow_oop._base" {
		t.Errorf("got %q %q %v", typ, name, err)
	}
	for _, bad := range []string{"nofield", "::x", "T::"} {
		if _, _, err := splitID(bad); err == nil {
			t.Errorf("splitID(%q) should fail", bad)
		}
	}
}

func TestFreelistCommand(t *testing.T) {
	target := fixture(t)
	run := func(extra ...string) string {
		return capture(t, func() error { return cmdFreelist(append(append([]string{}, target...), extra...)) })
	}

	if got := strings.TrimSpace(run("--op", "total")); got != "48" {
		t.Errorf("total = %q", got)
	}
	if got := strings.TrimSpace(run("--op", "sizes")); got != "16\n32" {
		t.Errorf("sizes = %q", got)
	}
	if got := run("--op", "bestfit", "--size", "20"); !strings.Contains(got, "node@0x1100 size=32") {
		t.Errorf("bestfit = %q", got)
	}
	if got := strings.TrimSpace(run("--op", "find", "--size", "20")); got != "none" {
		t.Errorf("find = %q", got)
	}
	if got := run("--op", "verify"); !strings.Contains(got, "total=48 nodes=2 chunks=2") {
		t.Errorf("verify = %q", got)
	}

	var chunks []map[string]any
	if err := json.Unmarshal([]byte(run("--op", "chunks", "--size", "16", "--json")), &chunks); err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0]["addr"] != float64(0x1140) {
		t.Errorf("chunks = %v", chunks)
	}

	dot := filepath.Join(t.TempDir(), "tree.dot")
	run("--op", "total", "--dot", dot, "--themed")
	data, err := os.ReadFile(dot)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "n_1100 -> n_1140") {
		t.Errorf("dot:\n%s", data)
	}
}

func TestFieldsCommand(t *testing.T) {
	target := fixture(t)
	out := capture(t, func() error { return cmdFields(append(target, "--type", "TreeList", "--addr", "0x1140")) })
	for _, want := range []string{"TreeList::_size", "TreeList::_parent", "0x1100"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	dir := t.TempDir()
	capture(t, func() error { return cmdFields(append(fixture(t), "--out", dir)) })
	data, err := os.ReadFile(filepath.Join(dir, "fields.json"))
	if err != nil {
		t.Fatal(err)
	}
	var recs []output.FieldRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range recs {
		if r.ID == "BinaryTreeDictionary::_total_size" {
			found = true
			if r.Value != "48" || r.Kind != "cinteger" {
				t.Errorf("total record = %+v", r)
			}
		}
	}
	if !found {
		t.Error("static total missing from fields.json")
	}
}

func TestFieldsAddrNeedsType(t *testing.T) {
	if err := cmdFields(append(fixture(t), "--addr", "0x1100")); err == nil {
		t.Error("expected error")
	}
}

func TestReadCommand(t *testing.T) {
	target := fixture(t)
	out := capture(t, func() error { return cmdRead(append(target, "--addr", "0x1000", "--width", "8", "--count", "2")) })
	if !strings.Contains(out, "0x1000: 0x0000000000001100") || !strings.Contains(out, "0x1008: 0x0000000000000030 48") {
		t.Errorf("got:\n%s", out)
	}
	out = capture(t, func() error { return cmdRead(append(fixture(t), "--addr", "0x1300", "--width", "cstr")) })
	if !strings.Contains(out, `"hello"`) {
		t.Errorf("got:\n%s", out)
	}
	if err := cmdRead(append(fixture(t), "--addr", "0x1001", "--width", "4")); err == nil {
		t.Error("expected unaligned error")
	}
}

func TestWriteCommand(t *testing.T) {
	if err := cmdWrite(append(fixture(t), "--field", "Scratch::_word", "--value", "-2")); err != nil {
		t.Fatal(err)
	}
	if err := cmdWrite(append(fixture(t), "--field", "Scratch::_missing", "--value", "1")); err == nil {
		t.Error("expected unknown field error")
	}
	if err := cmdWrite(append(fixture(t), "--field", "TreeList::_size", "--value", "1")); err == nil {
		t.Error("expected --addr error for instance field")
	}
}

func TestNarrowCommand(t *testing.T) {
	out := capture(t, func() error {
		return cmdNarrow([]string{"--narrow-base", "0x800000000", "--narrow-shift", "3", "--decode", "0x10"})
	})
	if !strings.Contains(out, "oop@0x800000080") {
		t.Errorf("decode = %q", out)
	}
	out = capture(t, func() error { return cmdNarrow(append(fixture(t), "--encode", "0x800000080")) })
	if !strings.Contains(out, "0x00000010") {
		t.Errorf("encode = %q", out)
	}
	if err := cmdNarrow([]string{"--narrow-base", "0x800000000", "--narrow-shift", "3", "--encode", "0x800000081"}); err == nil {
		t.Error("expected encoding range error")
	}
	if err := cmdNarrow([]string{"--decode", "1"}); err == nil {
		t.Error("expected error without codec")
	}
}

func TestOpenTargetExclusive(t *testing.T) {
	if _, err := openTarget(&targetFlags{image: "a", core: "b"}); err == nil {
		t.Error("expected mutual exclusion error")
	}
	if _, err := openTarget(&targetFlags{}); err == nil {
		t.Error("expected missing target error")
	}
}

func TestFreelistChunksMissingNode(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--op", "chunks", "--node", "0"}, "no node at 0x0"},
		{[]string{"--op", "chunks", "--size", "24"}, "no node of size 24"},
	}
	for _, tt := range tests {
		err := cmdFreelist(append(fixture(t), tt.args...))
		if err == nil || err.Error() != tt.want {
			t.Errorf("%v: err = %v, want %q", tt.args, err, tt.want)
		}
	}
}

func TestInfoCommand(t *testing.T) {
	var rep infoReport
	out := capture(t, func() error { return cmdInfo(append(fixture(t), "--json")) })
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("%v\n%s", err, out)
	}
	if rep.Fields == 0 || rep.CodecSource != "constants" || rep.NarrowShift != 3 {
		t.Errorf("report = %+v", rep)
	}
	sum := 0
	for _, kc := range rep.DiagKinds {
		sum += kc.Count
	}
	if sum != rep.Diags {
		t.Errorf("diag kinds %v sum to %d, want %d", rep.DiagKinds, sum, rep.Diags)
	}
	if len(rep.Regions) != 1 || rep.Regions[0].Start != imageBase || rep.Regions[0].End != imageBase+0x400 {
		t.Errorf("regions = %+v", rep.Regions)
	}
}
