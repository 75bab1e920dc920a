package callgraph

import (
	"encoding/binary"
	"slices"
	"strings"
	"testing"

	"github.com/zboralski/lattice/render"

	"vmscope/internal/addrspace"
	"vmscope/internal/disasm"
)

// arm64Code assembles raw encodings at 0x1000.
func arm64Code(t *testing.T, words ...uint32) []disasm.Inst {
	t.Helper()
	data := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[4*i:], w)
	}
	insts, err := disasm.Disassemble(data, disasm.Options{Arch: addrspace.ARM64, BaseAddr: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	return insts
}

func TestBuildCFG_DOTOutput(t *testing.T) {
	// entry (B0):
	//   0x1000: MOV X0, #0
	//   0x1004: BL  0x1104
	//   0x1008: CBZ X0, 0x1018   ; conditional → B2
	//
	// true path (B1):
	//   0x100C: MOV X1, #1
	//   0x1010: BL  0x1210
	//   0x1014: B   0x1020       ; jump → B3
	//
	// false path (B2):
	//   0x1018: BL  0x1318
	//   0x101C: RET
	//
	// join (B3):
	//   0x1020: RET
	insts := arm64Code(t,
		0xD2800000, 0x94000040, 0xB4000080,
		0xD2800021, 0x94000080, 0x14000003,
		0x940000C0, 0xD65F03C0,
		0xD65F03C0,
	)
	names := disasm.MapLookup(map[uint64]string{
		0x1104: "Universe::heap",
		0x1210: "CollectedHeap::capacity",
	})

	cfg := BuildCFG([]FuncInfo{{Name: "entry_1000", Insts: insts}}, names)
	if len(cfg.Funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(cfg.Funcs))
	}
	f := cfg.Funcs[0]
	if len(f.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(f.Blocks))
	}

	b0 := f.Blocks[0]
	if len(b0.Calls) != 1 || b0.Calls[0].Callee != "Universe::heap" {
		t.Errorf("B0 calls = %+v", b0.Calls)
	}
	if len(b0.Succs) != 2 {
		t.Errorf("B0 succs = %+v", b0.Succs)
	}
	b1 := f.Blocks[1]
	if len(b1.Calls) != 1 || b1.Calls[0].Callee != "CollectedHeap::capacity" {
		t.Errorf("B1 calls = %+v", b1.Calls)
	}
	b2 := f.Blocks[2]
	if len(b2.Calls) != 1 || b2.Calls[0].Callee != "0x1318" {
		t.Errorf("B2 calls = %+v", b2.Calls)
	}
	if !b2.Term || !f.Blocks[3].Term {
		t.Error("RET blocks should be terminal")
	}

	dot := render.DOTCFG(cfg, "vmscope CFG example")
	if dot == "" {
		t.Error("expected non-empty DOT output")
	}
}

func TestBuildFuncCFGRefs(t *testing.T) {
	code := []byte{
		0x48, 0x8b, 0x05, 0xf9, 0x0f, 0x00, 0x00, // mov rax, [rip+0xff9] -> 0x2000
		0xc3,
	}
	insts, err := disasm.Disassemble(code, disasm.Options{Arch: addrspace.AMD64, BaseAddr: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	lcfg, n := BuildFuncCFG("load", insts, disasm.MapLookup(map[uint64]string{0x2000: "Universe::_collectedHeap"}))
	if n != 1 {
		t.Fatalf("blocks = %d", n)
	}
	calls := lcfg.Blocks[0].Calls
	if len(calls) != 1 || calls[0].Callee != "&Universe::_collectedHeap" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestBuildCallGraph_DOTOutput(t *testing.T) {
	main := arm64Code(t, 0x94000040, 0x94000080, 0xD65F03C0) // BL 0x1100; BL 0x1204; RET
	names := disasm.MapLookup(map[uint64]string{0x1100: "init", 0x1204: "run"})
	cg := BuildCallGraph([]FuncInfo{{Name: "main", Insts: main}, {Name: "init"}, {Name: "run"}}, names)

	for _, want := range []string{"main", "init", "run"} {
		if !slices.Contains(cg.Nodes, want) {
			t.Errorf("missing node %q in %v", want, cg.Nodes)
		}
	}
	if len(cg.Edges) != 2 || cg.Edges[0].Caller != "main" {
		t.Errorf("edges = %+v", cg.Edges)
	}

	dot := render.DOT(cg, "vmscope call graph example")
	if !strings.Contains(dot, "main") {
		t.Errorf("DOT output missing node: %s", dot)
	}
}
