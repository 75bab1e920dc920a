package render

import (
	"strings"
	"testing"

	"vmscope/internal/addrspace"
	"vmscope/internal/disasm"
)

func TestCFGDOT_X86(t *testing.T) {
	// test rax, rax; je +2; xor eax, eax; ret
	code := []byte{0x48, 0x85, 0xc0, 0x74, 0x02, 0x31, 0xc0, 0xc3}
	insts, err := disasm.Disassemble(code, disasm.Options{Arch: addrspace.AMD64, BaseAddr: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	dot := CFGDOT(disasm.BuildCFG("entry", insts), NASA)

	for _, want := range []string{
		"digraph cfg {",
		"bb0 [label=<",
		"0x1000: test rax, rax",
		NASA.EntryBorder,
		NASA.TermFill,
		"color=\"" + NASA.EdgeTaken + "\"",
		"color=\"" + NASA.EdgeFallthrough + "\"",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("missing %q in:\n%s", want, dot)
		}
	}
}

func TestCFGDOT_Unreachable(t *testing.T) {
	// jmp +1; nop; ret: the nop block has no predecessor.
	code := []byte{0xeb, 0x01, 0x90, 0xc3}
	insts, err := disasm.Disassemble(code, disasm.Options{Arch: addrspace.AMD64, BaseAddr: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	dot := CFGDOT(disasm.BuildCFG("skip", insts), NASA)
	if !strings.Contains(dot, "style=\"filled,dashed\"") {
		t.Errorf("unreachable block not dashed:\n%s", dot)
	}
	if !strings.Contains(dot, "bb0 -> bb2") {
		t.Errorf("missing jump edge:\n%s", dot)
	}
}

func TestCFGDOT_Elides(t *testing.T) {
	code := make([]byte, 20)
	for i := range code {
		code[i] = 0x90
	}
	insts, err := disasm.Disassemble(code, disasm.Options{Arch: addrspace.AMD64, BaseAddr: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	dot := CFGDOT(disasm.BuildCFG("nops", insts), NASA)
	if !strings.Contains(dot, "... 8 more") {
		t.Errorf("long block not elided:\n%s", dot)
	}
	if strings.Count(dot, ": nop") != 12 {
		t.Errorf("want 12 visible instructions:\n%s", dot)
	}
}

func TestCFGDOT_Empty(t *testing.T) {
	if dot := CFGDOT(disasm.FuncCFG{Name: "empty"}, NASA); dot != "" {
		t.Errorf("got %q", dot)
	}
}

func TestTruncLabel(t *testing.T) {
	if got := truncLabel("abcdefgh", 6); got != "abc..." {
		t.Errorf("got %q", got)
	}
	if got := truncLabel("abc", 6); got != "abc" {
		t.Errorf("got %q", got)
	}
}
