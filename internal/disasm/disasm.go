// Package disasm disassembles target code for amd64, 386 and arm64.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"vmscope/internal/addrspace"
)

// Inst is a decoded instruction with address and raw bytes.
type Inst struct {
	Addr     uint64
	Raw      []byte
	Size     int
	Mnemonic string
	Operands string
	Text     string // full disassembly line

	Branch *BranchInfo // set for block terminators
	Call   uint64      // direct call target, 0 if none
	Ref    uint64      // PC-relative data address, 0 if none
}

// End returns the address following inst.
func (inst Inst) End() uint64 { return inst.Addr + uint64(inst.Size) }

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Annotator returns a comment for inst, or "".
type Annotator func(inst Inst) string

// Options controls disassembly behavior.
type Options struct {
	Arch     addrspace.Arch
	BaseAddr uint64       // VA of the first byte in Data
	MaxSteps int          // maximum instructions to decode; 0 = 10M
	Symbols  SymbolLookup // optional symbol resolver
}

const defaultMaxSteps = 10_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble decodes instructions from a byte region.
// Returns decoded instructions up to MaxSteps or end of data.
func Disassemble(data []byte, opts Options) ([]Inst, error) {
	switch opts.Arch.Name {
	case addrspace.ARM64.Name:
		return disassembleARM64(data, opts), nil
	case addrspace.AMD64.Name:
		return disassembleX86(data, 64, opts), nil
	case addrspace.I386.Name:
		return disassembleX86(data, 32, opts), nil
	}
	return nil, fmt.Errorf("disasm: unsupported arch %q", opts.Arch.Name)
}

// Read disassembles n bytes of target memory at addr.
func Read(s *addrspace.Space, addr uint64, n int, opts Options) ([]Inst, error) {
	data, err := s.ReadBytes(addr, n)
	if err != nil {
		return nil, err
	}
	opts.Arch = s.Arch()
	opts.BaseAddr = addr
	return Disassemble(data, opts)
}

func disassembleARM64(data []byte, opts Options) []Inst {
	n := min(len(data)/4, opts.effectiveMax())
	result := make([]Inst, 0, n)
	for i := 0; i < n; i++ {
		off := i * 4
		word := data[off : off+4]
		raw := binary.LittleEndian.Uint32(word)
		addr := opts.BaseAddr + uint64(off)

		inst := Inst{Addr: addr, Raw: word, Size: 4, Branch: DecodeBranch(raw, addr)}
		d, err := arm64asm.Decode(word)
		if err != nil {
			inst.Mnemonic = ".word"
			inst.Operands = fmt.Sprintf("0x%08x", raw)
			inst.Text = fmt.Sprintf(".word 0x%08x", raw)
		} else {
			inst.Text = d.String()
			inst.Mnemonic, inst.Operands = splitText(inst.Text)
			pcrelARM64(&inst, d)
		}
		result = append(result, inst)
	}
	return result
}

// pcrelARM64 records BL call targets and ADR/ADRP data references.
func pcrelARM64(inst *Inst, d arm64asm.Inst) {
	for _, a := range d.Args {
		rel, ok := a.(arm64asm.PCRel)
		if !ok {
			continue
		}
		switch d.Op {
		case arm64asm.BL:
			inst.Call = inst.Addr + uint64(rel)
		case arm64asm.ADR:
			inst.Ref = inst.Addr + uint64(rel)
		case arm64asm.ADRP:
			inst.Ref = inst.Addr&^0xfff + uint64(rel)
		}
	}
}

func disassembleX86(data []byte, mode int, opts Options) []Inst {
	maxSteps := opts.effectiveMax()
	var symname x86asm.SymLookup
	if opts.Symbols != nil {
		symname = func(addr uint64) (string, uint64) {
			if name, ok := opts.Symbols(addr); ok {
				return name, addr
			}
			return "", 0
		}
	}

	var result []Inst
	for off := 0; off < len(data) && len(result) < maxSteps; {
		addr := opts.BaseAddr + uint64(off)
		d, err := x86asm.Decode(data[off:], mode)
		if err != nil || d.Len == 0 || d.Op == 0 {
			result = append(result, Inst{
				Addr:     addr,
				Raw:      data[off : off+1],
				Size:     1,
				Mnemonic: ".byte",
				Operands: fmt.Sprintf("0x%02x", data[off]),
				Text:     fmt.Sprintf(".byte 0x%02x", data[off]),
			})
			off++
			continue
		}
		inst := Inst{Addr: addr, Raw: data[off : off+d.Len], Size: d.Len}
		inst.Text = x86asm.IntelSyntax(d, addr, symname)
		inst.Mnemonic, inst.Operands = splitText(inst.Text)
		inst.Branch = decodeBranchX86(d, inst.End())
		pcrelX86(&inst, d)
		result = append(result, inst)
		off += d.Len
	}
	return result
}

// pcrelX86 records direct call targets and RIP-relative data references.
func pcrelX86(inst *Inst, d x86asm.Inst) {
	next := inst.End()
	for _, a := range d.Args {
		switch a := a.(type) {
		case x86asm.Rel:
			if d.Op == x86asm.CALL {
				inst.Call = next + uint64(int64(a))
			}
		case x86asm.Mem:
			if a.Base == x86asm.RIP {
				inst.Ref = next + uint64(a.Disp)
			}
		}
	}
}

func splitText(text string) (mnemonic, operands string) {
	parts := strings.SplitN(text, " ", 2)
	mnemonic = parts[0]
	if len(parts) > 1 {
		operands = parts[1]
	}
	return mnemonic, operands
}

// Format renders a slice of instructions as stable text output.
// Each line: <addr>  <hex bytes>  <disasm>  ; <comments>
// Annotators are checked in order; first non-empty result is used.
func Format(insts []Inst, lookup SymbolLookup, annotators ...Annotator) string {
	width := 0
	for _, inst := range insts {
		width = max(width, len(inst.Raw))
	}
	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "0x%08x  ", inst.Addr)
		for i := 0; i < width; i++ {
			if i < len(inst.Raw) {
				fmt.Fprintf(&b, "%02x ", inst.Raw[i])
			} else {
				b.WriteString("   ")
			}
		}
		b.WriteByte(' ')
		b.WriteString(inst.Text)
		commented := false
		if lookup != nil {
			if name, ok := lookup(inst.Addr); ok {
				fmt.Fprintf(&b, "  ; <%s>", name)
				commented = true
			}
		}
		if !commented {
			for _, ann := range annotators {
				if s := ann(inst); s != "" {
					fmt.Fprintf(&b, "  ; %s", s)
					break
				}
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// MapLookup returns a SymbolLookup over a fixed address map.
func MapLookup(names map[uint64]string) SymbolLookup {
	return func(addr uint64) (string, bool) {
		if name, ok := names[addr]; ok {
			return name, true
		}
		return "", false
	}
}

// RefAnnotator names the data address an instruction references, using
// lookup (for example, a map of static field addresses).
func RefAnnotator(lookup SymbolLookup) Annotator {
	return func(inst Inst) string {
		if inst.Ref == 0 {
			return ""
		}
		if name, ok := lookup(inst.Ref); ok {
			return fmt.Sprintf("&%s", name)
		}
		return ""
	}
}

// CallAnnotator names the target of a direct call.
func CallAnnotator(lookup SymbolLookup) Annotator {
	return func(inst Inst) string {
		if inst.Call == 0 {
			return ""
		}
		if name, ok := lookup(inst.Call); ok {
			return fmt.Sprintf("call %s", name)
		}
		return ""
	}
}
