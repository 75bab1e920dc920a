package disasm

import "golang.org/x/arch/x86/x86asm"

// Branch detection for block splitting. ARM64 branches are recognized from
// the raw 32-bit encoding; x86 branches from the decoded opcode.

// BranchInfo describes a decoded branch instruction.
type BranchInfo struct {
	Target uint64 // absolute target address (0 if RET or indirect)
	Cond   bool   // true if conditional (has fallthrough)
	IsRet  bool   // true if RET
}

// DecodeBranch attempts to decode a branch instruction from raw encoding at the given PC.
// Returns nil if the instruction is not a branch/ret.
func DecodeBranch(raw uint32, pc uint64) *BranchInfo {
	// RET (0xD65F03C0 exactly, or RET Xn = 0xD65F0000 | Rn<<5)
	if raw&0xFFFFFC1F == 0xD65F0000 {
		return &BranchInfo{IsRet: true}
	}

	// B (unconditional): 000101 imm26
	if raw&0xFC000000 == 0x14000000 {
		imm26 := raw & 0x03FFFFFF
		offset := signExtend(imm26, 26) * 4
		return &BranchInfo{Target: uint64(int64(pc) + int64(offset))}
	}

	// B.cond: 01010100 imm19 0 cond
	if raw&0xFF000010 == 0x54000000 {
		imm19 := (raw >> 5) & 0x7FFFF
		offset := signExtend(imm19, 19) * 4
		return &BranchInfo{Target: uint64(int64(pc) + int64(offset)), Cond: true}
	}

	// CBZ: 0 sf 110100 imm19 Rt
	if raw&0x7F000000 == 0x34000000 {
		imm19 := (raw >> 5) & 0x7FFFF
		offset := signExtend(imm19, 19) * 4
		return &BranchInfo{Target: uint64(int64(pc) + int64(offset)), Cond: true}
	}

	// CBNZ: 0 sf 110101 imm19 Rt
	if raw&0x7F000000 == 0x35000000 {
		imm19 := (raw >> 5) & 0x7FFFF
		offset := signExtend(imm19, 19) * 4
		return &BranchInfo{Target: uint64(int64(pc) + int64(offset)), Cond: true}
	}

	// TBZ: 0 b5 110110 b40 imm14 Rt
	if raw&0x7F000000 == 0x36000000 {
		imm14 := (raw >> 5) & 0x3FFF
		offset := signExtend(imm14, 14) * 4
		return &BranchInfo{Target: uint64(int64(pc) + int64(offset)), Cond: true}
	}

	// TBNZ: 0 b5 110111 b40 imm14 Rt
	if raw&0x7F000000 == 0x37000000 {
		imm14 := (raw >> 5) & 0x3FFF
		offset := signExtend(imm14, 14) * 4
		return &BranchInfo{Target: uint64(int64(pc) + int64(offset)), Cond: true}
	}

	return nil
}

// signExtend sign-extends a value from the given bit width to int32.
func signExtend(val uint32, bits int) int32 {
	sign := uint32(1) << (bits - 1)
	mask := sign - 1
	if val&sign != 0 {
		return int32(val | ^mask) // negative
	}
	return int32(val & mask)
}

// IsBranchTerminator returns true if the instruction terminates a basic block.
// This includes all branches (B, B.cond, CBZ, CBNZ, TBZ, TBNZ, RET) but NOT BL/BLR
// (calls return to the next instruction).
func IsBranchTerminator(raw uint32) bool {
	return DecodeBranch(raw, 0) != nil
}

var x86CondJumps = map[x86asm.Op]bool{
	x86asm.JA: true, x86asm.JAE: true, x86asm.JB: true, x86asm.JBE: true,
	x86asm.JE: true, x86asm.JNE: true, x86asm.JG: true, x86asm.JGE: true,
	x86asm.JL: true, x86asm.JLE: true, x86asm.JO: true, x86asm.JNO: true,
	x86asm.JP: true, x86asm.JNP: true, x86asm.JS: true, x86asm.JNS: true,
	x86asm.JCXZ: true, x86asm.JECXZ: true, x86asm.JRCXZ: true,
	x86asm.LOOP: true, x86asm.LOOPE: true, x86asm.LOOPNE: true,
}

// decodeBranchX86 returns the branch info for a decoded x86 instruction
// ending at next, or nil. Indirect jumps end a block with no known target.
func decodeBranchX86(d x86asm.Inst, next uint64) *BranchInfo {
	switch {
	case d.Op == x86asm.RET || d.Op == x86asm.LRET:
		return &BranchInfo{IsRet: true}
	case d.Op == x86asm.JMP:
		if rel, ok := d.Args[0].(x86asm.Rel); ok {
			return &BranchInfo{Target: next + uint64(int64(rel))}
		}
		return &BranchInfo{}
	case x86CondJumps[d.Op]:
		if rel, ok := d.Args[0].(x86asm.Rel); ok {
			return &BranchInfo{Target: next + uint64(int64(rel)), Cond: true}
		}
	}
	return nil
}
