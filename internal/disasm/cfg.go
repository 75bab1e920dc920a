package disasm

import "sort"

// BasicBlock is a maximal run of instructions entered only at its first
// instruction.
type BasicBlock struct {
	ID      int
	Start   int    // first instruction, index into FuncCFG.Insts
	End     int    // one past the last instruction
	Addr    uint64 // address of the first instruction
	Succs   []Succ
	Preds   []int // IDs of blocks with an edge into this one
	IsEntry bool
	IsTerm  bool // leaves the region: return, indirect jump or jump out
}

// Succ is a control-flow edge.
type Succ struct {
	BlockID int
	Cond    string // "" unconditional, "T" branch taken, "F" fallthrough
}

// FuncCFG is the control flow graph of one disassembled region.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Insts  []Inst
}

// BlockAt returns the block starting at addr.
func (g *FuncCFG) BlockAt(addr uint64) (*BasicBlock, bool) {
	k := sort.Search(len(g.Blocks), func(k int) bool { return g.Blocks[k].Addr >= addr })
	if k < len(g.Blocks) && g.Blocks[k].Addr == addr {
		return &g.Blocks[k], true
	}
	return nil, false
}

// BuildCFG splits insts into basic blocks. A block starts at the first
// instruction, at every in-region branch target and after every branch;
// it ends before the next such start.
func BuildCFG(name string, insts []Inst) FuncCFG {
	g := FuncCFG{Name: name, Insts: insts}
	if len(insts) == 0 {
		return g
	}
	lo, hi := insts[0].Addr, insts[len(insts)-1].End()
	index := make(map[uint64]int, len(insts))
	for i, inst := range insts {
		index[inst.Addr] = i
	}
	// local resolves an in-region target to its instruction index.
	local := func(target uint64) (int, bool) {
		if target == 0 || target < lo || target >= hi {
			return 0, false
		}
		i, ok := index[target]
		return i, ok
	}

	starts := make([]bool, len(insts)+1)
	starts[0] = true
	for i, inst := range insts {
		if inst.Branch == nil {
			continue
		}
		starts[i+1] = true
		if j, ok := local(inst.Branch.Target); ok && !inst.Branch.IsRet {
			starts[j] = true
		}
	}

	blockOf := make(map[int]int)
	for i := 0; i < len(insts); i++ {
		if !starts[i] {
			continue
		}
		j := i + 1
		for j < len(insts) && !starts[j] {
			j++
		}
		blockOf[i] = len(g.Blocks)
		g.Blocks = append(g.Blocks, BasicBlock{
			ID:      len(g.Blocks),
			Start:   i,
			End:     j,
			Addr:    insts[i].Addr,
			IsEntry: i == 0,
		})
	}

	link := func(b *BasicBlock, to int, cond string) {
		b.Succs = append(b.Succs, Succ{BlockID: to, Cond: cond})
	}
	for k := range g.Blocks {
		b := &g.Blocks[k]
		next, hasNext := blockOf[b.End]
		br := insts[b.End-1].Branch
		switch {
		case br == nil:
			if hasNext {
				link(b, next, "")
			}
		case br.IsRet:
			b.IsTerm = true
		default:
			target, inRegion := -1, false
			if j, ok := local(br.Target); ok {
				target, inRegion = blockOf[j], true
			}
			if inRegion {
				cond := ""
				if br.Cond {
					cond = "T"
				}
				link(b, target, cond)
			}
			if br.Cond {
				if hasNext {
					link(b, next, "F")
				}
			} else if !inRegion {
				b.IsTerm = true
			}
		}
	}
	for k := range g.Blocks {
		for _, s := range g.Blocks[k].Succs {
			to := &g.Blocks[s.BlockID]
			if n := len(to.Preds); n == 0 || to.Preds[n-1] != k {
				to.Preds = append(to.Preds, k)
			}
		}
	}
	return g
}
