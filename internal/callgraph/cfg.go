package callgraph

import (
	"github.com/zboralski/lattice"

	"vmscope/internal/disasm"
)

// BuildCFG constructs a lattice.CFGGraph from disassembled regions.
func BuildCFG(funcs []FuncInfo, lookup disasm.SymbolLookup) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range funcs {
		lcfg, _ := BuildFuncCFG(f.Name, f.Insts, lookup)
		cg.Funcs = append(cg.Funcs, lcfg)
	}
	return cg
}

// BuildFuncCFG builds a single-region lattice.FuncCFG from instructions.
// Returns the FuncCFG and the number of basic blocks.
func BuildFuncCFG(name string, insts []disasm.Inst, lookup disasm.SymbolLookup) (*lattice.FuncCFG, int) {
	dcfg := disasm.BuildCFG(name, insts)
	return convertFuncCFG(&dcfg, lookup), len(dcfg.Blocks)
}

// convertFuncCFG maps a disasm.FuncCFG to a lattice.FuncCFG. Direct calls
// become call sites; data references that lookup can name are listed
// alongside them as "&name".
func convertFuncCFG(dcfg *disasm.FuncCFG, lookup disasm.SymbolLookup) *lattice.FuncCFG {
	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}
		for _, ds := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: ds.BlockID,
				Cond:    ds.Cond,
			})
		}
		for idx := db.Start; idx < db.End && idx < len(dcfg.Insts); idx++ {
			inst := dcfg.Insts[idx]
			if inst.Call != 0 {
				lb.Calls = append(lb.Calls, lattice.CallSite{
					Offset: idx,
					Callee: calleeName(inst.Call, lookup),
				})
			}
			if inst.Ref != 0 && lookup != nil {
				if name, ok := lookup(inst.Ref); ok {
					lb.Calls = append(lb.Calls, lattice.CallSite{Offset: idx, Callee: "&" + name})
				}
			}
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}
