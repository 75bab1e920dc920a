// Package callgraph maps disassembled target code onto lattice graphs.
package callgraph

import (
	"fmt"

	"github.com/zboralski/lattice"

	"vmscope/internal/disasm"
)

// FuncInfo holds the data needed to build call graph and CFG for one region.
type FuncInfo struct {
	Name  string
	Insts []disasm.Inst
}

// calleeName resolves a call target, falling back to its address.
func calleeName(target uint64, lookup disasm.SymbolLookup) string {
	if lookup != nil {
		if name, ok := lookup(target); ok {
			return name
		}
	}
	return fmt.Sprintf("0x%x", target)
}

// BuildCallGraph constructs a lattice.Graph from disassembled regions.
// Each region becomes a node and each direct call an edge.
func BuildCallGraph(funcs []FuncInfo, lookup disasm.SymbolLookup) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		for _, inst := range f.Insts {
			if inst.Call == 0 {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: f.Name,
				Callee: calleeName(inst.Call, lookup),
			})
		}
	}
	g.Dedup()
	return g
}
