package render

import (
	"fmt"
	"strings"

	"github.com/zboralski/lattice"
	latrender "github.com/zboralski/lattice/render"

	"vmscope/internal/diag"
	"vmscope/internal/freelist"
)

// nodeName is the lattice node name for a tree node.
func nodeName(n *freelist.TreeNode) string {
	return fmt.Sprintf("%d@0x%x", n.Size, n.Addr)
}

// TreeGraph converts dictionary nodes into a lattice graph with an edge
// from each node to its children. Children missing from nodes are named
// by address only.
func TreeGraph(nodes []*freelist.TreeNode) *lattice.Graph {
	byAddr := make(map[uint64]*freelist.TreeNode, len(nodes))
	for _, n := range nodes {
		byAddr[n.Addr] = n
	}
	name := func(addr uint64) string {
		if n, ok := byAddr[addr]; ok {
			return nodeName(n)
		}
		return fmt.Sprintf("0x%x", addr)
	}

	g := &lattice.Graph{}
	for _, n := range nodes {
		g.Nodes = append(g.Nodes, nodeName(n))
		for _, child := range []uint64{n.Left, n.Right} {
			if child == 0 {
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{Caller: nodeName(n), Callee: name(child)})
		}
	}
	g.Dedup()
	return g
}

// TreeDOT renders the dictionary tree with the lattice default style.
func TreeDOT(nodes []*freelist.TreeNode, title string) string {
	return latrender.DOT(TreeGraph(nodes), title)
}

// ThemedTreeDOT renders the dictionary tree with per-node sizes, left and
// right edge colors, and nodes named by diags highlighted.
func ThemedTreeDOT(root uint64, nodes []*freelist.TreeNode, diags []diag.Diag, title string, t Theme) string {
	flagged := make(map[uint64][]string)
	for _, d := range diags {
		flagged[d.Addr] = append(flagged[d.Addr], d.Msg)
	}
	known := make(map[uint64]bool, len(nodes))
	for _, n := range nodes {
		known[n.Addr] = true
	}

	var b strings.Builder
	header(&b, "freelist", title, t)

	for _, n := range nodes {
		lines := []string{
			fmt.Sprintf("<b>size %d</b>", n.Size),
			dotEscape(fmt.Sprintf("total %d", n.TotalSize)),
			fmt.Sprintf("<font color=\"%s\">0x%x</font>", t.MutedText, n.Addr),
		}
		for _, msg := range flagged[n.Addr] {
			lines = append(lines, dotEscape(truncLabel(msg, 48)))
		}
		attrs := ""
		switch {
		case len(flagged[n.Addr]) > 0:
			attrs = fmt.Sprintf(", fillcolor=%q", t.FlagFill)
		case n.Size > 0 && n.TotalSize > n.Size:
			attrs = fmt.Sprintf(", fillcolor=%q", t.ListFill)
		case n.Left == 0 && n.Right == 0:
			attrs = fmt.Sprintf(", fillcolor=%q", t.TermFill)
		}
		if n.Addr == root {
			attrs += fmt.Sprintf(", penwidth=1.5, color=%q", t.EntryBorder)
		}
		fmt.Fprintf(&b, "  %s [label=<%s>%s];\n", dotID("n", n.Addr), strings.Join(lines, "<br/>"), attrs)
	}
	b.WriteByte('\n')

	for _, n := range nodes {
		from := dotID("n", n.Addr)
		for _, e := range []struct {
			addr  uint64
			color string
			label string
		}{{n.Left, t.EdgeLeft, "L"}, {n.Right, t.EdgeRight, "R"}} {
			if e.addr == 0 {
				continue
			}
			to := dotID("n", e.addr)
			if !known[e.addr] {
				fmt.Fprintf(&b, "  %s [label=<0x%x>, style=dashed, fontcolor=%q];\n", to, e.addr, t.MutedText)
			}
			fmt.Fprintf(&b, "  %s -> %s [color=%q, label=<<font point-size=\"7\" color=\"%s\">%s</font>>];\n",
				from, to, e.color, e.color, e.label)
		}
	}

	b.WriteString("}\n")
	return b.String()
}
