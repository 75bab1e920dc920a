package render

import (
	"fmt"
	"strings"

	"vmscope/internal/disasm"
)

// maxBlockLines is the number of instructions shown per block before the
// middle is elided.
const maxBlockLines = 12

func blockLabel(cfg disasm.FuncCFG, blk disasm.BasicBlock, t Theme) string {
	end := min(blk.End, len(cfg.Insts))
	var lines []string
	for _, inst := range cfg.Insts[blk.Start:end] {
		lines = append(lines, dotEscape(fmt.Sprintf("0x%x: %s", inst.Addr, truncLabel(inst.Text, 72))))
	}
	if len(lines) > maxBlockLines {
		keep := maxBlockLines / 2
		elided := fmt.Sprintf("<font color=\"%s\">... %d more</font>", t.MutedText, len(lines)-2*keep)
		lines = append(append(lines[:keep:keep], elided), lines[len(lines)-keep:]...)
	}
	head := fmt.Sprintf("<font color=\"%s\">bb%d</font>", t.MutedText, blk.ID)
	return head + "<br align=\"left\"/>" + strings.Join(lines, "<br align=\"left\"/>") + "<br align=\"left\"/>"
}

// CFGDOT renders the basic blocks of one region as DOT. The entry block
// gets a heavy border, blocks leaving the region are filled, and blocks
// with no incoming edge other than the entry are dashed.
func CFGDOT(cfg disasm.FuncCFG, t Theme) string {
	if len(cfg.Blocks) == 0 {
		return ""
	}

	var b strings.Builder
	header(&b, "cfg", cfg.Name, t)

	for _, blk := range cfg.Blocks {
		var attrs []string
		if blk.IsEntry {
			attrs = append(attrs, "penwidth=1.5", fmt.Sprintf("color=%q", t.EntryBorder))
		} else if len(blk.Preds) == 0 {
			attrs = append(attrs, "style=\"filled,dashed\"")
		}
		if blk.IsTerm {
			attrs = append(attrs, fmt.Sprintf("fillcolor=%q", t.TermFill))
		}
		extra := ""
		if len(attrs) > 0 {
			extra = ", " + strings.Join(attrs, ", ")
		}
		fmt.Fprintf(&b, "  bb%d [label=<%s>%s];\n", blk.ID, blockLabel(cfg, blk, t), extra)
	}
	b.WriteByte('\n')

	for _, blk := range cfg.Blocks {
		for _, s := range blk.Succs {
			switch s.Cond {
			case "T", "F":
				color := t.EdgeTaken
				if s.Cond == "F" {
					color = t.EdgeFallthrough
				}
				fmt.Fprintf(&b, "  bb%d -> bb%d [color=%q, label=<<font point-size=\"7\" color=\"%s\">%s</font>>];\n",
					blk.ID, s.BlockID, color, color, s.Cond)
			default:
				fmt.Fprintf(&b, "  bb%d -> bb%d [color=%q];\n", blk.ID, s.BlockID, t.EdgeDirect)
			}
		}
	}

	b.WriteString("}\n")
	return b.String()
}
