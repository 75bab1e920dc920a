// Package render produces Graphviz DOT output for disassembled code and
// free-list dictionaries.
package render

import (
	"fmt"
	"strings"
)

// dotEscape escapes a string for use in DOT HTML labels.
func dotEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// dotID creates a safe DOT identifier for an address.
func dotID(prefix string, addr uint64) string {
	return fmt.Sprintf("%s_%x", prefix, addr)
}

// truncLabel shortens a label to maxLen, appending "..." if truncated.
func truncLabel(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// header writes the digraph preamble shared by all themed renderers.
func header(b *strings.Builder, name, title string, t Theme) {
	fmt.Fprintf(b, "digraph %s {\n", name)
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  nodesep=0.3;\n")
	b.WriteString("  ranksep=0.4;\n")
	fmt.Fprintf(b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Courier,monospace\", fontsize=8, fontcolor=%q, margin=\"0.08,0.04\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	b.WriteString("  edge [penwidth=0.7, arrowsize=0.5, arrowhead=vee];\n")
	b.WriteString("  labelloc=t;\n  labeljust=l;\n")
	fmt.Fprintf(b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"9\" color=\"%s\">%s</font>>;\n",
		t.TextColor, dotEscape(title))
	b.WriteByte('\n')
}
