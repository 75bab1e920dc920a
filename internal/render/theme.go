package render

// Theme holds colors for DOT rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Control-flow edges.
	EdgeTaken       string // conditional branch taken
	EdgeFallthrough string // conditional branch not taken
	EdgeDirect      string // unconditional flow

	// Free-list tree edges.
	EdgeLeft  string
	EdgeRight string

	// Node accents.
	EntryBorder string // CFG entry block, dictionary root
	TermFill    string // terminal blocks, leaf nodes
	ListFill    string // nodes heading more than one chunk
	FlagFill    string // nodes with diagnostics
	MutedText   string
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeTaken:       "#0B3D91", // NASA blue
	EdgeFallthrough: "#FC3D21", // NASA red
	EdgeDirect:      "#424242", // dark gray

	EdgeLeft:  "#0B3D91",
	EdgeRight: "#00695C", // teal

	EntryBorder: "#0B3D91",
	TermFill:    "#ECEFF1", // blue-gray 50
	ListFill:    "#E0F2F1", // teal 50
	FlagFill:    "#FFCCBC", // deep orange 100
	MutedText:   "#9E9E9E",
}
