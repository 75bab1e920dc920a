package freelist

import (
	"fmt"
	"strings"

	"vmscope/internal/field"
)

// Names maps each structural role to a "Type::field" identifier.
type Names struct {
	Root      string `json:"root"`
	TotalSize string `json:"total_size"`

	NodeSize  string `json:"node_size"`
	NodeTotal string `json:"node_total"`
	Left      string `json:"left"`
	Right     string `json:"right"`
	Parent    string `json:"parent"`

	ChunkSize string `json:"chunk_size"`
	ChunkNext string `json:"chunk_next"`
}

// DefaultNames are the identifiers used by the HotSpot CMS dictionary.
var DefaultNames = Names{
	Root:      "BinaryTreeDictionary::_root",
	TotalSize: "BinaryTreeDictionary::_total_size",

	NodeSize:  "TreeList::_size",
	NodeTotal: "TreeList::_total_size",
	Left:      "TreeList::_left",
	Right:     "TreeList::_right",
	Parent:    "TreeList::_parent",

	ChunkSize: "FreeChunk::_size",
	ChunkNext: "FreeChunk::_next",
}

// Layout holds the resolved accessors. The node fields and the chunk
// fields are two views over the same addresses.
type Layout struct {
	Root      *field.Field
	TotalSize *field.Field

	NodeSize  *field.Field
	NodeTotal *field.Field
	Left      *field.Field
	Right     *field.Field
	Parent    *field.Field

	ChunkSize *field.Field
	ChunkNext *field.Field
}

// LayoutFromSchema resolves n against s. Size fields must be integers and
// link fields addresses.
func LayoutFromSchema(s *field.Schema, n Names) (*Layout, error) {
	var l Layout
	roles := []struct {
		id   string
		dst  **field.Field
		link bool
	}{
		{n.Root, &l.Root, true},
		{n.TotalSize, &l.TotalSize, false},
		{n.NodeSize, &l.NodeSize, false},
		{n.NodeTotal, &l.NodeTotal, false},
		{n.Left, &l.Left, true},
		{n.Right, &l.Right, true},
		{n.Parent, &l.Parent, true},
		{n.ChunkSize, &l.ChunkSize, false},
		{n.ChunkNext, &l.ChunkNext, true},
	}
	for _, r := range roles {
		typ, name, ok := strings.Cut(r.id, "::")
		if !ok {
			return nil, fmt.Errorf("freelist: malformed field name %q", r.id)
		}
		f, err := s.Lookup(typ, name)
		if err != nil {
			return nil, fmt.Errorf("freelist: %w", err)
		}
		switch k := f.Kind(); {
		case r.link && k != field.Address:
			return nil, fmt.Errorf("freelist: %s is %s, want address", r.id, k)
		case !r.link && k != field.CInteger && k != field.Int && k != field.Long:
			return nil, fmt.Errorf("freelist: %s is %s, want integer", r.id, k)
		}
		*r.dst = f
	}
	return &l, nil
}
