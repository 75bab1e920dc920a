// Package freelist reads a binary-tree free-list dictionary out of target
// memory. The dictionary indexes free chunks by size; each tree node heads
// a list of further chunks of the same size. Nothing here writes to the
// target.
package freelist

import (
	"fmt"
	"iter"
	"math"

	"vmscope/internal/diag"
	"vmscope/internal/field"
)

// TreeNode is the tree view of a node chunk.
type TreeNode struct {
	Addr      uint64 `json:"addr"`
	Size      uint64 `json:"size"`
	TotalSize uint64 `json:"total_size"` // sizes of all chunks in this node's list
	Left      uint64 `json:"left,omitempty"`
	Right     uint64 `json:"right,omitempty"`
	Parent    uint64 `json:"parent,omitempty"`
}

func (n *TreeNode) String() string {
	return fmt.Sprintf("node@0x%x size=%d total=%d", n.Addr, n.Size, n.TotalSize)
}

// FreeChunk is the list view of a chunk.
type FreeChunk struct {
	Addr uint64 `json:"addr"`
	Size uint64 `json:"size"`
	Next uint64 `json:"next,omitempty"`
}

// Dictionary is a read-only view of one dictionary. Static root and total
// fields are read at their resolved addresses; instance ones relative to
// the dictionary object address.
type Dictionary struct {
	t    field.Target
	l    *Layout
	addr uint64
	opts diag.Options
}

// New returns a view of the dictionary object at addr. addr is ignored
// when the root and total fields are static.
func New(t field.Target, l *Layout, addr uint64, opts diag.Options) *Dictionary {
	return &Dictionary{t: t, l: l, addr: addr, opts: opts}
}

func (d *Dictionary) Addr() uint64 { return d.addr }

func (d *Dictionary) get(f *field.Field, base uint64) (uint64, error) {
	var (
		v   field.Value
		err error
	)
	if f.IsStatic() {
		v, err = f.StaticValue(d.t)
	} else {
		v, err = f.Value(d.t, base)
	}
	if err != nil {
		return 0, err
	}
	return v.Uint(), nil
}

// TotalSize returns the dictionary's maintained aggregate.
func (d *Dictionary) TotalSize() (uint64, error) {
	return d.get(d.l.TotalSize, d.addr)
}

// Root returns the root node, or nil for an empty dictionary.
func (d *Dictionary) Root() (*TreeNode, error) {
	addr, err := d.get(d.l.Root, d.addr)
	if err != nil {
		return nil, err
	}
	return d.Node(addr)
}

// Node reads the tree view at addr. A zero addr yields nil.
func (d *Dictionary) Node(addr uint64) (*TreeNode, error) {
	if addr == 0 {
		return nil, nil
	}
	n := &TreeNode{Addr: addr}
	for _, r := range []struct {
		f   *field.Field
		dst *uint64
	}{
		{d.l.NodeSize, &n.Size},
		{d.l.NodeTotal, &n.TotalSize},
		{d.l.Left, &n.Left},
		{d.l.Right, &n.Right},
		{d.l.Parent, &n.Parent},
	} {
		v, err := d.get(r.f, addr)
		if err != nil {
			return nil, err
		}
		*r.dst = v
	}
	return n, nil
}

// Chunk reads the list view at addr.
func (d *Dictionary) Chunk(addr uint64) (FreeChunk, error) {
	size, err := d.get(d.l.ChunkSize, addr)
	if err != nil {
		return FreeChunk{}, err
	}
	next, err := d.get(d.l.ChunkNext, addr)
	if err != nil {
		return FreeChunk{}, err
	}
	return FreeChunk{Addr: addr, Size: size, Next: next}, nil
}

// walkLimit bounds the number of tree nodes any walk may visit: every node
// holds at least one unit of free space, so a well-formed tree has at most
// totalSize nodes.
func (d *Dictionary) walkLimit() (int, error) {
	total, err := d.TotalSize()
	if err != nil {
		return 0, err
	}
	limit := d.opts.EffectiveMaxSteps()
	if total < uint64(limit) {
		limit = int(total)
	}
	return limit, nil
}

// chunkLimit bounds the length of n's list.
func (d *Dictionary) chunkLimit(n *TreeNode) (int, error) {
	if n.Size == 0 {
		return 0, &CorruptStructureError{Addr: n.Addr, What: "zero-sized node"}
	}
	total, err := d.TotalSize()
	if err != nil {
		return 0, err
	}
	limit := total / n.Size
	if limit > math.MaxInt {
		limit = math.MaxInt
	}
	return int(limit), nil
}

// descend walks from the root towards size. It stops on an exact match;
// otherwise it ends at a nil child. hint is the last node left of which the
// walk turned, which is the smallest visited node larger than size.
func (d *Dictionary) descend(size uint64) (exact, hint *TreeNode, err error) {
	limit, err := d.walkLimit()
	if err != nil {
		return nil, nil, err
	}
	cur, err := d.Root()
	for steps := 0; cur != nil && err == nil; steps++ {
		if steps >= limit {
			return nil, nil, &CorruptStructureError{Addr: cur.Addr, What: "tree descent", Limit: limit}
		}
		switch {
		case size == cur.Size:
			return cur, hint, nil
		case size > cur.Size:
			cur, err = d.Node(cur.Right)
		default:
			hint = cur
			cur, err = d.Node(cur.Left)
		}
	}
	return nil, hint, err
}

// FindNode returns the node whose size is exactly size, or nil.
func (d *Dictionary) FindNode(size uint64) (*TreeNode, error) {
	exact, _, err := d.descend(size)
	return exact, err
}

// FindBestFit returns the node of exactly min if one lies on the search
// path, else the tightest larger node seen on the way down, else nil.
func (d *Dictionary) FindBestFit(min uint64) (*TreeNode, error) {
	exact, hint, err := d.descend(min)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		return exact, nil
	}
	return hint, nil
}

// ChunksAtNode yields the chunks of n's list, starting with n itself. A
// list longer than TotalSize/n.Size ends with a CorruptStructureError.
func (d *Dictionary) ChunksAtNode(n *TreeNode) iter.Seq2[FreeChunk, error] {
	return func(yield func(FreeChunk, error) bool) {
		if n == nil {
			return
		}
		limit, err := d.chunkLimit(n)
		if err != nil {
			yield(FreeChunk{}, err)
			return
		}
		for addr, count := n.Addr, 0; addr != 0; count++ {
			if count >= limit {
				yield(FreeChunk{}, &CorruptStructureError{Addr: n.Addr, What: "chunk list", Limit: limit})
				return
			}
			c, err := d.Chunk(addr)
			if err != nil {
				yield(FreeChunk{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
			addr = c.Next
		}
	}
}

// Nodes yields the tree nodes in order of ascending size. Each call starts
// a fresh traversal.
func (d *Dictionary) Nodes() iter.Seq2[*TreeNode, error] {
	return func(yield func(*TreeNode, error) bool) {
		limit, err := d.walkLimit()
		if err != nil {
			yield(nil, err)
			return
		}
		cur, err := d.Root()
		if err != nil {
			yield(nil, err)
			return
		}
		var stack []*TreeNode
		visited := 0
		for cur != nil || len(stack) > 0 {
			for cur != nil {
				if visited >= limit {
					yield(nil, &CorruptStructureError{Addr: cur.Addr, What: "tree walk", Limit: limit})
					return
				}
				visited++
				stack = append(stack, cur)
				if cur, err = d.Node(cur.Left); err != nil {
					yield(nil, err)
					return
				}
			}
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(n, nil) {
				return
			}
			if cur, err = d.Node(n.Right); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// InorderSizes yields the node sizes in ascending order.
func (d *Dictionary) InorderSizes() iter.Seq2[uint64, error] {
	return func(yield func(uint64, error) bool) {
		for n, err := range d.Nodes() {
			if err != nil {
				yield(0, err)
				return
			}
			if !yield(n.Size, nil) {
				return
			}
		}
	}
}
