package freelist

import (
	"fmt"
	"math"

	"vmscope/internal/diag"
)

// Report summarizes a Verify pass.
type Report struct {
	TotalSize uint64      `json:"total_size"` // dictionary aggregate
	NodeSum   uint64      `json:"node_sum"`   // sum of per-node totals
	ChunkSum  uint64      `json:"chunk_sum"`  // sum of chunk sizes over all lists
	Nodes     int         `json:"nodes"`
	Chunks    int         `json:"chunks"`
	Depth     int         `json:"depth"`
	Diags     []diag.Diag `json:"diags,omitempty"`
}

// OK reports whether no inconsistency was found.
func (r *Report) OK() bool { return len(r.Diags) == 0 }

type frame struct {
	addr   uint64
	parent uint64
	lo, hi uint64 // exclusive size bounds
	depth  int
}

type verifier struct {
	d      *Dictionary
	strict bool
	diags  diag.Diags
}

// inconsistent records a structural problem. In strict mode it becomes the
// returned error.
func (v *verifier) inconsistent(addr uint64, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if v.strict {
		return &CorruptStructureError{Addr: addr, What: msg}
	}
	v.diags.Add(addr, diag.KindCorrupt, msg)
	return nil
}

// Verify walks the whole dictionary and checks the search-tree order,
// parent links, the per-node list totals and that the node totals add up
// to the dictionary total. Address-space errors and runaway traversals
// abort the pass in every mode; consistency failures abort only in strict
// mode and are otherwise collected in the report.
func (d *Dictionary) Verify() (*Report, error) {
	v := &verifier{d: d, strict: d.opts.Strict()}
	total, err := d.TotalSize()
	if err != nil {
		return nil, err
	}
	limit, err := d.walkLimit()
	if err != nil {
		return nil, err
	}
	r := &Report{TotalSize: total}
	root, err := d.get(d.l.Root, d.addr)
	if err != nil {
		return nil, err
	}

	stack := []frame{{addr: root, hi: math.MaxUint64}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.addr == 0 {
			continue
		}
		if r.Nodes >= limit {
			return nil, &CorruptStructureError{Addr: f.addr, What: "tree walk", Limit: limit}
		}
		n, err := d.Node(f.addr)
		if err != nil {
			return nil, err
		}
		r.Nodes++
		r.Depth = max(r.Depth, f.depth+1)
		if n.Size <= f.lo || n.Size >= f.hi {
			if err := v.inconsistent(n.Addr, "size %d outside (%d, %d)", n.Size, f.lo, f.hi); err != nil {
				return nil, err
			}
		}
		if n.Parent != f.parent {
			if err := v.inconsistent(n.Addr, "parent 0x%x, want 0x%x", n.Parent, f.parent); err != nil {
				return nil, err
			}
		}
		if err := v.list(n, r); err != nil {
			return nil, err
		}
		r.NodeSum += n.TotalSize
		stack = append(stack,
			frame{addr: n.Right, parent: n.Addr, lo: n.Size, hi: f.hi, depth: f.depth + 1},
			frame{addr: n.Left, parent: n.Addr, lo: f.lo, hi: n.Size, depth: f.depth + 1},
		)
	}
	if r.NodeSum != total {
		if err := v.inconsistent(d.addr, "node totals sum to %d, dictionary total is %d", r.NodeSum, total); err != nil {
			return nil, err
		}
	}
	r.Diags = v.diags.Items()
	return r, nil
}

func (v *verifier) list(n *TreeNode, r *Report) error {
	var sum uint64
	for c, err := range v.d.ChunksAtNode(n) {
		if err != nil {
			return err
		}
		r.Chunks++
		sum += c.Size
		if c.Size != n.Size {
			if err := v.inconsistent(c.Addr, "chunk size %d in list of size %d", c.Size, n.Size); err != nil {
				return err
			}
		}
	}
	r.ChunkSum += sum
	if sum != n.TotalSize {
		return v.inconsistent(n.Addr, "list sums to %d, node total is %d", sum, n.TotalSize)
	}
	return nil
}
