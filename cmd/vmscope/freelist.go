package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"vmscope/internal/freelist"
	"vmscope/internal/output"
	"vmscope/internal/render"
)

// loadNames reads a JSON object overriding some of the default field
// names.
func loadNames(path string) (freelist.Names, error) {
	names := freelist.DefaultNames
	if path == "" {
		return names, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return names, fmt.Errorf("open names: %w", err)
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&names); err != nil {
		return names, fmt.Errorf("decode names: %w", err)
	}
	return names, nil
}

func cmdFreelist(args []string) error {
	fs := flag.NewFlagSet("freelist", flag.ExitOnError)
	tf := addTargetFlags(fs)
	op := fs.String("op", "total", "total, find, bestfit, sizes, chunks, nodes or verify")
	var dict, size, node uintFlag
	fs.Var(&dict, "dict", "dictionary object address (instance root/total fields)")
	fs.Var(&size, "size", "chunk size for find, bestfit and chunks")
	fs.Var(&node, "node", "tree node address for chunks")
	namesPath := fs.String("names", "", "JSON file overriding dictionary field names")
	jsonOut := fs.Bool("json", false, "output as JSON")
	dotPath := fs.String("dot", "", "write the tree as DOT to this file")
	themed := fs.Bool("themed", false, "themed DOT with verification marks")

	if err := fs.Parse(args); err != nil {
		return err
	}
	names, err := loadNames(*namesPath)
	if err != nil {
		return err
	}

	t, err := openTarget(tf)
	if err != nil {
		return err
	}
	defer t.Close()
	s, err := t.attach()
	if err != nil {
		return err
	}
	d, err := s.Dictionary(names, dict.v)
	if err != nil {
		return err
	}

	if *dotPath != "" {
		if err := writeTreeDOT(d, *dotPath, *themed); err != nil {
			return err
		}
	}

	emit := func(v any, text func()) error {
		if *jsonOut {
			return output.EncodeJSON(os.Stdout, v)
		}
		text()
		return nil
	}

	switch *op {
	case "total":
		total, err := d.TotalSize()
		if err != nil {
			return err
		}
		return emit(map[string]uint64{"total_size": total}, func() { fmt.Println(total) })

	case "find", "bestfit":
		if !size.set {
			return fmt.Errorf("--op %s requires --size", *op)
		}
		var n *freelist.TreeNode
		if *op == "find" {
			n, err = d.FindNode(size.v)
		} else {
			n, err = d.FindBestFit(size.v)
		}
		if err != nil {
			return err
		}
		return emit(n, func() {
			if n == nil {
				fmt.Println("none")
				return
			}
			fmt.Println(n)
		})

	case "sizes":
		var sizes []uint64
		for sz, err := range d.InorderSizes() {
			if err != nil {
				return err
			}
			if !*jsonOut {
				fmt.Println(sz)
			}
			sizes = append(sizes, sz)
		}
		if *jsonOut {
			return output.EncodeJSON(os.Stdout, sizes)
		}
		return nil

	case "nodes":
		nodes, err := collectNodes(d)
		if err != nil {
			return err
		}
		return emit(nodes, func() {
			for _, n := range nodes {
				fmt.Println(n)
			}
		})

	case "chunks":
		var n *freelist.TreeNode
		switch {
		case node.set:
			n, err = d.Node(node.v)
		case size.set:
			n, err = d.FindNode(size.v)
		default:
			return fmt.Errorf("--op chunks requires --node or --size")
		}
		if err != nil {
			return err
		}
		if n == nil {
			if node.set {
				return fmt.Errorf("no node at 0x%x", node.v)
			}
			return fmt.Errorf("no node of size %d", size.v)
		}
		var chunks []freelist.FreeChunk
		for c, err := range d.ChunksAtNode(n) {
			if err != nil {
				return err
			}
			chunks = append(chunks, c)
		}
		return emit(chunks, func() {
			for _, c := range chunks {
				fmt.Printf("chunk@0x%x size=%d next=0x%x\n", c.Addr, c.Size, c.Next)
			}
		})

	case "verify":
		rep, err := d.Verify()
		if err != nil {
			return err
		}
		if err := emit(rep, func() {
			fmt.Printf("total=%d nodes=%d chunks=%d depth=%d node_sum=%d chunk_sum=%d\n",
				rep.TotalSize, rep.Nodes, rep.Chunks, rep.Depth, rep.NodeSum, rep.ChunkSum)
			for _, dg := range rep.Diags {
				fmt.Printf("  %s\n", dg)
			}
		}); err != nil {
			return err
		}
		if !rep.OK() {
			return fmt.Errorf("dictionary inconsistent: %d problems", len(rep.Diags))
		}
		return nil
	}
	return fmt.Errorf("unknown --op %q", *op)
}

func collectNodes(d *freelist.Dictionary) ([]*freelist.TreeNode, error) {
	var nodes []*freelist.TreeNode
	for n, err := range d.Nodes() {
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func writeTreeDOT(d *freelist.Dictionary, path string, themed bool) error {
	nodes, err := collectNodes(d)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("free-list dictionary 0x%x", d.Addr())
	var dot string
	if themed {
		rep, err := d.Verify()
		if err != nil {
			return err
		}
		r, err := d.Root()
		if err != nil {
			return err
		}
		var root uint64
		if r != nil {
			root = r.Addr
		}
		dot = render.ThemedTreeDOT(root, nodes, rep.Diags, title, render.NASA)
	} else {
		dot = render.TreeDOT(nodes, title)
	}
	if err := output.WriteFile(path, []byte(dot)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d nodes)\n", path, len(nodes))
	return nil
}
