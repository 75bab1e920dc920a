package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zboralski/lattice"
	latrender "github.com/zboralski/lattice/render"

	"vmscope/internal/callgraph"
	"vmscope/internal/disasm"
	"vmscope/internal/output"
	"vmscope/internal/render"
)

func cmdDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	tf := addTargetFlags(fs)
	var addr uintFlag
	fs.Var(&addr, "addr", "start address")
	symbol := fs.String("symbol", "", "start at this --exec symbol instead of --addr")
	length := fs.Int("len", 256, "bytes to disassemble")
	name := fs.String("name", "", "region name (default symbol or address)")
	outPath := fs.String("out", "", "write the listing to this file instead of stdout")
	cfgPath := fs.String("cfg", "", "write a themed basic-block CFG as DOT")
	graphDir := fs.String("graph", "", "write lattice CFG and call graph DOT files to this directory")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *length <= 0 {
		return fmt.Errorf("--len must be positive")
	}

	t, err := openTarget(tf)
	if err != nil {
		return err
	}
	defer t.Close()

	start := addr.v
	switch {
	case *symbol != "":
		if t.exe == nil {
			return fmt.Errorf("--symbol requires --exec")
		}
		a, _, err := t.exe.Symbol(*symbol)
		if err != nil {
			return err
		}
		start = a + t.bias
		if *name == "" {
			*name = *symbol
		}
	case !addr.set:
		return fmt.Errorf("--addr or --symbol is required")
	}
	if *name == "" {
		*name = fmt.Sprintf("sub_%x", start)
	}

	// Static field addresses name the data an instruction references.
	names := map[uint64]string{start: *name}
	if tf.types != "" || tf.vmstructs {
		s, err := t.attach()
		if err != nil {
			return err
		}
		for _, f := range s.Schema.Fields() {
			if f.IsStatic() && f.StaticAddress() != 0 {
				names[f.StaticAddress()] = f.ID()
			}
		}
	}
	lookup := disasm.MapLookup(names)

	insts, err := disasm.Read(t.space, start, *length, disasm.Options{
		MaxSteps: tf.maxSteps,
		Symbols:  lookup,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s: %d instructions at 0x%x\n", *name, len(insts), start)

	annotators := []disasm.Annotator{disasm.RefAnnotator(lookup), disasm.CallAnnotator(lookup)}
	if *outPath != "" {
		if err := output.WriteASM(*outPath, insts, lookup, annotators...); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", *outPath)
	} else {
		fmt.Print(disasm.Format(insts, lookup, annotators...))
	}

	if *cfgPath != "" {
		dot := render.CFGDOT(disasm.BuildCFG(*name, insts), render.NASA)
		if err := output.WriteFile(*cfgPath, []byte(dot)); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", *cfgPath)
	}

	if *graphDir != "" {
		lcfg, nblocks := callgraph.BuildFuncCFG(*name, insts, lookup)
		cfgDOT := latrender.DOTCFG(&lattice.CFGGraph{Funcs: []*lattice.FuncCFG{lcfg}}, *name)
		if err := output.WriteFile(filepath.Join(*graphDir, "cfg.dot"), []byte(cfgDOT)); err != nil {
			return err
		}
		cg := callgraph.BuildCallGraph([]callgraph.FuncInfo{{Name: *name, Insts: insts}}, lookup)
		cgDOT := latrender.DOT(cg, "callgraph")
		if err := output.WriteFile(filepath.Join(*graphDir, "callgraph.dot"), []byte(cgDOT)); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d blocks, %d call edges)\n", *graphDir, nblocks, len(cg.Edges))
	}
	return nil
}
