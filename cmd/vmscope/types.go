package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"vmscope/internal/output"
)

// cmdTypes exports the type database of a target, typically read with
// --vmstructs, in the JSON form accepted by --types.
func cmdTypes(args []string) error {
	fs := flag.NewFlagSet("types", flag.ExitOnError)
	tf := addTargetFlags(fs)
	out := fs.String("out", "", "output file (default stdout)")
	diagsDir := fs.String("diags", "", "also write diags.json to this directory")

	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := openTarget(tf)
	if err != nil {
		return err
	}
	defer t.Close()
	tbl, diags, err := t.catalog()
	if err != nil {
		return err
	}
	if *diagsDir != "" {
		if err := output.WriteDiagsJSON(*diagsDir, diags); err != nil {
			return err
		}
	}

	if *out == "" {
		return tbl.WriteJSON(os.Stdout)
	}
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := tbl.WriteJSON(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d types, %d fields, %d diagnostics)\n",
		*out, len(tbl.Types()), len(tbl.Fields()), len(diags))
	return nil
}
