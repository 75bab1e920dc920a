package main

import (
	"flag"
	"fmt"
	"os"

	"vmscope/internal/diag"
	"vmscope/internal/output"
)

// infoReport is the JSON form of the info command.
type infoReport struct {
	Target      string           `json:"target"`
	Arch        string           `json:"arch"`
	AddressSize int              `json:"address_size"`
	Bias        uint64           `json:"bias,omitempty"`
	Regions     []regionReport   `json:"regions"`
	Symbols     map[string]any   `json:"symbols,omitempty"`
	Fields      int              `json:"fields,omitempty"`
	Diags       int              `json:"diags,omitempty"`
	DiagKinds   []diag.KindCount `json:"diag_kinds,omitempty"`
	Compressed  bool             `json:"compressed,omitempty"`
	NarrowBase  uint64           `json:"narrow_base,omitempty"`
	NarrowShift uint             `json:"narrow_shift,omitempty"`
	CodecSource string           `json:"codec_source,omitempty"`
}

type regionReport struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Mode  string `json:"mode"`
	Path  string `json:"path,omitempty"`
}

func mode(r, w bool) string {
	m := ""
	if r {
		m += "R"
	}
	if w {
		m += "W"
	}
	return m
}

// tableSymbols are the exported tables looked for in --exec.
var tableSymbols = []string{
	"gHotSpotVMStructs",
	"gHotSpotVMTypes",
	"gHotSpotVMIntConstants",
	"gHotSpotVMLongConstants",
}

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	tf := addTargetFlags(fs)
	jsonOut := fs.Bool("json", false, "output as JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := openTarget(tf)
	if err != nil {
		return err
	}
	defer t.Close()

	rep := infoReport{
		Target:      t.handle.String(),
		Arch:        t.space.Arch().Name,
		AddressSize: t.space.AddressSize(),
		Bias:        t.bias,
	}
	switch {
	case t.segs != nil:
		for _, s := range t.segs.List() {
			rep.Regions = append(rep.Regions, regionReport{Start: s.Addr, End: s.End(), Mode: mode(s.Readable, s.Writable)})
		}
	case t.proc != nil:
		for _, m := range t.proc.Mappings() {
			rep.Regions = append(rep.Regions, regionReport{Start: m.Start, End: m.End, Mode: mode(m.Readable, m.Writable), Path: m.Path})
		}
	default:
		rep.Regions = append(rep.Regions, regionReport{Start: tf.base.v, Mode: "RW", Path: tf.image})
		if fi, err := os.Stat(tf.image); err == nil {
			rep.Regions[0].End = tf.base.v + uint64(fi.Size())
		}
	}
	if t.exe != nil {
		rep.Symbols = make(map[string]any)
		for _, name := range tableSymbols {
			if addr, _, err := t.exe.Symbol(name); err == nil {
				rep.Symbols[name] = addr + t.bias
			} else {
				rep.Symbols[name] = nil
			}
		}
	}

	if tf.types != "" || tf.vmstructs {
		s, err := t.attach()
		if err != nil {
			return err
		}
		rep.Fields = s.Schema.Len()
		rep.Diags = len(s.Diags)
		rep.DiagKinds = diag.Summarize(s.Diags)
		rep.Compressed = s.Compressed
		rep.NarrowBase = s.Target.Narrow.Base
		rep.NarrowShift = s.Target.Narrow.Shift
		rep.CodecSource = s.CodecSource
	}

	if *jsonOut {
		return output.EncodeJSON(os.Stdout, rep)
	}

	fmt.Printf("Target:  %s\n", rep.Target)
	fmt.Printf("Arch:    %s (%d-byte addresses)\n", rep.Arch, rep.AddressSize)
	if rep.Bias != 0 {
		fmt.Printf("Bias:    0x%x\n", rep.Bias)
	}
	fmt.Printf("Regions: %d\n", len(rep.Regions))
	for _, r := range rep.Regions {
		fmt.Printf("  0x%012x-0x%012x %-2s %s\n", r.Start, r.End, r.Mode, r.Path)
	}
	for _, name := range tableSymbols {
		v, ok := rep.Symbols[name]
		if !ok {
			continue
		}
		if v == nil {
			fmt.Printf("  %-28s missing\n", name)
		} else {
			fmt.Printf("  %-28s 0x%x\n", name, v)
		}
	}
	if rep.Fields > 0 || rep.CodecSource != "" {
		fmt.Printf("Fields:  %d (%d diagnostics)\n", rep.Fields, rep.Diags)
		for _, kc := range rep.DiagKinds {
			fmt.Printf("  %-12s %d\n", kc.Kind, kc.Count)
		}
		if rep.CodecSource != "" {
			fmt.Printf("Narrow:  base=0x%x shift=%d from %s (compressed=%v)\n",
				rep.NarrowBase, rep.NarrowShift, rep.CodecSource, rep.Compressed)
		} else {
			fmt.Printf("Narrow:  none (compressed=%v)\n", rep.Compressed)
		}
	}
	return nil
}
