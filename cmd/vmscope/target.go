package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"vmscope/internal/addrspace"
	"vmscope/internal/diag"
	"vmscope/internal/elfx"
	"vmscope/internal/oops"
	"vmscope/internal/session"
	"vmscope/internal/vmtypes"
)

// registry holds one compiled session per attached target.
var registry session.Registry

// uintFlag is a flag.Value accepting decimal, 0x hex or 0o octal numbers.
type uintFlag struct {
	v   uint64
	set bool
}

func (f *uintFlag) String() string { return fmt.Sprintf("0x%x", f.v) }

func (f *uintFlag) Set(s string) error {
	v, err := parseUint(s)
	if err != nil {
		return err
	}
	f.v, f.set = v, true
	return nil
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

// targetFlags are the flags shared by every subcommand that reads a target.
type targetFlags struct {
	core, exec, image string
	pid               int
	writable          bool
	bias, base        uintFlag
	arch              string
	types             string
	vmstructs         bool
	narrowBase        uintFlag
	narrowShift       int
	strict            bool
	maxSteps          int
}

func addTargetFlags(fs *flag.FlagSet) *targetFlags {
	tf := &targetFlags{}
	fs.StringVar(&tf.core, "core", "", "ELF core file")
	fs.StringVar(&tf.exec, "exec", "", "executable or shared object")
	fs.Var(&tf.bias, "bias", "load bias of --exec")
	fs.IntVar(&tf.pid, "pid", 0, "stopped live process")
	fs.BoolVar(&tf.writable, "writable", false, "open --pid memory for writing")
	fs.StringVar(&tf.image, "image", "", "raw memory image")
	fs.Var(&tf.base, "base", "base address of --image")
	fs.StringVar(&tf.arch, "arch", "", "target architecture (amd64, arm64, 386)")
	fs.StringVar(&tf.types, "types", "", "type database JSON")
	fs.BoolVar(&tf.vmstructs, "vmstructs", false, "read the type database from the target")
	fs.Var(&tf.narrowBase, "narrow-base", "override narrow-oop base")
	fs.IntVar(&tf.narrowShift, "narrow-shift", -1, "override narrow-oop shift")
	fs.BoolVar(&tf.strict, "strict", false, "fail on first structural error")
	fs.IntVar(&tf.maxSteps, "max-steps", 0, "global loop cap")
	return tf
}

// given reports whether any target source was named.
func (tf *targetFlags) given() bool {
	return tf.core != "" || tf.exec != "" || tf.image != "" || tf.pid != 0
}

func (tf *targetFlags) diagOptions() diag.Options {
	opts := diag.Options{Mode: diag.ModeBestEffort, MaxSteps: tf.maxSteps}
	if tf.strict {
		opts.Mode = diag.ModeStrict
	}
	return opts
}

// narrowOverride returns the codec given on the command line, if any.
func (tf *targetFlags) narrowOverride() (*oops.Codec, error) {
	if !tf.narrowBase.set && tf.narrowShift < 0 {
		return nil, nil
	}
	if tf.narrowShift < 0 {
		return nil, fmt.Errorf("--narrow-base requires --narrow-shift")
	}
	c := &oops.Codec{Base: tf.narrowBase.v, Shift: uint(tf.narrowShift)}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// target is an opened address space plus what is needed to attach to it.
type target struct {
	flags  *targetFlags
	handle session.Handle
	space  *addrspace.Space
	exe    *elfx.File
	bias   uint64
	segs   *addrspace.Segments
	proc   *addrspace.Process
}

// Close releases the files held by t.
func (t *target) Close() {
	if t.exe != nil {
		t.exe.Close()
	}
	if t.proc != nil {
		t.proc.Close()
	}
}

// openTarget opens the address space named by tf. Exactly one of --core,
// --pid and --image may be given; --exec alone maps the executable itself.
func openTarget(tf *targetFlags) (*target, error) {
	n := 0
	for _, set := range []bool{tf.core != "", tf.pid != 0, tf.image != ""} {
		if set {
			n++
		}
	}
	if n > 1 {
		return nil, fmt.Errorf("--core, --pid and --image are mutually exclusive")
	}
	if n == 0 && tf.exec == "" {
		return nil, fmt.Errorf("one of --core, --pid, --image or --exec is required")
	}

	t := &target{flags: tf, bias: tf.bias.v}
	ok := false
	defer func() {
		if !ok {
			t.Close()
		}
	}()

	var arch addrspace.Arch
	archSet := false
	if tf.arch != "" {
		a, err := addrspace.ArchByName(tf.arch)
		if err != nil {
			return nil, err
		}
		arch, archSet = a, true
	}
	useArch := func(a addrspace.Arch) {
		if !archSet {
			arch, archSet = a, true
		}
	}

	if tf.exec != "" {
		exe, err := elfx.Open(tf.exec)
		if err != nil {
			return nil, fmt.Errorf("open exec: %w", err)
		}
		t.exe = exe
		useArch(exe.Arch())
	}

	var src addrspace.Source
	switch {
	case tf.core != "":
		cf, err := elfx.Open(tf.core)
		if err != nil {
			return nil, fmt.Errorf("open core: %w", err)
		}
		if !cf.IsCore() {
			cf.Close()
			return nil, fmt.Errorf("%s is not a core file", tf.core)
		}
		useArch(cf.Arch())
		segs, err := cf.Segments()
		cf.Close()
		if err != nil {
			return nil, fmt.Errorf("load core: %w", err)
		}
		if t.exe != nil {
			if err := t.exe.Overlay(segs, t.bias); err != nil {
				return nil, fmt.Errorf("overlay exec: %w", err)
			}
		}
		t.segs, src = segs, segs
		t.handle = session.Handle{Kind: "core", Path: absPath(tf.core)}

	case tf.pid != 0:
		proc, err := addrspace.OpenProcess(tf.pid, tf.writable)
		if err != nil {
			return nil, err
		}
		t.proc, src = proc, proc
		if t.exe != nil && !tf.bias.set {
			t.bias = detectBias(t.exe, absPath(tf.exec), proc.Mappings())
		}
		t.handle = session.Handle{Kind: "pid", PID: tf.pid}

	case tf.image != "":
		data, err := os.ReadFile(tf.image)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		src = addrspace.NewBuffer(tf.base.v, data)
		t.handle = session.Handle{Kind: "image", Path: absPath(tf.image)}

	default:
		var segs addrspace.Segments
		if err := t.exe.Overlay(&segs, t.bias); err != nil {
			return nil, fmt.Errorf("load exec: %w", err)
		}
		t.segs, src = &segs, &segs
		t.handle = session.Handle{Kind: "exec", Path: absPath(tf.exec)}
	}

	if !archSet {
		arch = addrspace.AMD64
	}
	t.space = addrspace.New(src, arch)
	ok = true
	return t, nil
}

// detectBias returns the load bias of exe in a live process: the start of
// the lowest mapping of path minus the page of the first PT_LOAD.
func detectBias(exe *elfx.File, path string, maps []addrspace.Mapping) uint64 {
	segs := exe.LoadSegments()
	if len(segs) == 0 {
		return 0
	}
	for _, m := range maps {
		if m.Path == path {
			first := segs[0].Vaddr &^ 0xfff
			if m.Start < first {
				return 0
			}
			return m.Start - first
		}
	}
	return 0
}

func absPath(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}

// locator resolves exported symbols of the executable, relocated.
func (t *target) locator() vmtypes.Locator {
	return func(name string) (uint64, error) {
		addr, _, err := t.exe.Symbol(name)
		if err != nil {
			return 0, err
		}
		return addr + t.bias, nil
	}
}

// catalog loads the type database named by the flags.
func (t *target) catalog() (*vmtypes.Table, []diag.Diag, error) {
	tf := t.flags
	switch {
	case tf.types != "":
		tbl, err := vmtypes.LoadFile(tf.types)
		return tbl, nil, err
	case tf.vmstructs:
		if t.exe == nil {
			return nil, nil, fmt.Errorf("--vmstructs requires --exec")
		}
		return vmtypes.ReadVMStructs(t.space, t.locator(), tf.diagOptions())
	}
	return nil, nil, fmt.Errorf("--types or --vmstructs is required")
}

// attach compiles the session for t, once per target.
func (t *target) attach() (*session.Session, error) {
	return registry.Attach(t.handle, func() (*session.Session, error) {
		tbl, diags, err := t.catalog()
		if err != nil {
			return nil, fmt.Errorf("type database: %w", err)
		}
		if tbl.AddressSize != t.space.AddressSize() {
			fmt.Fprintf(os.Stderr, "warning: type database address size %d, target %d\n",
				tbl.AddressSize, t.space.AddressSize())
		}
		narrow, err := t.flags.narrowOverride()
		if err != nil {
			return nil, err
		}
		s, err := session.Compile(t.handle, t.space, tbl, session.Options{
			Diag:   t.flags.diagOptions(),
			Narrow: narrow,
		})
		if err != nil {
			return nil, err
		}
		s.Diags = append(diags, s.Diags...)
		fmt.Fprintf(os.Stderr, "attached %s: %d fields, %d diagnostics\n",
			t.handle, s.Schema.Len(), len(s.Diags))
		if os.Getenv("VMSCOPE_DEBUG") != "" {
			for _, d := range s.Diags {
				fmt.Fprintf(os.Stderr, "  %s\n", d)
			}
		}
		return s, nil
	})
}
