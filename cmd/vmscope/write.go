package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

func cmdWrite(args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	tf := addTargetFlags(fs)
	id := fs.String("field", "", "field to write (Type::name)")
	var base uintFlag
	fs.Var(&base, "addr", "object address (instance fields)")
	value := fs.String("value", "", "value to store (signed or 0x hex)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *value == "" {
		return fmt.Errorf("--field and --value are required")
	}
	typ, name, err := splitID(*id)
	if err != nil {
		return err
	}
	v, err := strconv.ParseInt(*value, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(*value, 0, 64)
		if uerr != nil {
			return fmt.Errorf("bad --value %q", *value)
		}
		v = int64(u)
	}
	if tf.pid != 0 && !tf.writable {
		return fmt.Errorf("writing to --pid requires --writable")
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
	f, err := s.Schema.Lookup(typ, name)
	if err != nil {
		return err
	}

	if f.IsStatic() {
		err = f.SetStaticValue(s.Target, v)
	} else {
		if !base.set {
			return fmt.Errorf("%s is an instance field; --addr is required", f.ID())
		}
		err = f.SetValue(s.Target, base.v, v)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d to %s\n", v, f)
	if tf.pid == 0 {
		fmt.Fprintf(os.Stderr, "note: %s is a snapshot; the write is not persisted\n", t.handle)
	}
	return nil
}
