package main

import (
	"flag"
	"fmt"

	"vmscope/internal/oops"
)

func cmdNarrow(args []string) error {
	fs := flag.NewFlagSet("narrow", flag.ExitOnError)
	tf := addTargetFlags(fs)
	var dec, enc uintFlag
	fs.Var(&dec, "decode", "narrow reference to decode")
	fs.Var(&enc, "encode", "wide address to encode")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if dec.set == enc.set {
		return fmt.Errorf("exactly one of --decode and --encode is required")
	}

	codec, err := tf.narrowOverride()
	if err != nil {
		return err
	}
	if codec == nil {
		if !tf.given() {
			return fmt.Errorf("need --narrow-base/--narrow-shift or a target")
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
		if s.CodecSource == "" {
			return fmt.Errorf("%s has no narrow-oop codec", t.handle)
		}
		codec = &s.Target.Narrow
	}

	if dec.set {
		if dec.v > 0xffffffff {
			return fmt.Errorf("--decode 0x%x does not fit in 32 bits", dec.v)
		}
		h := codec.Decode(uint32(dec.v))
		fmt.Printf("0x%08x -> %s\n", dec.v, h)
		return nil
	}
	n, err := codec.Encode(enc.v)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> 0x%08x\n", oops.DecodeWide(enc.v), n)
	return nil
}
