package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"vmscope/internal/field"
	"vmscope/internal/output"
	"vmscope/internal/session"
)

// splitID splits "Type::name" at the last "::".
func splitID(id string) (typ, name string, err error) {
	i := strings.LastIndex(id, "::")
	if i <= 0 || i+2 == len(id) {
		return "", "", fmt.Errorf("bad field %q (want Type::name)", id)
	}
	return id[:i], id[i+2:], nil
}

// record builds the report entry for f. Statics are always read; instance
// fields only when base is set.
func record(s *session.Session, f *field.Field, base uint64, haveBase bool) output.FieldRecord {
	rec := output.FieldRecord{
		ID:           f.ID(),
		Kind:         f.Kind().String(),
		DeclaredType: f.DeclaredType().Name,
		Static:       f.IsStatic(),
	}
	var (
		v   field.Value
		err error
	)
	switch {
	case f.IsStatic():
		rec.Address = f.StaticAddress()
		v, err = f.StaticValue(s.Target)
	case haveBase:
		rec.Offset = f.Offset()
		v, err = f.Value(s.Target, base)
	default:
		rec.Offset = f.Offset()
		return rec
	}
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Value = v.String()
	}
	return rec
}

func cmdFields(args []string) error {
	fs := flag.NewFlagSet("fields", flag.ExitOnError)
	tf := addTargetFlags(fs)
	typeName := fs.String("type", "", "only fields of this type")
	var addr uintFlag
	fs.Var(&addr, "addr", "object address for instance fields (requires --type)")
	jsonOut := fs.Bool("json", false, "output as JSON")
	outDir := fs.String("out", "", "write fields.json and diags.json to this directory")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if addr.set && *typeName == "" {
		return fmt.Errorf("--addr requires --type")
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

	fields := s.Schema.Fields()
	if *typeName != "" {
		fields = s.Schema.FieldsOf(*typeName)
		if len(fields) == 0 {
			return fmt.Errorf("no fields for type %s", *typeName)
		}
	}
	recs := make([]output.FieldRecord, 0, len(fields))
	for _, f := range fields {
		recs = append(recs, record(s, f, addr.v, addr.set))
	}

	if *outDir != "" {
		if err := output.WriteFieldsJSON(*outDir, recs); err != nil {
			return err
		}
		if err := output.WriteDiagsJSON(*outDir, s.Diags); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d fields and %d diagnostics to %s\n", len(recs), len(s.Diags), *outDir)
		return nil
	}
	if *jsonOut {
		return output.EncodeJSON(os.Stdout, recs)
	}

	for _, r := range recs {
		where := fmt.Sprintf("+0x%x", r.Offset)
		if r.Static {
			where = fmt.Sprintf("@0x%x", r.Address)
		}
		val := r.Value
		if r.Error != "" {
			val = "<" + r.Error + ">"
		}
		fmt.Printf("%-48s %-9s %-24s %-14s %s\n", r.ID, r.Kind, r.DeclaredType, where, val)
	}
	return nil
}
