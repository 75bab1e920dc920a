package session

import (
	"errors"
	"fmt"

	"vmscope/internal/addrspace"
	"vmscope/internal/diag"
	"vmscope/internal/field"
	"vmscope/internal/freelist"
	"vmscope/internal/oops"
	"vmscope/internal/vmtypes"
)

// Catalog is a type database that can also enumerate its fields and
// named constants. *vmtypes.Table implements it.
type Catalog interface {
	vmtypes.Database
	Fields() []vmtypes.FieldEntry
	Constant(name string) (int64, bool)
}

// Session is the immutable result of compiling a target.
type Session struct {
	Handle Handle
	Target field.Target
	DB     Catalog
	Schema *field.Schema
	Diags  []diag.Diag

	// Compressed reports whether oop-typed fields were compiled as
	// narrow references.
	Compressed bool
	// CodecSource names where the narrow-oop codec came from.
	CodecSource string

	opts diag.Options
}

// Options controls Compile.
type Options struct {
	Diag diag.Options
	// Narrow overrides codec discovery.
	Narrow *oops.Codec
	// Compressed overrides the compressed-reference decision, which
	// otherwise follows whether a codec was found.
	Compressed *bool
}

// Codec locations, newest first.
var codecStatics = []struct{ typ, base, shift string }{
	{"CompressedOops", "_narrow_oop._base", "_narrow_oop._shift"},
	{"Universe", "_narrow_oop._base", "_narrow_oop._shift"},
}

const (
	constNarrowBase  = "narrow_oop_base"
	constNarrowShift = "narrow_oop_shift"
)

// Compile resolves the narrow-oop codec and builds the field schema.
func Compile(h Handle, space *addrspace.Space, db Catalog, opts Options) (*Session, error) {
	codec, source, err := findCodec(space, db, opts.Narrow)
	if err != nil {
		return nil, err
	}
	if err := codec.Validate(); err != nil {
		return nil, fmt.Errorf("session: %s: %w", source, err)
	}
	compressed := source != ""
	if opts.Compressed != nil {
		compressed = *opts.Compressed
	}

	decls, diags := field.Decls(db, db.Fields(), compressed)
	if source == "" {
		diags = append(diags, uncodedNarrow(decls)...)
	}
	if err := opts.Diag.Check(diags); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	schema, more, err := field.BuildSchema(db, decls, opts.Diag)
	if err != nil {
		return nil, err
	}
	return &Session{
		Handle:      h,
		Target:      field.Target{Space: space, Narrow: codec},
		DB:          db,
		Schema:      schema,
		Diags:       append(diags, more...),
		Compressed:  compressed,
		CodecSource: source,
		opts:        opts.Diag,
	}, nil
}

// uncodedNarrow reports narrow-reference declarations, which decode with
// the zero codec when none was found.
func uncodedNarrow(decls []field.Decl) []diag.Diag {
	var diags diag.Diags
	for _, d := range decls {
		if d.Kind == field.NarrowOop {
			diags.Addf(d.StaticAddress, diag.KindNoCodec, "%s is a narrow reference but no codec was found; decoding with base 0 shift 0", d.ID())
		}
	}
	return diags.Items()
}

// findCodec returns the codec and a description of its origin, or an
// empty origin when none was found.
func findCodec(space *addrspace.Space, db Catalog, override *oops.Codec) (oops.Codec, string, error) {
	if override != nil {
		return *override, "override", nil
	}
	for _, loc := range codecStatics {
		baseAddr, err := db.LookupStaticFieldAddress(loc.typ, loc.base)
		if errors.Is(err, vmtypes.ErrUnknownField) {
			continue
		}
		if err != nil {
			return oops.Codec{}, "", fmt.Errorf("session: %s::%s: %w", loc.typ, loc.base, err)
		}
		shiftAddr, err := db.LookupStaticFieldAddress(loc.typ, loc.shift)
		if err != nil {
			return oops.Codec{}, "", fmt.Errorf("session: %s::%s: %w", loc.typ, loc.shift, err)
		}
		base, err := space.ReadAddress(baseAddr)
		if err != nil {
			return oops.Codec{}, "", err
		}
		shift, err := space.ReadInt(shiftAddr)
		if err != nil {
			return oops.Codec{}, "", err
		}
		if shift < 0 {
			return oops.Codec{}, "", fmt.Errorf("session: %s::%s is negative (%d)", loc.typ, loc.shift, shift)
		}
		return oops.Codec{Base: base, Shift: uint(shift)}, loc.typ + "::" + loc.base, nil
	}
	base, okBase := db.Constant(constNarrowBase)
	shift, okShift := db.Constant(constNarrowShift)
	if okBase || okShift {
		if shift < 0 {
			return oops.Codec{}, "", fmt.Errorf("session: %s is negative (%d)", constNarrowShift, shift)
		}
		return oops.Codec{Base: uint64(base), Shift: uint(shift)}, "constants", nil
	}
	return oops.Codec{}, "", nil
}

// Options returns the diagnostic options the session was compiled with.
func (s *Session) Options() diag.Options { return s.opts }

// Dictionary returns a free-list dictionary view laid out by names. addr
// is the dictionary object address; it is unused when the root and total
// fields are static.
func (s *Session) Dictionary(names freelist.Names, addr uint64) (*freelist.Dictionary, error) {
	layout, err := freelist.LayoutFromSchema(s.Schema, names)
	if err != nil {
		return nil, err
	}
	return freelist.New(s.Target, layout, addr, s.opts), nil
}
