package field

import (
	"fmt"

	"vmscope/internal/oops"
)

// Value is the result of a field read. The kind decides which accessor is
// meaningful: Int/Uint for integer and address kinds, Oop for references.
type Value struct {
	kind   Kind
	width  int
	signed bool
	bits   uint64
	oop    oops.Handle
}

func (v Value) Kind() Kind { return v.kind }

// Int returns the value as a signed integer. Java kinds and signed
// CInteger values are sign-extended from their width.
func (v Value) Int() int64 { return int64(v.bits) }

// Uint returns the raw bits zero-extended from the access width.
func (v Value) Uint() uint64 {
	if v.width > 0 && v.width < 8 {
		return v.bits & (1<<(8*uint(v.width)) - 1)
	}
	return v.bits
}

// Oop returns the decoded reference. It is Null for non-reference kinds.
func (v Value) Oop() oops.Handle { return v.oop }

func (v Value) String() string {
	switch v.kind {
	case Oop, NarrowOop:
		return v.oop.String()
	case Address:
		return fmt.Sprintf("0x%x", v.bits)
	case CInteger:
		if !v.signed {
			return fmt.Sprintf("%d", v.Uint())
		}
	}
	return fmt.Sprintf("%d", v.Int())
}
