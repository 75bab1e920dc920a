// Package oops decodes managed-heap references.
//
// A wide reference is an address-width pointer into the heap. A narrow
// (compressed) reference is a 32-bit value that expands to
// base + narrow<<shift. The narrow value 0 always denotes null and is never
// treated as an offset from base.
package oops

import (
	"errors"
	"fmt"
	"math"
)

var ErrEncodingRange = errors.New("oops: address not representable as a narrow reference")

// Handle is an opaque reference to a managed-heap object. Handles are only
// produced by decoding a reference read from the target.
type Handle struct {
	addr uint64
}

// Null is the null reference.
var Null = Handle{}

// DecodeWide wraps an uncompressed reference.
func DecodeWide(addr uint64) Handle { return Handle{addr: addr} }

// Addr returns the wide address of the referenced object.
func (h Handle) Addr() uint64 { return h.addr }

// IsNull reports whether h is the null reference.
func (h Handle) IsNull() bool { return h.addr == 0 }

func (h Handle) String() string {
	if h.IsNull() {
		return "null"
	}
	return fmt.Sprintf("oop@0x%x", h.addr)
}

// Codec converts between narrow and wide references for one heap
// compression scheme.
type Codec struct {
	Base  uint64
	Shift uint
}

// Validate reports whether the codec parameters are usable: the shift
// fits a 32-bit offset scale and the largest narrow value does not carry
// past the top of a 64-bit address space.
func (c Codec) Validate() error {
	if c.Shift > 31 {
		return fmt.Errorf("oops: shift %d out of range", c.Shift)
	}
	if span := uint64(math.MaxUint32) << c.Shift; c.Base > math.MaxUint64-span {
		return fmt.Errorf("oops: base 0x%x with shift %d overflows 64 bits", c.Base, c.Shift)
	}
	return nil
}

// Decode expands a narrow reference. Decode never wraps for a codec that
// passes Validate; an unvalidated codec decodes modulo 2^64.
func (c Codec) Decode(narrow uint32) Handle {
	if narrow == 0 {
		return Null
	}
	return Handle{addr: c.Base + uint64(narrow)<<c.Shift}
}

// Encode compresses a wide address. Encode(0) is 0.
func (c Codec) Encode(wide uint64) (uint32, error) {
	if wide == 0 {
		return 0, nil
	}
	if wide <= c.Base {
		return 0, &EncodingRangeError{Addr: wide, Codec: c, Reason: "at or below heap base"}
	}
	off := wide - c.Base
	if off&(1<<c.Shift-1) != 0 {
		return 0, &EncodingRangeError{Addr: wide, Codec: c, Reason: "misaligned for shift"}
	}
	narrow := off >> c.Shift
	if narrow > 1<<32-1 {
		return 0, &EncodingRangeError{Addr: wide, Codec: c, Reason: "offset exceeds 32 bits"}
	}
	return uint32(narrow), nil
}

// EncodeHandle compresses h.
func (c Codec) EncodeHandle(h Handle) (uint32, error) {
	return c.Encode(h.addr)
}

// EncodingRangeError reports a wide address with no narrow encoding under
// the codec's base and shift.
type EncodingRangeError struct {
	Addr   uint64
	Codec  Codec
	Reason string
}

func (e *EncodingRangeError) Error() string {
	return fmt.Sprintf("oops: cannot encode 0x%x with base=0x%x shift=%d: %s",
		e.Addr, e.Codec.Base, e.Codec.Shift, e.Reason)
}

func (e *EncodingRangeError) Unwrap() error { return ErrEncodingRange }
