package field

import "fmt"

// Kind is the numeric or reference contract of a field.
type Kind int

const (
	Byte      Kind = iota // jbyte
	Short                 // jshort
	Int                   // jint
	Long                  // jlong
	CInteger              // native integer of the declared type's width
	Address               // native pointer
	Oop                   // uncompressed heap reference
	NarrowOop             // compressed heap reference
)

var kindNames = [...]string{
	Byte:      "byte",
	Short:     "short",
	Int:       "int",
	Long:      "long",
	CInteger:  "cinteger",
	Address:   "address",
	Oop:       "oop",
	NarrowOop: "narrowOop",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("field: unknown kind %q", s)
}

// IsReference reports whether k denotes a managed-heap reference.
func (k Kind) IsReference() bool { return k == Oop || k == NarrowOop }

// writable reports whether values of kind k can be stored.
//
// Byte fields are read-only: the accessor layer this mirrors never had a
// byte store, and inventing one would guess at semantics. Reference fields
// are read-only because storing heap references belongs to the collector.
func (k Kind) writable() bool {
	switch k {
	case Short, Int, Long, CInteger, Address:
		return true
	}
	return false
}
