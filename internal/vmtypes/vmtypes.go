// Package vmtypes describes the type database of an inspected virtual
// machine: type sizes, field offsets and the addresses of static fields.
package vmtypes

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType  = errors.New("vmtypes: unknown type")
	ErrUnknownField = errors.New("vmtypes: unknown field")
	ErrNotStatic    = errors.New("vmtypes: field is not static")
)

// Canonical Java scalar type names.
const (
	JByte  = "jbyte"
	JShort = "jshort"
	JInt   = "jint"
	JLong  = "jlong"
)

// Type is an immutable type descriptor.
type Type struct {
	Name       string `json:"name"`
	Superclass string `json:"superclass,omitempty"`
	Size       uint64 `json:"size"`
	IsOopType  bool   `json:"oop,omitempty"`
	IsInteger  bool   `json:"integer,omitempty"`
	IsUnsigned bool   `json:"unsigned,omitempty"`
}

func (t *Type) String() string {
	return fmt.Sprintf("%s(size=%d oop=%v)", t.Name, t.Size, t.IsOopType)
}

// Database is the lookup interface consumed by field construction.
type Database interface {
	LookupType(name string) (*Type, error)
	LookupStaticFieldAddress(typeName, fieldName string) (uint64, error)
}

// FieldEntry describes one field as recorded in the database.
type FieldEntry struct {
	Type     string `json:"type"`              // containing type
	Name     string `json:"name"`              // field name
	TypeName string `json:"type_name"`         // declared type
	Static   bool   `json:"static,omitempty"`  // process-wide field
	Offset   uint64 `json:"offset,omitempty"`  // instance fields
	Address  uint64 `json:"address,omitempty"` // static fields
	Kind     string `json:"kind,omitempty"`    // optional explicit field kind
}

// ID returns "Type::name".
func (e FieldEntry) ID() string { return e.Type + "::" + e.Name }
