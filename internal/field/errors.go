package field

import (
	"errors"
	"fmt"

	"vmscope/internal/vmtypes"
)

var (
	ErrWrongType     = errors.New("field: declared type does not match field kind")
	ErrIllegalState  = errors.New("field: static/instance accessor mismatch")
	ErrReadOnlyField = errors.New("field: field kind does not support writes")
)

// WrongTypeError reports a field whose declared type is inconsistent with
// its kind. It is raised only at construction.
type WrongTypeError struct {
	Field    string
	Kind     Kind
	Declared *vmtypes.Type
	Want     string
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("field: %s: %s field declared as %v, want %s", e.Field, e.Kind, e.Declared, e.Want)
}

func (e *WrongTypeError) Unwrap() error { return ErrWrongType }

// IllegalStateError reports an instance accessor used on a static field or
// the reverse.
type IllegalStateError struct {
	Field  string
	Static bool
	Op     string
}

func (e *IllegalStateError) Error() string {
	if e.Static {
		return fmt.Sprintf("field: %s is static; %s needs an instance field", e.Field, e.Op)
	}
	return fmt.Sprintf("field: %s is an instance field; %s needs a static field", e.Field, e.Op)
}

func (e *IllegalStateError) Unwrap() error { return ErrIllegalState }
