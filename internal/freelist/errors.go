package freelist

import (
	"errors"
	"fmt"
)

var ErrCorrupt = errors.New("freelist: corrupt structure")

// CorruptStructureError reports a traversal that exceeded the bound
// implied by the dictionary's total size, or a structural check that
// failed.
type CorruptStructureError struct {
	Addr  uint64 // node or chunk where the problem was seen
	What  string
	Limit int // traversal cap, 0 for non-traversal checks
}

func (e *CorruptStructureError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("freelist: corrupt structure at 0x%x: %s exceeds %d steps", e.Addr, e.What, e.Limit)
	}
	return fmt.Sprintf("freelist: corrupt structure at 0x%x: %s", e.Addr, e.What)
}

func (e *CorruptStructureError) Unwrap() error { return ErrCorrupt }
