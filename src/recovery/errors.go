package recovery

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
)

var (
	// ErrPageNotFound is fatal on redo for pages that must exist and is
	// never returned for undo.
	ErrPageNotFound = errors.New("page not found")
	ErrInconsistent = errors.New("page and log are inconsistent")
	ErrAllocation   = errors.New("page allocation failed")
	ErrDecode       = errors.New("malformed log record")
	ErrFreeList     = errors.New("free list is corrupted")
)

// InconsistencyError describes a page whose LSN fits neither the redo nor
// the undo branch of a record.
type InconsistencyError struct {
	Page     common.PageIdentity
	PageLSN  common.LSN
	Expected common.LSN
	Kind     Kind
	Op       Op
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf(
		"%s of %s: page %v is at %v, expected %v",
		e.Op, e.Kind, e.Page, e.PageLSN, e.Expected,
	)
}

func (e *InconsistencyError) Is(target error) bool {
	return target == ErrInconsistent
}
