package common

import "fmt"

// LSN is a position in the write-ahead log. Larger values are later.
type LSN uint64

// NilLSN is stamped on pages no logged operation has touched yet.
const NilLSN LSN = 0

type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

func Compare(a, b LSN) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

func (l LSN) IsNeverWritten() bool {
	return l == NilLSN
}

func (l LSN) String() string {
	if l.IsNeverWritten() {
		return "lsn(nil)"
	}
	return fmt.Sprintf("lsn(%d)", uint64(l))
}
