// Package cursor tracks the positions of open cursors so that an aborted
// structural change can move them back.
package cursor

import (
	"sync"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/pkg/optional"
)

type Position struct {
	Pgno    common.PageID
	Indx    int
	DupOff  optional.Optional[uint32]
	Deleted bool
	// Order breaks ties between cursors left on the same deleted slot by
	// different deletes. Later deletes get larger values.
	Order uint32
}

type Cursor struct {
	fileID common.FileID
	pos    Position
}

func (c *Cursor) FileID() common.FileID {
	return c.fileID
}

// Table holds the cursors open on one file.
type Table struct {
	mu      sync.Mutex
	cursors map[*Cursor]struct{}
}

// Registry is the set of all tables. Adjustments lock the registry first,
// then the table; neither lock is held while a page is latched.
type Registry struct {
	mu     sync.Mutex
	tables map[common.FileID]*Table
}

func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[common.FileID]*Table),
	}
}

func (r *Registry) Open(fileID common.FileID, pos Position) *Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[fileID]
	if !ok {
		t = &Table{cursors: make(map[*Cursor]struct{})}
		r.tables[fileID] = t
	}

	c := &Cursor{fileID: fileID, pos: pos}

	t.mu.Lock()
	t.cursors[c] = struct{}{}
	t.mu.Unlock()

	return c
}

func (r *Registry) Close(c *Cursor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[c.fileID]
	if !ok {
		return
	}

	t.mu.Lock()
	delete(t.cursors, c)
	empty := len(t.cursors) == 0
	t.mu.Unlock()

	if empty {
		delete(r.tables, c.fileID)
	}
}

// Position reads the cursor under the table lock.
func (r *Registry) Position(c *Cursor) Position {
	var pos Position
	r.each(c.fileID, func(cur *Cursor) {
		if cur == c {
			pos = cur.pos
		}
	})
	return pos
}

// each calls fn for every cursor of the file under both locks.
func (r *Registry) each(fileID common.FileID, fn func(c *Cursor)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[fileID]
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for c := range t.cursors {
		fn(c)
	}
}

// adjust rewrites positions in place and counts the ones fn changed.
func (r *Registry) adjust(fileID common.FileID, fn func(p *Position) bool) int {
	n := 0
	r.each(fileID, func(c *Cursor) {
		if fn(&c.pos) {
			n++
		}
	})
	return n
}
