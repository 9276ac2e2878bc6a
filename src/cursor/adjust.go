package cursor

import (
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/pkg/optional"
)

// UndoInsert reverses the insert of width entries at indx. Cursors on the
// removed entries are left deleted at indx, later ones move down.
func (r *Registry) UndoInsert(fileID common.FileID, pgno common.PageID, indx, width int) int {
	return r.adjust(fileID, func(p *Position) bool {
		switch {
		case p.Pgno != pgno || p.Indx < indx:
			return false
		case p.Indx >= indx+width:
			p.Indx -= width
		default:
			p.Indx = indx
			p.Deleted = true
		}
		return true
	})
}

// UndoDelete reverses the delete of width entries at indx. The cursors the
// delete left behind, recognised by order, come back to life on the
// restored entry; every other cursor at or past indx moves up.
func (r *Registry) UndoDelete(
	fileID common.FileID,
	pgno common.PageID,
	indx, width int,
	order uint32,
) int {
	return r.adjust(fileID, func(p *Position) bool {
		if p.Pgno != pgno || p.Indx < indx {
			return false
		}

		if p.Indx == indx && p.Deleted && p.Order == order {
			p.Deleted = false
			return true
		}

		p.Indx += width
		return true
	})
}

// Undelete clears the deleted flag of cursors on the entry.
func (r *Registry) Undelete(fileID common.FileID, pgno common.PageID, indx int) int {
	return r.adjust(fileID, func(p *Position) bool {
		if p.Pgno != pgno || p.Indx != indx || !p.Deleted {
			return false
		}
		p.Deleted = false
		return true
	})
}

// UndoDup moves cursors inside the duplicate set at (pgno, indx) back
// across length bytes inserted (add) or removed at dupOff.
func (r *Registry) UndoDup(
	fileID common.FileID,
	pgno common.PageID,
	indx int,
	dupOff, length uint32,
	add bool,
) int {
	return r.adjust(fileID, func(p *Position) bool {
		off, ok := p.DupOff.Get()
		if p.Pgno != pgno || p.Indx != indx || !ok || off < dupOff {
			return false
		}

		switch {
		case !add:
			p.DupOff = optional.Some(off + length)
		case off >= dupOff+length:
			p.DupOff = optional.Some(off - length)
		default:
			p.DupOff = optional.Some(dupOff)
			p.Deleted = true
		}
		return true
	})
}

// UndoSplit moves cursors from the halves of a split back onto the page
// that was split. Cursors on the right half were splitIndx entries further
// on the original page.
func (r *Registry) UndoSplit(
	fileID common.FileID,
	from, left, right common.PageID,
	splitIndx int,
) int {
	return r.adjust(fileID, func(p *Position) bool {
		switch p.Pgno {
		case right:
			p.Pgno = from
			p.Indx += splitIndx
		case left:
			if left == from {
				return false
			}
			p.Pgno = from
		default:
			return false
		}
		return true
	})
}

// UndoRSplit moves cursors from the collapsed root back to the child page
// whose contents it took over.
func (r *Registry) UndoRSplit(fileID common.FileID, child, root common.PageID) int {
	return r.MovePage(fileID, root, child)
}

// MovePage retargets every cursor on from to the same index on to.
func (r *Registry) MovePage(fileID common.FileID, from, to common.PageID) int {
	return r.adjust(fileID, func(p *Position) bool {
		if p.Pgno != from {
			return false
		}
		p.Pgno = to
		return true
	})
}

func (r *Registry) MoveItem(
	fileID common.FileID,
	from common.PageID,
	fromIndx int,
	to common.PageID,
	toIndx int,
) int {
	return r.adjust(fileID, func(p *Position) bool {
		if p.Pgno != from || p.Indx != fromIndx {
			return false
		}
		p.Pgno = to
		p.Indx = toIndx
		return true
	})
}
