package recovery

import (
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

func (a *application) pgAlloc(r *PgAlloc) error {
	// The page never reached disk: it cannot be linked now because its
	// slot on the free list is unknown to this pass.
	inLimbo := false

	next := r.Next
	if a.op.undoing() {
		head, err := a.undoFreeHead(r)
		if err != nil {
			return err
		}
		next = head
	}

	err := a.apply(step{
		pgno:       r.Pgno,
		before:     r.PageLSN,
		metaBefore: some(r.MetaLSN),
		create:     true,
		redo: func(p *page.Page) error {
			p.Init(r.Pgno, common.InvalidPageID, common.InvalidPageID, r.Level, r.PType)
			return nil
		},
		undo: func(p *page.Page) error {
			p.Init(r.Pgno, common.InvalidPageID, next, 0, page.TypeFree)
			return nil
		},
		lost: func() {
			if r.PageLSN.IsNeverWritten() {
				inLimbo = true
				a.d.freeList.Add(r.FileID, r.MetaPgno, r.Pgno)
			}
		},
	})
	if err != nil {
		return err
	}

	err = a.apply(step{
		pgno:   r.MetaPgno,
		before: r.MetaLSN,
		redo: func(p *page.Page) error {
			m := p.Meta()
			m.SetFree(r.Next)
			if r.Pgno > m.LastPgno() {
				m.SetLastPgno(r.Pgno)
			}
			return nil
		},
		undo: func(p *page.Page) error {
			// last_pgno stays: growing the file is not undone.
			if inLimbo {
				p.Meta().SetFree(r.Next)
			} else {
				p.Meta().SetFree(r.Pgno)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	if r.PType == page.TypeMeta {
		a.res.Sync = true
	}
	return nil
}

// undoFreeHead is the page an undone allocation is linked in front of.
// While the metadata page still carries this record its current head is
// used: an undone extension may have been linked ahead of Next since.
func (a *application) undoFreeHead(r *PgAlloc) (common.PageID, error) {
	lease, err := a.acquire(r.ident(r.MetaPgno), false)
	if err != nil || lease == nil {
		return r.Next, err
	}
	defer lease.Release()

	m := lease.Page().Meta()
	if m.LSN() != a.lsn || m.Free() == r.Pgno {
		return r.Next, nil
	}
	return m.Free(), nil
}

func (a *application) pgFree(r *PgFree) error {
	img := page.New()
	if err := img.Restore(r.Image); err != nil {
		return err
	}
	before := img.LSN()

	err := a.apply(step{
		pgno:   r.Pgno,
		before: before,
		redo: func(p *page.Page) error {
			p.Init(r.Pgno, common.InvalidPageID, r.Next, 0, page.TypeFree)
			return nil
		},
		undo: func(p *page.Page) error {
			return p.Restore(r.Image)
		},
	})
	if err != nil {
		return err
	}

	err = a.apply(step{
		pgno:   r.MetaPgno,
		before: r.MetaLSN,
		redo: func(p *page.Page) error {
			p.Meta().SetFree(r.Pgno)
			return nil
		},
		undo: func(p *page.Page) error {
			p.Meta().SetFree(r.Next)
			return nil
		},
	})
	if err != nil {
		return err
	}

	if img.Type() == page.TypeMeta {
		a.res.Sync = true
	}
	return nil
}
