package recovery

import (
	"bytes"
	"math"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/pkg/utils"
	"github.com/Blackdeer1524/PageDB/src/storage/hash"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

func (a *application) hashInsDel(r *HashInsDel) error {
	ndx := int(r.Ndx)

	put := func(p *page.Page) error {
		if err := p.InsertAt(ndx, r.Key); err != nil {
			return err
		}
		return p.InsertAt(ndx+1, r.Data)
	}
	del := func(p *page.Page) error {
		key, err := p.ItemAt(ndx)
		if err != nil {
			return err
		}
		if !bytes.Equal(key, r.Key) {
			return errors.Wrapf(page.ErrCorrupted, "pair at %d does not hold the logged key", ndx)
		}

		// Data first: when the pair ends the page both removals take the
		// tail fast path.
		if err := p.RemoveAt(ndx + 1); err != nil {
			return err
		}
		return p.RemoveAt(ndx)
	}

	var redo, undo func(p *page.Page) error
	switch r.Opcode {
	case HashPut:
		redo, undo = put, del
	case HashDel:
		redo, undo = del, put
	default:
		return errors.Wrapf(ErrDecode, "insdel opcode %d", r.Opcode)
	}

	return a.apply(step{pgno: r.Pgno, before: r.PageLSN, redo: redo, undo: undo})
}

func (a *application) hashNewPage(r *HashNewPage) error {
	var linkIn bool
	switch r.Opcode {
	case HashPutOvfl:
		linkIn = true
	case HashDelOvfl:
	default:
		return errors.Wrapf(ErrDecode, "newpage opcode %d", r.Opcode)
	}

	// successor of prev and predecessor of next when the page is linked
	// in (true) or out (false)
	prevNext := map[bool]common.PageID{true: r.NewPgno, false: r.NextPgno}
	nextPrev := map[bool]common.PageID{true: r.NewPgno, false: r.PrevPgno}

	err := a.apply(step{
		pgno:   r.NewPgno,
		before: r.PageLSN,
		create: linkIn,
		redo: func(p *page.Page) error {
			if linkIn {
				p.Init(r.NewPgno, r.PrevPgno, r.NextPgno, 0, page.TypeHash)
			}
			return nil
		},
		undo: func(p *page.Page) error {
			if linkIn {
				reset(p, r.NewPgno, 0, page.TypeHash, r.PageLSN)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	err = a.apply(step{
		pgno:      r.PrevPgno,
		before:    r.PrevLSN,
		neighbour: true,
		redo: func(p *page.Page) error {
			p.SetNext(prevNext[linkIn])
			return nil
		},
		undo: func(p *page.Page) error {
			p.SetNext(prevNext[!linkIn])
			return nil
		},
	})
	if err != nil {
		return err
	}

	return a.apply(step{
		pgno:      r.NextPgno,
		before:    r.NextLSN,
		neighbour: true,
		redo: func(p *page.Page) error {
			p.SetPrev(nextPrev[linkIn])
			return nil
		},
		undo: func(p *page.Page) error {
			p.SetPrev(nextPrev[!linkIn])
			return nil
		},
	})
}

func (a *application) hashReplace(r *HashReplace) error {
	rewrite := func(p *page.Page, from, to []byte, dupType hash.ItemType) error {
		item, err := p.ItemAt(int(r.Ndx))
		if err != nil {
			return err
		}
		typ, data, err := hash.Parse(item)
		if err != nil {
			return err
		}

		off := int(r.Off)
		if off+len(from) > len(data) || !bytes.Equal(data[off:off+len(from)], from) {
			return errors.Wrapf(page.ErrCorrupted, "item %d does not hold the replaced bytes at %d", r.Ndx, off)
		}

		if r.MakeDup {
			typ = dupType
		}
		return p.ReplaceAt(int(r.Ndx), hash.Item(typ, utils.Concat(data[:off], to, data[off+len(from):])))
	}

	return a.apply(step{
		pgno:   r.Pgno,
		before: r.PageLSN,
		redo: func(p *page.Page) error {
			return rewrite(p, r.Old, r.New, hash.Duplicate)
		},
		undo: func(p *page.Page) error {
			return rewrite(p, r.New, r.Old, hash.KeyData)
		},
	})
}

func (a *application) hashSplit(r *HashSplit) error {
	if len(r.Image) != page.PageSize {
		return errors.Wrapf(ErrDecode, "split image of %d bytes", len(r.Image))
	}

	switch r.Opcode {
	case HashSplitOld:
		// The old bucket is rewritten by the insdel records that follow;
		// this record only brackets them.
		return a.apply(step{
			pgno:   r.Pgno,
			before: r.PageLSN,
			redo: func(*page.Page) error {
				return nil
			},
			undo: func(p *page.Page) error {
				return p.Restore(r.Image)
			},
		})
	case HashSplitNew:
		return a.apply(step{
			pgno:   r.Pgno,
			before: r.PageLSN,
			create: true,
			redo: func(p *page.Page) error {
				p.SetData(r.Image)
				p.SetPageID(r.Pgno)
				return nil
			},
			undo: func(p *page.Page) error {
				reset(p, r.Pgno, 0, page.TypeHash, r.PageLSN)
				return nil
			},
		})
	default:
		return errors.Wrapf(ErrDecode, "splitdata opcode %d", r.Opcode)
	}
}

func (a *application) hashCopyPage(r *HashCopyPage) error {
	target, err := decodeImage(r.PageImage)
	if err != nil {
		return err
	}
	if _, err := decodeImage(r.SrcImage); err != nil {
		return err
	}

	err = a.apply(step{
		pgno:   r.Pgno,
		before: r.PageLSN,
		redo: func(p *page.Page) error {
			p.SetData(r.SrcImage)
			p.SetPageID(r.Pgno)
			p.SetPrev(target.Prev())
			p.SetNext(r.NNextPgno)
			return nil
		},
		undo: func(p *page.Page) error {
			return p.Restore(r.PageImage)
		},
	})
	if err != nil {
		return err
	}

	err = a.apply(step{
		pgno:   r.NextPgno,
		before: r.NextLSN,
		redo: func(p *page.Page) error {
			p.Init(r.NextPgno, common.InvalidPageID, common.InvalidPageID, 0, page.TypeInvalid)
			return nil
		},
		undo: func(p *page.Page) error {
			return p.Restore(r.SrcImage)
		},
	})
	if err != nil {
		return err
	}

	return a.apply(step{
		pgno:      r.NNextPgno,
		before:    r.NNextLSN,
		neighbour: true,
		redo: func(p *page.Page) error {
			p.SetPrev(r.Pgno)
			return nil
		},
		undo: func(p *page.Page) error {
			p.SetPrev(r.NextPgno)
			return nil
		},
	})
}

// hashGroupAlloc does not follow the page-LSN rule for the run: growing
// the file is not transactional, so redo recreates any page of the run
// that never got its initializing write, and undo hands the whole run to
// limbo.
// maxGroupPages bounds one group allocation: a whole doubling of the
// largest table the spares can address.
const maxGroupPages = 1 << 20

func (a *application) hashGroupAlloc(r *HashGroupAlloc) error {
	switch {
	case r.Num == 0:
		return errors.Wrap(ErrDecode, "empty page group")
	case r.Num > maxGroupPages:
		return errors.Wrapf(ErrDecode, "page group of %d pages", r.Num)
	case r.StartPgno == common.InvalidPageID:
		return errors.Wrap(ErrDecode, "page group starts at page 0")
	case uint64(r.StartPgno)+uint64(r.Num)-1 > math.MaxUint32:
		return errors.Wrapf(ErrDecode, "page group %d+%d overflows the page space", r.StartPgno, r.Num)
	}

	last := r.StartPgno + common.PageID(r.Num) - 1

	if a.op == OpRedo {
		for i := range r.Num {
			if err := a.ensurePage(r.ident(r.StartPgno + common.PageID(i))); err != nil {
				return err
			}
		}
	} else {
		run := make([]common.PageID, 0, r.Num)
		for i := range r.Num {
			run = append(run, r.StartPgno+common.PageID(i))
		}
		a.d.freeList.Add(r.FileID, r.MetaPgno, run...)
	}

	return a.apply(step{
		pgno:   r.MetaPgno,
		before: r.MetaLSN,
		redo: func(p *page.Page) error {
			m := p.Meta()
			if last > m.LastPgno() {
				m.SetLastPgno(last)
			}
			return nil
		},
		undo: func(*page.Page) error {
			return nil
		},
	})
}

func (a *application) ensurePage(ident common.PageIdentity) error {
	lease, err := a.acquire(ident, true)
	if err != nil {
		return err
	}
	defer lease.Release()

	p := lease.Page()
	if !p.LSN().IsNeverWritten() {
		a.skip()
		return nil
	}

	p.Init(ident.PageID, common.InvalidPageID, common.InvalidPageID, 0, page.TypeInvalid)
	p.SetLSN(a.lsn)
	lease.Put(true)
	a.applied()
	return nil
}

func (a *application) hashMetaGroup(r *HashMetaGroup) error {
	if r.Bucket == 0 || r.Bucket >= page.MaxBuckets {
		return errors.Wrapf(ErrDecode, "bucket %d cannot be added", r.Bucket)
	}
	spare := page.SpareIndex(r.Bucket)

	err := a.apply(step{
		pgno:       r.Pgno,
		before:     r.PageLSN,
		metaBefore: some(r.MetaLSN),
		create:     true,
		redo: func(p *page.Page) error {
			p.Init(r.Pgno, common.InvalidPageID, common.InvalidPageID, 0, page.TypeHash)
			return nil
		},
		undo: func(p *page.Page) error {
			reset(p, r.Pgno, 0, page.TypeInvalid, r.PageLSN)
			return nil
		},
	})
	if err != nil {
		return err
	}

	return a.apply(step{
		pgno:   r.MetaPgno,
		before: r.MetaLSN,
		redo: func(p *page.Page) error {
			m := p.Meta()
			m.SetMaxBucket(r.Bucket)
			if r.Bucket > m.HighMask() {
				m.SetLowMask(m.HighMask())
				m.SetHighMask(r.Bucket | m.LowMask())
			}
			if r.NewAlloc {
				m.SetSpare(spare, r.Spare)
			}
			return nil
		},
		undo: func(p *page.Page) error {
			m := p.Meta()
			m.SetMaxBucket(r.Bucket - 1)
			// Buckets are added one at a time, so the masks moved iff this
			// bucket opened a new doubling.
			if r.Bucket == m.LowMask()+1 {
				m.SetHighMask(m.LowMask())
				m.SetLowMask(m.LowMask() >> 1)
			}
			if r.NewAlloc {
				m.SetSpare(spare, r.PrevSpare)
			}
			return nil
		},
	})
}

func (a *application) hashCurAdj(r *HashCurAdj) error {
	if a.op != OpAbort {
		return nil
	}

	switch {
	case r.IsDup:
		a.d.cursors.UndoDup(r.FileID, r.Pgno, int(r.Indx), r.DupOff, r.Len, r.Add)
	case r.Add:
		a.d.cursors.UndoInsert(r.FileID, r.Pgno, int(r.Indx), 2)
	default:
		a.d.cursors.UndoDelete(r.FileID, r.Pgno, int(r.Indx), 2, r.Order)
	}
	return nil
}

func (a *application) hashChgPg(r *HashChgPg) error {
	if a.op != OpAbort {
		return nil
	}

	switch r.Mode {
	case ChgPgWhole:
		a.d.cursors.MovePage(r.FileID, r.NewPgno, r.OldPgno)
	case ChgPgItem:
		a.d.cursors.MoveItem(r.FileID, r.NewPgno, int(r.NewIndx), r.OldPgno, int(r.OldIndx))
	default:
		return errors.Wrapf(ErrDecode, "chgpg mode %d", r.Mode)
	}
	return nil
}
