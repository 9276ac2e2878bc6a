package recovery

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/pkg/utils"
	"github.com/Blackdeer1524/PageDB/src/storage/btree"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

func decodeImage(img []byte) (*page.Page, error) {
	if len(img) != page.PageSize {
		return nil, errors.Wrapf(ErrDecode, "page image of %d bytes", len(img))
	}

	p := page.New()
	p.SetData(img)
	return p, nil
}

func fill(p *page.Page, pgno, prev, next common.PageID, level uint8, typ page.Type, items [][]byte) error {
	p.Init(pgno, prev, next, level, typ)
	for _, item := range items {
		if err := p.Append(item); err != nil {
			return err
		}
	}
	return nil
}

func (a *application) btreeSplit(r *BtreeSplit) error {
	src, err := decodeImage(r.PgImage)
	if err != nil {
		return err
	}

	items, err := src.Items()
	if err != nil {
		return errors.Wrap(err, "split image")
	}
	if int(r.Index) > len(items) {
		return errors.Wrapf(ErrDecode, "split index %d of %d items", r.Index, len(items))
	}

	var (
		leftItems  = items[:r.Index]
		rightItems = items[r.Index:]
		level, typ = src.Level(), src.Type()
		rootSplit  = r.RootPgno != common.InvalidPageID
		leftPrev   = src.Prev()
		rightNext  = src.Next()
	)
	if rootSplit {
		leftPrev, rightNext = common.InvalidPageID, common.InvalidPageID
	}

	err = a.apply(step{
		pgno:   r.Left,
		before: r.LeftLSN,
		create: rootSplit,
		redo: func(p *page.Page) error {
			return fill(p, r.Left, leftPrev, r.Right, level, typ, leftItems)
		},
		undo: func(p *page.Page) error {
			if rootSplit {
				reset(p, r.Left, level, typ, r.LeftLSN)
				return nil
			}
			return p.Restore(r.PgImage)
		},
	})
	if err != nil {
		return err
	}

	err = a.apply(step{
		pgno:   r.Right,
		before: r.RightLSN,
		create: true,
		redo: func(p *page.Page) error {
			return fill(p, r.Right, r.Left, rightNext, level, typ, rightItems)
		},
		undo: func(p *page.Page) error {
			reset(p, r.Right, level, typ, r.RightLSN)
			return nil
		},
	})
	if err != nil {
		return err
	}

	if rootSplit {
		return a.splitRoot(r, src, leftItems, rightItems)
	}

	return a.apply(step{
		pgno:      r.NPgno,
		before:    r.NLSN,
		neighbour: true,
		redo: func(p *page.Page) error {
			p.SetPrev(r.Right)
			return nil
		},
		undo: func(p *page.Page) error {
			p.SetPrev(r.Left)
			return nil
		},
	})
}

// splitRoot turns the root into an internal page over the two new
// children.
func (a *application) splitRoot(r *BtreeSplit, src *page.Page, leftItems, rightItems [][]byte) error {
	left, right := page.New(), page.New()
	if err := fill(left, r.Left, 0, r.Right, src.Level(), src.Type(), leftItems); err != nil {
		return err
	}
	if err := fill(right, r.Right, r.Left, 0, src.Level(), src.Type(), rightItems); err != nil {
		return err
	}

	var (
		entries [2][]byte
		total   uint32
	)
	for i, child := range []*page.Page{left, right} {
		cnt, err := btree.Count(child)
		if err != nil {
			return err
		}
		key, err := btree.FirstKey(child)
		if err != nil {
			return err
		}
		entries[i] = btree.InternalItem(child.PageID(), cnt, key)
		total += cnt
	}

	return a.apply(step{
		pgno:   r.RootPgno,
		before: src.LSN(),
		redo: func(p *page.Page) error {
			err := fill(
				p, r.RootPgno, common.InvalidPageID, common.InvalidPageID,
				src.Level()+1, page.TypeBtreeInternal, entries[:],
			)
			if err != nil {
				return err
			}
			if r.RecNum {
				p.SetRecords(total)
			}
			return nil
		},
		undo: func(p *page.Page) error {
			return p.Restore(r.PgImage)
		},
	})
}

func (a *application) btreeRSplit(r *BtreeRSplit) error {
	child, err := decodeImage(r.PgImage)
	if err != nil {
		return err
	}

	err = a.apply(step{
		pgno:   r.RootPgno,
		before: r.RootLSN,
		redo: func(p *page.Page) error {
			p.SetData(r.PgImage)
			p.SetPageID(r.RootPgno)
			p.SetPrev(common.InvalidPageID)
			p.SetNext(common.InvalidPageID)
			p.SetRecords(r.NRecs)
			return nil
		},
		undo: func(p *page.Page) error {
			p.Init(
				r.RootPgno, common.InvalidPageID, common.InvalidPageID,
				child.Level()+1, page.TypeBtreeInternal,
			)
			if err := p.Append(r.RootEntry); err != nil {
				return err
			}
			p.SetRecords(r.NRecs)
			return nil
		},
	})
	if err != nil {
		return err
	}

	// The child keeps its bytes on redo; it is freed by a record of its
	// own.
	return a.apply(step{
		pgno:   r.Pgno,
		before: r.PgLSN,
		redo: func(*page.Page) error {
			return nil
		},
		undo: func(p *page.Page) error {
			return p.Restore(r.PgImage)
		},
	})
}

func (a *application) btreeAdj(r *BtreeAdj) error {
	adjust := func(p *page.Page, insert bool) error {
		if !insert {
			return p.RemoveAt(int(r.Indx))
		}

		item, err := p.ItemAt(int(r.IndxCopy))
		if err != nil {
			return err
		}
		return p.InsertAt(int(r.Indx), utils.Concat(item))
	}

	return a.apply(step{
		pgno:   r.Pgno,
		before: r.LSN,
		redo: func(p *page.Page) error {
			return adjust(p, r.IsInsert)
		},
		undo: func(p *page.Page) error {
			return adjust(p, !r.IsInsert)
		},
	})
}

func (a *application) btreeCAdj(r *BtreeCAdj) error {
	adjust := func(p *page.Page, delta int32) error {
		item, err := p.ItemAt(int(r.Indx))
		if err != nil {
			return err
		}
		if err := btree.AdjustRecords(item, delta); err != nil {
			return err
		}
		if r.RootAdjust {
			p.SetRecords(uint32(int64(p.Records()) + int64(delta)))
		}
		return nil
	}

	return a.apply(step{
		pgno:   r.Pgno,
		before: r.LSN,
		redo: func(p *page.Page) error {
			return adjust(p, r.Delta)
		},
		undo: func(p *page.Page) error {
			return adjust(p, -r.Delta)
		},
	})
}

func (a *application) btreeCDel(r *BtreeCDel) error {
	mark := func(p *page.Page, deleted bool) error {
		item, err := p.ItemAt(int(r.Indx))
		if err != nil {
			return err
		}
		if _, _, err := btree.ParseLeaf(item); err != nil {
			return err
		}
		return btree.SetDeleted(item, deleted)
	}

	err := a.apply(step{
		pgno:   r.Pgno,
		before: r.LSN,
		redo: func(p *page.Page) error {
			return mark(p, true)
		},
		undo: func(p *page.Page) error {
			return mark(p, false)
		},
	})
	if err != nil {
		return err
	}

	if a.op.undoing() {
		a.d.cursors.Undelete(r.FileID, r.Pgno, int(r.Indx))
	}
	return nil
}

func (a *application) btreeRepl(r *BtreeRepl) error {
	rebuild := func(p *page.Page, mid []byte, deleted bool) error {
		item, err := p.ItemAt(int(r.Indx))
		if err != nil {
			return err
		}
		data, _, err := btree.ParseLeaf(item)
		if err != nil {
			return err
		}

		prefix, suffix := int(r.Prefix), int(r.Suffix)
		if prefix+suffix > len(data) {
			return errors.Wrapf(
				page.ErrCorrupted,
				"item %d of %d bytes, prefix %d, suffix %d",
				r.Indx, len(data), prefix, suffix,
			)
		}

		repl := btree.LeafItem(utils.Concat(data[:prefix], mid, data[len(data)-suffix:]))
		if err := btree.SetDeleted(repl, deleted); err != nil {
			return err
		}
		return p.ReplaceAt(int(r.Indx), repl)
	}

	return a.apply(step{
		pgno:   r.Pgno,
		before: r.LSN,
		redo: func(p *page.Page) error {
			return rebuild(p, r.Repl, false)
		},
		undo: func(p *page.Page) error {
			return rebuild(p, r.Orig, r.IsDeleted)
		},
	})
}

func (a *application) btreeRoot(r *BtreeRoot) error {
	return a.apply(step{
		pgno:   r.MetaPgno,
		before: r.MetaLSN,
		redo: func(p *page.Page) error {
			p.Meta().SetRoot(r.RootPgno)
			return nil
		},
		// The previous root is not logged; only the LSN goes back.
		undo: func(*page.Page) error {
			return nil
		},
	})
}

func (a *application) btreeCurAdj(r *BtreeCurAdj) error {
	if a.op != OpAbort {
		return nil
	}

	switch r.Mode {
	case CurAdjDI:
		if r.Adjust > 0 {
			a.d.cursors.UndoInsert(r.FileID, r.FromPgno, int(r.FromIndx), int(r.Adjust))
		} else {
			a.d.cursors.UndoDelete(r.FileID, r.FromPgno, int(r.FromIndx), int(-r.Adjust), r.Order)
		}
	case CurAdjSplit:
		a.d.cursors.UndoSplit(r.FileID, r.FromPgno, r.LeftPgno, r.ToPgno, int(r.FromIndx))
	case CurAdjRSplit:
		a.d.cursors.UndoRSplit(r.FileID, r.FromPgno, r.ToPgno)
	default:
		return errors.Wrapf(ErrDecode, "cursor adjust mode %d", r.Mode)
	}
	return nil
}
