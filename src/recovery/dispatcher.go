package recovery

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src"
	"github.com/Blackdeer1524/PageDB/src/bufferpool"
	"github.com/Blackdeer1524/PageDB/src/cursor"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/pkg/optional"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

type Op byte

const (
	OpRedo Op = iota + 1
	// OpUndo rolls a record back during the backward pass of recovery.
	OpUndo
	// OpAbort rolls a record back for a live transaction abort. Unlike
	// OpUndo every page is expected to carry the record's LSN, and cursor
	// adjustments are replayed.
	OpAbort
)

func (o Op) String() string {
	switch o {
	case OpRedo:
		return "redo"
	case OpUndo:
		return "undo"
	case OpAbort:
		return "abort"
	default:
		return "unknown"
	}
}

func (o Op) undoing() bool {
	return o == OpUndo || o == OpAbort
}

// Result is what a handler reports back to the log traversal.
type Result struct {
	// PrevLSN continues the owning transaction's backward chain. It is
	// set even when nothing was applied.
	PrevLSN common.LSN
	Applied int
	Skipped int
	// Sync asks the caller to flush the page store before the next
	// record: a sub-database metadata page changed.
	Sync bool
}

type Dispatcher struct {
	pool     bufferpool.BufferPool
	freeList *FreeList
	cursors  *cursor.Registry
	log      src.Logger
	metrics  *Metrics
}

func NewDispatcher(
	pool bufferpool.BufferPool,
	freeList *FreeList,
	cursors *cursor.Registry,
	log src.Logger,
	metrics *Metrics,
) *Dispatcher {
	if cursors == nil {
		cursors = cursor.NewRegistry()
	}

	return &Dispatcher{
		pool:     pool,
		freeList: freeList,
		cursors:  cursors,
		log:      log,
		metrics:  metrics,
	}
}

func (d *Dispatcher) FreeList() *FreeList {
	return d.freeList
}

// DispatchBytes decodes a record and dispatches it.
func (d *Dispatcher) DispatchBytes(
	ctx context.Context,
	data []byte,
	lsn common.LSN,
	op Op,
) (Result, error) {
	rec, err := Decode(data)
	if err != nil {
		return Result{}, err
	}
	return d.Dispatch(ctx, rec, lsn, op)
}

// Dispatch applies (OpRedo) or reverses (OpUndo, OpAbort) one record whose
// own LSN is lsn.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	rec Record,
	lsn common.LSN,
	op Op,
) (Result, error) {
	a := &application{
		d:   d,
		ctx: ctx,
		rec: rec,
		lsn: lsn,
		op:  op,
		res: Result{PrevLSN: rec.Hdr().PrevLSN},
	}

	var err error
	switch r := rec.(type) {
	case *TxnBegin, *TxnCommit:
	case *PgAlloc:
		err = a.pgAlloc(r)
	case *PgFree:
		err = a.pgFree(r)
	case *BtreeSplit:
		err = a.btreeSplit(r)
	case *BtreeRSplit:
		err = a.btreeRSplit(r)
	case *BtreeAdj:
		err = a.btreeAdj(r)
	case *BtreeCAdj:
		err = a.btreeCAdj(r)
	case *BtreeCDel:
		err = a.btreeCDel(r)
	case *BtreeRepl:
		err = a.btreeRepl(r)
	case *BtreeRoot:
		err = a.btreeRoot(r)
	case *BtreeCurAdj:
		err = a.btreeCurAdj(r)
	case *HashInsDel:
		err = a.hashInsDel(r)
	case *HashNewPage:
		err = a.hashNewPage(r)
	case *HashReplace:
		err = a.hashReplace(r)
	case *HashSplit:
		err = a.hashSplit(r)
	case *HashCopyPage:
		err = a.hashCopyPage(r)
	case *HashGroupAlloc:
		err = a.hashGroupAlloc(r)
	case *HashMetaGroup:
		err = a.hashMetaGroup(r)
	case *HashCurAdj:
		err = a.hashCurAdj(r)
	case *HashChgPg:
		err = a.hashChgPg(r)
	default:
		err = errors.Wrapf(ErrDecode, "no handler for %T", rec)
	}

	if err != nil {
		d.log.Errorw(
			"failed to apply log record",
			"kind", rec.Kind().String(),
			"lsn", uint64(lsn),
			"op", op.String(),
			"error", err,
		)
		return a.res, errors.Wrapf(err, "%s %s at %v", op, rec.Kind(), lsn)
	}

	d.log.Debugw(
		"log record dispatched",
		"kind", rec.Kind().String(),
		"lsn", uint64(lsn),
		"op", op.String(),
		"applied", a.res.Applied,
		"skipped", a.res.Skipped,
	)

	return a.res, nil
}

// application is the state of one Dispatch call.
type application struct {
	d   *Dispatcher
	ctx context.Context
	rec Record
	lsn common.LSN
	op  Op
	res Result
}

// step is one page's share of a record.
type step struct {
	pgno   common.PageID
	before common.LSN
	// metaBefore is set for records that also log the metadata page's
	// before-LSN; it enables recreating pages that never reached disk.
	metaBefore optional.Optional[common.LSN]
	// create lets redo fetch a page that does not exist yet.
	create bool
	// neighbour steps name a page that may be absent, pgno 0 meaning
	// none. Page 0 is otherwise the metadata page.
	neighbour bool

	redo func(p *page.Page) error
	undo func(p *page.Page) error
	// lost runs on undo when the page never reached disk.
	lost func()
}

// apply runs s under a scoped page lease. The page ends up either fully
// old or fully new: a failing mutation is rolled back from a copy.
func (a *application) apply(s step) error {
	if s.neighbour && s.pgno == common.InvalidPageID {
		return nil
	}

	ident := a.rec.Hdr().ident(s.pgno)

	lease, err := a.acquire(ident, s.create)
	if err != nil {
		return err
	}
	defer lease.Release()

	if lease == nil {
		if s.lost != nil {
			s.lost()
		}
		a.skip()
		return nil
	}

	p := lease.Page()

	var (
		mutate func(p *page.Page) error
		stamp  common.LSN
	)
	if a.op == OpRedo {
		ok, err := a.redoApplies(ident, p.LSN(), s.before, s.metaBefore)
		if err != nil || !ok {
			a.skip()
			return err
		}
		mutate, stamp = s.redo, a.lsn
	} else {
		if s.lost != nil && p.LSN().IsNeverWritten() {
			s.lost()
			a.skip()
			return nil
		}

		ok, err := a.undoApplies(ident, p.LSN())
		if err != nil || !ok {
			a.skip()
			return err
		}
		mutate, stamp = s.undo, s.before
	}

	img := p.Image()
	if err := mutate(p); err != nil {
		_ = p.Restore(img)
		return errors.Wrapf(err, "page %v", ident)
	}
	p.SetLSN(stamp)

	lease.Put(true)
	a.applied()
	return nil
}

// acquire returns a nil lease without error when an undo meets a missing
// page.
func (a *application) acquire(ident common.PageIdentity, create bool) (*bufferpool.Lease, error) {
	lease, err := bufferpool.Acquire(a.d.pool, ident, create && a.op == OpRedo)
	switch {
	case err == nil:
		return lease, nil
	case errors.Is(err, bufferpool.ErrNoSuchPage):
		if a.op.undoing() {
			return nil, nil
		}
		return nil, errors.Wrapf(ErrPageNotFound, "%v", ident)
	case errors.Is(err, bufferpool.ErrNoFreeFrame):
		return nil, errors.Wrapf(ErrAllocation, "%v: %v", ident, err)
	default:
		return nil, err
	}
}

// redoApplies is the forward half of the page-LSN rule.
func (a *application) redoApplies(
	ident common.PageIdentity,
	pageLSN, before common.LSN,
	metaBefore optional.Optional[common.LSN],
) (bool, error) {
	switch common.Compare(pageLSN, before) {
	case common.Equal:
		return true, nil
	case common.Greater:
		// An allocation that reuses a page which was written in an earlier
		// life, and never flushed in this one.
		if mb, ok := metaBefore.Get(); ok && before.IsNeverWritten() &&
			common.Compare(pageLSN, mb) != common.Greater {
			return true, nil
		}
		return false, nil
	default:
		return false, &InconsistencyError{
			Page:     ident,
			PageLSN:  pageLSN,
			Expected: before,
			Kind:     a.rec.Kind(),
			Op:       a.op,
		}
	}
}

// undoApplies is the backward half: only the last change to a page can be
// reverted.
func (a *application) undoApplies(ident common.PageIdentity, pageLSN common.LSN) (bool, error) {
	if common.Compare(a.lsn, pageLSN) == common.Equal {
		return true, nil
	}

	if a.op == OpAbort {
		return false, &InconsistencyError{
			Page:     ident,
			PageLSN:  pageLSN,
			Expected: a.lsn,
			Kind:     a.rec.Kind(),
			Op:       a.op,
		}
	}
	return false, nil
}

func (a *application) applied() {
	a.res.Applied++
	a.d.metrics.Applied(a.ctx, a.rec.Kind(), a.op)
}

func (a *application) skip() {
	a.res.Skipped++
	a.d.metrics.Skipped(a.ctx, a.rec.Kind(), a.op)
}

// reset returns a page to the state it had before a logged change created
// it: all zero when it was never written, otherwise empty.
func reset(p *page.Page, pgno common.PageID, level uint8, typ page.Type, lsn common.LSN) {
	if lsn.IsNeverWritten() {
		p.Zero()
		return
	}
	p.Init(pgno, common.InvalidPageID, common.InvalidPageID, level, typ)
}

func some(lsn common.LSN) optional.Optional[common.LSN] {
	return optional.Some(lsn)
}
