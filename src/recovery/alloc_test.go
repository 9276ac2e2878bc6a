package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

var metaIdent = common.Ident(testFile, common.MetaPageID)

func TestPgAlloc_ExtendThenUndo(t *testing.T) {
	e := newEnv(t)
	e.btreeMeta(10, 3, 6)
	e.page(3, page.TypeFree, 0, 0, 0, 4)

	rec := &PgAlloc{
		MetaPgno: common.MetaPageID,
		MetaLSN:  10,
		Pgno:     7,
		PageLSN:  common.NilLSN,
		PType:    page.TypeBtreeLeaf,
		Level:    1,
		Next:     3,
	}

	res := e.dispatch(rec, 20, OpRedo)
	assert.Equal(t, 2, res.Applied)

	s := e.state(7)
	assert.Equal(t, common.LSN(20), s.LSN)
	assert.Equal(t, page.TypeBtreeLeaf, s.Type)
	assert.Equal(t, uint8(1), s.Level)
	assert.Equal(t, common.PageID(7), s.PageID)

	m := e.meta()
	assert.Equal(t, common.PageID(3), m.Free())
	assert.Equal(t, common.PageID(7), m.LastPgno())
	assert.Equal(t, common.LSN(20), m.LSN())

	e.dispatch(rec, 20, OpUndo)

	s = e.state(7)
	assert.Equal(t, page.TypeFree, s.Type)
	assert.Equal(t, common.PageID(3), s.Next)
	assert.True(t, s.LSN.IsNeverWritten())

	m = e.meta()
	assert.Equal(t, common.PageID(7), m.Free())
	assert.Equal(t, common.PageID(7), m.LastPgno())
	assert.Equal(t, common.LSN(10), m.LSN())

	list, err := Walk(e.pool, metaIdent)
	require.NoError(t, err)
	assert.Equal(t, []common.PageID{7, 3}, list)
	assert.Zero(t, e.d.FreeList().Len())
}

func TestPgAlloc_FromFreeList(t *testing.T) {
	e := newEnv(t)
	e.btreeMeta(10, 5, 8)
	e.page(5, page.TypeFree, 0, 0, 6, 4)
	e.page(6, page.TypeFree, 0, 0, 0, 3)

	after := e.inverse(&PgAlloc{
		MetaPgno: common.MetaPageID,
		MetaLSN:  10,
		Pgno:     5,
		PageLSN:  4,
		PType:    page.TypeBtreeLeaf,
		Level:    1,
		Next:     6,
	}, 20, common.MetaPageID, 5, 6)

	assert.Equal(t, page.TypeBtreeLeaf, after[5].Type)

	list, err := Walk(e.pool, metaIdent)
	require.NoError(t, err)
	assert.Equal(t, []common.PageID{5, 6}, list)
}

func TestPgAlloc_ReusedPageFromEarlierLife(t *testing.T) {
	e := newEnv(t)
	e.btreeMeta(10, 0, 8)
	e.page(7, page.TypeBtreeLeaf, 1, 0, 0, 8, leaves("stale")...)
	e.page(8, page.TypeBtreeLeaf, 1, 0, 0, 12, leaves("newer")...)

	alloc := func(pgno common.PageID) *PgAlloc {
		return &PgAlloc{
			MetaPgno: common.MetaPageID,
			MetaLSN:  10,
			Pgno:     pgno,
			PageLSN:  common.NilLSN,
			PType:    page.TypeBtreeLeaf,
			Level:    1,
		}
	}

	e.dispatch(alloc(7), 20, OpRedo)
	s := e.state(7)
	assert.Equal(t, common.LSN(20), s.LSN)
	assert.Nil(t, s.Items)

	// the page moved on after the metadata page did
	e.btreeMeta(10, 0, 8)
	res := e.dispatch(alloc(8), 21, OpRedo)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, common.LSN(12), e.state(8).LSN)
}

func TestPgAlloc_UndoOfUnwrittenPageGoesToLimbo(t *testing.T) {
	e := newEnv(t)
	// metadata page carries the allocation, page 7 never reached disk
	e.btreeMeta(20, 3, 7)
	e.page(3, page.TypeFree, 0, 0, 0, 4)

	rec := &PgAlloc{
		MetaPgno: common.MetaPageID,
		MetaLSN:  10,
		Pgno:     7,
		PageLSN:  common.NilLSN,
		PType:    page.TypeBtreeLeaf,
		Level:    1,
		Next:     3,
	}

	res := e.dispatch(rec, 20, OpUndo)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, e.d.FreeList().Contains(common.Ident(testFile, 7)))

	m := e.meta()
	assert.Equal(t, common.PageID(3), m.Free())
	assert.Equal(t, common.LSN(10), m.LSN())

	drained, err := e.d.FreeList().Drain(e.pool)
	require.NoError(t, err)
	assert.Equal(t, []common.PageIdentity{common.Ident(testFile, 7)}, drained)
	assert.Zero(t, e.d.FreeList().Len())

	list, err := Walk(e.pool, metaIdent)
	require.NoError(t, err)
	assert.Equal(t, []common.PageID{7, 3}, list)

	s := e.state(7)
	assert.Equal(t, common.LSN(10), s.LSN)
	assert.Equal(t, page.TypeFree, s.Type)
}

func TestPgAlloc_MetaPageAsksForSync(t *testing.T) {
	e := newEnv(t)
	e.btreeMeta(10, 0, 4)

	res := e.dispatch(&PgAlloc{
		MetaPgno: common.MetaPageID,
		MetaLSN:  10,
		Pgno:     5,
		PType:    page.TypeMeta,
	}, 20, OpRedo)
	assert.True(t, res.Sync)
}

func TestPgFree_Inverse(t *testing.T) {
	e := newEnv(t)
	e.btreeMeta(10, 6, 8)
	e.page(5, page.TypeBtreeLeaf, 1, 4, 0, 7, leaves("x", "y")...)
	e.page(6, page.TypeFree, 0, 0, 0, 3)

	rec := &PgFree{
		MetaPgno: common.MetaPageID,
		MetaLSN:  10,
		Pgno:     5,
		Image:    e.image(5),
		Next:     6,
	}
	after := e.inverse(rec, 20, common.MetaPageID, 5, 6)

	assert.Equal(t, page.TypeFree, after[5].Type)
	assert.Equal(t, common.PageID(6), after[5].Next)
	assert.Nil(t, after[5].Items)
}

func TestPgFree_Redo(t *testing.T) {
	e := newEnv(t)
	e.btreeMeta(10, 6, 8)
	e.page(5, page.TypeBtreeLeaf, 1, 0, 0, 7, leaves("x")...)
	e.page(6, page.TypeFree, 0, 0, 0, 3)

	res := e.dispatch(&PgFree{
		MetaPgno: common.MetaPageID,
		MetaLSN:  10,
		Pgno:     5,
		Image:    e.image(5),
		Next:     6,
	}, 20, OpRedo)
	assert.Equal(t, 2, res.Applied)
	assert.False(t, res.Sync)

	list, err := Walk(e.pool, metaIdent)
	require.NoError(t, err)
	assert.Equal(t, []common.PageID{5, 6}, list)
}

func TestFreeList_AllocFreeSequence(t *testing.T) {
	e := newEnv(t)
	e.btreeMeta(10, 5, 8)
	e.page(5, page.TypeFree, 0, 0, 0, 4)
	e.page(3, page.TypeBtreeLeaf, 1, 0, 0, 7, leaves("kept")...)
	img3 := e.image(3)

	walk := func(want ...common.PageID) {
		t.Helper()
		list, err := Walk(e.pool, metaIdent)
		require.NoError(t, err)
		assert.Equal(t, want, list)
	}

	type logged struct {
		rec  Record
		lsn  common.LSN
		list []common.PageID
	}
	var history []logged

	redo := func(rec Record, lsn common.LSN, want ...common.PageID) {
		t.Helper()
		e.dispatch(rec, lsn, OpRedo)
		walk(want...)
		history = append(history, logged{rec: rec, lsn: lsn, list: want})
	}

	redo(&PgAlloc{MetaPgno: common.MetaPageID, MetaLSN: 10, Pgno: 5, PageLSN: 4, PType: page.TypeBtreeLeaf, Level: 1}, 20)
	redo(&PgAlloc{MetaPgno: common.MetaPageID, MetaLSN: 20, Pgno: 9, PType: page.TypeBtreeLeaf, Level: 1}, 21)
	redo(&PgFree{MetaPgno: common.MetaPageID, MetaLSN: 21, Pgno: 3, Image: img3}, 22, 3)
	redo(&PgFree{MetaPgno: common.MetaPageID, MetaLSN: 22, Pgno: 5, Image: e.image(5), Next: 3}, 23, 5, 3)
	redo(&PgAlloc{MetaPgno: common.MetaPageID, MetaLSN: 23, Pgno: 5, PageLSN: 23, PType: page.TypeBtreeLeaf, Level: 1, Next: 3}, 24, 3)
	assert.Equal(t, common.PageID(9), e.meta().LastPgno())

	ops := []Op{OpAbort, OpUndo}
	for i := len(history) - 1; i >= 2; i-- {
		e.dispatch(history[i].rec, history[i].lsn, ops[i%2])
		walk(history[i-1].list...)
	}

	// page 9 came from growing the file, so undoing its allocation links
	// it; undoing the first allocation must keep it reachable
	e.dispatch(history[1].rec, history[1].lsn, OpAbort)
	walk(9)
	assert.True(t, e.state(9).LSN.IsNeverWritten())

	e.dispatch(history[0].rec, history[0].lsn, OpUndo)
	walk(5, 9)

	drained, err := e.d.FreeList().Drain(e.pool)
	require.NoError(t, err)
	assert.Empty(t, drained)
	walk(5, 9)

	m := e.meta()
	assert.Equal(t, common.LSN(10), m.LSN())
	assert.Equal(t, common.PageID(9), m.LastPgno())

	s := e.state(3)
	assert.Equal(t, page.TypeBtreeLeaf, s.Type)
	assert.Equal(t, common.LSN(7), s.LSN)
}

func TestFreeList_AllocSequenceWithLostPage(t *testing.T) {
	e := newEnv(t)
	e.btreeMeta(10, 5, 8)
	e.page(5, page.TypeFree, 0, 0, 0, 4)

	first := &PgAlloc{MetaPgno: common.MetaPageID, MetaLSN: 10, Pgno: 5, PageLSN: 4, PType: page.TypeBtreeLeaf, Level: 1}
	grow := &PgAlloc{MetaPgno: common.MetaPageID, MetaLSN: 20, Pgno: 9, PType: page.TypeBtreeLeaf, Level: 1}

	e.dispatch(first, 20, OpRedo)
	e.dispatch(grow, 21, OpRedo)

	// page 9 never reaches disk
	require.NoError(t, e.pool.FlushPage(metaIdent))
	require.NoError(t, e.pool.FlushPage(common.Ident(testFile, 5)))
	e.pool.Crash()

	e.dispatch(grow, 21, OpUndo)
	assert.True(t, e.d.FreeList().Contains(common.Ident(testFile, 9)))
	list, err := Walk(e.pool, metaIdent)
	require.NoError(t, err)
	assert.Empty(t, list)

	e.dispatch(first, 20, OpUndo)
	list, err = Walk(e.pool, metaIdent)
	require.NoError(t, err)
	assert.Equal(t, []common.PageID{5}, list)

	drained, err := e.d.FreeList().Drain(e.pool)
	require.NoError(t, err)
	assert.Equal(t, []common.PageIdentity{common.Ident(testFile, 9)}, drained)

	list, err = Walk(e.pool, metaIdent)
	require.NoError(t, err)
	assert.Equal(t, []common.PageID{9, 5}, list)
	assert.Equal(t, common.LSN(10), e.state(9).LSN)
}
