package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/PageDB/src/cursor"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/btree"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

func TestBtreeSplit(t *testing.T) {
	e := newEnv(t)
	e.page(3, page.TypeBtreeLeaf, 1, 0, 8, 5, leaves("a", "b", "c", "d", "e", "f")...)
	e.page(8, page.TypeBtreeLeaf, 1, 3, 0, 6, leaves("g")...)

	rec := &BtreeSplit{
		Left:     3,
		LeftLSN:  5,
		Right:    9,
		RightLSN: common.NilLSN,
		Index:    4,
		NPgno:    8,
		NLSN:     6,
		PgImage:  e.image(3),
	}
	after := e.inverse(rec, 20, 3, 8, 9)

	left, right := after[3], after[9]
	assert.Equal(t, leaves("a", "b", "c", "d"), left.Items)
	assert.Equal(t, leaves("e", "f"), right.Items)
	assert.Equal(t, leaves("a", "b", "c", "d", "e", "f"), append(left.Items, right.Items...))

	assert.Equal(t, common.PageID(9), left.Next)
	assert.Equal(t, common.PageID(3), right.Prev)
	assert.Equal(t, common.PageID(8), right.Next)
	assert.Equal(t, common.PageID(9), after[8].Prev)
	assert.Equal(t, common.LSN(20), right.LSN)
}

func TestBtreeSplit_LastPage(t *testing.T) {
	e := newEnv(t)
	e.page(3, page.TypeBtreeLeaf, 1, 0, 0, 5, leaves("a", "b")...)

	after := e.inverse(&BtreeSplit{
		Left:    3,
		LeftLSN: 5,
		Right:   9,
		Index:   1,
		PgImage: e.image(3),
	}, 20, 3, 9)

	assert.Equal(t, common.PageID(0), after[9].Next)
}

func TestBtreeSplit_Root(t *testing.T) {
	e := newEnv(t)
	e.page(2, page.TypeBtreeLeaf, 1, 0, 0, 5, leaves("a", "b", "c", "d", "e")...)

	rec := &BtreeSplit{
		Left:     10,
		Right:    11,
		Index:    2,
		RootPgno: 2,
		RecNum:   true,
		PgImage:  e.image(2),
	}
	after := e.inverse(rec, 20, 2, 10, 11)

	root := after[2]
	assert.Equal(t, page.TypeBtreeInternal, root.Type)
	assert.Equal(t, uint8(2), root.Level)
	assert.Equal(t, uint32(5), root.Records)
	require.Len(t, root.Items, 2)

	first, err := btree.ParseInternal(root.Items[0])
	require.NoError(t, err)
	assert.Equal(t, btree.Internal{Child: 10, Records: 2, Key: []byte("a")}, first)

	second, err := btree.ParseInternal(root.Items[1])
	require.NoError(t, err)
	assert.Equal(t, btree.Internal{Child: 11, Records: 3, Key: []byte("c")}, second)

	assert.Equal(t, leaves("a", "b"), after[10].Items)
	assert.Equal(t, leaves("c", "d", "e"), after[11].Items)
	assert.Equal(t, common.PageID(11), after[10].Next)
	assert.Equal(t, common.PageID(10), after[11].Prev)
}

func TestBtreeRSplit(t *testing.T) {
	e := newEnv(t)

	entry := btree.InternalItem(7, 3, []byte("x"))
	e.with(2, func(p *page.Page) {
		require.NoError(t, fill(p, 2, 0, 0, 2, page.TypeBtreeInternal, [][]byte{entry}))
		p.SetRecords(3)
		p.SetLSN(5)
	})
	e.page(7, page.TypeBtreeLeaf, 1, 0, 0, 6, leaves("x", "y", "z")...)

	after := e.inverse(&BtreeRSplit{
		Pgno:      7,
		PgLSN:     6,
		PgImage:   e.image(7),
		RootPgno:  2,
		RootLSN:   5,
		RootEntry: entry,
		NRecs:     3,
	}, 20, 2, 7)

	root := after[2]
	assert.Equal(t, page.TypeBtreeLeaf, root.Type)
	assert.Equal(t, common.PageID(2), root.PageID)
	assert.Equal(t, leaves("x", "y", "z"), root.Items)
	assert.Equal(t, uint32(3), root.Records)
}

func TestBtreeAdj(t *testing.T) {
	t.Run("insert", func(t *testing.T) {
		e := newEnv(t)
		e.page(3, page.TypeBtreeLeaf, 1, 0, 0, 5, leaves("a", "b", "c")...)

		after := e.inverse(&BtreeAdj{Pgno: 3, LSN: 5, Indx: 1, IndxCopy: 0, IsInsert: true}, 20, 3)
		assert.Equal(t, leaves("a", "a", "b", "c"), after[3].Items)
	})

	t.Run("remove", func(t *testing.T) {
		e := newEnv(t)
		e.page(3, page.TypeBtreeLeaf, 1, 0, 0, 5, leaves("a", "a", "b")...)

		after := e.inverse(&BtreeAdj{Pgno: 3, LSN: 5, Indx: 1, IndxCopy: 0}, 20, 3)
		assert.Equal(t, leaves("a", "b"), after[3].Items)
	})
}

func TestBtreeCAdj(t *testing.T) {
	e := newEnv(t)
	e.with(2, func(p *page.Page) {
		require.NoError(t, fill(p, 2, 0, 0, 2, page.TypeBtreeInternal, [][]byte{
			btree.InternalItem(7, 10, []byte("a")),
			btree.InternalItem(8, 4, []byte("m")),
		}))
		p.SetRecords(14)
		p.SetLSN(5)
	})

	after := e.inverse(&BtreeCAdj{Pgno: 2, LSN: 5, Indx: 0, Delta: -3, RootAdjust: true}, 20, 2)

	in, err := btree.ParseInternal(after[2].Items[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(7), in.Records)
	assert.Equal(t, uint32(11), after[2].Records)
}

func TestBtreeCDel(t *testing.T) {
	e := newEnv(t)
	e.page(3, page.TypeBtreeLeaf, 1, 0, 0, 5, leaves("a", "b")...)

	after := e.inverse(&BtreeCDel{Pgno: 3, LSN: 5, Indx: 0}, 20, 3)
	assert.True(t, btree.IsDeleted(after[3].Items[0]))
	assert.False(t, btree.IsDeleted(after[3].Items[1]))
}

func TestBtreeRepl_PrefixCompressed(t *testing.T) {
	e := newEnv(t)
	e.page(3, page.TypeBtreeLeaf, 1, 0, 0, 5, leaves("k0", "k1", "abcdef")...)

	rec := &BtreeRepl{
		Pgno:   3,
		LSN:    5,
		Indx:   2,
		Orig:   []byte("cde"),
		Repl:   []byte("XYZ"),
		Prefix: 2,
		Suffix: 1,
	}
	after := e.inverse(rec, 20, 3)
	assert.Equal(t, leaves("k0", "k1", "abXYZf"), after[3].Items)

	data, _, err := btree.ParseLeaf(e.state(3).Items[2])
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestBtreeRepl_Resizes(t *testing.T) {
	e := newEnv(t)
	e.page(3, page.TypeBtreeLeaf, 1, 0, 0, 5, leaves("short")...)

	after := e.inverse(&BtreeRepl{
		Pgno:   3,
		LSN:    5,
		Orig:   []byte("hor"),
		Repl:   []byte("omething much long"),
		Prefix: 1,
		Suffix: 1,
	}, 20, 3)
	assert.Equal(t, leaves("something much longt"), after[3].Items)
}

func TestBtreeRepl_RestoresDeletedFlag(t *testing.T) {
	e := newEnv(t)
	item := leaf("abc")
	require.NoError(t, btree.SetDeleted(item, true))
	e.page(3, page.TypeBtreeLeaf, 1, 0, 0, 5, item)

	after := e.inverse(&BtreeRepl{Pgno: 3, LSN: 5, IsDeleted: true, Orig: []byte("b"), Repl: []byte("B"), Prefix: 1, Suffix: 1}, 20, 3)
	assert.False(t, btree.IsDeleted(after[3].Items[0]))
	assert.True(t, btree.IsDeleted(e.state(3).Items[0]))
}

func TestBtreeRoot_UndoKeepsRoot(t *testing.T) {
	e := newEnv(t)
	e.btreeMeta(10, 0, 8)
	e.with(common.MetaPageID, func(p *page.Page) {
		p.Meta().SetRoot(2)
	})

	rec := &BtreeRoot{MetaPgno: common.MetaPageID, MetaLSN: 10, RootPgno: 7}
	e.dispatch(rec, 20, OpRedo)
	assert.Equal(t, common.PageID(7), e.meta().Root())

	e.dispatch(rec, 20, OpUndo)
	m := e.meta()
	assert.Equal(t, common.LSN(10), m.LSN())
	assert.Equal(t, common.PageID(7), m.Root())
}

func TestBtreeCurAdj_OnlyOnAbort(t *testing.T) {
	e := newEnv(t)
	c := e.cursors.Open(testFile, cursor.Position{Pgno: 3, Indx: 5})

	rec := &BtreeCurAdj{Mode: CurAdjDI, FromPgno: 3, FromIndx: 2, Adjust: 1}

	e.dispatch(rec, 20, OpRedo)
	e.dispatch(rec, 20, OpUndo)
	assert.Equal(t, cursor.Position{Pgno: 3, Indx: 5}, e.cursors.Position(c))

	e.dispatch(rec, 20, OpAbort)
	assert.Equal(t, cursor.Position{Pgno: 3, Indx: 4}, e.cursors.Position(c))
}

func TestBtreeCurAdj_Modes(t *testing.T) {
	e := newEnv(t)

	deleted := e.cursors.Open(testFile, cursor.Position{Pgno: 3, Indx: 2, Deleted: true, Order: 1})
	onRight := e.cursors.Open(testFile, cursor.Position{Pgno: 11, Indx: 1})
	onRoot := e.cursors.Open(testFile, cursor.Position{Pgno: 2, Indx: 0})

	e.dispatch(&BtreeCurAdj{Mode: CurAdjDI, FromPgno: 3, FromIndx: 2, Adjust: -1, Order: 1}, 20, OpAbort)
	assert.Equal(t, cursor.Position{Pgno: 3, Indx: 2, Order: 1}, e.cursors.Position(deleted))

	e.dispatch(&BtreeCurAdj{Mode: CurAdjSplit, FromPgno: 4, LeftPgno: 4, ToPgno: 11, FromIndx: 3}, 21, OpAbort)
	assert.Equal(t, cursor.Position{Pgno: 4, Indx: 4}, e.cursors.Position(onRight))

	e.dispatch(&BtreeCurAdj{Mode: CurAdjRSplit, FromPgno: 7, ToPgno: 2}, 22, OpAbort)
	assert.Equal(t, cursor.Position{Pgno: 7, Indx: 0}, e.cursors.Position(onRoot))

	_, err := e.try(&BtreeCurAdj{Mode: 9}, 23, OpAbort)
	require.ErrorIs(t, err, ErrDecode)
}
