package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/PageDB/src/bufferpool"
	"github.com/Blackdeer1524/PageDB/src/cursor"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/btree"
	"github.com/Blackdeer1524/PageDB/src/storage/hash"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

const testFile common.FileID = 1

type env struct {
	t       *testing.T
	pool    *bufferpool.Mock
	cursors *cursor.Registry
	d       *Dispatcher
}

func newEnv(t *testing.T) *env {
	pool := bufferpool.NewMock()
	cursors := cursor.NewRegistry()

	t.Cleanup(func() {
		assert.NoError(t, pool.EnsureAllPagesUnpinnedAndUnlocked())
	})

	return &env{
		t:       t,
		pool:    pool,
		cursors: cursors,
		d:       NewDispatcher(pool, NewFreeList(), cursors, zap.NewNop().Sugar(), nil),
	}
}

func (e *env) with(pgno common.PageID, fn func(p *page.Page)) {
	lease, err := bufferpool.Acquire(e.pool, common.Ident(testFile, pgno), true)
	require.NoError(e.t, err)
	fn(lease.Page())
	lease.Put(true)
}

func (e *env) btreeMeta(lsn common.LSN, free, last common.PageID) {
	e.with(common.MetaPageID, func(p *page.Page) {
		m := page.InitMeta(p, common.MetaPageID, page.MethodBtree, page.MetaFlagRecNum)
		m.SetFree(free)
		m.SetLastPgno(last)
		m.SetLSN(lsn)
	})
}

func (e *env) hashMeta(lsn common.LSN, maxBucket, high, low uint32) {
	e.with(common.MetaPageID, func(p *page.Page) {
		m := page.InitMeta(p, common.MetaPageID, page.MethodHash, 0)
		m.SetMaxBucket(maxBucket)
		m.SetHighMask(high)
		m.SetLowMask(low)
		m.SetLSN(lsn)
	})
}

func (e *env) page(
	pgno common.PageID,
	typ page.Type,
	level uint8,
	prev, next common.PageID,
	lsn common.LSN,
	items ...[]byte,
) {
	e.with(pgno, func(p *page.Page) {
		require.NoError(e.t, fill(p, pgno, prev, next, level, typ, items))
		p.SetLSN(lsn)
	})
}

func (e *env) image(pgno common.PageID) []byte {
	var img []byte
	e.with(pgno, func(p *page.Page) {
		img = p.Image()
	})
	return img
}

func (e *env) meta() page.Meta {
	var m page.Meta
	e.with(common.MetaPageID, func(p *page.Page) {
		cp := page.New()
		cp.SetData(p.Image())
		m = cp.Meta()
	})
	return m
}

// pageState is the logical content of a page. Item order matters, byte
// placement inside the page does not.
type pageState struct {
	LSN     common.LSN
	PageID  common.PageID
	Prev    common.PageID
	Next    common.PageID
	Level   uint8
	Type    page.Type
	Records uint32
	Items   [][]byte
	Meta    []byte
}

func (e *env) state(pgno common.PageID) pageState {
	lease, err := bufferpool.Acquire(e.pool, common.Ident(testFile, pgno), false)
	if err != nil {
		require.ErrorIs(e.t, err, bufferpool.ErrNoSuchPage)
		return pageState{}
	}
	defer lease.Release()

	p := lease.Page()
	s := pageState{
		LSN:     p.LSN(),
		PageID:  p.PageID(),
		Prev:    p.Prev(),
		Next:    p.Next(),
		Level:   p.Level(),
		Type:    p.Type(),
		Records: p.Records(),
	}
	if p.Type() == page.TypeMeta {
		s.Meta = p.Image()[page.HeaderSize:]
		return s
	}

	items, err := p.Items()
	require.NoError(e.t, err)
	if len(items) > 0 {
		s.Items = items
	}
	return s
}

func (e *env) states(pgnos ...common.PageID) map[common.PageID]pageState {
	res := make(map[common.PageID]pageState, len(pgnos))
	for _, pgno := range pgnos {
		res[pgno] = e.state(pgno)
	}
	return res
}

func (e *env) dispatch(rec Record, lsn common.LSN, op Op) Result {
	res, err := e.try(rec, lsn, op)
	require.NoError(e.t, err)
	return res
}

func (e *env) try(rec Record, lsn common.LSN, op Op) (Result, error) {
	rec.Hdr().FileID = testFile
	return e.d.Dispatch(context.Background(), rec, lsn, op)
}

// inverse redoes rec, checks that redoing it again is a no-op, undoes it,
// and checks that the pages are back where they started.
func (e *env) inverse(rec Record, lsn common.LSN, pgnos ...common.PageID) map[common.PageID]pageState {
	before := e.states(pgnos...)

	res := e.dispatch(rec, lsn, OpRedo)
	require.Positive(e.t, res.Applied)
	after := e.states(pgnos...)

	again := e.dispatch(rec, lsn, OpRedo)
	assert.Zero(e.t, again.Applied)
	assert.Equal(e.t, after, e.states(pgnos...), "redo is not idempotent")

	e.dispatch(rec, lsn, OpAbort)
	assert.Equal(e.t, before, e.states(pgnos...), "undo does not invert redo")

	return after
}

func leaf(data string) []byte {
	return btree.LeafItem([]byte(data))
}

func leaves(data ...string) [][]byte {
	res := make([][]byte, 0, len(data))
	for _, d := range data {
		res = append(res, leaf(d))
	}
	return res
}

func hkey(data string) []byte {
	return hash.Item(hash.KeyData, []byte(data))
}
