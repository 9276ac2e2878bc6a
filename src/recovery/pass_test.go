package recovery

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/btree"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
	"github.com/Blackdeer1524/PageDB/src/wal"
)

func hdr() Header {
	return Header{FileID: testFile}
}

// interleaved builds a committed transaction 1 followed by two losers, 2
// and 3, that take turns on page 2.
func interleaved(t *testing.T) *Chain {
	c := NewChain(1, 100).
		Begin().
		Add(&BtreeRepl{Header: hdr(), Pgno: 2, LSN: 50, Orig: []byte("cde"), Repl: []byte("XYZ"), Prefix: 2, Suffix: 1}).
		Commit().
		SwitchTransactionID(2).
		Begin().
		Add(&PgAlloc{Header: hdr(), MetaPgno: common.MetaPageID, MetaLSN: 50, Pgno: 7, PType: page.TypeBtreeLeaf, Level: 1}).
		Add(&BtreeAdj{Header: hdr(), Pgno: 2, LSN: 101, Indx: 1, IndxCopy: 0, IsInsert: true}).
		SwitchTransactionID(3).
		Begin().
		Add(&BtreeCDel{Header: hdr(), Pgno: 2, LSN: 105, Indx: 2}).
		SwitchTransactionID(2).
		Add(&BtreeRepl{Header: hdr(), Pgno: 2, LSN: 107, Orig: []byte("XYZ"), Repl: []byte("Q"), Prefix: 2, Suffix: 1})
	require.NoError(t, c.Err())
	return c
}

func seedInterleaved(e *env) {
	e.btreeMeta(50, 0, 6)
	e.page(2, page.TypeBtreeLeaf, 1, 0, 0, 50, leaves("abcdef", "zzz")...)
	require.NoError(e.t, e.pool.FlushAllPages())
}

func (e *env) live(entries []Entry) {
	for _, entry := range entries {
		_, err := e.d.Dispatch(context.Background(), entry.Record, entry.LSN, OpRedo)
		require.NoError(e.t, err)
	}
}

func TestChain(t *testing.T) {
	c := interleaved(t)
	entries := c.Entries()
	require.Len(t, entries, 9)

	for i, e := range entries {
		assert.Equal(t, common.LSN(100+i), e.LSN)
	}

	prev := map[common.LSN]common.LSN{}
	for _, e := range entries {
		prev[e.LSN] = e.Record.Hdr().PrevLSN
	}
	assert.Equal(t, common.LSN(0), prev[100])
	assert.Equal(t, common.LSN(101), prev[102])
	assert.Equal(t, common.LSN(0), prev[103])
	assert.Equal(t, common.LSN(105), prev[108])
	assert.Equal(t, common.LSN(106), prev[107])

	assert.Equal(t, common.LSN(108), c.Last())
	assert.Equal(t, common.LSN(109), c.NextLSN())
	assert.Equal(t, common.TxnID(2), entries[8].Record.Hdr().TxnID)
}

func TestChain_Errors(t *testing.T) {
	c := NewChain(1, 0).Add(&BtreeCDel{})
	require.Error(t, c.Err())

	c = NewChain(1, 0).Begin().Begin()
	require.Error(t, c.Err())

	c = NewChain(1, 0).Commit()
	require.Error(t, c.Err())
	assert.Empty(t, c.Entries())
}

func TestATT(t *testing.T) {
	att := NewATT()

	assert.True(t, att.Insert(1, KindTxnBegin, 1))
	assert.False(t, att.Insert(1, KindBtreeAdj, 3))
	assert.True(t, att.Insert(2, KindTxnBegin, 2))
	att.Insert(2, KindBtreeAdj, 5)
	att.Insert(3, KindTxnBegin, 4)
	att.Insert(1, KindTxnCommit, 6)
	assert.False(t, att.Insert(common.NilTxnID, KindBtreeAdj, 7))

	e, ok := att.Get(1)
	require.True(t, ok)
	assert.True(t, e.Committed())
	assert.Equal(t, common.LSN(6), e.LastLSN())

	assert.Equal(t, 3, att.Len())
	assert.Equal(t, []common.LSN{5, 4}, att.Losers())
}

func TestPass_Recover(t *testing.T) {
	e := newEnv(t)
	seedInterleaved(e)

	c := interleaved(t)
	entries := c.Entries()

	e.live(entries[:3])
	require.NoError(t, e.pool.FlushAllPages())
	committed := e.state(2)

	// page 2 and the metadata page are stolen, page 7 is lost
	e.live(entries[3:])
	require.NoError(t, e.pool.FlushPage(common.Ident(testFile, 2)))
	require.NoError(t, e.pool.FlushPage(metaIdent))
	e.pool.Crash()

	var buf bytes.Buffer
	require.NoError(t, c.Flush(wal.NewWriter(&buf)))

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/log", buf.Bytes(), 0o600))
	log, err := wal.Open(fs, "/log")
	require.NoError(t, err)
	defer log.Close()

	pass := NewPass(e.d)
	summary, err := pass.Recover(context.Background(), log)
	require.NoError(t, err)

	assert.Equal(t, pass.ID(), summary.PassID)
	assert.Equal(t, 9, summary.Records)
	assert.Equal(t, 2, summary.Losers)
	assert.Zero(t, summary.Drained)

	assert.Equal(t, committed, e.state(2))

	m := e.meta()
	assert.Equal(t, common.LSN(50), m.LSN())
	assert.Equal(t, common.PageID(7), m.Free())

	list, err := Walk(e.pool, metaIdent)
	require.NoError(t, err)
	assert.Equal(t, []common.PageID{7}, list)

	// recovering the recovered state again changes nothing
	recovered := e.states(common.MetaPageID, 2, 7)
	e.pool.Crash()

	log.Rewind()
	_, err = NewPass(e.d).Recover(context.Background(), log)
	require.NoError(t, err)
	assert.Equal(t, recovered, e.states(common.MetaPageID, 2, 7))
}

func TestPass_RecoverEverythingCommitted(t *testing.T) {
	e := newEnv(t)
	seedInterleaved(e)

	c := NewChain(1, 100).
		Begin().
		Add(&BtreeRepl{Header: hdr(), Pgno: 2, LSN: 50, Orig: []byte("cde"), Repl: []byte("XYZ"), Prefix: 2, Suffix: 1}).
		Add(&PgAlloc{Header: hdr(), MetaPgno: common.MetaPageID, MetaLSN: 50, Pgno: 7, PType: page.TypeMeta}).
		Commit()
	require.NoError(t, c.Err())

	// nothing reached disk
	summary, err := NewPass(e.d).Recover(context.Background(), c.Log())
	require.NoError(t, err)

	assert.Zero(t, summary.Losers)
	assert.Equal(t, 3, summary.Redone)
	assert.Equal(t, 1, summary.Syncs)

	data, _, err := parseLeaf(e, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "abXYZf", string(data))
	assert.False(t, e.pool.IsDirty(common.Ident(testFile, 2)))
}

func TestPass_Rollback(t *testing.T) {
	e := newEnv(t)
	seedInterleaved(e)
	before := e.states(common.MetaPageID, 2)

	c := NewChain(2, 100).
		Begin().
		Add(&PgAlloc{Header: hdr(), MetaPgno: common.MetaPageID, MetaLSN: 50, Pgno: 7, PType: page.TypeBtreeLeaf, Level: 1}).
		Add(&BtreeAdj{Header: hdr(), Pgno: 2, LSN: 50, Indx: 1, IndxCopy: 0, IsInsert: true})
	require.NoError(t, c.Err())
	e.live(c.Entries())

	summary, err := NewPass(e.d).Rollback(context.Background(), c.Log(), c.Last())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Undone)

	after := e.states(common.MetaPageID, 2)
	assert.Equal(t, before[2], after[2])

	m := e.meta()
	assert.Equal(t, common.PageID(7), m.Free())
	assert.Equal(t, common.LSN(50), m.LSN())
}

func TestPass_RollbackInconsistent(t *testing.T) {
	e := newEnv(t)
	seedInterleaved(e)

	c := NewChain(2, 100).
		Begin().
		Add(&BtreeCDel{Header: hdr(), Pgno: 2, LSN: 50, Indx: 0})
	require.NoError(t, c.Err())

	// the change was never applied
	_, err := NewPass(e.d).Rollback(context.Background(), c.Log(), c.Last())
	require.ErrorIs(t, err, ErrInconsistent)
}

func TestPass_StopsOnCancel(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPass(e.d).Recover(ctx, NewChain(1, 1).Begin().Log())
	require.ErrorIs(t, err, context.Canceled)
}

func TestPass_WithMetrics(t *testing.T) {
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)

	e := newEnv(t)
	e.d = NewDispatcher(e.pool, NewFreeList(), nil, zap.NewNop().Sugar(), metrics)
	seedInterleaved(e)

	_, err = NewPass(e.d).Recover(context.Background(), interleaved(t).Log())
	require.NoError(t, err)
}

func parseLeaf(e *env, pgno common.PageID, indx int) ([]byte, bool, error) {
	items := e.state(pgno).Items
	require.Greater(e.t, len(items), indx)
	return btree.ParseLeaf(items[indx])
}
