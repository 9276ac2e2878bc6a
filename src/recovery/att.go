package recovery

import (
	"slices"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
)

type txnStatus byte

const (
	TxnStatusUndo txnStatus = iota
	TxnStatusCommit
)

type ATTEntry struct {
	status  txnStatus
	lastLSN common.LSN
}

func (e ATTEntry) Committed() bool {
	return e.status == TxnStatusCommit
}

func (e ATTEntry) LastLSN() common.LSN {
	return e.lastLSN
}

// ActiveTransactionsTable tracks, per transaction seen in the log, its last
// record and whether a commit was found.
type ActiveTransactionsTable struct {
	table map[common.TxnID]ATTEntry
}

func NewATT() ActiveTransactionsTable {
	return ActiveTransactionsTable{
		table: map[common.TxnID]ATTEntry{},
	}
}

// returns true iff it is the first record for the transaction
func (att *ActiveTransactionsTable) Insert(txnID common.TxnID, kind Kind, lsn common.LSN) bool {
	if txnID == common.NilTxnID {
		return false
	}

	entry, alreadyExists := att.table[txnID]
	if kind == KindTxnCommit {
		entry.status = TxnStatusCommit
	}
	entry.lastLSN = max(entry.lastLSN, lsn)
	att.table[txnID] = entry
	return !alreadyExists
}

func (att *ActiveTransactionsTable) Get(txnID common.TxnID) (ATTEntry, bool) {
	e, ok := att.table[txnID]
	return e, ok
}

func (att *ActiveTransactionsTable) Len() int {
	return len(att.table)
}

// Losers returns the last LSN of every uncommitted transaction, highest
// first.
func (att *ActiveTransactionsTable) Losers() []common.LSN {
	var res []common.LSN
	for _, e := range att.table {
		if !e.Committed() && !e.lastLSN.IsNeverWritten() {
			res = append(res, e.lastLSN)
		}
	}
	slices.Sort(res)
	slices.Reverse(res)
	return res
}
