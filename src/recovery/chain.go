package recovery

import (
	"io"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/wal"
)

type Entry struct {
	LSN    common.LSN
	Record Record
}

// Chain assigns LSNs to records and links each one to the previous record
// of the same transaction.
type Chain struct {
	txnID common.TxnID
	next  common.LSN

	lastLSNs map[common.TxnID]common.LSN
	entries  []Entry
	err      error
}

func NewChain(txnID common.TxnID, first common.LSN) *Chain {
	if first.IsNeverWritten() {
		first = 1
	}
	return &Chain{
		txnID:    txnID,
		next:     first,
		lastLSNs: map[common.TxnID]common.LSN{},
	}
}

func (c *Chain) SwitchTransactionID(txnID common.TxnID) *Chain {
	if c.err != nil {
		return c
	}

	c.txnID = txnID
	return c
}

func (c *Chain) Begin() *Chain {
	if c.err != nil {
		return c
	}

	if _, ok := c.lastLSNs[c.txnID]; ok {
		c.err = errors.Errorf("transaction %d has already begun", c.txnID)
		return c
	}
	return c.append(&TxnBegin{})
}

func (c *Chain) Add(rec Record) *Chain {
	if c.err != nil {
		return c
	}

	if _, ok := c.lastLSNs[c.txnID]; !ok {
		c.err = errors.Errorf("no begin record for %d", c.txnID)
		return c
	}
	return c.append(rec)
}

func (c *Chain) Commit() *Chain {
	if c.err != nil {
		return c
	}

	if _, ok := c.lastLSNs[c.txnID]; !ok {
		c.err = errors.Errorf("no begin record for %d", c.txnID)
		return c
	}
	c.append(&TxnCommit{})
	delete(c.lastLSNs, c.txnID)
	return c
}

func (c *Chain) append(rec Record) *Chain {
	h := rec.Hdr()
	h.TxnID = c.txnID
	h.PrevLSN = c.lastLSNs[c.txnID]

	lsn := c.next
	c.next++
	c.lastLSNs[c.txnID] = lsn
	c.entries = append(c.entries, Entry{LSN: lsn, Record: rec})
	return c
}

// Last returns the LSN of the most recent record of the current
// transaction.
func (c *Chain) Last() common.LSN {
	return c.lastLSNs[c.txnID]
}

// NextLSN is the LSN the next record will get.
func (c *Chain) NextLSN() common.LSN {
	return c.next
}

func (c *Chain) Entries() []Entry {
	return c.entries
}

func (c *Chain) Err() error {
	return c.err
}

// Flush writes every entry as a log frame.
func (c *Chain) Flush(w *wal.Writer) error {
	if c.err != nil {
		return c.err
	}

	for _, e := range c.entries {
		if err := w.Append(e.LSN, Encode(e.Record)); err != nil {
			return errors.Wrapf(err, "record %v", e.LSN)
		}
	}
	return nil
}

// Log returns the entries as an in-memory LogSource.
func (c *Chain) Log() *MemLog {
	return NewMemLog(c.entries)
}

type MemLog struct {
	entries []Entry
	pos     int
}

func NewMemLog(entries []Entry) *MemLog {
	return &MemLog{entries: entries}
}

func (l *MemLog) Next() (common.LSN, []byte, error) {
	if l.pos >= len(l.entries) {
		return common.NilLSN, nil, io.EOF
	}
	e := l.entries[l.pos]
	l.pos++
	return e.LSN, Encode(e.Record), nil
}

func (l *MemLog) ReadAt(lsn common.LSN) ([]byte, error) {
	for _, e := range l.entries {
		if e.LSN == lsn {
			return Encode(e.Record), nil
		}
	}
	return nil, errors.Wrapf(wal.ErrNotFound, "%v", lsn)
}

func (l *MemLog) Rewind() {
	l.pos = 0
}
