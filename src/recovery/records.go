package recovery

import (
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

type Kind byte

// Type tags for each log record kind. The values are part of the on-disk
// record format.
const (
	KindTxnBegin Kind = iota + 1
	KindTxnCommit
	KindPgAlloc
	KindPgFree
	KindBtreeSplit
	KindBtreeRSplit
	KindBtreeAdj
	KindBtreeCAdj
	KindBtreeCDel
	KindBtreeRepl
	KindBtreeRoot
	KindBtreeCurAdj
	KindHashInsDel
	KindHashNewPage
	KindHashReplace
	KindHashSplit
	KindHashCopyPage
	KindHashGroupAlloc
	KindHashMetaGroup
	KindHashCurAdj
	KindHashChgPg
	kindUnknown
)

var kindNames = [...]string{
	KindTxnBegin:       "txn_begin",
	KindTxnCommit:      "txn_commit",
	KindPgAlloc:        "pg_alloc",
	KindPgFree:         "pg_free",
	KindBtreeSplit:     "bt_split",
	KindBtreeRSplit:    "bt_rsplit",
	KindBtreeAdj:       "bt_adj",
	KindBtreeCAdj:      "bt_cadjust",
	KindBtreeCDel:      "bt_cdel",
	KindBtreeRepl:      "bt_repl",
	KindBtreeRoot:      "bt_root",
	KindBtreeCurAdj:    "bt_curadj",
	KindHashInsDel:     "ham_insdel",
	KindHashNewPage:    "ham_newpage",
	KindHashReplace:    "ham_replace",
	KindHashSplit:      "ham_splitdata",
	KindHashCopyPage:   "ham_copypage",
	KindHashGroupAlloc: "ham_groupalloc",
	KindHashMetaGroup:  "ham_metagroup",
	KindHashCurAdj:     "ham_curadj",
	KindHashChgPg:      "ham_chgpg",
}

func (k Kind) String() string {
	if k == 0 || k >= kindUnknown {
		return "unknown"
	}
	return kindNames[k]
}

// Header is shared by every record. The record's own LSN is not part of
// it: the log manager supplies it alongside the bytes.
type Header struct {
	TxnID   common.TxnID
	PrevLSN common.LSN
	FileID  common.FileID
}

func (h *Header) Hdr() *Header {
	return h
}

func (h *Header) ident(pgno common.PageID) common.PageIdentity {
	return common.Ident(h.FileID, pgno)
}

// Record is the closed set of decoded log records.
type Record interface {
	Kind() Kind
	Hdr() *Header

	encodeBody(e *encoder)
	decodeBody(d *decoder)
}

type TxnBegin struct {
	Header
}

type TxnCommit struct {
	Header
}

// PgAlloc takes Pgno off the free list (or extends the file with it).
// Next is the free-list head once the allocation is done.
type PgAlloc struct {
	Header
	MetaPgno common.PageID
	MetaLSN  common.LSN
	Pgno     common.PageID
	PageLSN  common.LSN
	PType    page.Type
	Level    uint8
	Next     common.PageID
}

// PgFree puts Pgno at the head of the free list. Image is the page before
// the free: a full page, or only its header for pages without items.
type PgFree struct {
	Header
	MetaPgno common.PageID
	MetaLSN  common.LSN
	Pgno     common.PageID
	Image    []byte
	Next     common.PageID
}

// BtreeSplit moves the items of a page starting at Index to a new right
// sibling. For a root split RootPgno is the split page and both Left and
// Right are new pages.
type BtreeSplit struct {
	Header
	Left     common.PageID
	LeftLSN  common.LSN
	Right    common.PageID
	RightLSN common.LSN
	Index    uint16
	NPgno    common.PageID
	NLSN     common.LSN
	RootPgno common.PageID
	RecNum   bool
	PgImage  []byte
}

// BtreeRSplit collapses a root with a single child by copying the child
// onto the root.
type BtreeRSplit struct {
	Header
	Pgno      common.PageID
	PgLSN     common.LSN
	PgImage   []byte
	RootPgno  common.PageID
	RootLSN   common.LSN
	RootEntry []byte
	NRecs     uint32
}

// BtreeAdj inserts a copy of the item at IndxCopy into Indx, or removes
// Indx. IndxCopy addresses the page without the Indx entry.
type BtreeAdj struct {
	Header
	Pgno     common.PageID
	LSN      common.LSN
	Indx     uint16
	IndxCopy uint16
	IsInsert bool
}

type BtreeCAdj struct {
	Header
	Pgno       common.PageID
	LSN        common.LSN
	Indx       uint16
	Delta      int32
	RootAdjust bool
}

type BtreeCDel struct {
	Header
	Pgno common.PageID
	LSN  common.LSN
	Indx uint16
}

// BtreeRepl rewrites the middle of a leaf item. Only the bytes that
// changed are logged: the first Prefix and the last Suffix bytes are
// shared by the old and the new payload.
type BtreeRepl struct {
	Header
	Pgno      common.PageID
	LSN       common.LSN
	Indx      uint16
	IsDeleted bool
	Orig      []byte
	Repl      []byte
	Prefix    uint32
	Suffix    uint32
}

type BtreeRoot struct {
	Header
	MetaPgno common.PageID
	MetaLSN  common.LSN
	RootPgno common.PageID
}

type BtreeCurAdjMode byte

const (
	CurAdjDI BtreeCurAdjMode = iota + 1
	CurAdjSplit
	CurAdjRSplit
)

// BtreeCurAdj carries no page change. On abort it moves cursors of other
// handles back to where they were before the structural change.
type BtreeCurAdj struct {
	Header
	Mode     BtreeCurAdjMode
	FromPgno common.PageID
	ToPgno   common.PageID
	LeftPgno common.PageID
	FromIndx uint16
	Adjust   int32
	Order    uint32
}

type HashOpcode byte

const (
	HashPut HashOpcode = iota + 1
	HashDel
	HashPutOvfl
	HashDelOvfl
	HashSplitOld
	HashSplitNew
)

// HashInsDel adds or removes the key/data pair at (Ndx, Ndx+1).
type HashInsDel struct {
	Header
	Opcode  HashOpcode
	Pgno    common.PageID
	PageLSN common.LSN
	Ndx     uint16
	Key     []byte
	Data    []byte
}

// HashNewPage links (HashPutOvfl) or unlinks (HashDelOvfl) the overflow
// page NewPgno between PrevPgno and NextPgno.
type HashNewPage struct {
	Header
	Opcode   HashOpcode
	PrevPgno common.PageID
	PrevLSN  common.LSN
	NewPgno  common.PageID
	PageLSN  common.LSN
	NextPgno common.PageID
	NextLSN  common.LSN
}

// HashReplace overwrites len(Old) bytes of an item's payload at Off with
// New.
type HashReplace struct {
	Header
	Pgno    common.PageID
	PageLSN common.LSN
	Ndx     uint16
	Off     uint32
	Old     []byte
	New     []byte
	MakeDup bool
}

// HashSplit logs the image of the old bucket page before a split
// (HashSplitOld) or of the new bucket page after it (HashSplitNew).
type HashSplit struct {
	Header
	Opcode  HashOpcode
	Pgno    common.PageID
	PageLSN common.LSN
	Image   []byte
}

// HashCopyPage copies NextPgno onto Pgno and empties NextPgno. NNextPgno,
// the page after the source, is relinked to Pgno.
type HashCopyPage struct {
	Header
	Pgno      common.PageID
	PageLSN   common.LSN
	NextPgno  common.PageID
	NextLSN   common.LSN
	NNextPgno common.PageID
	NNextLSN  common.LSN
	PageImage []byte
	SrcImage  []byte
}

// HashGroupAlloc extends the file with Num pages starting at StartPgno.
type HashGroupAlloc struct {
	Header
	MetaPgno  common.PageID
	MetaLSN   common.LSN
	StartPgno common.PageID
	Num       uint32
}

// HashMetaGroup adds bucket Bucket, whose page is Pgno.
type HashMetaGroup struct {
	Header
	MetaPgno  common.PageID
	MetaLSN   common.LSN
	Pgno      common.PageID
	PageLSN   common.LSN
	Bucket    uint32
	NewAlloc  bool
	Spare     uint32
	PrevSpare uint32
}

// HashCurAdj records a pair (or duplicate) insert/delete seen by other
// cursors on the bucket.
type HashCurAdj struct {
	Header
	Pgno   common.PageID
	Indx   uint16
	Len    uint32
	DupOff uint32
	Add    bool
	IsDup  bool
	Order  uint32
}

type HashChgPgMode byte

const (
	ChgPgWhole HashChgPgMode = iota + 1
	ChgPgItem
)

// HashChgPg records cursors moving from OldPgno to NewPgno: every cursor
// on the page, or the ones on a single item.
type HashChgPg struct {
	Header
	Mode    HashChgPgMode
	OldPgno common.PageID
	NewPgno common.PageID
	OldIndx uint16
	NewIndx uint16
}

func (*TxnBegin) Kind() Kind       { return KindTxnBegin }
func (*TxnCommit) Kind() Kind      { return KindTxnCommit }
func (*PgAlloc) Kind() Kind        { return KindPgAlloc }
func (*PgFree) Kind() Kind         { return KindPgFree }
func (*BtreeSplit) Kind() Kind     { return KindBtreeSplit }
func (*BtreeRSplit) Kind() Kind    { return KindBtreeRSplit }
func (*BtreeAdj) Kind() Kind       { return KindBtreeAdj }
func (*BtreeCAdj) Kind() Kind      { return KindBtreeCAdj }
func (*BtreeCDel) Kind() Kind      { return KindBtreeCDel }
func (*BtreeRepl) Kind() Kind      { return KindBtreeRepl }
func (*BtreeRoot) Kind() Kind      { return KindBtreeRoot }
func (*BtreeCurAdj) Kind() Kind    { return KindBtreeCurAdj }
func (*HashInsDel) Kind() Kind     { return KindHashInsDel }
func (*HashNewPage) Kind() Kind    { return KindHashNewPage }
func (*HashReplace) Kind() Kind    { return KindHashReplace }
func (*HashSplit) Kind() Kind      { return KindHashSplit }
func (*HashCopyPage) Kind() Kind   { return KindHashCopyPage }
func (*HashGroupAlloc) Kind() Kind { return KindHashGroupAlloc }
func (*HashMetaGroup) Kind() Kind  { return KindHashMetaGroup }
func (*HashCurAdj) Kind() Kind     { return KindHashCurAdj }
func (*HashChgPg) Kind() Kind      { return KindHashChgPg }

func newRecord(k Kind) (Record, bool) {
	switch k {
	case KindTxnBegin:
		return &TxnBegin{}, true
	case KindTxnCommit:
		return &TxnCommit{}, true
	case KindPgAlloc:
		return &PgAlloc{}, true
	case KindPgFree:
		return &PgFree{}, true
	case KindBtreeSplit:
		return &BtreeSplit{}, true
	case KindBtreeRSplit:
		return &BtreeRSplit{}, true
	case KindBtreeAdj:
		return &BtreeAdj{}, true
	case KindBtreeCAdj:
		return &BtreeCAdj{}, true
	case KindBtreeCDel:
		return &BtreeCDel{}, true
	case KindBtreeRepl:
		return &BtreeRepl{}, true
	case KindBtreeRoot:
		return &BtreeRoot{}, true
	case KindBtreeCurAdj:
		return &BtreeCurAdj{}, true
	case KindHashInsDel:
		return &HashInsDel{}, true
	case KindHashNewPage:
		return &HashNewPage{}, true
	case KindHashReplace:
		return &HashReplace{}, true
	case KindHashSplit:
		return &HashSplit{}, true
	case KindHashCopyPage:
		return &HashCopyPage{}, true
	case KindHashGroupAlloc:
		return &HashGroupAlloc{}, true
	case KindHashMetaGroup:
		return &HashMetaGroup{}, true
	case KindHashCurAdj:
		return &HashCurAdj{}, true
	case KindHashChgPg:
		return &HashChgPg{}, true
	default:
		return nil, false
	}
}
