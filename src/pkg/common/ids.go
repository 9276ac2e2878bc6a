package common

import (
	"fmt"
)

type FileID uint32

type PageID uint32

type TxnID uint64

const NilTxnID TxnID = 0

// InvalidPageID terminates page chains. Page 0 always holds the file's
// metadata, so it can never be the target of a link.
const InvalidPageID PageID = 0

// MetaPageID is the primary metadata page of every file.
const MetaPageID PageID = 0

type PageIdentity struct {
	FileID FileID
	PageID PageID
}

func (p PageIdentity) String() string {
	return fmt.Sprintf("%d:%d", p.FileID, p.PageID)
}

func Ident(fileID FileID, pageID PageID) PageIdentity {
	return PageIdentity{FileID: fileID, PageID: pageID}
}
