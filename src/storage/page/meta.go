package page

import (
	"math/bits"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
)

type Method uint8

const (
	MethodBtree Method = iota + 1
	MethodHash
)

func (m Method) String() string {
	switch m {
	case MethodBtree:
		return "btree"
	case MethodHash:
		return "hash"
	default:
		return "unknown"
	}
}

const MetaMagic uint32 = 0x50474442

// MetaFlagRecNum enables per-subtree record counts on B-tree internal
// pages.
const MetaFlagRecNum uint8 = 0x01

const NumSpares = 32

// MaxBuckets is the first bucket number the spares table cannot address.
const MaxBuckets uint32 = 1 << (NumSpares - 1)

// Metadata body layout, following the common header.
const (
	offMagic     = HeaderSize
	offMethod    = HeaderSize + 4
	offFlags     = HeaderSize + 5
	offFree      = HeaderSize + 8
	offLastPgno  = HeaderSize + 12
	offRoot      = HeaderSize + 16
	offMaxBucket = HeaderSize + 20
	offHighMask  = HeaderSize + 24
	offLowMask   = HeaderSize + 28
	offNElem     = HeaderSize + 32
	offSpares    = HeaderSize + 36
)

// Meta is a typed view over a metadata page.
type Meta struct {
	p *Page
}

func (p *Page) Meta() Meta {
	return Meta{p: p}
}

// InitMeta formats p as an empty metadata page of the given method.
func InitMeta(p *Page, pgno common.PageID, method Method, flags uint8) Meta {
	p.Init(pgno, common.InvalidPageID, common.InvalidPageID, 0, TypeMeta)
	m := p.Meta()
	be.PutUint32(p.data[offMagic:], MetaMagic)
	p.data[offMethod] = byte(method)
	p.data[offFlags] = flags
	m.SetLastPgno(pgno)
	return m
}

func (m Meta) Page() *Page {
	return m.p
}

func (m Meta) LSN() common.LSN {
	return m.p.LSN()
}

func (m Meta) SetLSN(lsn common.LSN) {
	m.p.SetLSN(lsn)
}

func (m Meta) Valid() bool {
	return m.p.Type() == TypeMeta && be.Uint32(m.p.data[offMagic:]) == MetaMagic
}

// Verify checks the fields that later lookups index with.
func (m Meta) Verify() error {
	if !m.Valid() {
		return errors.Wrap(ErrCorrupted, "not a metadata page")
	}
	if m.Method() == MethodHash && m.MaxBucket() >= MaxBuckets {
		return errors.Wrapf(ErrCorrupted, "max bucket %d is past the spares table", m.MaxBucket())
	}
	return nil
}

func (m Meta) Method() Method {
	return Method(m.p.data[offMethod])
}

func (m Meta) Flags() uint8 {
	return m.p.data[offFlags]
}

func (m Meta) RecNum() bool {
	return m.Flags()&MetaFlagRecNum != 0
}

func (m Meta) Free() common.PageID {
	return common.PageID(be.Uint32(m.p.data[offFree:]))
}

func (m Meta) SetFree(id common.PageID) {
	be.PutUint32(m.p.data[offFree:], uint32(id))
}

func (m Meta) LastPgno() common.PageID {
	return common.PageID(be.Uint32(m.p.data[offLastPgno:]))
}

func (m Meta) SetLastPgno(id common.PageID) {
	be.PutUint32(m.p.data[offLastPgno:], uint32(id))
}

func (m Meta) Root() common.PageID {
	return common.PageID(be.Uint32(m.p.data[offRoot:]))
}

func (m Meta) SetRoot(id common.PageID) {
	be.PutUint32(m.p.data[offRoot:], uint32(id))
}

func (m Meta) MaxBucket() uint32 {
	return be.Uint32(m.p.data[offMaxBucket:])
}

func (m Meta) SetMaxBucket(v uint32) {
	be.PutUint32(m.p.data[offMaxBucket:], v)
}

func (m Meta) HighMask() uint32 {
	return be.Uint32(m.p.data[offHighMask:])
}

func (m Meta) SetHighMask(v uint32) {
	be.PutUint32(m.p.data[offHighMask:], v)
}

func (m Meta) LowMask() uint32 {
	return be.Uint32(m.p.data[offLowMask:])
}

func (m Meta) SetLowMask(v uint32) {
	be.PutUint32(m.p.data[offLowMask:], v)
}

func (m Meta) NElem() uint32 {
	return be.Uint32(m.p.data[offNElem:])
}

func (m Meta) SetNElem(v uint32) {
	be.PutUint32(m.p.data[offNElem:], v)
}

func (m Meta) Spare(i int) uint32 {
	return be.Uint32(m.p.data[offSpares+4*i:])
}

func (m Meta) SetSpare(i int, v uint32) {
	be.PutUint32(m.p.data[offSpares+4*i:], v)
}

// SpareIndex is the doubling a bucket belongs to: ceil(log2(bucket+1)).
func SpareIndex(bucket uint32) int {
	return bits.Len32(bucket)
}

// BucketToPage maps a hash bucket to the page that heads its chain.
func (m Meta) BucketToPage(bucket uint32) common.PageID {
	return common.PageID(bucket + m.Spare(SpareIndex(bucket)))
}
