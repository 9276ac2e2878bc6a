package page

import (
	"encoding/binary"
	"sync"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src/pkg/assert"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
)

// Layout (big-endian):
//
//	0   lsn       u64
//	8   pgno      u32
//	12  prev      u32
//	16  next      u32
//	20  entries   u16
//	22  hf_offset u16  start of the item area
//	24  level     u8
//	25  type      u8
//	26  nrecs     u32  record total kept on internal roots
//	30  reserved  u16
//	32  index array, one u16 item offset per entry
//
// Items are stored as a u16 length followed by the item bytes and are
// packed from the end of the page towards the index array.
const (
	PageSize   = 4096
	HeaderSize = 32

	offLSN     = 0
	offPgno    = 8
	offPrev    = 12
	offNext    = 16
	offEntries = 20
	offHF      = 22
	offLevel   = 24
	offType    = 25
	offNRecs   = 26

	slotSize    = 2
	itemLenSize = 2
)

type Type uint8

const (
	TypeInvalid Type = iota
	TypeFree
	TypeMeta
	TypeBtreeInternal
	TypeBtreeLeaf
	TypeOverflow
	TypeHash
	typeUnknown
)

func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "invalid"
	case TypeFree:
		return "free"
	case TypeMeta:
		return "meta"
	case TypeBtreeInternal:
		return "btree-internal"
	case TypeBtreeLeaf:
		return "btree-leaf"
	case TypeOverflow:
		return "overflow"
	case TypeHash:
		return "hash"
	default:
		return "unknown"
	}
}

var (
	ErrNoEnoughSpace = errors.New("not enough space on page")
	ErrBadIndex      = errors.New("item index out of range")
	ErrCorrupted     = errors.New("page layout is corrupted")
)

var be = binary.BigEndian

type Page struct {
	latch sync.RWMutex
	data  [PageSize]byte
}

// New returns an all-zero page, the state of a page that was never
// written.
func New() *Page {
	return &Page{}
}

// Init reformats the page. Everything, the LSN included, is reset.
func (p *Page) Init(pgno, prev, next common.PageID, level uint8, typ Type) {
	clear(p.data[:])
	p.SetPageID(pgno)
	p.SetPrev(prev)
	p.SetNext(next)
	p.SetLevel(level)
	p.SetType(typ)
	p.setHF(PageSize)
}

// Zero turns the page back into one that was never written.
func (p *Page) Zero() {
	clear(p.data[:])
}

func (p *Page) LSN() common.LSN {
	return common.LSN(be.Uint64(p.data[offLSN:]))
}

func (p *Page) SetLSN(lsn common.LSN) {
	be.PutUint64(p.data[offLSN:], uint64(lsn))
}

func (p *Page) PageID() common.PageID {
	return common.PageID(be.Uint32(p.data[offPgno:]))
}

func (p *Page) SetPageID(id common.PageID) {
	be.PutUint32(p.data[offPgno:], uint32(id))
}

func (p *Page) Prev() common.PageID {
	return common.PageID(be.Uint32(p.data[offPrev:]))
}

func (p *Page) SetPrev(id common.PageID) {
	be.PutUint32(p.data[offPrev:], uint32(id))
}

func (p *Page) Next() common.PageID {
	return common.PageID(be.Uint32(p.data[offNext:]))
}

func (p *Page) SetNext(id common.PageID) {
	be.PutUint32(p.data[offNext:], uint32(id))
}

func (p *Page) Level() uint8 {
	return p.data[offLevel]
}

func (p *Page) SetLevel(level uint8) {
	p.data[offLevel] = level
}

func (p *Page) Type() Type {
	return Type(p.data[offType])
}

func (p *Page) SetType(t Type) {
	p.data[offType] = byte(t)
}

func (p *Page) Records() uint32 {
	return be.Uint32(p.data[offNRecs:])
}

func (p *Page) SetRecords(n uint32) {
	be.PutUint32(p.data[offNRecs:], n)
}

func (p *Page) NumEntries() int {
	return int(be.Uint16(p.data[offEntries:]))
}

func (p *Page) setEntries(n int) {
	be.PutUint16(p.data[offEntries:], uint16(n))
}

// hf reads the start of the item area. A zero value only appears on pages
// that were never formatted and is read as an empty item area.
func (p *Page) hf() int {
	v := int(be.Uint16(p.data[offHF:]))
	if v == 0 {
		return PageSize
	}
	return v
}

func (p *Page) setHF(v int) {
	assert.Assert(v <= PageSize, "hf offset %d is past the page end", v)
	be.PutUint16(p.data[offHF:], uint16(v))
}

func (p *Page) slotPos(i int) int {
	return HeaderSize + i*slotSize
}

func (p *Page) offset(i int) int {
	return int(be.Uint16(p.data[p.slotPos(i):]))
}

func (p *Page) setOffset(i, off int) {
	be.PutUint16(p.data[p.slotPos(i):], uint16(off))
}

func (p *Page) itemSize(off int) int {
	return itemLenSize + int(be.Uint16(p.data[off:]))
}

// FreeSpace is the number of bytes between the index array and the item
// area.
func (p *Page) FreeSpace() int {
	return p.hf() - p.slotPos(p.NumEntries())
}

// ItemAt returns the bytes of the i-th item. The slice aliases the page
// and is only valid until the next mutation.
func (p *Page) ItemAt(i int) ([]byte, error) {
	if i < 0 || i >= p.NumEntries() {
		return nil, errors.Wrapf(ErrBadIndex, "index %d, entries %d", i, p.NumEntries())
	}

	off := p.offset(i)
	if off < p.hf() || off+itemLenSize > PageSize {
		return nil, errors.Wrapf(ErrCorrupted, "item %d at offset %d", i, off)
	}
	end := off + p.itemSize(off)
	if end > PageSize {
		return nil, errors.Wrapf(ErrCorrupted, "item %d overruns the page", i)
	}
	return p.data[off+itemLenSize : end], nil
}

// InsertAt places item at index i, shifting later entries up by one.
func (p *Page) InsertAt(i int, item []byte) error {
	n := p.NumEntries()
	if i < 0 || i > n {
		return errors.Wrapf(ErrBadIndex, "insert at %d, entries %d", i, n)
	}
	if len(item) > PageSize {
		return ErrNoEnoughSpace
	}

	need := slotSize + itemLenSize + len(item)
	if need > p.FreeSpace() {
		return errors.Wrapf(ErrNoEnoughSpace, "need %d, free %d", need, p.FreeSpace())
	}

	off := p.hf() - itemLenSize - len(item)
	be.PutUint16(p.data[off:], uint16(len(item)))
	copy(p.data[off+itemLenSize:], item)
	p.setHF(off)

	slots := p.data[p.slotPos(i):p.slotPos(n+1)]
	copy(slots[slotSize:], slots[:len(slots)-slotSize])
	p.setOffset(i, off)
	p.setEntries(n + 1)
	return nil
}

// Append is InsertAt at the end of the index array.
func (p *Page) Append(item []byte) error {
	return p.InsertAt(p.NumEntries(), item)
}

// RemoveAt deletes the i-th item and compacts the item area so that free
// space stays contiguous.
func (p *Page) RemoveAt(i int) error {
	n := p.NumEntries()
	if i < 0 || i >= n {
		return errors.Wrapf(ErrBadIndex, "remove at %d, entries %d", i, n)
	}

	off := p.offset(i)
	size := p.itemSize(off)
	hf := p.hf()

	if off != hf {
		// Slide everything packed below the removed item up by its size.
		copy(p.data[hf+size:off+size], p.data[hf:off])
		for j := range n {
			if j != i && p.offset(j) < off {
				p.setOffset(j, p.offset(j)+size)
			}
		}
	}
	clear(p.data[hf : hf+size])
	p.setHF(hf + size)

	if i != n-1 {
		copy(p.data[p.slotPos(i):p.slotPos(n-1)], p.data[p.slotPos(i+1):p.slotPos(n)])
	}
	clear(p.data[p.slotPos(n-1):p.slotPos(n)])
	p.setEntries(n - 1)
	return nil
}

// ReplaceAt swaps the i-th item for item. On error the page is unchanged.
func (p *Page) ReplaceAt(i int, item []byte) error {
	old, err := p.ItemAt(i)
	if err != nil {
		return err
	}

	if len(old) == len(item) {
		copy(old, item)
		return nil
	}

	if grow := len(item) - len(old); grow > p.FreeSpace() {
		return errors.Wrapf(ErrNoEnoughSpace, "need %d more, free %d", grow, p.FreeSpace())
	}

	assert.NoError(p.RemoveAt(i))
	assert.NoError(p.InsertAt(i, item))
	return nil
}

// Items copies out every item in index order.
func (p *Page) Items() ([][]byte, error) {
	res := make([][]byte, 0, p.NumEntries())
	for i := range p.NumEntries() {
		item, err := p.ItemAt(i)
		if err != nil {
			return nil, err
		}
		res = append(res, append([]byte(nil), item...))
	}
	return res, nil
}

// Verify checks the slotted layout: the index array ends before the item
// area and items neither overlap nor leave the page.
func (p *Page) Verify() error {
	n := p.NumEntries()
	hf := p.hf()
	if p.slotPos(n) > hf {
		return errors.Wrapf(ErrCorrupted, "index array ends at %d past item area %d", p.slotPos(n), hf)
	}

	type span struct{ from, to int }
	spans := make([]span, 0, n)
	for i := range n {
		off := p.offset(i)
		if off < hf || off+itemLenSize > PageSize {
			return errors.Wrapf(ErrCorrupted, "item %d offset %d outside [%d, %d)", i, off, hf, PageSize)
		}
		end := off + p.itemSize(off)
		if end > PageSize {
			return errors.Wrapf(ErrCorrupted, "item %d overruns the page", i)
		}
		for _, s := range spans {
			if off < s.to && s.from < end {
				return errors.Wrapf(ErrCorrupted, "item %d overlaps [%d, %d)", i, s.from, s.to)
			}
		}
		spans = append(spans, span{off, end})
	}
	return nil
}

// Image returns a copy of the raw page bytes.
func (p *Page) Image() []byte {
	return append([]byte(nil), p.data[:]...)
}

// Restore overwrites the page with img. A header-sized image only restores
// the header and leaves the body as it is.
func (p *Page) Restore(img []byte) error {
	if len(img) != PageSize && len(img) != HeaderSize {
		return errors.Wrapf(ErrCorrupted, "image of %d bytes", len(img))
	}
	copy(p.data[:], img)
	return nil
}

func (p *Page) Header() []byte {
	return append([]byte(nil), p.data[:HeaderSize]...)
}

func (p *Page) GetData() []byte {
	return p.data[:]
}

func (p *Page) SetData(d []byte) {
	copy(p.data[:], d)
}

func (p *Page) Lock() {
	p.latch.Lock()
}

func (p *Page) Unlock() {
	p.latch.Unlock()
}

func (p *Page) RLock() {
	p.latch.RLock()
}

func (p *Page) RUnlock() {
	p.latch.RUnlock()
}

func (p *Page) TryLock() bool {
	return p.latch.TryLock()
}
