package recovery

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

// maxBlob bounds variable-length fields; nothing logged is larger than a
// page image.
const maxBlob = page.PageSize

// Encode serializes r as `tag u8 | txn u64 | prev_lsn u64 | file u32 |
// payload`, big-endian.
func Encode(r Record) []byte {
	e := &encoder{}
	e.u8(byte(r.Kind()))

	h := r.Hdr()
	e.u64(uint64(h.TxnID))
	e.lsn(h.PrevLSN)
	e.u32(uint32(h.FileID))

	r.encodeBody(e)
	return e.buf.Bytes()
}

// Decode is the inverse of Encode. Every failure wraps ErrDecode.
func Decode(data []byte) (Record, error) {
	if len(data) < 1 {
		return nil, errors.Wrap(ErrDecode, "empty record")
	}

	r, ok := newRecord(Kind(data[0]))
	if !ok {
		return nil, errors.Wrapf(ErrDecode, "unknown type tag %#x", data[0])
	}

	d := &decoder{rd: bytes.NewReader(data[1:])}

	h := r.Hdr()
	h.TxnID = common.TxnID(d.u64())
	h.PrevLSN = d.lsn()
	h.FileID = common.FileID(d.u32())

	r.decodeBody(d)
	if d.err != nil {
		return nil, errors.Wrapf(ErrDecode, "%s: %v", r.Kind(), d.err)
	}

	if d.rd.Len() != 0 {
		return nil, errors.Wrapf(ErrDecode, "%s: %d trailing bytes", r.Kind(), d.rd.Len())
	}

	return r, nil
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) u8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *encoder) u16(v uint16) {
	e.buf.Write(binary.BigEndian.AppendUint16(nil, v))
}

func (e *encoder) u32(v uint32) {
	e.buf.Write(binary.BigEndian.AppendUint32(nil, v))
}

func (e *encoder) u64(v uint64) {
	e.buf.Write(binary.BigEndian.AppendUint64(nil, v))
}

func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) lsn(v common.LSN) {
	e.u64(uint64(v))
}

func (e *encoder) pgno(v common.PageID) {
	e.u32(uint32(v))
}

func (e *encoder) blob(b []byte) {
	e.u32(uint32(len(b)))
	e.buf.Write(b)
}

// decoder keeps the first error; later reads return zero values.
type decoder struct {
	rd  *bytes.Reader
	err error
}

func (d *decoder) read(v any) {
	if d.err != nil {
		return
	}
	d.err = binary.Read(d.rd, binary.BigEndian, v)
}

func (d *decoder) u8() uint8 {
	var v uint8
	d.read(&v)
	return v
}

func (d *decoder) u16() uint16 {
	var v uint16
	d.read(&v)
	return v
}

func (d *decoder) u32() uint32 {
	var v uint32
	d.read(&v)
	return v
}

func (d *decoder) u64() uint64 {
	var v uint64
	d.read(&v)
	return v
}

func (d *decoder) boolean() bool {
	v := d.u8()
	if d.err == nil && v > 1 {
		d.err = errors.Errorf("bad boolean %d", v)
	}
	return v == 1
}

func (d *decoder) lsn() common.LSN {
	return common.LSN(d.u64())
}

func (d *decoder) pgno() common.PageID {
	return common.PageID(d.u32())
}

func (d *decoder) blob() []byte {
	n := d.u32()
	if d.err != nil {
		return nil
	}
	if n > maxBlob || int(n) > d.rd.Len() {
		d.err = errors.Errorf("blob of %d bytes, %d left", n, d.rd.Len())
		return nil
	}
	if n == 0 {
		return nil
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(d.rd, b); err != nil {
		d.err = err
		return nil
	}
	return b
}

func (d *decoder) image() []byte {
	b := d.blob()
	if d.err == nil && len(b) != page.PageSize && len(b) != page.HeaderSize {
		d.err = errors.Errorf("page image of %d bytes", len(b))
	}
	return b
}

func (*TxnBegin) encodeBody(*encoder) {}
func (*TxnBegin) decodeBody(*decoder) {}

func (*TxnCommit) encodeBody(*encoder) {}
func (*TxnCommit) decodeBody(*decoder) {}

func (r *PgAlloc) encodeBody(e *encoder) {
	e.pgno(r.MetaPgno)
	e.lsn(r.MetaLSN)
	e.pgno(r.Pgno)
	e.lsn(r.PageLSN)
	e.u8(byte(r.PType))
	e.u8(r.Level)
	e.pgno(r.Next)
}

func (r *PgAlloc) decodeBody(d *decoder) {
	r.MetaPgno = d.pgno()
	r.MetaLSN = d.lsn()
	r.Pgno = d.pgno()
	r.PageLSN = d.lsn()
	r.PType = page.Type(d.u8())
	r.Level = d.u8()
	r.Next = d.pgno()
}

func (r *PgFree) encodeBody(e *encoder) {
	e.pgno(r.MetaPgno)
	e.lsn(r.MetaLSN)
	e.pgno(r.Pgno)
	e.blob(r.Image)
	e.pgno(r.Next)
}

func (r *PgFree) decodeBody(d *decoder) {
	r.MetaPgno = d.pgno()
	r.MetaLSN = d.lsn()
	r.Pgno = d.pgno()
	r.Image = d.image()
	r.Next = d.pgno()
}

func (r *BtreeSplit) encodeBody(e *encoder) {
	e.pgno(r.Left)
	e.lsn(r.LeftLSN)
	e.pgno(r.Right)
	e.lsn(r.RightLSN)
	e.u16(r.Index)
	e.pgno(r.NPgno)
	e.lsn(r.NLSN)
	e.pgno(r.RootPgno)
	e.boolean(r.RecNum)
	e.blob(r.PgImage)
}

func (r *BtreeSplit) decodeBody(d *decoder) {
	r.Left = d.pgno()
	r.LeftLSN = d.lsn()
	r.Right = d.pgno()
	r.RightLSN = d.lsn()
	r.Index = d.u16()
	r.NPgno = d.pgno()
	r.NLSN = d.lsn()
	r.RootPgno = d.pgno()
	r.RecNum = d.boolean()
	r.PgImage = d.image()
}

func (r *BtreeRSplit) encodeBody(e *encoder) {
	e.pgno(r.Pgno)
	e.lsn(r.PgLSN)
	e.blob(r.PgImage)
	e.pgno(r.RootPgno)
	e.lsn(r.RootLSN)
	e.blob(r.RootEntry)
	e.u32(r.NRecs)
}

func (r *BtreeRSplit) decodeBody(d *decoder) {
	r.Pgno = d.pgno()
	r.PgLSN = d.lsn()
	r.PgImage = d.image()
	r.RootPgno = d.pgno()
	r.RootLSN = d.lsn()
	r.RootEntry = d.blob()
	r.NRecs = d.u32()
}

func (r *BtreeAdj) encodeBody(e *encoder) {
	e.pgno(r.Pgno)
	e.lsn(r.LSN)
	e.u16(r.Indx)
	e.u16(r.IndxCopy)
	e.boolean(r.IsInsert)
}

func (r *BtreeAdj) decodeBody(d *decoder) {
	r.Pgno = d.pgno()
	r.LSN = d.lsn()
	r.Indx = d.u16()
	r.IndxCopy = d.u16()
	r.IsInsert = d.boolean()
}

func (r *BtreeCAdj) encodeBody(e *encoder) {
	e.pgno(r.Pgno)
	e.lsn(r.LSN)
	e.u16(r.Indx)
	e.u32(uint32(r.Delta))
	e.boolean(r.RootAdjust)
}

func (r *BtreeCAdj) decodeBody(d *decoder) {
	r.Pgno = d.pgno()
	r.LSN = d.lsn()
	r.Indx = d.u16()
	r.Delta = int32(d.u32())
	r.RootAdjust = d.boolean()
}

func (r *BtreeCDel) encodeBody(e *encoder) {
	e.pgno(r.Pgno)
	e.lsn(r.LSN)
	e.u16(r.Indx)
}

func (r *BtreeCDel) decodeBody(d *decoder) {
	r.Pgno = d.pgno()
	r.LSN = d.lsn()
	r.Indx = d.u16()
}

func (r *BtreeRepl) encodeBody(e *encoder) {
	e.pgno(r.Pgno)
	e.lsn(r.LSN)
	e.u16(r.Indx)
	e.boolean(r.IsDeleted)
	e.blob(r.Orig)
	e.blob(r.Repl)
	e.u32(r.Prefix)
	e.u32(r.Suffix)
}

func (r *BtreeRepl) decodeBody(d *decoder) {
	r.Pgno = d.pgno()
	r.LSN = d.lsn()
	r.Indx = d.u16()
	r.IsDeleted = d.boolean()
	r.Orig = d.blob()
	r.Repl = d.blob()
	r.Prefix = d.u32()
	r.Suffix = d.u32()
}

func (r *BtreeRoot) encodeBody(e *encoder) {
	e.pgno(r.MetaPgno)
	e.lsn(r.MetaLSN)
	e.pgno(r.RootPgno)
}

func (r *BtreeRoot) decodeBody(d *decoder) {
	r.MetaPgno = d.pgno()
	r.MetaLSN = d.lsn()
	r.RootPgno = d.pgno()
}

func (r *BtreeCurAdj) encodeBody(e *encoder) {
	e.u8(byte(r.Mode))
	e.pgno(r.FromPgno)
	e.pgno(r.ToPgno)
	e.pgno(r.LeftPgno)
	e.u16(r.FromIndx)
	e.u32(uint32(r.Adjust))
	e.u32(r.Order)
}

func (r *BtreeCurAdj) decodeBody(d *decoder) {
	r.Mode = BtreeCurAdjMode(d.u8())
	r.FromPgno = d.pgno()
	r.ToPgno = d.pgno()
	r.LeftPgno = d.pgno()
	r.FromIndx = d.u16()
	r.Adjust = int32(d.u32())
	r.Order = d.u32()
}

func (r *HashInsDel) encodeBody(e *encoder) {
	e.u8(byte(r.Opcode))
	e.pgno(r.Pgno)
	e.lsn(r.PageLSN)
	e.u16(r.Ndx)
	e.blob(r.Key)
	e.blob(r.Data)
}

func (r *HashInsDel) decodeBody(d *decoder) {
	r.Opcode = HashOpcode(d.u8())
	r.Pgno = d.pgno()
	r.PageLSN = d.lsn()
	r.Ndx = d.u16()
	r.Key = d.blob()
	r.Data = d.blob()
}

func (r *HashNewPage) encodeBody(e *encoder) {
	e.u8(byte(r.Opcode))
	e.pgno(r.PrevPgno)
	e.lsn(r.PrevLSN)
	e.pgno(r.NewPgno)
	e.lsn(r.PageLSN)
	e.pgno(r.NextPgno)
	e.lsn(r.NextLSN)
}

func (r *HashNewPage) decodeBody(d *decoder) {
	r.Opcode = HashOpcode(d.u8())
	r.PrevPgno = d.pgno()
	r.PrevLSN = d.lsn()
	r.NewPgno = d.pgno()
	r.PageLSN = d.lsn()
	r.NextPgno = d.pgno()
	r.NextLSN = d.lsn()
}

func (r *HashReplace) encodeBody(e *encoder) {
	e.pgno(r.Pgno)
	e.lsn(r.PageLSN)
	e.u16(r.Ndx)
	e.u32(r.Off)
	e.blob(r.Old)
	e.blob(r.New)
	e.boolean(r.MakeDup)
}

func (r *HashReplace) decodeBody(d *decoder) {
	r.Pgno = d.pgno()
	r.PageLSN = d.lsn()
	r.Ndx = d.u16()
	r.Off = d.u32()
	r.Old = d.blob()
	r.New = d.blob()
	r.MakeDup = d.boolean()
}

func (r *HashSplit) encodeBody(e *encoder) {
	e.u8(byte(r.Opcode))
	e.pgno(r.Pgno)
	e.lsn(r.PageLSN)
	e.blob(r.Image)
}

func (r *HashSplit) decodeBody(d *decoder) {
	r.Opcode = HashOpcode(d.u8())
	r.Pgno = d.pgno()
	r.PageLSN = d.lsn()
	r.Image = d.image()
}

func (r *HashCopyPage) encodeBody(e *encoder) {
	e.pgno(r.Pgno)
	e.lsn(r.PageLSN)
	e.pgno(r.NextPgno)
	e.lsn(r.NextLSN)
	e.pgno(r.NNextPgno)
	e.lsn(r.NNextLSN)
	e.blob(r.PageImage)
	e.blob(r.SrcImage)
}

func (r *HashCopyPage) decodeBody(d *decoder) {
	r.Pgno = d.pgno()
	r.PageLSN = d.lsn()
	r.NextPgno = d.pgno()
	r.NextLSN = d.lsn()
	r.NNextPgno = d.pgno()
	r.NNextLSN = d.lsn()
	r.PageImage = d.image()
	r.SrcImage = d.image()
}

func (r *HashGroupAlloc) encodeBody(e *encoder) {
	e.pgno(r.MetaPgno)
	e.lsn(r.MetaLSN)
	e.pgno(r.StartPgno)
	e.u32(r.Num)
}

func (r *HashGroupAlloc) decodeBody(d *decoder) {
	r.MetaPgno = d.pgno()
	r.MetaLSN = d.lsn()
	r.StartPgno = d.pgno()
	r.Num = d.u32()
}

func (r *HashMetaGroup) encodeBody(e *encoder) {
	e.pgno(r.MetaPgno)
	e.lsn(r.MetaLSN)
	e.pgno(r.Pgno)
	e.lsn(r.PageLSN)
	e.u32(r.Bucket)
	e.boolean(r.NewAlloc)
	e.u32(r.Spare)
	e.u32(r.PrevSpare)
}

func (r *HashMetaGroup) decodeBody(d *decoder) {
	r.MetaPgno = d.pgno()
	r.MetaLSN = d.lsn()
	r.Pgno = d.pgno()
	r.PageLSN = d.lsn()
	r.Bucket = d.u32()
	r.NewAlloc = d.boolean()
	r.Spare = d.u32()
	r.PrevSpare = d.u32()
}

func (r *HashCurAdj) encodeBody(e *encoder) {
	e.pgno(r.Pgno)
	e.u16(r.Indx)
	e.u32(r.Len)
	e.u32(r.DupOff)
	e.boolean(r.Add)
	e.boolean(r.IsDup)
	e.u32(r.Order)
}

func (r *HashCurAdj) decodeBody(d *decoder) {
	r.Pgno = d.pgno()
	r.Indx = d.u16()
	r.Len = d.u32()
	r.DupOff = d.u32()
	r.Add = d.boolean()
	r.IsDup = d.boolean()
	r.Order = d.u32()
}

func (r *HashChgPg) encodeBody(e *encoder) {
	e.u8(byte(r.Mode))
	e.pgno(r.OldPgno)
	e.pgno(r.NewPgno)
	e.u16(r.OldIndx)
	e.u16(r.NewIndx)
}

func (r *HashChgPg) decodeBody(d *decoder) {
	r.Mode = HashChgPgMode(d.u8())
	r.OldPgno = d.pgno()
	r.NewPgno = d.pgno()
	r.OldIndx = d.u16()
	r.NewIndx = d.u16()
}
