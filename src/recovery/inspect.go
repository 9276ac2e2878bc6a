package recovery

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/Blackdeer1524/PageDB/src/bufferpool"
	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/btree"
	"github.com/Blackdeer1524/PageDB/src/storage/hash"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

// Inspect renders a page as JSON.
func Inspect(pool bufferpool.BufferPool, ident common.PageIdentity) ([]byte, error) {
	lease, err := bufferpool.Acquire(pool, ident, false)
	if err != nil {
		return nil, errors.Wrapf(err, "inspect %v", ident)
	}
	defer lease.Release()

	var e jx.Encoder
	e.SetIdent(2)
	if err := EncodePage(&e, ident.FileID, lease.Page()); err != nil {
		return nil, errors.Wrapf(err, "inspect %v", ident)
	}
	return e.Bytes(), nil
}

func EncodePage(e *jx.Encoder, fileID common.FileID, p *page.Page) error {
	e.ObjStart()

	e.FieldStart("file")
	e.UInt32(uint32(fileID))
	e.FieldStart("pgno")
	e.UInt32(uint32(p.PageID()))
	e.FieldStart("lsn")
	e.UInt64(uint64(p.LSN()))
	e.FieldStart("type")
	e.Str(p.Type().String())
	e.FieldStart("prev")
	e.UInt32(uint32(p.Prev()))
	e.FieldStart("next")
	e.UInt32(uint32(p.Next()))
	e.FieldStart("level")
	e.UInt8(p.Level())

	if p.Type() == page.TypeMeta {
		encodeMeta(e, p.Meta())
		e.ObjEnd()
		return nil
	}

	e.FieldStart("records")
	e.UInt32(p.Records())
	e.FieldStart("free_space")
	e.Int(p.FreeSpace())

	items, err := p.Items()
	if err != nil {
		return err
	}

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range items {
		encodeItem(e, p.Type(), item)
	}
	e.ArrEnd()

	e.ObjEnd()
	return nil
}

func encodeMeta(e *jx.Encoder, m page.Meta) {
	e.FieldStart("meta")
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(m.Valid())
	e.FieldStart("method")
	e.Str(m.Method().String())
	e.FieldStart("free")
	e.UInt32(uint32(m.Free()))
	e.FieldStart("last_pgno")
	e.UInt32(uint32(m.LastPgno()))

	switch m.Method() {
	case page.MethodBtree:
		e.FieldStart("root")
		e.UInt32(uint32(m.Root()))
		e.FieldStart("recnum")
		e.Bool(m.RecNum())
	case page.MethodHash:
		e.FieldStart("max_bucket")
		e.UInt32(m.MaxBucket())
		e.FieldStart("high_mask")
		e.UInt32(m.HighMask())
		e.FieldStart("low_mask")
		e.UInt32(m.LowMask())
		e.FieldStart("nelem")
		e.UInt32(m.NElem())

		e.FieldStart("spares")
		e.ArrStart()
		n := min(page.SpareIndex(m.MaxBucket()), page.NumSpares-1)
		for i := 0; i <= n; i++ {
			e.UInt32(m.Spare(i))
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

func encodeItem(e *jx.Encoder, typ page.Type, item []byte) {
	e.ObjStart()
	defer e.ObjEnd()

	switch typ {
	case page.TypeBtreeInternal:
		if in, err := btree.ParseInternal(item); err == nil {
			e.FieldStart("child")
			e.UInt32(uint32(in.Child))
			e.FieldStart("records")
			e.UInt32(in.Records)
			e.FieldStart("key")
			e.Base64(in.Key)
			return
		}
	case page.TypeBtreeLeaf:
		if data, deleted, err := btree.ParseLeaf(item); err == nil {
			e.FieldStart("deleted")
			e.Bool(deleted)
			e.FieldStart("data")
			e.Base64(data)
			return
		}
	case page.TypeHash:
		if t, data, err := hash.Parse(item); err == nil {
			e.FieldStart("kind")
			e.UInt8(uint8(t))
			e.FieldStart("data")
			e.Base64(data)
			return
		}
	}

	e.FieldStart("raw")
	e.Base64(item)
}
