// Package btree holds the on-page item formats of the B-tree access method.
package btree

import (
	"encoding/binary"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

const (
	flagDeleted byte = 0x80
	kindMask    byte = 0x7F

	KindKeyData  byte = 1
	KindInternal byte = 2

	internalHeader = 1 + 4 + 4
)

var ErrBadItem = errors.New("malformed b-tree item")

// LeafItem encodes a leaf entry: a flag byte followed by the payload.
func LeafItem(data []byte) []byte {
	item := make([]byte, 1+len(data))
	item[0] = KindKeyData
	copy(item[1:], data)
	return item
}

func ParseLeaf(item []byte) (data []byte, deleted bool, err error) {
	if len(item) < 1 || item[0]&kindMask != KindKeyData {
		return nil, false, errors.Wrapf(ErrBadItem, "leaf item %x", item)
	}
	return item[1:], item[0]&flagDeleted != 0, nil
}

// SetDeleted flips the deleted bit in place. Setting an already set bit is
// a no-op, which keeps redo idempotent.
func SetDeleted(item []byte, deleted bool) error {
	if len(item) < 1 {
		return ErrBadItem
	}
	if deleted {
		item[0] |= flagDeleted
	} else {
		item[0] &^= flagDeleted
	}
	return nil
}

func IsDeleted(item []byte) bool {
	return len(item) > 0 && item[0]&flagDeleted != 0
}

type Internal struct {
	Child   common.PageID
	Records uint32
	Key     []byte
}

func InternalItem(child common.PageID, records uint32, key []byte) []byte {
	item := make([]byte, internalHeader+len(key))
	item[0] = KindInternal
	binary.BigEndian.PutUint32(item[1:], uint32(child))
	binary.BigEndian.PutUint32(item[5:], records)
	copy(item[internalHeader:], key)
	return item
}

func ParseInternal(item []byte) (Internal, error) {
	if len(item) < internalHeader || item[0]&kindMask != KindInternal {
		return Internal{}, errors.Wrapf(ErrBadItem, "internal item %x", item)
	}
	return Internal{
		Child:   common.PageID(binary.BigEndian.Uint32(item[1:])),
		Records: binary.BigEndian.Uint32(item[5:]),
		Key:     item[internalHeader:],
	}, nil
}

// AdjustRecords adds delta to the record count of an internal item in
// place.
func AdjustRecords(item []byte, delta int32) error {
	in, err := ParseInternal(item)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(item[5:], uint32(int64(in.Records)+int64(delta)))
	return nil
}

// Count is the number of records reachable from p: live entries on a
// leaf, the sum of child counts on an internal page.
func Count(p *page.Page) (uint32, error) {
	var total uint32
	for i := range p.NumEntries() {
		item, err := p.ItemAt(i)
		if err != nil {
			return 0, err
		}

		switch p.Type() {
		case page.TypeBtreeLeaf:
			if !IsDeleted(item) {
				total++
			}
		case page.TypeBtreeInternal:
			in, err := ParseInternal(item)
			if err != nil {
				return 0, err
			}
			total += in.Records
		default:
			return 0, errors.Errorf("page %d of type %s has no record count", p.PageID(), p.Type())
		}
	}
	return total, nil
}

// FirstKey is the separator a parent stores for p.
func FirstKey(p *page.Page) ([]byte, error) {
	if p.NumEntries() == 0 {
		return nil, nil
	}

	item, err := p.ItemAt(0)
	if err != nil {
		return nil, err
	}

	if p.Type() == page.TypeBtreeInternal {
		in, err := ParseInternal(item)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), in.Key...), nil
	}

	data, _, err := ParseLeaf(item)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}
