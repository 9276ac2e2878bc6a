// Package hash holds the on-page item formats and bucket addressing of the
// extensible hash access method.
package hash

import (
	"github.com/go-faster/errors"
)

type ItemType byte

const (
	KeyData ItemType = iota + 1
	Duplicate
	OffPage
)

var ErrBadItem = errors.New("malformed hash item")

// Item encodes a hash entry. Keys and data are stored as consecutive
// items, so a pair occupies indexes (i, i+1) on a bucket page.
func Item(typ ItemType, data []byte) []byte {
	item := make([]byte, 1+len(data))
	item[0] = byte(typ)
	copy(item[1:], data)
	return item
}

func Parse(item []byte) (ItemType, []byte, error) {
	if len(item) < 1 {
		return 0, nil, ErrBadItem
	}

	typ := ItemType(item[0])
	if typ < KeyData || typ > OffPage {
		return 0, nil, errors.Wrapf(ErrBadItem, "type %d", typ)
	}
	return typ, item[1:], nil
}
