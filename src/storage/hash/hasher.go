package hash

import (
	"encoding/binary"
	"hash"
	"hash/fnv"

	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

// DefaultHashSeed is used where a stable, process-independent seed is desired.
const DefaultHashSeed uint64 = 0x9e3779b97f4a7c15

// DeterministicHasher64 wraps FNV-1a with a seed mixed into its initial
// state.
type DeterministicHasher64 struct {
	seed uint64
	h    hash.Hash64
}

func NewDeterministicHasher64(seed uint64) DeterministicHasher64 {
	h := DeterministicHasher64{seed: seed}
	h.Reset()
	return h
}

func (h *DeterministicHasher64) Reset() {
	h.h = fnv.New64a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], h.seed)
	_, _ = h.h.Write(b[:])
}

func (h *DeterministicHasher64) Write(p []byte) int {
	n, _ := h.h.Write(p)
	return n
}

func (h *DeterministicHasher64) Sum64() uint64 {
	return h.h.Sum64()
}

func Sum(key []byte) uint32 {
	h := NewDeterministicHasher64(DefaultHashSeed)
	h.Write(key)
	s := h.Sum64()
	return uint32(s) ^ uint32(s>>32)
}

// BucketOf maps a key to its bucket under the table's current masks. A
// bucket above max_bucket has not been split off yet and folds back under
// the low mask.
func BucketOf(key []byte, m page.Meta) uint32 {
	b := Sum(key) & m.HighMask()
	if b > m.MaxBucket() {
		b &= m.LowMask()
	}
	return b
}
