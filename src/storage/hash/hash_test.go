package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/PageDB/src/storage/page"
)

func TestDeterministicHasher64_DeterminismAndSeedInfluence(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	h1 := NewDeterministicHasher64(123456789)
	h1.Write(data)

	h2 := NewDeterministicHasher64(123456789)
	h2.Write(data)
	require.Equal(t, h1.Sum64(), h2.Sum64(), "same seed must produce same hash")

	h3 := NewDeterministicHasher64(987654321)
	h3.Write(data)
	assert.NotEqual(t, h1.Sum64(), h3.Sum64())
}

func TestDeterministicHasher64_Reset(t *testing.T) {
	h := NewDeterministicHasher64(0)
	h.Write([]byte("x"))
	h.Reset()
	h.Write([]byte("hello"))

	h2 := NewDeterministicHasher64(0)
	h2.Write([]byte("hello"))
	assert.Equal(t, h.Sum64(), h2.Sum64())
}

func TestBucketOfRespectsMasks(t *testing.T) {
	p := page.New()
	m := page.InitMeta(p, 0, page.MethodHash, 0)
	m.SetMaxBucket(5)
	m.SetHighMask(7)
	m.SetLowMask(3)

	for i := range 200 {
		key := []byte(fmt.Sprintf("key-%d", i))
		b := BucketOf(key, m)
		assert.LessOrEqual(t, b, uint32(5))

		full := Sum(key) & 7
		if full <= 5 {
			assert.Equal(t, full, b)
		} else {
			assert.Equal(t, full&3, b)
		}
	}
}

func TestItem(t *testing.T) {
	typ, data, err := Parse(Item(Duplicate, []byte("v")))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, typ)
	assert.Equal(t, []byte("v"), data)

	_, _, err = Parse([]byte{9})
	assert.ErrorIs(t, err, ErrBadItem)
	_, _, err = Parse(nil)
	assert.ErrorIs(t, err, ErrBadItem)
}
