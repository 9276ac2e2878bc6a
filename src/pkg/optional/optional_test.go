package optional

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptional(t *testing.T) {
	s := Some(uint32(5))
	assert.True(t, s.IsSome())
	assert.Equal(t, uint32(5), s.Unwrap())
	v, ok := s.Get()
	assert.True(t, ok)
	assert.Equal(t, uint32(5), v)

	n := None[uint32]()
	assert.True(t, n.IsNone())
	assert.Equal(t, uint32(9), n.UnwrapOr(9))
	assert.Panics(t, func() { n.Unwrap() })
	assert.Equal(t, None[uint32](), n)
}
