package assert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssert(t *testing.T) {
	require.NotPanics(t, func() { Assert(true) })
	require.PanicsWithValue(t,
		"Assertion failed: bad value 3 at assert_test.go:14",
		func() { Assert(false, "bad value %d", 3) },
	)
	require.Panics(t, func() { Assert(false) })
	require.Panics(t, func() { NoError(errors.New("boom")) })
	require.NotPanics(t, func() { NoError(nil) })
}
