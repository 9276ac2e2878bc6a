package utils

import "slices"

func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}

	return v
}

// Concat builds a fresh slice so that none of the parts alias the result.
func Concat(parts ...[]byte) []byte {
	return slices.Concat(append([][]byte{{}}, parts...)...)
}
