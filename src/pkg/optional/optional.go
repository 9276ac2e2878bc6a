package optional

import (
	"github.com/Blackdeer1524/PageDB/src/pkg/assert"
)

type Optional[T any] struct {
	set   bool
	value T
}

func Some[T any](value T) Optional[T] {
	return Optional[T]{set: true, value: value}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (opt Optional[T]) Unwrap() T {
	assert.Assert(opt.set, "unwrapped an empty optional")
	return opt.value
}

func (opt Optional[T]) Get() (T, bool) {
	return opt.value, opt.set
}

func (opt Optional[T]) UnwrapOr(def T) T {
	if !opt.set {
		return def
	}
	return opt.value
}

func (opt Optional[T]) IsNone() bool {
	return !opt.set
}

func (opt Optional[T]) IsSome() bool {
	return opt.set
}
