package timemap

import (
	"fmt"

	"golang.org/x/sync/singleflight"
)

type Loader[K Key, V any] interface {
	Load(key K) (V, error)
}

type LoaderFunc[K Key, V any] func(key K) (V, error)

func (f LoaderFunc[K, V]) Load(key K) (V, error) {
	return f(key)
}

// SuppressedLoader collapses concurrent loads of the same key into a
// single call to the wrapped loader.
type SuppressedLoader[K Key, V any] struct {
	loader Loader[K, V]
	group  singleflight.Group
}

func NewSuppressedLoader[K Key, V any](loader Loader[K, V]) *SuppressedLoader[K, V] {
	return &SuppressedLoader[K, V]{loader: loader}
}

func (l *SuppressedLoader[K, V]) Load(key K) (V, error) {
	strKey := fmt.Sprint(key)

	result, err, _ := l.group.Do(strKey, func() (interface{}, error) {
		return l.loader.Load(key)
	})

	if err != nil {
		var zero V
		return zero, err
	}

	return result.(V), nil
}
