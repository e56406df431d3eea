package delivery

import (
	"errors"

	"github.com/goliatone/go-wsrm/core"
)

var ErrStrategyDisposed = errors.New("delivery: strategy is disposed")

// Sink receives items that are ready for delivery. The dispatcher implements
// it.
type Sink[T any] interface {
	Enqueue(item T, callback func())
	InternalPendingItems() int
}

type Strategy[T any] interface {
	CanEnqueue(sequenceNumber int64) bool
	// Enqueue admits item. The boolean reports whether item was forwarded to
	// the sink right away rather than buffered.
	Enqueue(item T, sequenceNumber int64) (bool, error)
	EnqueuedCount() int
	Quota() int
	Dispose()
}

type Options[T any] struct {
	Quota int
	// DequeueCallback runs after each forwarded item has been delivered.
	DequeueCallback func()
	// Release frees an item that will never be delivered. When nil, items
	// implementing Release() are released through it.
	Release func(T)
	// EnqueueInOrder refuses admission of numbers ahead of the window
	// (ordered strategy only).
	EnqueueInOrder bool
}

type base[T any] struct {
	sink            Sink[T]
	quota           int
	dequeueCallback func()
	release         func(T)
	disposed        bool
}

func newBase[T any](sink Sink[T], opts Options[T]) base[T] {
	quota := opts.Quota
	if quota <= 0 {
		quota = core.DefaultMaxTransferWindowSize
	}
	release := ReleaseFunc(opts.Release)
	return base[T]{
		sink:            sink,
		quota:           quota,
		dequeueCallback: opts.DequeueCallback,
		release:         release,
	}
}

func (b *base[T]) Quota() int {
	return b.quota
}

func (b *base[T]) pending() int {
	if b.sink == nil {
		return 0
	}
	return b.sink.InternalPendingItems()
}

func (b *base[T]) forward(item T) {
	if b.sink == nil {
		b.release(item)
		return
	}
	b.sink.Enqueue(item, b.dequeueCallback)
}

// ReleaseFunc returns fn, or a release that calls Release() on items
// implementing it when fn is nil.
func ReleaseFunc[T any](fn func(T)) func(T) {
	if fn != nil {
		return fn
	}
	return releaseItem[T]
}

func releaseItem[T any](item T) {
	if releaser, ok := any(item).(interface{ Release() }); ok {
		releaser.Release()
	}
}
