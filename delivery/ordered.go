package delivery

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-wsrm/core"
)

type Ordered[T any] struct {
	base[T]
	items          map[int64]T
	windowStart    int64
	enqueueInOrder bool
}

func NewOrdered[T any](sink Sink[T], opts Options[T]) *Ordered[T] {
	return &Ordered[T]{
		base:           newBase(sink, opts),
		items:          map[int64]T{},
		windowStart:    1,
		enqueueInOrder: opts.EnqueueInOrder,
	}
}

// WindowStart is the next sequence number required before delivery can
// advance.
func (s *Ordered[T]) WindowStart() int64 {
	return s.windowStart
}

// BufferedCount is the number of items held back waiting for a gap to fill.
func (s *Ordered[T]) BufferedCount() int {
	return len(s.items)
}

func (s *Ordered[T]) EnqueuedCount() int {
	return s.pending() + len(s.items)
}

func (s *Ordered[T]) CanEnqueue(sequenceNumber int64) bool {
	if s.disposed {
		return false
	}
	if s.EnqueuedCount() >= s.quota {
		return false
	}
	if s.enqueueInOrder && sequenceNumber > s.windowStart {
		return false
	}
	return s.unsolicitedCount(sequenceNumber) < int64(s.quota)
}

func (s *Ordered[T]) Enqueue(item T, sequenceNumber int64) (bool, error) {
	if s.disposed {
		s.release(item)
		return false, ErrStrategyDisposed
	}
	if sequenceNumber < s.windowStart {
		s.release(item)
		return false, core.BadInput(
			fmt.Sprintf("delivery: sequence number %d was already delivered", sequenceNumber),
			map[string]any{"sequence_number": sequenceNumber, "window_start": s.windowStart},
		)
	}
	if sequenceNumber > s.windowStart {
		if _, exists := s.items[sequenceNumber]; exists {
			s.release(item)
			return false, core.BadInput(
				fmt.Sprintf("delivery: sequence number %d is already buffered", sequenceNumber),
				map[string]any{"sequence_number": sequenceNumber},
			)
		}
		s.items[sequenceNumber] = item
		return false, nil
	}

	s.windowStart++
	s.forward(item)
	for {
		next, ok := s.items[s.windowStart]
		if !ok {
			break
		}
		delete(s.items, s.windowStart)
		s.windowStart++
		s.forward(next)
	}
	return true, nil
}

// Dispose releases every buffered item without delivering it.
func (s *Ordered[T]) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	keys := make([]int64, 0, len(s.items))
	for key := range s.items {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		item := s.items[key]
		delete(s.items, key)
		s.release(item)
	}
}

func (s *Ordered[T]) unsolicitedCount(sequenceNumber int64) int64 {
	count := sequenceNumber - s.windowStart
	if count < 0 {
		return 0
	}
	return count
}

var _ Strategy[any] = (*Ordered[any])(nil)
