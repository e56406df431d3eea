package delivery

type Unordered[T any] struct {
	base[T]
}

func NewUnordered[T any](sink Sink[T], opts Options[T]) *Unordered[T] {
	return &Unordered[T]{base: newBase(sink, opts)}
}

func (s *Unordered[T]) EnqueuedCount() int {
	return s.pending()
}

func (s *Unordered[T]) CanEnqueue(int64) bool {
	if s.disposed {
		return false
	}
	return s.EnqueuedCount() < s.quota
}

func (s *Unordered[T]) Enqueue(item T, _ int64) (bool, error) {
	if s.disposed {
		s.release(item)
		return false, ErrStrategyDisposed
	}
	s.forward(item)
	return true, nil
}

func (s *Unordered[T]) Dispose() {
	s.disposed = true
}

var _ Strategy[any] = (*Unordered[any])(nil)
