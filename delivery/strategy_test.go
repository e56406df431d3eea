package delivery

import (
	"math/rand"
	"testing"
)

type testItem struct {
	seq      int64
	released *[]int64
}

func (i testItem) Release() {
	*i.released = append(*i.released, i.seq)
}

type recordingSink struct {
	delivered []int64
	callbacks []func()
	pending   int
}

func (s *recordingSink) Enqueue(item testItem, callback func()) {
	s.delivered = append(s.delivered, item.seq)
	s.callbacks = append(s.callbacks, callback)
	s.pending++
}

func (s *recordingSink) InternalPendingItems() int {
	return s.pending
}

// ack simulates the dispatcher finishing one item.
func (s *recordingSink) ack() {
	s.pending--
	callback := s.callbacks[0]
	s.callbacks = s.callbacks[1:]
	if callback != nil {
		callback()
	}
}

func TestUnordered_QuotaTracksPending(t *testing.T) {
	sink := &recordingSink{}
	acked := 0
	strategy := NewUnordered[testItem](sink, Options[testItem]{
		Quota:           2,
		DequeueCallback: func() { acked++ },
	})

	for _, seq := range []int64{5, 1} {
		if !strategy.CanEnqueue(seq) {
			t.Fatalf("expected admission below quota for %d", seq)
		}
		forwarded, err := strategy.Enqueue(testItem{seq: seq}, seq)
		if err != nil || !forwarded {
			t.Fatalf("expected immediate forward, forwarded=%v err=%v", forwarded, err)
		}
	}
	if strategy.CanEnqueue(3) {
		t.Fatalf("expected CanEnqueue=false at pending==quota")
	}
	if strategy.EnqueuedCount() != 2 {
		t.Fatalf("expected enqueued count 2, got %d", strategy.EnqueuedCount())
	}

	sink.ack()
	if !strategy.CanEnqueue(3) {
		t.Fatalf("expected CanEnqueue=true after an acknowledged dispatch")
	}
	if acked != 1 {
		t.Fatalf("expected dequeue callback to fire once, got %d", acked)
	}
	if sink.delivered[0] != 5 || sink.delivered[1] != 1 {
		t.Fatalf("expected arrival-order forwarding, got %v", sink.delivered)
	}
}

func TestOrdered_DeliversInSequenceForAnyArrivalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = 20
	for round := 0; round < 50; round++ {
		sink := &recordingSink{}
		strategy := NewOrdered[testItem](sink, Options[testItem]{Quota: n})
		order := rng.Perm(n)
		for _, idx := range order {
			seq := int64(idx + 1)
			if !strategy.CanEnqueue(seq) {
				t.Fatalf("round %d: expected admission of %d", round, seq)
			}
			if _, err := strategy.Enqueue(testItem{seq: seq}, seq); err != nil {
				t.Fatalf("round %d: enqueue %d: %v", round, seq, err)
			}
		}
		if len(sink.delivered) != n {
			t.Fatalf("round %d: expected %d deliveries, got %d", round, n, len(sink.delivered))
		}
		for i, seq := range sink.delivered {
			if seq != int64(i+1) {
				t.Fatalf("round %d: expected strictly increasing delivery, got %v", round, sink.delivered)
			}
		}
		if strategy.BufferedCount() != 0 || strategy.WindowStart() != n+1 {
			t.Fatalf("round %d: expected drained buffer, buffered=%d window=%d", round, strategy.BufferedCount(), strategy.WindowStart())
		}
	}
}

func TestOrdered_BuffersAndDrains(t *testing.T) {
	sink := &recordingSink{}
	strategy := NewOrdered[testItem](sink, Options[testItem]{Quota: 4})

	forwarded, err := strategy.Enqueue(testItem{seq: 3}, 3)
	if err != nil || forwarded {
		t.Fatalf("expected 3 to be buffered, forwarded=%v err=%v", forwarded, err)
	}
	forwarded, _ = strategy.Enqueue(testItem{seq: 2}, 2)
	if forwarded {
		t.Fatalf("expected 2 to be buffered")
	}
	if len(sink.delivered) != 0 {
		t.Fatalf("expected no delivery before window start arrives")
	}
	if strategy.EnqueuedCount() != 2 {
		t.Fatalf("expected buffered items to count against quota, got %d", strategy.EnqueuedCount())
	}

	forwarded, _ = strategy.Enqueue(testItem{seq: 1}, 1)
	if !forwarded {
		t.Fatalf("expected window start to forward")
	}
	if len(sink.delivered) != 3 || sink.delivered[2] != 3 {
		t.Fatalf("expected drain of 1,2,3, got %v", sink.delivered)
	}
	if strategy.WindowStart() != 4 {
		t.Fatalf("expected window start 4, got %d", strategy.WindowStart())
	}
}

func TestOrdered_AdmissionRules(t *testing.T) {
	sink := &recordingSink{}
	strategy := NewOrdered[testItem](sink, Options[testItem]{Quota: 3})

	if !strategy.CanEnqueue(3) {
		t.Fatalf("expected 3 to be admitted with quota 3 at window 1")
	}
	if strategy.CanEnqueue(4) {
		t.Fatalf("expected worst-case buffering beyond quota to be refused")
	}

	strict := NewOrdered[testItem](sink, Options[testItem]{Quota: 3, EnqueueInOrder: true})
	if strict.CanEnqueue(2) {
		t.Fatalf("expected strict ordering to refuse numbers ahead of the window")
	}
	if !strict.CanEnqueue(1) {
		t.Fatalf("expected strict ordering to admit the window start")
	}

	_, _ = strategy.Enqueue(testItem{seq: 1}, 1)
	_, _ = strategy.Enqueue(testItem{seq: 2}, 2)
	_, _ = strategy.Enqueue(testItem{seq: 3}, 3)
	if strategy.CanEnqueue(4) {
		t.Fatalf("expected pending items at quota to refuse admission")
	}
	sink.ack()
	if !strategy.CanEnqueue(4) {
		t.Fatalf("expected admission after an acknowledged delivery")
	}
}

func TestOrdered_RejectsDeliveredAndDuplicateNumbers(t *testing.T) {
	var released []int64
	sink := &recordingSink{}
	strategy := NewOrdered[testItem](sink, Options[testItem]{Quota: 4})

	_, _ = strategy.Enqueue(testItem{seq: 1, released: &released}, 1)
	if _, err := strategy.Enqueue(testItem{seq: 1, released: &released}, 1); err == nil {
		t.Fatalf("expected already delivered number to fail")
	}
	_, _ = strategy.Enqueue(testItem{seq: 3, released: &released}, 3)
	if _, err := strategy.Enqueue(testItem{seq: 3, released: &released}, 3); err == nil {
		t.Fatalf("expected duplicate buffered number to fail")
	}
	if len(released) != 2 {
		t.Fatalf("expected rejected items to be released, got %v", released)
	}
}

func TestOrdered_DisposeReleasesBufferedItems(t *testing.T) {
	var released []int64
	sink := &recordingSink{}
	strategy := NewOrdered[testItem](sink, Options[testItem]{Quota: 8})

	for _, seq := range []int64{4, 2, 3} {
		_, _ = strategy.Enqueue(testItem{seq: seq, released: &released}, seq)
	}
	strategy.Dispose()
	strategy.Dispose()

	if len(sink.delivered) != 0 {
		t.Fatalf("expected no late delivery, got %v", sink.delivered)
	}
	if len(released) != 3 || released[0] != 2 || released[1] != 3 || released[2] != 4 {
		t.Fatalf("expected each buffered item released once, got %v", released)
	}
	if strategy.CanEnqueue(1) {
		t.Fatalf("expected disposed strategy to refuse admission")
	}
	if _, err := strategy.Enqueue(testItem{seq: 1, released: &released}, 1); err != ErrStrategyDisposed {
		t.Fatalf("expected disposed error, got %v", err)
	}
	if len(released) != 4 {
		t.Fatalf("expected item enqueued after dispose to be released")
	}
}

func TestOrdered_CustomReleaseFunc(t *testing.T) {
	var released []string
	sink := &nopSink[string]{}
	strategy := NewOrdered[string](sink, Options[string]{
		Quota:   4,
		Release: func(item string) { released = append(released, item) },
	})
	_, _ = strategy.Enqueue("second", 2)
	strategy.Dispose()
	if len(released) != 1 || released[0] != "second" {
		t.Fatalf("expected custom release, got %v", released)
	}
}

type nopSink[T any] struct{}

func (nopSink[T]) Enqueue(T, func())         {}
func (nopSink[T]) InternalPendingItems() int { return 0 }
