package core

import (
	"slices"
	"sync"
)

// Notifier fans a one-shot lifecycle notification out to registered
// callbacks. Callbacks registered after Fire run immediately.
type Notifier struct {
	mu       sync.Mutex
	next     int
	fired    bool
	handlers map[int]func()
}

func (n *Notifier) Subscribe(fn func()) Unsubscribe {
	if n == nil || fn == nil {
		return func() {}
	}
	n.mu.Lock()
	if n.fired {
		n.mu.Unlock()
		fn()
		return func() {}
	}
	if n.handlers == nil {
		n.handlers = map[int]func(){}
	}
	id := n.next
	n.next++
	n.handlers[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.handlers, id)
			n.mu.Unlock()
		})
	}
}

// Fire runs every current subscriber once, in registration order. Later
// calls are no-ops.
func (n *Notifier) Fire() {
	if n == nil {
		return
	}
	n.mu.Lock()
	if n.fired {
		n.mu.Unlock()
		return
	}
	n.fired = true
	ids := make([]int, 0, len(n.handlers))
	for id := range n.handlers {
		ids = append(ids, id)
	}
	handlers := n.handlers
	n.handlers = nil
	n.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		handlers[id]()
	}
}

func (n *Notifier) Fired() bool {
	if n == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fired
}

func (n *Notifier) Subscribers() int {
	if n == nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handlers)
}
