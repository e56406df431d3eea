package core

import (
	"sync"
	"testing"
)

func TestNotifierFiresInRegistrationOrderOnce(t *testing.T) {
	var n Notifier
	var order []int
	n.Subscribe(func() { order = append(order, 1) })
	n.Subscribe(func() { order = append(order, 2) })
	n.Subscribe(func() { order = append(order, 3) })

	n.Fire()
	n.Fire()

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", order)
	}
	if !n.Fired() {
		t.Fatalf("expected fired")
	}
	if n.Subscribers() != 0 {
		t.Fatalf("expected handlers released after fire")
	}
}

func TestNotifierUnsubscribeSkipsHandler(t *testing.T) {
	var n Notifier
	called := false
	unsubscribe := n.Subscribe(func() { called = true })
	unsubscribe()
	unsubscribe()
	if n.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", n.Subscribers())
	}
	n.Fire()
	if called {
		t.Fatalf("expected unsubscribed handler to be skipped")
	}
}

func TestNotifierLateSubscriberRunsImmediately(t *testing.T) {
	var n Notifier
	n.Fire()
	called := false
	n.Subscribe(func() { called = true })()
	if !called {
		t.Fatalf("expected late subscriber to run")
	}
}

func TestNotifierConcurrentSubscribeAndFire(t *testing.T) {
	var n Notifier
	var mu sync.Mutex
	calls := 0
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Subscribe(func() {
				mu.Lock()
				calls++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	n.Fire()
	if calls != 32 {
		t.Fatalf("expected 32 calls, got %d", calls)
	}
}

func TestNilNotifierIsInert(t *testing.T) {
	var n *Notifier
	n.Subscribe(func() { t.Fatalf("unexpected call") })()
	n.Fire()
	if n.Fired() || n.Subscribers() != 0 {
		t.Fatalf("expected nil notifier to report nothing")
	}
}
