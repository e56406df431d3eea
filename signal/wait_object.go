package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-wsrm/core"
)

// WaitObject is set at most once. Waiters are released when it is set, when
// their context ends, or when the object is aborted or faulted. A terminal
// abort/fault wins over a set.
type WaitObject struct {
	mu   sync.Mutex
	set  bool
	done chan struct{}
	err  error
}

func NewWaitObject() *WaitObject {
	return &WaitObject{done: make(chan struct{})}
}

// Set releases every current and future waiter. Calling it again has no
// effect.
func (w *WaitObject) Set() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lazyInitLocked()
	if w.set || w.err != nil {
		return
	}
	w.set = true
	close(w.done)
}

func (w *WaitObject) IsSet() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.set
}

// Err returns the terminal error once the object is aborted or faulted.
func (w *WaitObject) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *WaitObject) Abort(owner string) {
	w.terminate(core.ObjectAborted(owner))
}

func (w *WaitObject) Fault(owner string) {
	w.terminate(core.ObjectFaulted(owner))
}

// Wait blocks until the object is set, terminated, or ctx is done. A done
// context is reported as an error wrapping ctx.Err().
func (w *WaitObject) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w.mu.Lock()
	w.lazyInitLocked()
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return err
	}
	if w.set {
		w.mu.Unlock()
		return nil
	}
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		return w.Err()
	case <-ctx.Done():
		if err := w.Err(); err != nil {
			return err
		}
		return fmt.Errorf("signal: wait interrupted: %w", ctx.Err())
	}
}

func (w *WaitObject) terminate(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lazyInitLocked()
	if w.err != nil {
		return
	}
	w.err = err
	if !w.set {
		close(w.done)
	}
}

func (w *WaitObject) lazyInitLocked() {
	if w.done == nil {
		w.done = make(chan struct{})
	}
}
