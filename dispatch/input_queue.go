package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-wsrm/core"
	"github.com/puzpuzpuz/xsync/v3"
)

const defaultWaitPollInterval = 5 * time.Millisecond

type Options[T any] struct {
	// Channel names the owning channel in logs and hook events.
	Channel string
	Logger  core.Logger
	Hook    core.DispatchHook
	// SequenceOf extracts the sequence number reported in hook events.
	SequenceOf func(T) int64
	// Context is handed to every DispatchAsync call. Defaults to
	// context.Background.
	Context context.Context
	Now     func() time.Time
}

type queued[T any] struct {
	item     T
	err      error
	callback func()
}

// InputQueueDispatcher hands items to the service in enqueue order with at
// most one delivery in flight.
type InputQueueDispatcher[T any] struct {
	handler    core.ChannelDispatcher[T]
	hook       core.DispatchHook
	logger     core.Logger
	channel    string
	sequenceOf func(T) int64
	ctx        context.Context
	now        func() time.Time

	mu      sync.Mutex
	queue   []queued[T]
	attempt int

	dispatching atomic.Bool
	pending     *xsync.Counter
	idle        chan struct{}
}

func NewInputQueueDispatcher[T any](handler core.ChannelDispatcher[T], opts Options[T]) (*InputQueueDispatcher[T], error) {
	if handler == nil {
		return nil, fmt.Errorf("dispatch: channel dispatcher is required")
	}
	hook := opts.Hook
	if hook == nil {
		hook = core.NopDispatchHook{}
	}
	logger := glog.Ensure(opts.Logger)
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &InputQueueDispatcher[T]{
		handler:    handler,
		hook:       hook,
		logger:     logger,
		channel:    strings.TrimSpace(opts.Channel),
		sequenceOf: opts.SequenceOf,
		ctx:        ctx,
		now:        now,
		pending:    xsync.NewCounter(),
		idle:       make(chan struct{}, 1),
	}, nil
}

// Enqueue appends item and starts the delivery loop when none is active.
// callback runs after the item has been handed off, whether or not the
// hand-off succeeded.
func (d *InputQueueDispatcher[T]) Enqueue(item T, callback func()) {
	if d == nil {
		return
	}
	d.push(queued[T]{item: item, callback: callback})
}

// EnqueueError queues a receive failure. Nothing is delivered for it; only
// callback fires, in FIFO position.
func (d *InputQueueDispatcher[T]) EnqueueError(err error, callback func()) {
	if d == nil {
		return
	}
	if err == nil {
		err = fmt.Errorf("dispatch: receive failed")
	}
	d.push(queued[T]{err: err, callback: callback})
}

// InternalPendingItems counts items enqueued whose hand-off has not finished.
func (d *InputQueueDispatcher[T]) InternalPendingItems() int {
	if d == nil {
		return 0
	}
	return int(d.pending.Value())
}

// Wait blocks until the queue is drained and no loop is running.
func (d *InputQueueDispatcher[T]) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(defaultWaitPollInterval)
	defer ticker.Stop()
	for {
		if d.pending.Value() == 0 && !d.dispatching.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("dispatch: wait interrupted: %w", ctx.Err())
		case <-d.idle:
		case <-ticker.C:
		}
	}
}

func (d *InputQueueDispatcher[T]) push(entry queued[T]) {
	d.pending.Inc()
	d.mu.Lock()
	d.queue = append(d.queue, entry)
	d.mu.Unlock()
	if d.dispatching.CompareAndSwap(false, true) {
		go d.run()
	}
}

func (d *InputQueueDispatcher[T]) run() {
	for {
		for {
			entry, ok := d.dequeue()
			if !ok {
				break
			}
			d.deliver(entry)
		}
		d.dispatching.Store(false)
		select {
		case d.idle <- struct{}{}:
		default:
		}
		// Work appended between the last dequeue and the release above would
		// otherwise sit until the next Enqueue.
		if d.empty() || !d.dispatching.CompareAndSwap(false, true) {
			return
		}
	}
}

func (d *InputQueueDispatcher[T]) dequeue() (queued[T], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return queued[T]{}, false
	}
	entry := d.queue[0]
	d.queue[0] = queued[T]{}
	d.queue = d.queue[1:]
	if len(d.queue) == 0 {
		d.queue = nil
	}
	d.attempt++
	return entry, true
}

func (d *InputQueueDispatcher[T]) empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue) == 0
}

func (d *InputQueueDispatcher[T]) deliver(entry queued[T]) {
	defer func() {
		d.pending.Dec()
		if entry.callback != nil {
			entry.callback()
		}
	}()

	if entry.err != nil {
		d.logger.Debug("dispatch: receive failure queued", "channel", d.channel, "error", entry.err)
		return
	}

	event := core.DispatchEvent{
		Channel:   d.channel,
		Attempt:   d.currentAttempt(),
		StartedAt: d.now(),
	}
	if d.sequenceOf != nil {
		event.Sequence = d.sequenceOf(entry.item)
	}
	d.hook.OnStart(d.ctx, event)

	err := d.handOff(entry.item)
	event.Duration = d.now().Sub(event.StartedAt)
	if err != nil {
		event.Err = err
		d.logger.Error("dispatch: delivery failed", "channel", d.channel, "sequence", event.Sequence, "error", err)
		d.hook.OnFailure(d.ctx, event)
		return
	}
	d.hook.OnSuccess(d.ctx, event)
}

func (d *InputQueueDispatcher[T]) handOff(item T) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("dispatch: channel dispatcher panicked: %v", recovered)
		}
	}()
	return d.handler.DispatchAsync(d.ctx, item)
}

func (d *InputQueueDispatcher[T]) currentAttempt() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempt
}
