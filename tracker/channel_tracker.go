package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-wsrm/core"
)

type Options struct {
	Logger core.Logger
	// CloseTimeout bounds each channel close during Close. Zero leaves only
	// the caller's context in charge.
	CloseTimeout time.Duration
}

type entry[S any] struct {
	state        S
	prepared     bool
	unsubClosed  core.Unsubscribe
	unsubFaulted core.Unsubscribe
}

func (e *entry[S]) unsubscribe() {
	if e == nil {
		return
	}
	if e.unsubClosed != nil {
		e.unsubClosed()
	}
	if e.unsubFaulted != nil {
		e.unsubFaulted()
	}
}

// ChannelTracker records channels together with caller state. A channel is
// tracked exactly while it holds the tracker's closed and faulted
// subscriptions.
type ChannelTracker[C interface {
	comparable
	core.Channel
}, S any] struct {
	logger       core.Logger
	closeTimeout time.Duration

	mu       sync.Mutex
	state    core.CommunicationState
	channels map[C]*entry[S]
}

func NewChannelTracker[C interface {
	comparable
	core.Channel
}, S any](opts Options) *ChannelTracker[C, S] {
	return &ChannelTracker[C, S]{
		logger:       glog.Ensure(opts.Logger),
		closeTimeout: opts.CloseTimeout,
		state:        core.StateCreated,
		channels:     map[C]*entry[S]{},
	}
}

func (t *ChannelTracker[C, S]) Open() error {
	if t == nil {
		return fmt.Errorf("tracker: channel tracker is nil")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	next, err := core.TransitionState(t.state, core.StateOpened)
	if err != nil {
		return err
	}
	t.state = next
	return nil
}

func (t *ChannelTracker[C, S]) State() core.CommunicationState {
	if t == nil {
		return core.StateClosed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Add tracks channel with state. Channels offered while the tracker is not
// open are aborted and Add reports false.
func (t *ChannelTracker[C, S]) Add(channel C, state S) bool {
	if t == nil {
		channel.Abort()
		return false
	}
	t.mu.Lock()
	if t.state != core.StateOpened {
		current := t.state
		t.mu.Unlock()
		t.logger.Debug("tracker: channel rejected", "state", string(current))
		channel.Abort()
		return false
	}
	if existing, ok := t.channels[channel]; ok {
		existing.state = state
		t.mu.Unlock()
		return true
	}
	t.channels[channel] = &entry[S]{state: state}
	t.mu.Unlock()

	t.PrepareChannel(channel)
	return true
}

// PrepareChannel subscribes to the channel's closed and faulted
// notifications. It is a no-op for untracked or already prepared channels.
func (t *ChannelTracker[C, S]) PrepareChannel(channel C) {
	if t == nil {
		return
	}
	t.mu.Lock()
	tracked, ok := t.channels[channel]
	if !ok || tracked.prepared {
		t.mu.Unlock()
		return
	}
	tracked.prepared = true
	t.mu.Unlock()

	// Notifications may fire synchronously, so subscribe without the lock.
	unsubClosed := channel.OnClosed(func() { t.onClosed(channel) })
	unsubFaulted := channel.OnFaulted(func() { t.onFaulted(channel) })

	t.mu.Lock()
	current, ok := t.channels[channel]
	if ok && current == tracked {
		tracked.unsubClosed = unsubClosed
		tracked.unsubFaulted = unsubFaulted
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	unsubscribeAll(unsubClosed, unsubFaulted)
}

// Remove stops tracking channel and drops both subscriptions.
func (t *ChannelTracker[C, S]) Remove(channel C) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	tracked, ok := t.channels[channel]
	if ok {
		delete(t.channels, channel)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	tracked.unsubscribe()
	return true
}

func (t *ChannelTracker[C, S]) Get(channel C) (S, bool) {
	var zero S
	if t == nil {
		return zero, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tracked, ok := t.channels[channel]
	if !ok {
		return zero, false
	}
	return tracked.state, true
}

func (t *ChannelTracker[C, S]) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.channels)
}

func (t *ChannelTracker[C, S]) Channels() []C {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]C, 0, len(t.channels))
	for channel := range t.channels {
		out = append(out, channel)
	}
	return out
}

// Close closes every tracked channel. A channel that fails to close is logged
// and aborted; the remaining channels are still closed.
func (t *ChannelTracker[C, S]) Close(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	snapshot := t.drain(core.StateClosing)
	for channel, tracked := range snapshot {
		if err := t.closeOne(ctx, channel); err != nil {
			t.logger.Warn("tracker: channel close failed; aborting", "error", err)
			safeAbort(t.logger, channel)
		}
		tracked.unsubscribe()
	}
	t.finish()
	return nil
}

// Abort aborts every tracked channel. It never panics.
func (t *ChannelTracker[C, S]) Abort() {
	if t == nil {
		return
	}
	snapshot := t.drain(core.StateClosing)
	for channel, tracked := range snapshot {
		safeAbort(t.logger, channel)
		tracked.unsubscribe()
	}
	t.finish()
}

func (t *ChannelTracker[C, S]) drain(next core.CommunicationState) map[C]*entry[S] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if moved, err := core.TransitionState(t.state, next); err == nil {
		t.state = moved
	}
	snapshot := t.channels
	t.channels = map[C]*entry[S]{}
	return snapshot
}

func (t *ChannelTracker[C, S]) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if moved, err := core.TransitionState(t.state, core.StateClosed); err == nil {
		t.state = moved
	}
}

func (t *ChannelTracker[C, S]) closeOne(ctx context.Context, channel C) (err error) {
	closeCtx := ctx
	if t.closeTimeout > 0 {
		var cancel context.CancelFunc
		closeCtx, cancel = context.WithTimeout(ctx, t.closeTimeout)
		defer cancel()
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("tracker: channel close panicked: %v", recovered)
		}
	}()
	return channel.Close(closeCtx)
}

func (t *ChannelTracker[C, S]) onClosed(channel C) {
	t.Remove(channel)
}

func (t *ChannelTracker[C, S]) onFaulted(channel C) {
	safeAbort(t.logger, channel)
}

func safeAbort(logger core.Logger, channel core.Channel) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("tracker: channel abort panicked", "panic", recovered)
		}
	}()
	channel.Abort()
}

func unsubscribeAll(fns ...core.Unsubscribe) {
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}
