package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-wsrm/core"
)

type stubChannel struct {
	name       string
	closeErr   error
	closeBlock bool
	abortPanic bool
	closes     atomic.Int32
	aborts     atomic.Int32
	closed     core.Notifier
	faulted    core.Notifier
}

func (c *stubChannel) Close(ctx context.Context) error {
	c.closes.Add(1)
	if c.closeBlock {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.closeErr != nil {
		return c.closeErr
	}
	c.closed.Fire()
	return nil
}

func (c *stubChannel) Abort() {
	c.aborts.Add(1)
	if c.abortPanic {
		panic("abort exploded")
	}
	c.closed.Fire()
}

func (c *stubChannel) OnClosed(fn func()) core.Unsubscribe  { return c.closed.Subscribe(fn) }
func (c *stubChannel) OnFaulted(fn func()) core.Unsubscribe { return c.faulted.Subscribe(fn) }

func openTracker(t *testing.T, opts Options) *ChannelTracker[*stubChannel, string] {
	t.Helper()
	tracker := NewChannelTracker[*stubChannel, string](opts)
	if err := tracker.Open(); err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	return tracker
}

func TestChannelTracker_AddRequiresOpenTracker(t *testing.T) {
	tracker := NewChannelTracker[*stubChannel, string](Options{})
	channel := &stubChannel{name: "early"}
	if tracker.Add(channel, "state") {
		t.Fatalf("expected add before open to be rejected")
	}
	if channel.aborts.Load() != 1 {
		t.Fatalf("expected rejected channel to be aborted")
	}
	if tracker.Count() != 0 {
		t.Fatalf("expected rejected channel to stay untracked")
	}
}

func TestChannelTracker_TrackedChannelsHoldOneSubscriptionEach(t *testing.T) {
	tracker := openTracker(t, Options{})
	channel := &stubChannel{name: "a"}
	if !tracker.Add(channel, "s1") {
		t.Fatalf("expected add to succeed")
	}
	tracker.PrepareChannel(channel)

	if channel.closed.Subscribers() != 1 || channel.faulted.Subscribers() != 1 {
		t.Fatalf("expected exactly one subscription per event, got closed=%d faulted=%d",
			channel.closed.Subscribers(), channel.faulted.Subscribers())
	}
	state, ok := tracker.Get(channel)
	if !ok || state != "s1" {
		t.Fatalf("expected stored state, got %q ok=%v", state, ok)
	}

	if !tracker.Remove(channel) {
		t.Fatalf("expected remove to report tracked channel")
	}
	if tracker.Remove(channel) {
		t.Fatalf("expected second remove to be a no-op")
	}
	if channel.closed.Subscribers() != 0 || channel.faulted.Subscribers() != 0 {
		t.Fatalf("expected subscriptions dropped on remove")
	}
}

func TestChannelTracker_ClosedNotificationRemovesChannel(t *testing.T) {
	tracker := openTracker(t, Options{})
	channel := &stubChannel{name: "a"}
	tracker.Add(channel, "s")

	channel.closed.Fire()

	if tracker.Count() != 0 {
		t.Fatalf("expected closed channel removed")
	}
	if channel.faulted.Subscribers() != 0 {
		t.Fatalf("expected faulted subscription dropped with the closed one")
	}
}

func TestChannelTracker_FaultedNotificationAborts(t *testing.T) {
	tracker := openTracker(t, Options{})
	channel := &stubChannel{name: "a"}
	tracker.Add(channel, "s")

	channel.faulted.Fire()

	if channel.aborts.Load() != 1 {
		t.Fatalf("expected faulted channel aborted once, got %d", channel.aborts.Load())
	}
	if tracker.Count() != 0 {
		t.Fatalf("expected aborted channel removed through its closed notification")
	}
}

func TestChannelTracker_CloseIsolatesFailures(t *testing.T) {
	tracker := openTracker(t, Options{})
	ok := &stubChannel{name: "X"}
	timedOut := &stubChannel{name: "Y", closeErr: context.DeadlineExceeded}
	tracker.Add(ok, "x")
	tracker.Add(timedOut, "y")

	if err := tracker.Close(context.Background()); err != nil {
		t.Fatalf("expected group close to succeed, got %v", err)
	}
	if ok.closes.Load() != 1 || ok.aborts.Load() != 0 {
		t.Fatalf("expected X closed once and not aborted, closes=%d aborts=%d", ok.closes.Load(), ok.aborts.Load())
	}
	if timedOut.closes.Load() != 1 || timedOut.aborts.Load() != 1 {
		t.Fatalf("expected Y close attempted then aborted once, closes=%d aborts=%d", timedOut.closes.Load(), timedOut.aborts.Load())
	}
	if tracker.Count() != 0 || tracker.State() != core.StateClosed {
		t.Fatalf("expected empty closed tracker, count=%d state=%s", tracker.Count(), tracker.State())
	}
}

func TestChannelTracker_CloseTimeoutAbortsStuckChannel(t *testing.T) {
	tracker := openTracker(t, Options{CloseTimeout: 10 * time.Millisecond})
	stuck := &stubChannel{name: "stuck", closeBlock: true}
	tracker.Add(stuck, "s")

	done := make(chan error, 1)
	go func() { done <- tracker.Close(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected per-channel timeout to unblock close")
	}
	if stuck.aborts.Load() != 1 {
		t.Fatalf("expected stuck channel aborted")
	}
}

func TestChannelTracker_AbortNeverPanics(t *testing.T) {
	tracker := openTracker(t, Options{})
	bad := &stubChannel{name: "bad", abortPanic: true}
	good := &stubChannel{name: "good"}
	tracker.Add(bad, "b")
	tracker.Add(good, "g")

	tracker.Abort()

	if bad.aborts.Load() != 1 || good.aborts.Load() != 1 {
		t.Fatalf("expected every channel aborted once")
	}
	if tracker.Count() != 0 {
		t.Fatalf("expected tracker cleared")
	}
	late := &stubChannel{name: "late"}
	if tracker.Add(late, "l") {
		t.Fatalf("expected add after abort to be rejected")
	}
}

func TestChannelTracker_ChannelsSnapshot(t *testing.T) {
	tracker := openTracker(t, Options{})
	a := &stubChannel{name: "a"}
	b := &stubChannel{name: "b"}
	tracker.Add(a, "a")
	tracker.Add(b, "b")

	channels := tracker.Channels()
	if len(channels) != 2 {
		t.Fatalf("expected two channels, got %d", len(channels))
	}
	tracker.Remove(a)
	if len(channels) != 2 {
		t.Fatalf("expected snapshot unaffected by later removal")
	}
}

func TestChannelTracker_OpenTwiceFromClosedFails(t *testing.T) {
	tracker := openTracker(t, Options{})
	tracker.Abort()
	err := tracker.Open()
	if !errors.Is(err, core.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}
