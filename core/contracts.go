package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Unsubscribe removes a notification registration. Calling it more than once
// is safe.
type Unsubscribe func()

// Channel is the lifecycle surface a tracked channel exposes. Close and Abort
// must be idempotent and Abort must never panic.
type Channel interface {
	Close(ctx context.Context) error
	Abort()
	OnClosed(fn func()) Unsubscribe
	OnFaulted(fn func()) Unsubscribe
}

// ChannelDispatcher hands one item (a message or request context) to the
// hosted service.
type ChannelDispatcher[T any] interface {
	DispatchAsync(ctx context.Context, item T) error
}

type ChannelDispatcherFunc[T any] func(ctx context.Context, item T) error

func (f ChannelDispatcherFunc[T]) DispatchAsync(ctx context.Context, item T) error {
	return f(ctx, item)
}

// FaultSender turns a protocol fault into a fault message for the peer.
type FaultSender interface {
	SendFault(ctx context.Context, fault *ProtocolFault) error
}

type NopFaultSender struct{}

func (NopFaultSender) SendFault(context.Context, *ProtocolFault) error { return nil }

type DispatchEvent struct {
	Channel   string
	Sequence  int64
	Attempt   int
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// DispatchHook observes every hand-off made by a dispatch loop.
type DispatchHook interface {
	OnStart(ctx context.Context, event DispatchEvent)
	OnSuccess(ctx context.Context, event DispatchEvent)
	OnFailure(ctx context.Context, event DispatchEvent)
}

type NopDispatchHook struct{}

func (NopDispatchHook) OnStart(context.Context, DispatchEvent)   {}
func (NopDispatchHook) OnSuccess(context.Context, DispatchEvent) {}
func (NopDispatchHook) OnFailure(context.Context, DispatchEvent) {}

type IDGenerator func() string

var (
	_ FaultSender  = NopFaultSender{}
	_ DispatchHook = NopDispatchHook{}
)
