package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-wsrm/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDDeliver = "wsrm.deliver"

	ParamChannel  = "channel"
	ParamSequence = "sequence"
	ParamItem     = "item"
)

// Encoder turns a delivered item into job parameters.
type Encoder[T any] func(item T) (map[string]any, error)

type QueueDispatcherOptions[T any] struct {
	JobID      string
	ScriptPath string
	Encode     Encoder[T]
	// IdempotencyKey derives the dedup key of the job; empty keys disable
	// dedup.
	IdempotencyKey func(item T) string
	DedupPolicy    string
}

// QueueDispatcher hands every delivered item to a go-job queue, so the
// reliable session ends at the enqueue and the worker pool does the work.
type QueueDispatcher[T any] struct {
	enqueuer queue.Enqueuer
	opts     QueueDispatcherOptions[T]
}

func NewQueueDispatcher[T any](enqueuer queue.Enqueuer, opts QueueDispatcherOptions[T]) (*QueueDispatcher[T], error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	if strings.TrimSpace(opts.JobID) == "" {
		opts.JobID = JobIDDeliver
	}
	if strings.TrimSpace(opts.ScriptPath) == "" {
		opts.ScriptPath = opts.JobID
	}
	if opts.Encode == nil {
		opts.Encode = func(item T) (map[string]any, error) {
			return map[string]any{ParamItem: item}, nil
		}
	}
	return &QueueDispatcher[T]{enqueuer: enqueuer, opts: opts}, nil
}

func (d *QueueDispatcher[T]) DispatchAsync(ctx context.Context, item T) error {
	if d == nil || d.enqueuer == nil {
		return fmt.Errorf("gojob: queue dispatcher is not configured")
	}
	params, err := d.opts.Encode(item)
	if err != nil {
		return fmt.Errorf("gojob: encode item: %w", err)
	}
	msg := &job.ExecutionMessage{
		JobID:      strings.TrimSpace(d.opts.JobID),
		ScriptPath: strings.TrimSpace(d.opts.ScriptPath),
		Parameters: copyAnyMap(params),
	}
	if d.opts.IdempotencyKey != nil {
		msg.IdempotencyKey = strings.TrimSpace(d.opts.IdempotencyKey(item))
		if msg.IdempotencyKey != "" {
			msg.DedupPolicy = job.DeduplicationPolicy(strings.TrimSpace(d.opts.DedupPolicy))
		}
	}
	return d.enqueuer.Enqueue(ctx, msg)
}

// ToExecutionMessage describes a dispatch event as the go-job message a
// worker hook expects.
func ToExecutionMessage(event core.DispatchEvent) *job.ExecutionMessage {
	channel := strings.TrimSpace(event.Channel)
	return &job.ExecutionMessage{
		JobID:      JobIDDeliver,
		ScriptPath: JobIDDeliver,
		Parameters: map[string]any{
			ParamChannel:  channel,
			ParamSequence: event.Sequence,
		},
		IdempotencyKey: channel + "#" + strconv.FormatInt(event.Sequence, 10),
	}
}

func FromWorkerEvent(event worker.Event) core.DispatchEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	out := core.DispatchEvent{
		Attempt:   event.Attempt,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
	if message != nil {
		out.Channel = strings.TrimSpace(fmt.Sprint(valueOr(message.Parameters[ParamChannel], "")))
		out.Sequence = toInt64(message.Parameters[ParamSequence])
	}
	return out
}

func ToWorkerEvent(event core.DispatchEvent) worker.Event {
	return worker.Event{
		Message:   ToExecutionMessage(event),
		Attempt:   event.Attempt,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

// DispatchHookAdapter reports dispatcher hand-offs to a go-job worker hook.
type DispatchHookAdapter struct {
	hook worker.Hook
}

func NewDispatchHookAdapter(hook worker.Hook) *DispatchHookAdapter {
	return &DispatchHookAdapter{hook: hook}
}

func (a *DispatchHookAdapter) OnStart(ctx context.Context, event core.DispatchEvent) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, ToWorkerEvent(event))
}

func (a *DispatchHookAdapter) OnSuccess(ctx context.Context, event core.DispatchEvent) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, ToWorkerEvent(event))
}

func (a *DispatchHookAdapter) OnFailure(ctx context.Context, event core.DispatchEvent) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, ToWorkerEvent(event))
}

// WorkerHookAdapter lets a dispatch hook observe go-job workers running
// deliver jobs.
type WorkerHookAdapter struct {
	hook core.DispatchHook
}

func NewWorkerHookAdapter(hook core.DispatchHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, FromWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, FromWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, FromWorkerEvent(event))
}

// OnRetry is reported as a failure; the dispatch loop has no retry notion.
func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, FromWorkerEvent(event))
}

func toInt64(value any) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case int32:
		return int64(typed)
	case float64:
		return int64(typed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

func valueOr(value any, fallback any) any {
	if value == nil {
		return fallback
	}
	return value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.ChannelDispatcher[string] = (*QueueDispatcher[string])(nil)
	_ core.DispatchHook              = (*DispatchHookAdapter)(nil)
	_ worker.Hook                    = (*WorkerHookAdapter)(nil)
)
