package wsrm

import (
	"context"
	"sync"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
	prom "github.com/prometheus/client_golang/prometheus"
)

type stubEnqueuer struct {
	mu       sync.Mutex
	messages []*job.ExecutionMessage
}

func (s *stubEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

func (s *stubEnqueuer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type countingWorkerHook struct {
	mu      sync.Mutex
	success int
}

func (h *countingWorkerHook) OnStart(context.Context, worker.Event) {}
func (h *countingWorkerHook) OnSuccess(context.Context, worker.Event) {
	h.mu.Lock()
	h.success++
	h.mu.Unlock()
}
func (h *countingWorkerHook) OnFailure(context.Context, worker.Event) {}
func (h *countingWorkerHook) OnRetry(context.Context, worker.Event)   {}

func (h *countingWorkerHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.success
}

func TestSetupQueuedDeliversInOrderToJobs(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	hook := &countingWorkerHook{}
	registry := prom.NewRegistry()
	listener, err := SetupQueued(DefaultConfig(), enqueuer,
		func(item string) (map[string]any, error) { return map[string]any{"body": item}, nil },
		WithPrometheus(registry, "test"),
		WithWorkerHook(hook),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer listener.Abort()
	ctx := context.Background()

	created, err := listener.CreateSequence(ctx, CreateSequence{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, number := range []int64{2, 1} {
		outcome, err := listener.Receive(ctx, SequenceMessage[string]{SequenceID: created.SequenceID, Number: number, Item: "m"})
		if err != nil || outcome != OutcomeAccepted {
			t.Fatalf("receive %d: outcome=%s err=%v", number, outcome, err)
		}
	}
	if _, err := listener.CloseSequence(ctx, CloseSequence{SequenceID: created.SequenceID}); err != nil {
		t.Fatalf("close sequence: %v", err)
	}
	if _, err := listener.TerminateSequence(ctx, TerminateSequence{SequenceID: created.SequenceID, LastMsgNumber: 2}); err != nil {
		t.Fatalf("terminate: %v", err)
	}

	if enqueuer.count() != 2 {
		t.Fatalf("expected two deliver jobs, got %d", enqueuer.count())
	}
	if hook.count() != 2 {
		t.Fatalf("expected worker hook to see both hand-offs, got %d", hook.count())
	}
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "test_wsrm_session_receive_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected receive metrics on the registry")
	}
}

func TestNewCommandRouterSubscribes(t *testing.T) {
	listener, err := Setup[string](DefaultConfig(), ChannelDispatcherFunc[string](func(context.Context, string) error { return nil }))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer listener.Abort()

	router, err := NewCommandRouter(listener, nil)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	defer router.Unsubscribe()
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReliableMessagingVersion = "wsrm2030"
	if _, err := Setup[string](cfg, ChannelDispatcherFunc[string](func(context.Context, string) error { return nil })); err == nil {
		t.Fatalf("expected invalid version to fail")
	}
}

func TestSetupCloseTimeoutIsConfigurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CloseTimeout = 15 * time.Millisecond
	listener, err := Setup[string](cfg, ChannelDispatcherFunc[string](func(context.Context, string) error { return nil }))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if listener.Config().CloseTimeout != 15*time.Millisecond {
		t.Fatalf("expected runtime close timeout, got %s", listener.Config().CloseTimeout)
	}
	if _, err := listener.CreateSequence(context.Background(), CreateSequence{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := listener.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if listener.Sessions() != 0 {
		t.Fatalf("expected sessions aborted on close")
	}
}
