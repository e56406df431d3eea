package gocommand

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-wsrm/core"
	"github.com/goliatone/go-wsrm/session"
)

type stubEndpoint struct {
	created    []session.CreateSequence
	received   []session.SequenceMessage[string]
	closed     []session.CloseSequence
	terminated []session.TerminateSequence
}

func (e *stubEndpoint) CreateSequence(_ context.Context, req session.CreateSequence) (session.CreateSequenceResponse, error) {
	e.created = append(e.created, req)
	return session.CreateSequenceResponse{SequenceID: "urn:seq:stub", AcceptedOfferID: req.OfferID}, nil
}

func (e *stubEndpoint) Receive(_ context.Context, msg session.SequenceMessage[string]) (session.Outcome, error) {
	e.received = append(e.received, msg)
	return session.OutcomeAccepted, nil
}

func (e *stubEndpoint) CloseSequence(_ context.Context, req session.CloseSequence) (session.Acknowledgement, error) {
	e.closed = append(e.closed, req)
	return session.Acknowledgement{SequenceID: req.SequenceID}, nil
}

func (e *stubEndpoint) TerminateSequence(_ context.Context, req session.TerminateSequence) (session.Acknowledgement, error) {
	e.terminated = append(e.terminated, req)
	return session.Acknowledgement{SequenceID: req.SequenceID, Final: true}, nil
}

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(CreateSequenceMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(CloseSequenceMessage{}); err == nil {
		t.Fatalf("expected missing sequence id to fail contract validation")
	}
	if err := ValidateMessageContract(CreateSequenceMessage{Expires: -1}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(struct{}{}); err == nil {
		t.Fatalf("expected untyped message to fail")
	}
}

func TestRouterRoutesRecordsThroughDispatcher(t *testing.T) {
	endpoint := &stubEndpoint{}
	router, err := NewRouter[string](endpoint, nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	if err := router.Subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer router.Unsubscribe()
	ctx := context.Background()

	created, err := Query[CreateSequenceMessage, session.CreateSequenceResponse](ctx, CreateSequenceMessage{OfferID: "urn:offer"})
	if err != nil {
		t.Fatalf("create query: %v", err)
	}
	if created.SequenceID != "urn:seq:stub" || created.AcceptedOfferID != "urn:offer" {
		t.Fatalf("unexpected create response %#v", created)
	}

	outcome, err := Query[SequenceMessage[string], session.Outcome](ctx, SequenceMessage[string]{SequenceID: "urn:seq:stub", Number: 1, Item: "hello"})
	if err != nil || outcome != session.OutcomeAccepted {
		t.Fatalf("receive query: outcome=%s err=%v", outcome, err)
	}
	if len(endpoint.received) != 1 || endpoint.received[0].Item != "hello" {
		t.Fatalf("expected routed message, got %#v", endpoint.received)
	}

	if _, err := Query[CloseSequenceMessage, session.Acknowledgement](ctx, CloseSequenceMessage{SequenceID: "urn:seq:stub", LastMsgNumber: 1}); err != nil {
		t.Fatalf("close query: %v", err)
	}
	ack, err := Query[TerminateSequenceMessage, session.Acknowledgement](ctx, TerminateSequenceMessage{SequenceID: "urn:seq:stub", LastMsgNumber: 1})
	if err != nil || !ack.Final {
		t.Fatalf("terminate query: ack=%#v err=%v", ack, err)
	}
	if len(endpoint.closed) != 1 || len(endpoint.terminated) != 1 || endpoint.terminated[0].LastMsgNumber != 1 {
		t.Fatalf("expected close and terminate routed")
	}
}

func TestRouterRejectsInvalidRecords(t *testing.T) {
	endpoint := &stubEndpoint{}
	router, _ := NewRouter[string](endpoint, nil)

	if _, err := router.CloseSequence(context.Background(), CloseSequenceMessage{}); err == nil {
		t.Fatalf("expected validation failure")
	}
	if outcome, err := router.Receive(context.Background(), SequenceMessage[string]{Number: 1}); err == nil || outcome != session.OutcomeFaulted {
		t.Fatalf("expected invalid sequence message to fail, outcome=%s err=%v", outcome, err)
	}
	if len(endpoint.closed) != 0 || len(endpoint.received) != 0 {
		t.Fatalf("expected invalid records not to reach the endpoint")
	}
	if _, err := NewRouter[string](nil, nil); err == nil {
		t.Fatalf("expected missing endpoint error")
	}
}

func TestRouterDrivesListener(t *testing.T) {
	runtime, err := core.ResolveRuntime(core.DefaultConfig())
	if err != nil {
		t.Fatalf("resolve runtime: %v", err)
	}
	delivered := make(chan string, 2)
	listener, err := session.NewListener(session.ListenerOptions[string]{
		Runtime: runtime,
		Handler: core.ChannelDispatcherFunc[string](func(_ context.Context, item string) error {
			delivered <- item
			return nil
		}),
	})
	if err != nil {
		t.Fatalf("new listener: %v", err)
	}
	if err := listener.Open(); err != nil {
		t.Fatalf("open listener: %v", err)
	}
	defer listener.Abort()

	router, _ := NewRouter[string](listener, NewRegistryAdapter(command.NewRegistry()))
	ctx := context.Background()
	created, err := router.CreateSequence(ctx, CreateSequenceMessage{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := router.Receive(ctx, SequenceMessage[string]{SequenceID: created.SequenceID, Number: 1, Item: "payload"}); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if _, err := router.CloseSequence(ctx, CloseSequenceMessage{SequenceID: created.SequenceID, LastMsgNumber: 1}); err != nil {
		t.Fatalf("close sequence: %v", err)
	}
	if _, err := router.TerminateSequence(ctx, TerminateSequenceMessage{SequenceID: created.SequenceID, LastMsgNumber: 1}); err != nil {
		t.Fatalf("terminate sequence: %v", err)
	}
	if got := <-delivered; got != "payload" {
		t.Fatalf("expected payload delivered, got %q", got)
	}
	if listener.Sessions() != 0 {
		t.Fatalf("expected terminated session closed")
	}
}

func TestRegistryAdapterResolvers(t *testing.T) {
	adapter := NewRegistryAdapter(nil)
	called := 0
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		called++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.AddQueueResolver("queue", nil); err == nil {
		t.Fatalf("expected missing queue registry error")
	}
	router, _ := NewRouter[string](&stubEndpoint{}, adapter)
	if err := router.Subscribe(); err != nil {
		t.Fatalf("subscribe with registry: %v", err)
	}
	defer router.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if called == 0 {
		t.Fatalf("expected resolver to run for registered record handlers")
	}
}
