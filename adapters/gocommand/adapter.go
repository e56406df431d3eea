package gocommand

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-wsrm/core"
	"github.com/goliatone/go-wsrm/session"
)

const (
	TypeCreateSequence    = "wsrm.create_sequence"
	TypeSequenceMessage   = "wsrm.sequence_message"
	TypeCloseSequence     = "wsrm.close_sequence"
	TypeTerminateSequence = "wsrm.terminate_sequence"
)

type CreateSequenceMessage struct {
	Expires time.Duration
	OfferID string
}

func (CreateSequenceMessage) Type() string { return TypeCreateSequence }

func (m CreateSequenceMessage) Validate() error {
	if m.Expires < 0 {
		return core.BadInput("gocommand: expires must not be negative", nil)
	}
	return nil
}

type SequenceMessage[T any] struct {
	SequenceID string
	Number     int64
	IsLast     bool
	Item       T
}

func (SequenceMessage[T]) Type() string { return TypeSequenceMessage }

func (m SequenceMessage[T]) Validate() error {
	if strings.TrimSpace(m.SequenceID) == "" {
		return core.BadInput("gocommand: sequence id is required", nil)
	}
	return nil
}

type CloseSequenceMessage struct {
	SequenceID    string
	LastMsgNumber int64
}

func (CloseSequenceMessage) Type() string { return TypeCloseSequence }

func (m CloseSequenceMessage) Validate() error {
	if strings.TrimSpace(m.SequenceID) == "" {
		return core.BadInput("gocommand: sequence id is required", nil)
	}
	return nil
}

type TerminateSequenceMessage struct {
	SequenceID    string
	LastMsgNumber int64
}

func (TerminateSequenceMessage) Type() string { return TypeTerminateSequence }

func (m TerminateSequenceMessage) Validate() error {
	if strings.TrimSpace(m.SequenceID) == "" {
		return core.BadInput("gocommand: sequence id is required", nil)
	}
	return nil
}

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// Endpoint is the receive side the decoded records are routed to.
// *session.Listener satisfies it.
type Endpoint[T any] interface {
	CreateSequence(ctx context.Context, req session.CreateSequence) (session.CreateSequenceResponse, error)
	Receive(ctx context.Context, msg session.SequenceMessage[T]) (session.Outcome, error)
	CloseSequence(ctx context.Context, req session.CloseSequence) (session.Acknowledgement, error)
	TerminateSequence(ctx context.Context, req session.TerminateSequence) (session.Acknowledgement, error)
}

// Router exposes an Endpoint as go-command queries, one per record type.
type Router[T any] struct {
	endpoint      Endpoint[T]
	registry      *RegistryAdapter
	runnerOpts    []runner.Option
	subscriptions []commanddispatcher.Subscription
}

func NewRouter[T any](endpoint Endpoint[T], registry *RegistryAdapter, runnerOpts ...runner.Option) (*Router[T], error) {
	if endpoint == nil {
		return nil, fmt.Errorf("gocommand: endpoint is required")
	}
	return &Router[T]{endpoint: endpoint, registry: registry, runnerOpts: runnerOpts}, nil
}

func (r *Router[T]) CreateSequence(ctx context.Context, msg CreateSequenceMessage) (session.CreateSequenceResponse, error) {
	if err := ValidateMessageContract(msg); err != nil {
		return session.CreateSequenceResponse{}, err
	}
	return r.endpoint.CreateSequence(ctx, session.CreateSequence{Expires: msg.Expires, OfferID: msg.OfferID})
}

func (r *Router[T]) Receive(ctx context.Context, msg SequenceMessage[T]) (session.Outcome, error) {
	if err := ValidateMessageContract(msg); err != nil {
		return session.OutcomeFaulted, err
	}
	return r.endpoint.Receive(ctx, session.SequenceMessage[T]{
		SequenceID: msg.SequenceID,
		Number:     msg.Number,
		IsLast:     msg.IsLast,
		Item:       msg.Item,
	})
}

func (r *Router[T]) CloseSequence(ctx context.Context, msg CloseSequenceMessage) (session.Acknowledgement, error) {
	if err := ValidateMessageContract(msg); err != nil {
		return session.Acknowledgement{}, err
	}
	return r.endpoint.CloseSequence(ctx, session.CloseSequence{SequenceID: msg.SequenceID, LastMsgNumber: msg.LastMsgNumber})
}

func (r *Router[T]) TerminateSequence(ctx context.Context, msg TerminateSequenceMessage) (session.Acknowledgement, error) {
	if err := ValidateMessageContract(msg); err != nil {
		return session.Acknowledgement{}, err
	}
	return r.endpoint.TerminateSequence(ctx, session.TerminateSequence{SequenceID: msg.SequenceID, LastMsgNumber: msg.LastMsgNumber})
}

// Subscribe registers the four record queries with the dispatcher and, when
// a registry is configured, with the command registry.
func (r *Router[T]) Subscribe() error {
	if r == nil {
		return fmt.Errorf("gocommand: router is nil")
	}
	if len(r.subscriptions) > 0 {
		return nil
	}
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery(r, command.QueryFunc[CreateSequenceMessage, session.CreateSequenceResponse](r.CreateSequence))
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery(r, command.QueryFunc[SequenceMessage[T], session.Outcome](r.Receive))
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery(r, command.QueryFunc[CloseSequenceMessage, session.Acknowledgement](r.CloseSequence))
		},
		func() (commanddispatcher.Subscription, error) {
			return subscribeQuery(r, command.QueryFunc[TerminateSequenceMessage, session.Acknowledgement](r.TerminateSequence))
		},
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			r.Unsubscribe()
			return err
		}
		r.subscriptions = append(r.subscriptions, subscription)
	}
	return nil
}

func (r *Router[T]) Unsubscribe() {
	if r == nil {
		return
	}
	for _, subscription := range r.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	r.subscriptions = nil
}

func subscribeQuery[T any, M any, R any](r *Router[T], qry command.QueryFunc[M, R]) (commanddispatcher.Subscription, error) {
	if r.registry != nil {
		return RegisterAndSubscribeQuery(r.registry, command.Querier[M, R](qry), r.runnerOpts...)
	}
	return SubscribeQueryFunc(qry, r.runnerOpts...), nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered record handlers into a go-job queue
// registry so they can also run as queued jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

var _ Endpoint[string] = (*session.Listener[string])(nil)
