package wsrm

import (
	"github.com/goliatone/go-command"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	gocommandadapter "github.com/goliatone/go-wsrm/adapters/gocommand"
	gojobadapter "github.com/goliatone/go-wsrm/adapters/gojob"
	gologgeradapter "github.com/goliatone/go-wsrm/adapters/gologger"
	prometheusadapter "github.com/goliatone/go-wsrm/adapters/prometheus"
	"github.com/goliatone/go-wsrm/core"
	"github.com/goliatone/go-wsrm/session"
	prom "github.com/prometheus/client_golang/prometheus"
)

type Config = core.Config

type Option = core.Option

type Runtime = core.Runtime

type Version = core.Version

type ProtocolFault = core.ProtocolFault

type FaultSender = core.FaultSender

type ChannelDispatcher[T any] = core.ChannelDispatcher[T]

type ChannelDispatcherFunc[T any] = core.ChannelDispatcherFunc[T]

type Listener[T any] = session.Listener[T]

type InputSession[T any] = session.InputSession[T]

type SequenceMessage[T any] = session.SequenceMessage[T]

type CreateSequence = session.CreateSequence

type CreateSequenceResponse = session.CreateSequenceResponse

type CloseSequence = session.CloseSequence

type TerminateSequence = session.TerminateSequence

type Acknowledgement = session.Acknowledgement

type Outcome = session.Outcome

const (
	VersionFebruary2005 = core.VersionFebruary2005
	Version11           = core.Version11

	OutcomeAccepted  = session.OutcomeAccepted
	OutcomeDuplicate = session.OutcomeDuplicate
	OutcomeThrottled = session.OutcomeThrottled
	OutcomeFaulted   = session.OutcomeFaulted
)

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorFactory    = core.WithErrorFactory
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithFaultSender     = core.WithFaultSender
	WithDispatchHook    = core.WithDispatchHook
	WithIDGenerator     = core.WithIDGenerator
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// WithPrometheus records session metrics on registerer.
func WithPrometheus(registerer prom.Registerer, namespace string) Option {
	return core.WithMetricsRecorder(prometheusadapter.NewRecorder(prometheusadapter.Options{
		Registerer: registerer,
		Namespace:  namespace,
	}))
}

// WithWorkerHook reports every delivery hand-off to a go-job worker hook.
func WithWorkerHook(hook worker.Hook) Option {
	return core.WithDispatchHook(gojobadapter.NewDispatchHookAdapter(hook))
}

func NewListener[T any](cfg Config, handler ChannelDispatcher[T], opts ...Option) (*Listener[T], error) {
	runtime, err := core.ResolveRuntime(cfg, opts...)
	if err != nil {
		return nil, err
	}
	runtime.Dependencies.Logger = gologgeradapter.ForComponent(runtime.Dependencies, "session")
	return session.NewListener(session.ListenerOptions[T]{
		Runtime: runtime,
		Handler: handler,
	})
}

// Setup builds and opens a listener.
func Setup[T any](cfg Config, handler ChannelDispatcher[T], opts ...Option) (*Listener[T], error) {
	listener, err := NewListener(cfg, handler, opts...)
	if err != nil {
		return nil, err
	}
	if err := listener.Open(); err != nil {
		return nil, err
	}
	return listener, nil
}

// SetupQueued builds and opens a listener whose delivered items become go-job
// deliver jobs on enqueuer.
func SetupQueued[T any](cfg Config, enqueuer queue.Enqueuer, encode gojobadapter.Encoder[T], opts ...Option) (*Listener[T], error) {
	dispatcher, err := gojobadapter.NewQueueDispatcher(enqueuer, gojobadapter.QueueDispatcherOptions[T]{Encode: encode})
	if err != nil {
		return nil, err
	}
	return Setup[T](cfg, dispatcher, opts...)
}

// NewCommandRouter exposes listener through go-command queries and subscribes
// them. Pass a nil registry to skip command registration.
func NewCommandRouter[T any](listener *Listener[T], registry *command.Registry) (*gocommandadapter.Router[T], error) {
	var adapter *gocommandadapter.RegistryAdapter
	if registry != nil {
		adapter = gocommandadapter.NewRegistryAdapter(registry)
	}
	router, err := gocommandadapter.NewRouter[T](listener, adapter)
	if err != nil {
		return nil, err
	}
	if err := router.Subscribe(); err != nil {
		return nil, err
	}
	return router, nil
}
