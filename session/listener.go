package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-wsrm/core"
	"github.com/goliatone/go-wsrm/delivery"
	"github.com/goliatone/go-wsrm/tracker"
	"github.com/google/uuid"
)

const metricsPrefix = "wsrm.session"

type ListenerOptions[T any] struct {
	Runtime core.Runtime
	Handler core.ChannelDispatcher[T]
	Release func(T)
	// OnAcknowledgement receives flow-control acknowledgements of every
	// session.
	OnAcknowledgement func(Acknowledgement)
	Now               func() time.Time
}

// Listener accepts new sequences and routes sequence traffic to the owning
// InputSession.
type Listener[T any] struct {
	config   core.Config
	deps     core.Dependencies
	handler  core.ChannelDispatcher[T]
	release  func(T)
	onAck    func(Acknowledgement)
	now      func() time.Time
	logger   core.Logger
	observer *core.Observer
	tracker  *tracker.ChannelTracker[*InputSession[T], SessionInfo]

	mu       sync.RWMutex
	sessions map[string]*InputSession[T]
}

func NewListener[T any](opts ListenerOptions[T]) (*Listener[T], error) {
	if opts.Handler == nil {
		return nil, core.BadInput("session: channel dispatcher is required", nil)
	}
	cfg := opts.Runtime.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps := opts.Runtime.Dependencies
	logger := glog.Ensure(deps.Logger)
	if deps.FaultSender == nil {
		deps.FaultSender = core.NopFaultSender{}
	}
	if deps.DispatchHook == nil {
		deps.DispatchHook = core.NopDispatchHook{}
	}
	if deps.ErrorMapper == nil {
		deps.ErrorMapper = core.DefaultErrorMapper
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = uuid.NewString
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Listener[T]{
		config:   cfg,
		deps:     deps,
		handler:  opts.Handler,
		release:  opts.Release,
		onAck:    opts.OnAcknowledgement,
		now:      now,
		logger:   logger,
		observer: core.NewObserver(metricsPrefix, logger, deps.MetricsRecorder),
		tracker: tracker.NewChannelTracker[*InputSession[T], SessionInfo](tracker.Options{
			Logger:       logger,
			CloseTimeout: cfg.CloseTimeout,
		}),
		sessions: map[string]*InputSession[T]{},
	}, nil
}

func (l *Listener[T]) Config() core.Config {
	if l == nil {
		return core.Config{}
	}
	return l.config
}

func (l *Listener[T]) Open() error {
	if l == nil {
		return fmt.Errorf("session: listener is nil")
	}
	return l.tracker.Open()
}

func (l *Listener[T]) State() core.CommunicationState {
	if l == nil {
		return core.StateClosed
	}
	return l.tracker.State()
}

// CreateSequence opens a new session. It is refused with a
// CreateSequenceRefused fault once max_pending_channels sessions are live.
func (l *Listener[T]) CreateSequence(ctx context.Context, req CreateSequence) (resp CreateSequenceResponse, err error) {
	if l == nil {
		return CreateSequenceResponse{}, fmt.Errorf("session: listener is nil")
	}
	startedAt := l.now()
	fields := map[string]any{"version": string(l.config.Version())}
	defer func() {
		fields["sequence_id"] = resp.SequenceID
		l.observe(ctx, startedAt, "create_sequence", err, fields)
	}()

	if l.tracker.State() != core.StateOpened {
		return CreateSequenceResponse{}, core.BadInput("session: listener is not open", map[string]any{
			"state": string(l.tracker.State()),
		})
	}
	if l.tracker.Count() >= l.config.MaxPendingChannels {
		fault := core.NewProtocolFault(core.FaultCreateSequenceRefused, "",
			"too many sequences are already open").
			WithMetadata(map[string]any{"max_pending_channels": l.config.MaxPendingChannels})
		return CreateSequenceResponse{}, l.sendFault(ctx, fault)
	}

	id := strings.TrimSpace(l.deps.IDGenerator())
	session, err := NewInputSession(Options[T]{
		ID:                id,
		Config:            l.config,
		Handler:           l.handler,
		Logger:            l.logger,
		Faults:            l.deps.FaultSender,
		Hook:              l.deps.DispatchHook,
		Release:           l.release,
		OnAcknowledgement: l.onAck,
		Now:               l.now,
	})
	if err != nil {
		return CreateSequenceResponse{}, err
	}
	if err := session.Open(); err != nil {
		return CreateSequenceResponse{}, err
	}

	l.mu.Lock()
	l.sessions[id] = session
	l.mu.Unlock()
	session.OnClosed(func() { l.forget(id) })

	info := SessionInfo{
		ID:        id,
		OfferID:   strings.TrimSpace(req.OfferID),
		Expires:   req.Expires,
		CreatedAt: startedAt,
	}
	if !l.tracker.Add(session, info) {
		return CreateSequenceResponse{}, core.BadInput("session: listener stopped accepting sequences", nil)
	}
	return CreateSequenceResponse{
		SequenceID:      id,
		Expires:         req.Expires,
		AcceptedOfferID: info.OfferID,
	}, nil
}

func (l *Listener[T]) Receive(ctx context.Context, msg SequenceMessage[T]) (outcome Outcome, err error) {
	if l == nil {
		return OutcomeFaulted, fmt.Errorf("session: listener is nil")
	}
	startedAt := l.now()
	fields := map[string]any{
		"sequence_id": msg.SequenceID,
		"number":      msg.Number,
		"version":     string(l.config.Version()),
	}
	defer func() {
		fields["outcome"] = string(outcome)
		l.observe(ctx, startedAt, "receive", err, fields)
	}()

	session, err := l.lookup(ctx, msg.SequenceID)
	if err != nil {
		delivery.ReleaseFunc(l.release)(msg.Item)
		return OutcomeFaulted, err
	}
	return session.Receive(ctx, msg)
}

func (l *Listener[T]) CloseSequence(ctx context.Context, req CloseSequence) (ack Acknowledgement, err error) {
	if l == nil {
		return Acknowledgement{}, fmt.Errorf("session: listener is nil")
	}
	startedAt := l.now()
	fields := map[string]any{
		"sequence_id": req.SequenceID,
		"last":        req.LastMsgNumber,
		"version":     string(l.config.Version()),
	}
	defer func() { l.observe(ctx, startedAt, "close_sequence", err, fields) }()

	session, err := l.lookup(ctx, req.SequenceID)
	if err != nil {
		return Acknowledgement{}, err
	}
	return session.CloseSequence(ctx, req.LastMsgNumber)
}

// TerminateSequence completes the handshake and then closes the session once
// every accepted message has been delivered.
func (l *Listener[T]) TerminateSequence(ctx context.Context, req TerminateSequence) (ack Acknowledgement, err error) {
	if l == nil {
		return Acknowledgement{}, fmt.Errorf("session: listener is nil")
	}
	startedAt := l.now()
	fields := map[string]any{
		"sequence_id": req.SequenceID,
		"last":        req.LastMsgNumber,
		"version":     string(l.config.Version()),
	}
	defer func() { l.observe(ctx, startedAt, "terminate_sequence", err, fields) }()

	session, err := l.lookup(ctx, req.SequenceID)
	if err != nil {
		return Acknowledgement{}, err
	}
	ack, err = session.TerminateSequence(ctx, req.LastMsgNumber)
	if err != nil {
		return Acknowledgement{}, err
	}
	if err := session.Close(ctx); err != nil {
		return ack, err
	}
	return ack, nil
}

func (l *Listener[T]) Acknowledgement(ctx context.Context, sequenceID string) (Acknowledgement, error) {
	if l == nil {
		return Acknowledgement{}, fmt.Errorf("session: listener is nil")
	}
	session, err := l.lookup(ctx, sequenceID)
	if err != nil {
		return Acknowledgement{}, err
	}
	return session.Acknowledgement(), nil
}

func (l *Listener[T]) Session(sequenceID string) (*InputSession[T], bool) {
	if l == nil {
		return nil, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	session, ok := l.sessions[strings.TrimSpace(sequenceID)]
	return session, ok
}

func (l *Listener[T]) SessionInfo(sequenceID string) (SessionInfo, bool) {
	session, ok := l.Session(sequenceID)
	if !ok {
		return SessionInfo{}, false
	}
	return l.tracker.Get(session)
}

func (l *Listener[T]) Sessions() int {
	if l == nil {
		return 0
	}
	return l.tracker.Count()
}

// Close closes every live session; sessions that cannot close in time are
// aborted.
func (l *Listener[T]) Close(ctx context.Context) (err error) {
	if l == nil {
		return nil
	}
	startedAt := l.now()
	fields := map[string]any{"sessions": l.tracker.Count()}
	defer func() { l.observe(ctx, startedAt, "close", err, fields) }()
	return l.tracker.Close(ctx)
}

func (l *Listener[T]) Abort() {
	if l == nil {
		return
	}
	l.tracker.Abort()
}

func (l *Listener[T]) lookup(ctx context.Context, sequenceID string) (*InputSession[T], error) {
	session, ok := l.Session(sequenceID)
	if ok {
		return session, nil
	}
	fault := core.NewProtocolFault(core.FaultUnknownSequence, sequenceID, "sequence is not known to this endpoint")
	return nil, l.sendFault(ctx, fault)
}

func (l *Listener[T]) sendFault(ctx context.Context, fault *core.ProtocolFault) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := l.deps.FaultSender.SendFault(ctx, fault); err != nil {
		l.logger.Error("session: sending fault failed", "fault_code", string(fault.Code), "error", err)
	}
	return fault
}

func (l *Listener[T]) forget(sequenceID string) {
	l.mu.Lock()
	delete(l.sessions, sequenceID)
	l.mu.Unlock()
}

func (l *Listener[T]) observe(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fault, ok := IsProtocolFault(err); ok {
		fields["fault_code"] = string(fault.Code)
	} else if err != nil {
		if mapped := l.deps.ErrorMapper(err); mapped != nil {
			fields["error_code"] = mapped.TextCode
		}
	}
	l.observer.ObserveOperation(ctx, startedAt, operation, err, fields)
}
