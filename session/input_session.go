package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-wsrm/core"
	"github.com/goliatone/go-wsrm/delivery"
	"github.com/goliatone/go-wsrm/dispatch"
	"github.com/goliatone/go-wsrm/reliable"
)

type Options[T any] struct {
	ID      string
	Config  core.Config
	Handler core.ChannelDispatcher[T]
	Logger  core.Logger
	Faults  core.FaultSender
	Hook    core.DispatchHook
	// Release frees items that are dropped or never delivered.
	Release func(T)
	// OnAcknowledgement runs after each delivered item when flow control is
	// enabled, so the caller can advertise the freed buffer space.
	OnAcknowledgement func(Acknowledgement)
	Now               func() time.Time
}

// InputSession is the receive side of one reliable sequence.
type InputSession[T any] struct {
	id         string
	config     core.Config
	logger     core.Logger
	faults     core.FaultSender
	release    func(T)
	onAck      func(Acknowledgement)
	dispatcher *dispatch.InputQueueDispatcher[T]

	mu         sync.Mutex
	state      core.CommunicationState
	aborted    bool
	connection *reliable.InputConnection
	strategy   delivery.Strategy[T]

	closed  core.Notifier
	faulted core.Notifier
}

func NewInputSession[T any](opts Options[T]) (*InputSession[T], error) {
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		return nil, core.BadInput("session: sequence id is required", nil)
	}
	if opts.Handler == nil {
		return nil, core.BadInput("session: channel dispatcher is required", map[string]any{"sequence_id": id})
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	faults := opts.Faults
	if faults == nil {
		faults = core.NopFaultSender{}
	}
	logger := glog.Ensure(opts.Logger)

	session := &InputSession[T]{
		id:      id,
		config:  cfg,
		logger:  logger,
		faults:  faults,
		release: delivery.ReleaseFunc(opts.Release),
		onAck:   opts.OnAcknowledgement,
		state:   core.StateCreated,
		connection: reliable.NewInputConnection(
			cfg.Version(),
			reliable.WithMaxSequenceRanges(cfg.MaxSequenceRanges),
		),
	}

	dispatcher, err := dispatch.NewInputQueueDispatcher(opts.Handler, dispatch.Options[T]{
		Channel: id,
		Logger:  logger,
		Hook:    opts.Hook,
		Now:     opts.Now,
	})
	if err != nil {
		return nil, err
	}
	session.dispatcher = dispatcher

	strategyOpts := delivery.Options[T]{
		Quota:           cfg.MaxTransferWindowSize,
		DequeueCallback: session.onDequeued,
		Release:         session.release,
	}
	if cfg.Ordered() {
		session.strategy = delivery.NewOrdered[T](dispatcher, strategyOpts)
	} else {
		session.strategy = delivery.NewUnordered[T](dispatcher, strategyOpts)
	}
	return session, nil
}

func (s *InputSession[T]) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

func (s *InputSession[T]) Version() core.Version {
	if s == nil {
		return ""
	}
	return s.config.Version()
}

func (s *InputSession[T]) State() core.CommunicationState {
	if s == nil {
		return core.StateClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *InputSession[T]) Open() error {
	if s == nil {
		return fmt.Errorf("session: input session is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := core.TransitionState(s.state, core.StateOpened)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// Receive offers one sequence message. Duplicates and throttled messages are
// released and reported through the outcome; invalid numbers fault the
// session and are returned as *core.ProtocolFault.
func (s *InputSession[T]) Receive(ctx context.Context, msg SequenceMessage[T]) (Outcome, error) {
	if s == nil {
		return OutcomeFaulted, fmt.Errorf("session: input session is nil")
	}
	s.mu.Lock()
	if err := s.ensureOpenLocked(); err != nil {
		s.mu.Unlock()
		s.release(msg.Item)
		return OutcomeFaulted, err
	}

	if msg.Number == math.MaxInt64 {
		fault := core.NewProtocolFault(core.FaultMessageNumberRollover, s.id,
			"message number reached the maximum value").WithMetadata(map[string]any{"number": msg.Number})
		s.faultLocked()
		s.mu.Unlock()
		s.release(msg.Item)
		return OutcomeFaulted, s.raise(ctx, fault)
	}

	if !s.connection.IsValid(msg.Number, msg.IsLast) {
		fault := s.invalidNumberFaultLocked(msg)
		s.faultLocked()
		s.mu.Unlock()
		s.release(msg.Item)
		return OutcomeFaulted, s.raise(ctx, fault)
	}

	if s.connection.Ranges().Contains(msg.Number) {
		s.mu.Unlock()
		s.release(msg.Item)
		return OutcomeDuplicate, nil
	}

	if !s.connection.CanMerge(msg.Number) || !s.strategy.CanEnqueue(msg.Number) {
		s.mu.Unlock()
		s.release(msg.Item)
		s.logger.Debug("session: message throttled", "sequence_id", s.id, "number", msg.Number)
		return OutcomeThrottled, nil
	}

	s.connection.Merge(msg.Number, msg.IsLast)
	_, err := s.strategy.Enqueue(msg.Item, msg.Number)
	s.mu.Unlock()
	if err != nil {
		return OutcomeFaulted, err
	}
	return OutcomeAccepted, nil
}

// CloseSequence fixes the final message number. A last below 1 takes the
// highest number received so far.
func (s *InputSession[T]) CloseSequence(ctx context.Context, last int64) (Acknowledgement, error) {
	if s == nil {
		return Acknowledgement{}, fmt.Errorf("session: input session is nil")
	}
	s.mu.Lock()
	if err := s.ensureOpenLocked(); err != nil {
		s.mu.Unlock()
		return Acknowledgement{}, err
	}
	ok, err := s.connection.SetCloseSequenceLast(last)
	if err != nil {
		s.mu.Unlock()
		return Acknowledgement{}, err
	}
	if !ok {
		fault := core.NewProtocolFault(core.FaultSequenceTerminated, s.id,
			"close sequence last message number is smaller than a received message number").
			WithMetadata(map[string]any{"last": last, "highest_received": s.connection.Ranges().Upper()})
		s.faultLocked()
		s.mu.Unlock()
		return Acknowledgement{}, s.raise(ctx, fault)
	}
	ack := s.acknowledgementLocked()
	s.mu.Unlock()
	return ack, nil
}

// TerminateSequence completes the termination handshake. On the legacy
// protocol version last is ignored and every message up to the one flagged
// last must have arrived.
func (s *InputSession[T]) TerminateSequence(ctx context.Context, last int64) (Acknowledgement, error) {
	if s == nil {
		return Acknowledgement{}, fmt.Errorf("session: input session is nil")
	}
	s.mu.Lock()
	if err := s.ensureOpenLocked(); err != nil {
		s.mu.Unlock()
		return Acknowledgement{}, err
	}

	var fault *core.ProtocolFault
	if s.connection.Version() == core.Version11 {
		ok, largeEnough, err := s.connection.SetTerminateSequenceLast(last)
		if err != nil {
			s.mu.Unlock()
			return Acknowledgement{}, err
		}
		if !ok {
			reason := "terminate sequence last message number does not match the received messages"
			if !largeEnough {
				reason = "terminate sequence last message number is smaller than a received message number"
			}
			fault = core.NewProtocolFault(core.FaultSequenceTerminated, s.id, reason).
				WithMetadata(map[string]any{"last": last, "ranges": s.connection.Ranges().String()})
		}
	}
	if fault == nil && !s.connection.Terminate() {
		fault = core.NewProtocolFault(core.FaultSequenceTerminated, s.id,
			"sequence terminated before all messages were received").
			WithMetadata(map[string]any{"ranges": s.connection.Ranges().String()})
	}
	if fault != nil {
		s.faultLocked()
		s.mu.Unlock()
		return Acknowledgement{}, s.raise(ctx, fault)
	}
	ack := s.acknowledgementLocked()
	ack.Final = true
	s.mu.Unlock()
	return ack, nil
}

func (s *InputSession[T]) Acknowledgement() Acknowledgement {
	if s == nil {
		return Acknowledgement{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acknowledgementLocked()
}

// Close waits until every message arrived, the sequence terminated and all
// accepted items were delivered. Failure aborts the session.
func (s *InputSession[T]) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	switch s.state {
	case core.StateClosed:
		s.mu.Unlock()
		return nil
	case core.StateFaulted:
		s.mu.Unlock()
		return core.ObjectFaulted(s.id)
	case core.StateCreated:
		s.mu.Unlock()
		s.Abort()
		return nil
	}
	s.state = core.StateClosing
	s.mu.Unlock()

	if s.config.CloseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CloseTimeout)
		defer cancel()
	}

	err := s.connection.Close(ctx)
	if err == nil {
		err = s.dispatcher.Wait(ctx)
	}
	if err != nil {
		s.logger.Warn("session: close failed; aborting", "sequence_id", s.id, "error", err)
		s.Abort()
		return err
	}

	s.mu.Lock()
	if s.state != core.StateClosing {
		aborted := s.aborted
		s.mu.Unlock()
		if aborted {
			return core.ObjectAborted(s.id)
		}
		return nil
	}
	s.strategy.Dispose()
	s.state = core.StateClosed
	s.mu.Unlock()
	s.closed.Fire()
	return nil
}

// Abort releases every waiter and buffered item. It is idempotent.
func (s *InputSession[T]) Abort() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.state == core.StateClosed {
		s.mu.Unlock()
		return
	}
	s.connection.Abort(s.id)
	s.strategy.Dispose()
	s.state = core.StateClosed
	s.aborted = true
	s.mu.Unlock()
	s.closed.Fire()
}

// Fault moves the session to the faulted state without sending anything to
// the peer.
func (s *InputSession[T]) Fault() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.faultLocked()
	s.mu.Unlock()
	s.faulted.Fire()
}

func (s *InputSession[T]) OnClosed(fn func()) core.Unsubscribe {
	if s == nil {
		return func() {}
	}
	return s.closed.Subscribe(fn)
}

func (s *InputSession[T]) OnFaulted(fn func()) core.Unsubscribe {
	if s == nil {
		return func() {}
	}
	return s.faulted.Subscribe(fn)
}

func (s *InputSession[T]) ensureOpenLocked() error {
	switch s.state {
	case core.StateOpened:
		return nil
	case core.StateFaulted:
		return core.ObjectFaulted(s.id)
	case core.StateClosing, core.StateClosed:
		if s.connection.Terminated() || s.state == core.StateClosed {
			return core.NewProtocolFault(core.FaultSequenceTerminated, s.id, "sequence is no longer accepting messages")
		}
		return nil
	}
	return core.BadInput("session: input session is not open", map[string]any{
		"sequence_id": s.id,
		"state":       string(s.state),
	})
}

func (s *InputSession[T]) invalidNumberFaultLocked(msg SequenceMessage[T]) *core.ProtocolFault {
	metadata := map[string]any{"number": msg.Number, "is_last": msg.IsLast}
	if msg.Number < 1 {
		return core.NewProtocolFault(core.FaultSequenceTerminated, s.id,
			"message number must be positive").WithMetadata(metadata)
	}
	if s.connection.IsSequenceClosed() {
		return core.NewProtocolFault(core.FaultSequenceClosed, s.id,
			"sequence is closed and cannot accept new messages").WithMetadata(metadata)
	}
	metadata["last"] = s.connection.Last()
	return core.NewProtocolFault(core.FaultLastMessageNumberExceeded, s.id,
		"message number exceeds the last message number of the sequence").WithMetadata(metadata)
}

// faultLocked must be followed by faulted.Fire once the lock is released;
// raise does that.
func (s *InputSession[T]) faultLocked() {
	s.connection.Fault(s.id)
	s.strategy.Dispose()
	s.state = core.StateFaulted
}

func (s *InputSession[T]) raise(ctx context.Context, fault *core.ProtocolFault) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.faults.SendFault(ctx, fault); err != nil {
		s.logger.Error("session: sending fault failed", "sequence_id", s.id, "fault_code", string(fault.Code), "error", err)
	}
	s.faulted.Fire()
	return fault
}

func (s *InputSession[T]) acknowledgementLocked() Acknowledgement {
	ack := Acknowledgement{
		SequenceID:      s.id,
		Ranges:          s.connection.Ranges(),
		Final:           s.connection.IsSequenceClosed() || s.connection.Terminated(),
		BufferRemaining: -1,
	}
	if !s.config.DisableFlowControl {
		remaining := s.strategy.Quota() - s.strategy.EnqueuedCount()
		if remaining < 0 {
			remaining = 0
		}
		ack.BufferRemaining = remaining
	}
	return ack
}

func (s *InputSession[T]) onDequeued() {
	if s.onAck == nil || s.config.DisableFlowControl {
		return
	}
	s.onAck(s.Acknowledgement())
}

// IsProtocolFault reports whether err carries a protocol fault and returns it.
func IsProtocolFault(err error) (*core.ProtocolFault, bool) {
	var fault *core.ProtocolFault
	if errors.As(err, &fault) {
		return fault, true
	}
	return nil, false
}

var _ core.Channel = (*InputSession[string])(nil)
