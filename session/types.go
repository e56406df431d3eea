package session

import (
	"time"

	"github.com/goliatone/go-wsrm/sequence"
)

// SequenceMessage is a decoded application message carried by a sequence.
type SequenceMessage[T any] struct {
	SequenceID string
	Number     int64
	IsLast     bool
	Item       T
}

type CreateSequence struct {
	Expires time.Duration
	OfferID string
}

type CreateSequenceResponse struct {
	SequenceID string
	Expires    time.Duration
	// AcceptedOfferID echoes the offered outbound sequence when one was
	// proposed.
	AcceptedOfferID string
}

type CloseSequence struct {
	SequenceID    string
	LastMsgNumber int64
}

type TerminateSequence struct {
	SequenceID    string
	LastMsgNumber int64
}

// Outcome is the result of offering one message to a session.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeThrottled means the message was dropped for backpressure; the
	// peer retransmits it because it is missing from the acknowledgement.
	OutcomeThrottled Outcome = "throttled"
	OutcomeFaulted   Outcome = "faulted"
)

// Acknowledgement is the SequenceAcknowledgement state of a session.
// BufferRemaining is -1 when flow control is disabled.
type Acknowledgement struct {
	SequenceID      string
	Ranges          sequence.RangeCollection
	Final           bool
	BufferRemaining int
}

type SessionInfo struct {
	ID        string
	OfferID   string
	Expires   time.Duration
	CreatedAt time.Time
}
