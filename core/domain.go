package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownVersion         = errors.New("core: unknown reliable messaging version")
	ErrInvalidStateTransition = errors.New("core: invalid communication state transition")
)

// Version selects the WS-ReliableMessaging protocol sub-version a session
// speaks.
type Version string

const (
	// VersionFebruary2005 infers completion from the message flagged last.
	VersionFebruary2005 Version = "wsrm_feb2005"
	// Version11 requires an explicit CloseSequence/TerminateSequence exchange.
	Version11 Version = "wsrm11"
)

func ParseVersion(raw string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(VersionFebruary2005), "feb2005", "wsreliablemessagingfebruary2005":
		return VersionFebruary2005, nil
	case string(Version11), "1.1", "wsreliablemessaging11":
		return Version11, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVersion, raw)
}

func (v Version) Valid() bool {
	return v == VersionFebruary2005 || v == Version11
}

type CommunicationState string

const (
	StateCreated CommunicationState = "created"
	StateOpened  CommunicationState = "opened"
	StateClosing CommunicationState = "closing"
	StateClosed  CommunicationState = "closed"
	StateFaulted CommunicationState = "faulted"
)

// Terminal reports whether no further transition other than to closed is
// possible.
func (s CommunicationState) Terminal() bool {
	return s == StateClosed || s == StateFaulted
}

func TransitionState(current, next CommunicationState) (CommunicationState, error) {
	if current == next {
		return current, nil
	}
	if !stateTransitionAllowed(current, next) {
		return current, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, current, next)
	}
	return next, nil
}

func stateTransitionAllowed(current, next CommunicationState) bool {
	allowed := map[CommunicationState]map[CommunicationState]struct{}{
		StateCreated: {
			StateOpened:  {},
			StateClosing: {},
			StateClosed:  {},
			StateFaulted: {},
		},
		StateOpened: {
			StateClosing: {},
			StateClosed:  {},
			StateFaulted: {},
		},
		StateClosing: {
			StateClosed:  {},
			StateFaulted: {},
		},
		StateFaulted: {
			StateClosed: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}
