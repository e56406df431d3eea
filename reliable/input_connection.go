package reliable

import (
	"context"
	"fmt"

	"github.com/goliatone/go-wsrm/core"
	"github.com/goliatone/go-wsrm/sequence"
	"github.com/goliatone/go-wsrm/signal"
)

type InputConnection struct {
	version           core.Version
	maxSequenceRanges int

	ranges           sequence.RangeCollection
	last             int64
	isLastKnown      bool
	isSequenceClosed bool
	terminated       bool

	shutdownWait  *signal.WaitObject
	terminateWait *signal.WaitObject
}

type Option func(*InputConnection)

// WithMaxSequenceRanges bounds the number of disjoint ranges CanMerge admits.
func WithMaxSequenceRanges(limit int) Option {
	return func(c *InputConnection) {
		if limit > 0 {
			c.maxSequenceRanges = limit
		}
	}
}

func NewInputConnection(version core.Version, opts ...Option) *InputConnection {
	if !version.Valid() {
		version = core.Version11
	}
	conn := &InputConnection{
		version:           version,
		maxSequenceRanges: core.DefaultMaxSequenceRanges,
		ranges:            sequence.Empty,
		shutdownWait:      signal.NewWaitObject(),
		terminateWait:     signal.NewWaitObject(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(conn)
		}
	}
	return conn
}

// AllAdded reports whether every number from 1 to Last has been received,
// or, for Version11, whether the last number was confirmed.
func (c *InputConnection) AllAdded() bool {
	return (c.ranges.Count() == 1 && c.ranges.At(0).Lower == 1 && c.ranges.At(0).Upper == c.last) ||
		c.isLastKnown
}

// IsLastKnown reports whether the final number of the sequence is fixed.
func (c *InputConnection) IsLastKnown() bool {
	return c.last != 0 || c.isLastKnown
}

func (c *InputConnection) IsSequenceClosed() bool {
	return c.isSequenceClosed
}

func (c *InputConnection) Last() int64 {
	return c.last
}

func (c *InputConnection) Ranges() sequence.RangeCollection {
	return c.ranges
}

func (c *InputConnection) Version() core.Version {
	return c.version
}

func (c *InputConnection) Terminated() bool {
	return c.terminated
}

func (c *InputConnection) MaxSequenceRanges() int {
	return c.maxSequenceRanges
}

func (c *InputConnection) IsValid(sequenceNumber int64, isLast bool) bool {
	if sequenceNumber < 1 {
		return false
	}
	if c.version == core.VersionFebruary2005 {
		if isLast {
			if c.last == 0 {
				return sequenceNumber > c.ranges.Upper()
			}
			return sequenceNumber == c.last
		}
		if c.last > 0 {
			return sequenceNumber < c.last
		}
		return true
	}
	if c.isLastKnown {
		return c.ranges.Contains(sequenceNumber)
	}
	return true
}

// Merge records sequenceNumber. Callers must check IsValid first.
func (c *InputConnection) Merge(sequenceNumber int64, isLast bool) {
	c.ranges = c.ranges.MergeWith(sequenceNumber)
	if isLast && c.last == 0 {
		c.last = sequenceNumber
	}
	if c.AllAdded() {
		c.shutdownWait.Set()
	}
}

// CanMerge reports whether recording sequenceNumber keeps the number of
// disjoint ranges within the configured maximum.
func (c *InputConnection) CanMerge(sequenceNumber int64) bool {
	return CanMerge(sequenceNumber, c.ranges, c.maxSequenceRanges)
}

func CanMerge(sequenceNumber int64, ranges sequence.RangeCollection, maxRanges int) bool {
	if ranges.Count() < maxRanges {
		return true
	}
	return ranges.MergeWith(sequenceNumber).Count() <= maxRanges
}

// SetCloseSequenceLast handles a CloseSequence request. A last below 1 means
// the peer did not specify one; the highest received number is used instead.
func (c *InputConnection) SetCloseSequenceLast(last int64) (bool, error) {
	if c.version != core.Version11 {
		return false, core.VersionMismatch("close sequence", c.version)
	}
	if last < 1 {
		last = c.ranges.Upper()
	}
	if c.ranges.Count() > 0 && last < c.ranges.Upper() {
		return false, nil
	}
	if c.isLastKnown {
		return last == c.last, nil
	}
	c.isSequenceClosed = true
	if err := c.setLast(last); err != nil {
		return false, err
	}
	return true, nil
}

// SetTerminateSequenceLast handles a TerminateSequence request. It succeeds
// only when last equals the highest received number and no gap exists.
// isLastLargeEnough is false when last is below a number already received.
// Once CloseSequence fixed the last number, last must match it. An
// unspecified last never succeeds.
func (c *InputConnection) SetTerminateSequenceLast(last int64) (ok bool, isLastLargeEnough bool, err error) {
	if c.version != core.Version11 {
		return false, true, core.VersionMismatch("terminate sequence", c.version)
	}
	if last < 1 {
		return false, true, nil
	}
	lastReceived := c.ranges.Upper()
	if last < lastReceived {
		return false, false, nil
	}
	if c.isLastKnown {
		return last == c.last, true, nil
	}
	if c.ranges.Count() > 1 || last > lastReceived {
		return false, true, nil
	}
	if err := c.setLast(last); err != nil {
		return false, true, err
	}
	return true, true, nil
}

// Terminate reports whether the sequence can end and, if so, releases the
// terminate wait. It is safe to call repeatedly.
func (c *InputConnection) Terminate() bool {
	var isTerminated bool
	if c.version == core.VersionFebruary2005 || c.isSequenceClosed {
		isTerminated = c.AllAdded()
	} else {
		isTerminated = c.isLastKnown
	}
	if isTerminated {
		c.terminated = true
		c.terminateWait.Set()
	}
	return isTerminated
}

// Close blocks until every message arrived and the sequence terminated, or
// until ctx ends or the connection is aborted or faulted.
func (c *InputConnection) Close(ctx context.Context) error {
	if err := c.shutdownWait.Wait(ctx); err != nil {
		return err
	}
	return c.terminateWait.Wait(ctx)
}

func (c *InputConnection) Abort(owner string) {
	c.shutdownWait.Abort(owner)
	c.terminateWait.Abort(owner)
}

func (c *InputConnection) Fault(owner string) {
	c.shutdownWait.Fault(owner)
	c.terminateWait.Fault(owner)
}

func (c *InputConnection) setLast(last int64) error {
	if c.isLastKnown {
		return fmt.Errorf("reliable: last message number can only be set once (have %d, got %d)", c.last, last)
	}
	c.last = last
	c.isLastKnown = true
	c.shutdownWait.Set()
	return nil
}
