// Package clock provides the time sources used by the poller and the replay
// scheduler.
//
// Two kinds of time are involved:
//   - wall time, for poll intervals and replay pacing (Clock)
//   - logical time, for generations and journal ordering (Sequence)
//
// Wall time is injected so tests can drive intervals deterministically
// instead of sleeping.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock is the wall-clock source for timers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// Real is the Clock backed by the time package.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// After returns time.After(d).
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Sequence is a monotonic logical counter.
//
// Each call to Next returns a strictly increasing value. Sequence is used to
// tag poller activations (generations) and to order journal entries.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence starting at a specific value.
// Used by the journal to resume after the last stored entry.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next value and advances the sequence.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the current value without advancing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
