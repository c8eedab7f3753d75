// Package cursor decides which events of an append-only feed are new.
//
// The cursor is a count, not a position: a feed that held n events at the
// last poll and holds m > n now has m-n new events. Because the server does
// not promise chronological order, the whole feed is sorted by createdAt
// before the suffix is taken.
//
// Reconcile is pure. The poller owns the TrackedResource and applies the
// returned Decision.
package cursor

import (
	"github.com/roach88/hyperdash/internal/faults"
)

// TrackedResource is the poller's view of one resource instance.
type TrackedResource struct {
	Ref Ref

	// LastKnownEventCount is the feed length seen at the last reconciliation.
	LastKnownEventCount int

	// CurrentStatus is the last status read from a snapshot; "" when unknown.
	CurrentStatus string

	// EventsHref is the feed URL captured from the latest snapshot; "" until
	// the first snapshot.
	EventsHref string
}

// NewTracked returns fresh cursor state for ref.
func NewTracked(ref Ref) *TrackedResource {
	return &TrackedResource{Ref: ref}
}

// Outcome classifies a reconciliation.
type Outcome int

const (
	// Unchanged means the feed length matched the cursor.
	Unchanged Outcome = iota
	// Delta means the feed grew past a non-zero cursor.
	Delta
	// FirstObservation means a non-empty feed was seen with a zero cursor.
	FirstObservation
	// Shrunk means the feed was shorter than the cursor.
	Shrunk
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Delta:
		return "delta"
	case FirstObservation:
		return "first_observation"
	case Shrunk:
		return "shrunk"
	}
	return "unknown"
}

// Decision is the result of reconciling a feed against a cursor.
type Decision struct {
	Outcome Outcome

	// NewEvents are the events to replay, ascending by createdAt.
	NewEvents []Event

	// History holds, on first observation, the older events that are not
	// replayed. The caller may render them once as a table.
	History []Event

	// Count is the cursor value to store.
	Count int

	// Fault is set when the feed shrank.
	Fault *faults.Error
}

// Reconcile compares feed with the cursor of t.
func Reconcile(t TrackedResource, feed []Event) Decision {
	last, n := t.LastKnownEventCount, len(feed)

	switch {
	case n == last:
		return Decision{Outcome: Unchanged, Count: last}

	case n < last:
		// Feed is not append-only. Reset to the new length and replay
		// nothing; rows already shown stay shown.
		return Decision{
			Outcome: Shrunk,
			Count:   n,
			Fault:   faults.NewReconciliation(last, n),
		}

	case last == 0:
		sorted := SortByCreatedAt(feed)
		return Decision{
			Outcome:   FirstObservation,
			NewEvents: sorted[n-1:],
			History:   sorted[:n-1],
			Count:     n,
		}

	default:
		sorted := SortByCreatedAt(feed)
		return Decision{
			Outcome:   Delta,
			NewEvents: sorted[last:],
			Count:     n,
		}
	}
}

// Apply stores the decision's count in t.
func (t *TrackedResource) Apply(d Decision) {
	t.LastKnownEventCount = d.Count
}
