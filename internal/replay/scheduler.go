package replay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/hyperdash/internal/clock"
	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/metrics"
	"github.com/roach88/hyperdash/internal/view"
)

// DefaultPace is the delay between two emitted events.
const DefaultPace = 500 * time.Millisecond

// ErrStale is returned when a replay's generation was superseded before it
// finished.
var ErrStale = errors.New("replay generation superseded")

// StateCatalog reports which event types are workflow states.
type StateCatalog interface {
	Known(kind cursor.Kind, label string) bool
}

// Scheduler paces events into a view sink.
type Scheduler struct {
	fence   *Fence
	sink    view.Sink
	catalog StateCatalog
	clock   clock.Clock
	pace    time.Duration
	metrics *metrics.Collector
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source for pacing.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithPace sets the delay between emissions. Zero emits back to back.
func WithPace(d time.Duration) Option {
	return func(s *Scheduler) {
		s.pace = d
	}
}

// WithMetrics records emitted and abandoned replays.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler creates a scheduler that emits through sink under fence.
func NewScheduler(fence *Fence, sink view.Sink, catalog StateCatalog, opts ...Option) *Scheduler {
	s := &Scheduler{
		fence:   fence,
		sink:    sink,
		catalog: catalog,
		clock:   clock.Real{},
		pace:    DefaultPace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pace returns the configured delay between emissions.
func (s *Scheduler) Pace() time.Duration {
	return s.pace
}

// Replay emits events in the given order, waiting the pace between two
// emissions. The first event is emitted immediately.
//
// Each emission appends a row and, when the event type is a known state,
// moves the status indicator; both happen atomically under the fence for
// gen. onDone, if non-nil, runs after the last emission provided gen is
// still current.
//
// Replay returns the number of events emitted. It stops early with ErrStale
// when gen is superseded and with the context error when ctx ends.
func (s *Scheduler) Replay(ctx context.Context, gen uint64, ref cursor.Ref, events []cursor.Event, onDone func()) (int, error) {
	emitted := 0
	defer func() {
		s.metrics.RecordReplayed(string(ref.Kind), emitted)
	}()

	for i, ev := range events {
		if i > 0 && s.pace > 0 {
			select {
			case <-ctx.Done():
				return emitted, ctx.Err()
			case <-s.clock.After(s.pace):
			}
		}
		if err := ctx.Err(); err != nil {
			return emitted, err
		}

		ok := s.fence.Do(gen, func() {
			s.sink.AppendEventRow(ref, ev)
			if s.catalog != nil && s.catalog.Known(ref.Kind, ev.Type) {
				s.sink.SetActiveStatus(ref, ev.Type)
			}
		})
		if !ok {
			s.metrics.RecordReplayAbandoned(string(ref.Kind))
			slog.Debug("replay abandoned", "ref", ref.String(), "generation", gen, "emitted", emitted, "pending", len(events)-emitted)
			return emitted, ErrStale
		}
		emitted++
	}

	if onDone != nil {
		if s.fence.Current() != gen {
			return emitted, ErrStale
		}
		onDone()
	}
	return emitted, nil
}
