// Package poller keeps a view in step with one hypermedia resource.
//
// A Poller watches at most one resource at a time. Each cycle fetches the
// resource snapshot, then its event feed, reconciles the feed against the
// tracked cursor, and replays any new events. Cycles never overlap: the next
// one is scheduled a fixed interval after the previous one, including its
// replay, has finished.
//
// Switching resources or deactivating advances the generation fence. Work
// still in flight from an earlier activation completes but cannot reach the
// view or the tracked state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/hyperdash/internal/clock"
	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/metrics"
	"github.com/roach88/hyperdash/internal/replay"
	"github.com/roach88/hyperdash/internal/view"
)

// DefaultInterval is the wait between the end of one cycle and the start of
// the next.
const DefaultInterval = 2 * time.Second

// ErrNotTracking is returned by Step and Invoke when no resource is tracked.
var ErrNotTracking = errors.New("no resource is being tracked")

// Poller synchronizes one tracked resource into a view sink.
type Poller struct {
	client    hal.Client
	sink      view.Sink
	catalog   replay.StateCatalog
	fence     *replay.Fence
	scheduler *replay.Scheduler
	clock     clock.Clock
	metrics   *metrics.Collector

	baseURL  string
	interval time.Duration
	pace     time.Duration
	backfill bool
	onCycle  func(CycleReport)

	// Guarded by fence.
	tracked       *cursor.TrackedResource
	commandsShown bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithBaseURL sets the URL resource paths are resolved against.
func WithBaseURL(u string) Option {
	return func(p *Poller) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithInterval sets the wait between cycles.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithPace sets the delay between replayed events.
func WithPace(d time.Duration) Option {
	return func(p *Poller) {
		p.pace = d
	}
}

// WithClock sets the time source for intervals and pacing.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// WithBackfill controls whether the history older than the latest event is
// rendered as a table on first observation.
func WithBackfill(enabled bool) Option {
	return func(p *Poller) {
		p.backfill = enabled
	}
}

// WithMetrics records cycle outcomes.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// WithOnCycle registers a callback invoked after every cycle of the loop.
// It runs on the loop goroutine and must not block for long.
func WithOnCycle(fn func(CycleReport)) Option {
	return func(p *Poller) {
		p.onCycle = fn
	}
}

// New creates an idle poller.
func New(client hal.Client, sink view.Sink, catalog replay.StateCatalog, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		sink:     sink,
		catalog:  catalog,
		fence:    &replay.Fence{},
		clock:    clock.Real{},
		interval: DefaultInterval,
		pace:     replay.DefaultPace,
		backfill: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.scheduler = replay.NewScheduler(p.fence, sink, catalog,
		replay.WithClock(p.clock),
		replay.WithPace(p.pace),
		replay.WithMetrics(p.metrics),
	)
	return p
}

// Track points the poller at kind/id without starting the loop, stopping
// any loop already running. Cursor state is reset when the resource differs
// from the one tracked before. Track returns the new generation.
func (p *Poller) Track(kind cursor.Kind, id string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trackLocked(cursor.Ref{Kind: kind, ID: id})
}

func (p *Poller) trackLocked(ref cursor.Ref) uint64 {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	gen := p.fence.Advance()
	p.fence.Do(gen, func() {
		if p.tracked == nil || p.tracked.Ref != ref {
			p.tracked = cursor.NewTracked(ref)
			p.commandsShown = false
		}
	})
	slog.Debug("tracking resource", "ref", ref.String(), "generation", gen)
	return gen
}

// Activate starts watching kind/id. The first cycle runs immediately; later
// cycles start one interval after the previous cycle finished. Activating
// while another resource is active switches to the new one.
func (p *Poller) Activate(ctx context.Context, kind cursor.Kind, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ref := cursor.Ref{Kind: kind, ID: id}
	gen := p.trackLocked(ref)

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	slog.Info("poller activated", "ref", ref.String(), "generation", gen, "interval", p.interval)
	go p.loop(loopCtx, gen, done)
}

// Deactivate stops scheduling cycles. A cycle in flight is left to finish
// but none of its results reach the view after Deactivate returns.
func (p *Poller) Deactivate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	gen := p.fence.Advance()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	slog.Info("poller deactivated", "generation", gen)
}

// Wait blocks until the loop started by the latest Activate has exited.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Tracked returns a copy of the tracked resource state.
func (p *Poller) Tracked() (cursor.TrackedResource, bool) {
	_, tr, ok := p.current()
	return tr, ok
}

// current returns the generation together with the state tracked under it.
func (p *Poller) current() (gen uint64, tr cursor.TrackedResource, ok bool) {
	p.fence.Peek(func(g uint64) {
		gen = g
		if p.tracked != nil {
			tr = *p.tracked
			ok = true
		}
	})
	return gen, tr, ok
}

// Step runs one cycle for the tracked resource on the calling goroutine.
// It must not be used while an activation loop is running.
func (p *Poller) Step(ctx context.Context) (CycleReport, error) {
	gen, _, ok := p.current()
	if !ok {
		return CycleReport{}, ErrNotTracking
	}
	return p.cycle(ctx, gen), nil
}

func (p *Poller) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	for {
		report := p.cycle(ctx, gen)
		if p.onCycle != nil {
			p.onCycle(report)
		}
		if report.Stale || ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.interval):
		}
	}
}

func (p *Poller) resourceURL(ref cursor.Ref) string {
	return p.baseURL + ref.Kind.ResourcePath(ref.ID)
}

// Invoke executes the command with relation rel on the tracked resource and
// shows the resulting representation.
func (p *Poller) Invoke(ctx context.Context, rel string) (hal.Representation, error) {
	gen, tr, ok := p.current()
	if !ok {
		return nil, ErrNotTracking
	}
	ref := tr.Ref

	snap, err := p.client.Get(ctx, p.resourceURL(ref))
	if err != nil {
		return nil, p.reportInvoke(gen, ref, err)
	}
	cmds, err := hal.FetchCommands(ctx, p.client, snap)
	if err != nil {
		return nil, p.reportInvoke(gen, ref, err)
	}

	href := ""
	for _, c := range cmds {
		if c.Rel == rel {
			href = c.Href
			break
		}
	}
	if href == "" {
		return nil, fmt.Errorf("command %q not offered by %s", rel, ref)
	}

	result, err := p.client.Get(ctx, href)
	if err != nil {
		return nil, p.reportInvoke(gen, ref, err)
	}

	status := result.Status()
	p.fence.Do(gen, func() {
		p.sink.RenderSnapshot(ref, result)
		if status != "" && p.catalog != nil && p.catalog.Known(ref.Kind, status) {
			p.sink.SetActiveStatus(ref, status)
		}
		if status != "" {
			p.tracked.CurrentStatus = status
		}
	})
	slog.Info("command invoked", "ref", ref.String(), "command", rel, "status", status)
	return result, nil
}

func (p *Poller) reportInvoke(gen uint64, ref cursor.Ref, err error) error {
	p.metrics.RecordTransportError(string(ref.Kind), "invoke")
	p.fence.Do(gen, func() {
		p.sink.ReportError(ref, err)
	})
	return err
}
