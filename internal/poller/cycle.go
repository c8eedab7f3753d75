package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/faults"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/replay"
)

// Cycle phases, used in reports and transport error metrics.
const (
	PhaseSnapshot = "snapshot"
	PhaseCommands = "commands"
	PhaseEvents   = "events"
	PhaseReplay   = "replay"
	PhaseRefresh  = "refresh"
)

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	Ref        cursor.Ref
	Generation uint64

	// Outcome is the reconciliation result; meaningful when Err is nil and
	// the cycle reached the events phase.
	Outcome cursor.Outcome

	// Replayed is the number of events emitted to the view.
	Replayed int

	// Status is the resource status after the cycle.
	Status string

	// Phase is where the cycle ended early, or "" if it ran to completion.
	Phase string

	// Err is the failure that ended the cycle early.
	Err error

	// Stale is true when the activation was superseded mid-cycle and the
	// remaining results were discarded.
	Stale bool
}

func (r CycleReport) outcomeLabel() string {
	switch {
	case r.Stale:
		return "stale"
	case r.Err != nil:
		return "error"
	}
	return r.Outcome.String()
}

// cycle runs FETCHING_SNAPSHOT, FETCHING_EVENTS, reconciliation and, when
// there is a delta, REPLAYING followed by one more snapshot fetch.
func (p *Poller) cycle(ctx context.Context, gen uint64) (report CycleReport) {
	report.Generation = gen
	defer func() {
		p.metrics.RecordCycle(string(report.Ref.Kind), report.outcomeLabel())
	}()

	var ref cursor.Ref
	if !p.fence.Do(gen, func() { ref = p.tracked.Ref }) {
		report.Stale = true
		return report
	}
	report.Ref = ref
	log := slog.With("ref", ref.String(), "generation", gen)

	// Snapshot.
	resourceURL := p.resourceURL(ref)
	snap, err := p.client.Get(ctx, resourceURL)
	if err != nil {
		return p.fail(gen, report, PhaseSnapshot, err)
	}

	var eventsHref string
	var showCommands bool
	if !p.fence.Do(gen, func() {
		p.sink.RenderSnapshot(ref, snap)
		p.tracked.CurrentStatus = snap.Status()
		if href, ok := snap.Href(ref.Kind.EventsRel()); ok {
			p.tracked.EventsHref = href
		}
		eventsHref = p.tracked.EventsHref
		showCommands = !p.commandsShown
	}) {
		report.Stale = true
		return report
	}
	report.Status = snap.Status()

	if showCommands {
		p.renderCommands(ctx, gen, ref, snap)
	}

	if eventsHref == "" {
		return p.fail(gen, report, PhaseEvents,
			faults.NewTransport(http.MethodGet, resourceURL, 0,
				fmt.Errorf("link relation %q not found", ref.Kind.EventsRel())))
	}

	// Events.
	feedRep, err := p.client.Get(ctx, eventsHref)
	if err != nil {
		return p.fail(gen, report, PhaseEvents, err)
	}
	feed, err := cursor.ParseFeed(ref.Kind, feedRep)
	if err != nil {
		return p.fail(gen, report, PhaseEvents,
			faults.NewTransport(http.MethodGet, eventsHref, 0, err))
	}

	var decision cursor.Decision
	if !p.fence.Do(gen, func() {
		previous := p.tracked.LastKnownEventCount
		decision = cursor.Reconcile(*p.tracked, feed)
		p.tracked.Apply(decision)

		switch decision.Outcome {
		case cursor.FirstObservation:
			history := decision.History
			if !p.backfill {
				history = nil
			}
			p.sink.CreateEventTable(ref, history)
		case cursor.Shrunk:
			p.metrics.RecordReconciliationFault(string(ref.Kind))
			log.Warn("event feed shrank, cursor reset",
				"previous", previous, "current", decision.Count, "error", decision.Fault)
		}
	}) {
		report.Stale = true
		return report
	}
	report.Outcome = decision.Outcome

	if len(decision.NewEvents) == 0 {
		log.Debug("poll cycle complete", "outcome", decision.Outcome, "events", decision.Count)
		return report
	}

	// Replay, then pick up resource changes caused by the new events.
	var refreshErr error
	n, err := p.scheduler.Replay(ctx, gen, ref, decision.NewEvents, func() {
		refreshErr = p.refresh(ctx, gen, ref, resourceURL, &report)
	})
	report.Replayed = n
	switch {
	case errors.Is(err, replay.ErrStale):
		report.Stale = true
		return report
	case err != nil:
		// Only context cancellation ends a replay early otherwise.
		report.Phase = PhaseReplay
		report.Err = err
		report.Stale = p.fence.Current() != gen
		return report
	case refreshErr != nil:
		report.Phase = PhaseRefresh
		report.Err = refreshErr
		return report
	}

	log.Debug("poll cycle complete", "outcome", decision.Outcome, "replayed", n, "events", decision.Count)
	return report
}

// refresh fetches the snapshot again after a replay. It does not touch the
// event cursor.
func (p *Poller) refresh(ctx context.Context, gen uint64, ref cursor.Ref, url string, report *CycleReport) error {
	snap, err := p.client.Get(ctx, url)
	if err != nil {
		p.metrics.RecordTransportError(string(ref.Kind), PhaseRefresh)
		slog.Warn("snapshot refresh failed", "ref", ref.String(), "generation", gen, "error", err)
		p.fence.Do(gen, func() {
			p.sink.ReportError(ref, err)
		})
		return err
	}
	p.fence.Do(gen, func() {
		p.sink.RenderSnapshot(ref, snap)
		p.tracked.CurrentStatus = snap.Status()
		report.Status = snap.Status()
	})
	return nil
}

// renderCommands shows the command links once per tracked resource. A
// failure is reported but does not end the cycle.
func (p *Poller) renderCommands(ctx context.Context, gen uint64, ref cursor.Ref, snap hal.Representation) {
	cmds, err := hal.FetchCommands(ctx, p.client, snap)
	if err != nil {
		p.metrics.RecordTransportError(string(ref.Kind), PhaseCommands)
		slog.Warn("commands fetch failed", "ref", ref.String(), "generation", gen, "error", err)
		p.fence.Do(gen, func() {
			p.sink.ReportError(ref, err)
		})
		return
	}
	p.fence.Do(gen, func() {
		p.sink.RenderCommands(ref, cmds)
		p.commandsShown = true
	})
}

// fail reports a transport error to the view and ends the cycle. The next
// scheduled cycle still runs.
func (p *Poller) fail(gen uint64, report CycleReport, phase string, err error) CycleReport {
	report.Phase = phase
	report.Err = err

	if !p.fence.Do(gen, func() {
		p.sink.ReportError(report.Ref, err)
	}) {
		report.Stale = true
		return report
	}
	p.metrics.RecordTransportError(string(report.Ref.Kind), phase)
	slog.Warn("poll cycle failed", "ref", report.Ref.String(), "generation", gen, "phase", phase, "error", err)
	return report
}
