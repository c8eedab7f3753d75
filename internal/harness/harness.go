package harness

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/faults"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/poller"
	"github.com/roach88/hyperdash/internal/states"
	"github.com/roach88/hyperdash/internal/testutil"
	"github.com/roach88/hyperdash/internal/view"
)

// BaseURL is the API root the fake serves under.
const BaseURL = "http://harness.test"

// epoch is the fixed start of harness time.
var epoch = time.Date(2017, 7, 14, 2, 40, 0, 0, time.UTC)

// fakeAPI serves a scripted resource through a testutil.FakeClient.
type fakeAPI struct {
	client      *testutil.FakeClient
	kind        cursor.Kind
	resourceURL string
	eventsURL   string
	commandsURL string
	commands    map[string]string
}

func newFakeAPI(s *Scenario, kind cursor.Kind) *fakeAPI {
	resourceURL := BaseURL + kind.ResourcePath(s.ID)
	return &fakeAPI{
		client:      testutil.NewFakeClient(),
		kind:        kind,
		resourceURL: resourceURL,
		eventsURL:   resourceURL + "/" + kind.EventsRel(),
		commandsURL: resourceURL + "/commands",
		commands:    s.Commands,
	}
}

// serve installs the state of c.
func (a *fakeAPI) serve(c Cycle) {
	links := []string{"self", a.resourceURL, a.kind.EventsRel(), a.eventsURL}
	if len(a.commands) > 0 {
		links = append(links, hal.CommandsRel, a.commandsURL)
	}
	a.client.Set(a.resourceURL, hal.Representation{
		hal.StatusKey: c.Status,
		hal.LinksKey:  testutil.Link(links...),
	})

	items := make([]map[string]any, len(c.Events))
	for i, ev := range c.Events {
		items[i] = map[string]any{
			a.kind.TypeField(): ev.Type,
			"createdAt":        ev.CreatedAt,
		}
	}
	a.client.Set(a.eventsURL, testutil.Feed(a.kind.FeedKey(), items...))

	if len(a.commands) > 0 {
		cmdLinks := []string{"self", a.commandsURL}
		for rel, status := range a.commands {
			href := a.commandsURL + "/" + rel
			cmdLinks = append(cmdLinks, rel, href)
			a.client.Set(href, hal.Representation{hal.StatusKey: status})
		}
		a.client.Set(a.commandsURL, hal.Representation{hal.LinksKey: testutil.Link(cmdLinks...)})
	}

	for _, target := range []string{FailSnapshot, FailEvents, FailCommands} {
		url := a.urlFor(target)
		if c.Fail == target {
			a.client.SetError(url, faults.NewTransport(http.MethodGet, url, http.StatusServiceUnavailable, nil))
		} else {
			a.client.SetError(url, nil)
		}
	}
}

func (a *fakeAPI) urlFor(target string) string {
	switch target {
	case FailEvents:
		return a.eventsURL
	case FailCommands:
		return a.commandsURL
	}
	return a.resourceURL
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh fake API, recorder and poller. Pacing runs on
// an instant clock, so replays complete without waiting.
func Run(scenario *Scenario) (*Result, error) {
	kind, err := cursor.ParseKind(scenario.Kind)
	if err != nil {
		return nil, err
	}
	catalog, err := states.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load state graphs: %w", err)
	}

	api := newFakeAPI(scenario, kind)
	rec := view.NewRecorder()
	p := poller.New(api.client, rec, catalog,
		poller.WithBaseURL(BaseURL),
		poller.WithClock(testutil.NewInstantClock(epoch)),
		poller.WithBackfill(scenario.backfill()),
	)
	p.Track(kind, scenario.ID)

	ctx := context.Background()
	result := NewResult()
	for i, c := range scenario.Cycles {
		api.serve(c)

		var summary CycleSummary
		if c.Invoke != "" {
			summary = invoke(ctx, p, c.Invoke)
		} else {
			report, err := p.Step(ctx)
			if err != nil {
				return nil, fmt.Errorf("cycles[%d]: %w", i, err)
			}
			summary = summarize(report)
		}
		result.Cycles = append(result.Cycles, summary)

		if c.Expect != nil {
			for _, msg := range checkExpect(c.Expect, summary) {
				result.AddError(fmt.Sprintf("cycles[%d]: %s", i, msg))
			}
		}
	}

	result.Lines = rec.Lines()
	if tr, ok := p.Tracked(); ok {
		result.FinalStatus = tr.CurrentStatus
		result.Cursor = tr.LastKnownEventCount
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func invoke(ctx context.Context, p *poller.Poller, rel string) CycleSummary {
	rep, err := p.Invoke(ctx, rel)
	if err != nil {
		return CycleSummary{Phase: "invoke", Error: err.Error()}
	}
	return CycleSummary{Status: rep.Status()}
}

func summarize(r poller.CycleReport) CycleSummary {
	s := CycleSummary{
		Replayed: r.Replayed,
		Status:   r.Status,
		Phase:    r.Phase,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	} else {
		s.Outcome = r.Outcome.String()
	}
	return s
}

func checkExpect(want *CycleExpect, got CycleSummary) []string {
	var errs []string
	if want.Outcome != "" && want.Outcome != got.Outcome {
		errs = append(errs, fmt.Sprintf("outcome: expected %q, got %q", want.Outcome, got.Outcome))
	}
	if want.Replayed != nil && *want.Replayed != got.Replayed {
		errs = append(errs, fmt.Sprintf("replayed: expected %d, got %d", *want.Replayed, got.Replayed))
	}
	if want.Status != "" && want.Status != got.Status {
		errs = append(errs, fmt.Sprintf("status: expected %q, got %q", want.Status, got.Status))
	}
	if want.Phase != "" && want.Phase != got.Phase {
		errs = append(errs, fmt.Sprintf("phase: expected %q, got %q", want.Phase, got.Phase))
	}
	if want.Error != "" && !strings.Contains(got.Error, want.Error) {
		errs = append(errs, fmt.Sprintf("error: expected %q in %q", want.Error, got.Error))
	}
	if want.Error == "" && got.Error != "" {
		errs = append(errs, fmt.Sprintf("unexpected error: %s", got.Error))
	}
	return errs
}
