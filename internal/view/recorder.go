package view

import (
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/faults"
	"github.com/roach88/hyperdash/internal/hal"
)

// Call is one recorded Sink invocation.
type Call struct {
	Op     string
	Ref    cursor.Ref
	Status string
	Events []cursor.Event
	Cmds   []hal.Command
	Err    error
}

// Recorder is a Sink that keeps every call in memory.
// Used by tests and the scenario harness.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *Recorder) RenderSnapshot(ref cursor.Ref, rep hal.Representation) {
	r.add(Call{Op: "snapshot", Ref: ref, Status: rep.Status()})
}

func (r *Recorder) RenderCommands(ref cursor.Ref, cmds []hal.Command) {
	r.add(Call{Op: "commands", Ref: ref, Cmds: append([]hal.Command(nil), cmds...)})
}

func (r *Recorder) CreateEventTable(ref cursor.Ref, events []cursor.Event) {
	r.add(Call{Op: "table", Ref: ref, Events: append([]cursor.Event(nil), events...)})
}

func (r *Recorder) AppendEventRow(ref cursor.Ref, ev cursor.Event) {
	r.add(Call{Op: "row", Ref: ref, Events: []cursor.Event{ev}})
}

func (r *Recorder) SetActiveStatus(ref cursor.Ref, label string) {
	r.add(Call{Op: "status", Ref: ref, Status: label})
}

func (r *Recorder) ReportError(ref cursor.Ref, err error) {
	r.add(Call{Op: "error", Ref: ref, Err: err})
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Len returns the number of recorded calls.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Ops returns the recorded calls of the given op.
func (r *Recorder) Ops(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the recording.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Lines renders the recording one call per line, in a stable format
// suitable for golden comparison.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, c.String())
	}
	return lines
}

func (c Call) String() string {
	switch c.Op {
	case "snapshot", "status":
		return fmt.Sprintf("%s %s %s", c.Op, c.Ref, c.Status)
	case "commands":
		rels := make([]string, len(c.Cmds))
		for i, cmd := range c.Cmds {
			rels[i] = cmd.Rel
		}
		return fmt.Sprintf("%s %s [%s]", c.Op, c.Ref, strings.Join(rels, " "))
	case "table", "row":
		items := make([]string, len(c.Events))
		for i, ev := range c.Events {
			items[i] = fmt.Sprintf("%s@%d", ev.Type, ev.CreatedAt)
		}
		if c.Op == "row" {
			return fmt.Sprintf("%s %s %s", c.Op, c.Ref, strings.Join(items, " "))
		}
		return fmt.Sprintf("%s %s [%s]", c.Op, c.Ref, strings.Join(items, " "))
	case "error":
		code := faults.CodeOf(c.Err)
		if code == "" {
			return fmt.Sprintf("%s %s %v", c.Op, c.Ref, c.Err)
		}
		return fmt.Sprintf("%s %s %s", c.Op, c.Ref, code)
	}
	return fmt.Sprintf("%s %s", c.Op, c.Ref)
}
