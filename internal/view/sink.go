// Package view defines where the synchronizer sends what it observes.
//
// The poller and replay scheduler only ever call Sink methods; they never
// know how or where things are displayed. Sinks accept calls and do not
// return errors: a sink that can fail (a journal, a socket) handles and
// logs its own failures.
package view

import (
	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/hal"
)

// Sink receives display side effects for a watched resource.
// Implementations must be safe for concurrent use.
type Sink interface {
	// RenderSnapshot shows the current representation of the resource.
	RenderSnapshot(ref cursor.Ref, rep hal.Representation)

	// RenderCommands shows the commands the resource accepts.
	RenderCommands(ref cursor.Ref, cmds []hal.Command)

	// CreateEventTable shows a batch of historical events at once.
	CreateEventTable(ref cursor.Ref, events []cursor.Event)

	// AppendEventRow adds one replayed event to the log. Rows are never
	// retracted.
	AppendEventRow(ref cursor.Ref, ev cursor.Event)

	// SetActiveStatus moves the status indicator to label.
	SetActiveStatus(ref cursor.Ref, label string)

	// ReportError shows a non-fatal failure.
	ReportError(ref cursor.Ref, err error)
}

// Multi fans every call out to each sink in order.
type Multi []Sink

func (m Multi) RenderSnapshot(ref cursor.Ref, rep hal.Representation) {
	for _, s := range m {
		s.RenderSnapshot(ref, rep)
	}
}

func (m Multi) RenderCommands(ref cursor.Ref, cmds []hal.Command) {
	for _, s := range m {
		s.RenderCommands(ref, cmds)
	}
}

func (m Multi) CreateEventTable(ref cursor.Ref, events []cursor.Event) {
	for _, s := range m {
		s.CreateEventTable(ref, events)
	}
}

func (m Multi) AppendEventRow(ref cursor.Ref, ev cursor.Event) {
	for _, s := range m {
		s.AppendEventRow(ref, ev)
	}
}

func (m Multi) SetActiveStatus(ref cursor.Ref, label string) {
	for _, s := range m {
		s.SetActiveStatus(ref, label)
	}
}

func (m Multi) ReportError(ref cursor.Ref, err error) {
	for _, s := range m {
		s.ReportError(ref, err)
	}
}

// Discard is a Sink that ignores every call.
type Discard struct{}

func (Discard) RenderSnapshot(cursor.Ref, hal.Representation) {}
func (Discard) RenderCommands(cursor.Ref, []hal.Command)      {}
func (Discard) CreateEventTable(cursor.Ref, []cursor.Event)   {}
func (Discard) AppendEventRow(cursor.Ref, cursor.Event)       {}
func (Discard) SetActiveStatus(cursor.Ref, string)            {}
func (Discard) ReportError(cursor.Ref, error)                 {}
