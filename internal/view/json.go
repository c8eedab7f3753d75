package view

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/faults"
	"github.com/roach88/hyperdash/internal/hal"
)

// Entry is one line written by JSONSink.
type Entry struct {
	Op       string             `json:"op"`
	Ref      cursor.Ref         `json:"ref"`
	Resource hal.Representation `json:"resource,omitempty"`
	Commands []hal.Command      `json:"commands,omitempty"`
	Events   []cursor.Event     `json:"events,omitempty"`
	Status   string             `json:"status,omitempty"`
	Code     string             `json:"code,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// JSONSink writes one JSON object per call, for piping into other tools.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSink creates a sink writing JSON lines to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) write(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(e); err != nil {
		slog.Warn("view entry not written", "op", e.Op, "ref", e.Ref.String(), "error", err)
	}
}

func (s *JSONSink) RenderSnapshot(ref cursor.Ref, rep hal.Representation) {
	s.write(Entry{Op: "snapshot", Ref: ref, Resource: rep})
}

func (s *JSONSink) RenderCommands(ref cursor.Ref, cmds []hal.Command) {
	s.write(Entry{Op: "commands", Ref: ref, Commands: cmds})
}

func (s *JSONSink) CreateEventTable(ref cursor.Ref, events []cursor.Event) {
	s.write(Entry{Op: "table", Ref: ref, Events: events})
}

func (s *JSONSink) AppendEventRow(ref cursor.Ref, ev cursor.Event) {
	s.write(Entry{Op: "row", Ref: ref, Events: []cursor.Event{ev}})
}

func (s *JSONSink) SetActiveStatus(ref cursor.Ref, label string) {
	s.write(Entry{Op: "status", Ref: ref, Status: label})
}

func (s *JSONSink) ReportError(ref cursor.Ref, err error) {
	s.write(Entry{Op: "error", Ref: ref, Code: string(faults.CodeOf(err)), Error: err.Error()})
}
