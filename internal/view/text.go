package view

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/hal"
)

// TextSink writes a styled, human-readable log to a terminal.
// Colors are dropped automatically when the writer is not a TTY.
type TextSink struct {
	mu sync.Mutex
	w  io.Writer

	header  lipgloss.Style
	key     lipgloss.Style
	status  lipgloss.Style
	row     lipgloss.Style
	muted   lipgloss.Style
	errText lipgloss.Style
}

// NewTextSink creates a sink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	r := lipgloss.NewRenderer(w)
	return &TextSink{
		w:       w,
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		key:     r.NewStyle().Foreground(lipgloss.Color("#A0AEC0")),
		status:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50")),
		row:     r.NewStyle().Foreground(lipgloss.Color("#CCCCCC")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#888888")),
		errText: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
	}
}

func (s *TextSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func (s *TextSink) RenderSnapshot(ref cursor.Ref, rep hal.Representation) {
	fields := rep.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(s.header.Render("== "+ref.String()+" ==") + "\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s %v\n", s.key.Render(k+":"), fields[k])
	}
	s.printf("%s", b.String())
}

func (s *TextSink) RenderCommands(ref cursor.Ref, cmds []hal.Command) {
	rels := make([]string, len(cmds))
	for i, c := range cmds {
		rels[i] = c.Rel
	}
	if len(rels) == 0 {
		s.printf("%s\n", s.muted.Render("  commands: none"))
		return
	}
	s.printf("  %s %s\n", s.key.Render("commands:"), strings.Join(rels, ", "))
}

func (s *TextSink) CreateEventTable(ref cursor.Ref, events []cursor.Event) {
	var b strings.Builder
	b.WriteString(s.header.Render(fmt.Sprintf("-- %s history (%d) --", ref, len(events))) + "\n")
	for _, ev := range events {
		b.WriteString("  " + s.row.Render(formatEvent(ev)) + "\n")
	}
	s.printf("%s", b.String())
}

func (s *TextSink) AppendEventRow(ref cursor.Ref, ev cursor.Event) {
	s.printf("  %s %s\n", s.muted.Render("+"), s.row.Render(formatEvent(ev)))
}

func (s *TextSink) SetActiveStatus(ref cursor.Ref, label string) {
	s.printf("  %s %s\n", s.key.Render("status ->"), s.status.Render(label))
}

func (s *TextSink) ReportError(ref cursor.Ref, err error) {
	s.printf("  %s %v\n", s.errText.Render("error:"), err)
}

func formatEvent(ev cursor.Event) string {
	ts := time.UnixMilli(ev.CreatedAt).UTC().Format(time.RFC3339)
	return fmt.Sprintf("%s  %s", ts, ev.Type)
}
