package journal

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/roach88/hyperdash/internal/cursor"
	"github.com/roach88/hyperdash/internal/faults"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/view"
)

var _ view.Sink = (*Journal)(nil)

// RenderSnapshot records the representation in canonical form.
func (j *Journal) RenderSnapshot(ref cursor.Ref, rep hal.Representation) {
	body, err := MarshalCanonical(map[string]any(rep))
	if err != nil {
		j.failures.Add(1)
		slog.Error("journal write failed", "op", "snapshot", "ref", ref.String(), "error", err)
		return
	}
	j.exec("snapshot", `
		INSERT INTO snapshots (seq, kind, resource_id, status, body, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, j.seq.Next(), string(ref.Kind), ref.ID, rep.Status(), string(body), j.now())
}

// RenderCommands records the offered command relations.
func (j *Journal) RenderCommands(ref cursor.Ref, cmds []hal.Command) {
	rels := make([]string, len(cmds))
	for i, c := range cmds {
		rels[i] = c.Rel
	}
	j.exec("commands", `
		INSERT INTO commands (seq, kind, resource_id, rels, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, j.seq.Next(), string(ref.Kind), ref.ID, strings.Join(rels, " "), j.now())
}

// CreateEventTable records each history event as a backfill row.
func (j *Journal) CreateEventTable(ref cursor.Ref, events []cursor.Event) {
	for _, ev := range events {
		j.insertEvent(ref, ev, true)
	}
}

// AppendEventRow records one replayed event. An event already recorded,
// in a table or an earlier session, is not recorded again.
func (j *Journal) AppendEventRow(ref cursor.Ref, ev cursor.Event) {
	j.insertEvent(ref, ev, false)
}

// SetActiveStatus records a status change.
func (j *Journal) SetActiveStatus(ref cursor.Ref, label string) {
	j.exec("status", `
		INSERT INTO status_changes (seq, kind, resource_id, label, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, j.seq.Next(), string(ref.Kind), ref.ID, label, j.now())
}

// ReportError records a failure with its fault code, or ERROR for errors
// that are not faults.
func (j *Journal) ReportError(ref cursor.Ref, err error) {
	if err == nil {
		return
	}
	code := string(faults.CodeOf(err))
	if code == "" {
		code = "ERROR"
	}
	j.exec("error", `
		INSERT INTO errors (seq, kind, resource_id, code, message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, j.seq.Next(), string(ref.Kind), ref.ID, code, err.Error(), j.now())
}

func (j *Journal) insertEvent(ref cursor.Ref, ev cursor.Event, backfill bool) {
	fp, err := Fingerprint(ref, ev)
	if err != nil {
		j.failures.Add(1)
		slog.Error("journal write failed", "op", "row", "ref", ref.String(), "error", err)
		return
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		j.failures.Add(1)
		slog.Error("journal write failed", "op", "row", "ref", ref.String(), "error", err)
		return
	}
	j.exec("row", `
		INSERT INTO event_rows (seq, fingerprint, kind, resource_id, type, created_at, payload, backfill, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, j.seq.Next(), fp, string(ref.Kind), ref.ID, ev.Type, ev.CreatedAt, string(payload), backfill, j.now())
}

func (j *Journal) now() int64 {
	return j.clock.Now().UnixMilli()
}
