package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/hyperdash/internal/cursor"
)

// Entry is one recorded view call.
type Entry struct {
	Seq        int64      `json:"seq"`
	Op         string     `json:"op"`
	Ref        cursor.Ref `json:"-"`
	Detail     string     `json:"detail"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// Line renders e in the form "<op> <kind>/<id> <detail>".
func (e Entry) Line() string {
	return fmt.Sprintf("%s %s %s", e.Op, e.Ref, e.Detail)
}

// EventRow is one recorded event.
type EventRow struct {
	Seq         int64          `json:"seq"`
	Fingerprint string         `json:"fingerprint"`
	Type        string         `json:"type"`
	CreatedAt   int64          `json:"createdAt"`
	Payload     map[string]any `json:"payload"`
	Backfill    bool           `json:"backfill"`
}

// Transcript returns every recorded call for ref in the order it was made.
//
// Ops are snapshot (detail: status), commands (relations), table and row
// (TYPE@createdAt), status (label) and error (the fault code, or the message
// for errors that are not faults).
//
// Returns an empty slice (not nil) if nothing was recorded.
func (j *Journal) Transcript(ctx context.Context, ref cursor.Ref) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, 'snapshot', status, recorded_at FROM snapshots
			WHERE kind = ? AND resource_id = ?
		UNION ALL
		SELECT seq, 'commands', '[' || rels || ']', recorded_at FROM commands
			WHERE kind = ? AND resource_id = ?
		UNION ALL
		SELECT seq, CASE backfill WHEN 1 THEN 'table' ELSE 'row' END,
			type || '@' || created_at, recorded_at FROM event_rows
			WHERE kind = ? AND resource_id = ?
		UNION ALL
		SELECT seq, 'status', label, recorded_at FROM status_changes
			WHERE kind = ? AND resource_id = ?
		UNION ALL
		SELECT seq, 'error', CASE code WHEN 'ERROR' THEN message ELSE code END, recorded_at FROM errors
			WHERE kind = ? AND resource_id = ?
		ORDER BY 1 ASC
	`, refArgs(ref, 5)...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var recorded int64
		if err := rows.Scan(&e.Seq, &e.Op, &e.Detail, &recorded); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		e.Ref = ref
		e.RecordedAt = time.UnixMilli(recorded).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return entries, nil
}

// Events returns the recorded events of ref ordered by creation time.
//
// Returns an empty slice (not nil) if no events were recorded.
func (j *Journal) Events(ctx context.Context, ref cursor.Ref) ([]EventRow, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, fingerprint, type, created_at, payload, backfill
		FROM event_rows
		WHERE kind = ? AND resource_id = ?
		ORDER BY created_at ASC, seq ASC
	`, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRow{}
	for rows.Next() {
		var ev EventRow
		var payload string
		if err := rows.Scan(&ev.Seq, &ev.Fingerprint, &ev.Type, &ev.CreatedAt, &payload, &ev.Backfill); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of event %d: %w", ev.Seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LatestStatus returns the last status label recorded for ref.
func (j *Journal) LatestStatus(ctx context.Context, ref cursor.Ref) (string, bool, error) {
	var label string
	err := j.db.QueryRowContext(ctx, `
		SELECT label FROM status_changes
		WHERE kind = ? AND resource_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, string(ref.Kind), ref.ID).Scan(&label)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query latest status: %w", err)
	}
	return label, true, nil
}

// Resources returns every resource with at least one snapshot, ordered by
// kind then ID.
func (j *Journal) Resources(ctx context.Context) ([]cursor.Ref, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT DISTINCT kind, resource_id FROM snapshots
		ORDER BY kind ASC, resource_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	refs := []cursor.Ref{}
	for rows.Next() {
		var kind, id string
		if err := rows.Scan(&kind, &id); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		refs = append(refs, cursor.Ref{Kind: cursor.Kind(kind), ID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return refs, nil
}

func refArgs(ref cursor.Ref, times int) []any {
	args := make([]any, 0, 2*times)
	for i := 0; i < times; i++ {
		args = append(args, string(ref.Kind), ref.ID)
	}
	return args
}
