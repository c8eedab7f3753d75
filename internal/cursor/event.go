package cursor

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/roach88/hyperdash/internal/hal"
)

// Event is one item of a resource's event feed.
// Immutable once parsed.
type Event struct {
	// Type is the event type, normally a workflow state label.
	Type string `json:"type"`

	// CreatedAt is the creation time in Unix milliseconds. It is the only
	// ordering key; feeds are not guaranteed to arrive sorted.
	CreatedAt int64 `json:"createdAt"`

	// Payload is the raw item as received.
	Payload map[string]any `json:"payload"`
}

// ParseFeed extracts the events of kind k from a feed representation.
// A representation without the expected embedded list is an empty feed.
func ParseFeed(k Kind, rep hal.Representation) ([]Event, error) {
	items, ok := rep.Embedded(k.FeedKey())
	if !ok {
		return nil, nil
	}

	events := make([]Event, 0, len(items))
	for i, item := range items {
		ts, err := parseTimestamp(item["createdAt"])
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", k.FeedKey(), i, err)
		}
		typ, _ := item[k.TypeField()].(string)
		events = append(events, Event{
			Type:      typ,
			CreatedAt: ts,
			Payload:   item,
		})
	}
	return events, nil
}

// parseTimestamp accepts epoch milliseconds as a number or an RFC 3339 string.
// A missing timestamp sorts first.
func parseTimestamp(v any) (int64, error) {
	switch ts := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		if n, err := ts.Int64(); err == nil {
			return n, nil
		}
		f, err := ts.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid createdAt %q", ts)
		}
		return int64(math.Trunc(f)), nil
	case float64:
		return int64(math.Trunc(ts)), nil
	case int64:
		return ts, nil
	case int:
		return int64(ts), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return 0, fmt.Errorf("invalid createdAt %q: %w", ts, err)
		}
		return t.UnixMilli(), nil
	default:
		return 0, fmt.Errorf("invalid createdAt type %T", v)
	}
}

// SortByCreatedAt returns a copy of events in ascending creation order.
// Events with equal timestamps keep their feed order.
func SortByCreatedAt(events []Event) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt < sorted[j].CreatedAt
	})
	return sorted
}
