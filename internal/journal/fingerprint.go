package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/hyperdash/internal/cursor"
)

// DomainEventRow separates event fingerprints from any other hash of the
// same bytes. The version suffix allows a future algorithm change.
const DomainEventRow = "hyperdash/event-row/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint is the content identity of an event shown for ref. The same
// event delivered twice, in a backfill table and again in a replay, has the
// same fingerprint.
func Fingerprint(ref cursor.Ref, ev cursor.Event) (string, error) {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"kind":       string(ref.Kind),
		"id":         ref.ID,
		"type":       ev.Type,
		"created_at": ev.CreatedAt,
		"payload":    payload,
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainEventRow, canonical), nil
}
