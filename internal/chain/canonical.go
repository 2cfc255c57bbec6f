// Package chain implements the tamper-evident hash chain over task
// events: canonical encoding, hash computation and verification. It is
// pure; persistence and locking live in the store and service layers.
package chain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// SchemaVersion is mixed into every hash input. Any change to the
// canonical encoding must bump this, otherwise historical verification
// silently breaks.
const SchemaVersion byte = 1

// Genesis is the prev_hash of the first event in every task's chain.
const Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// content is the canonical hashed form of an event. Field names are
// part of the hash input; renaming any of them is a schema change.
type content struct {
	TaskID        int64           `json:"task_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	TriggerSource string          `json:"trigger_source"`
	CreatedAt     string          `json:"created_at"`
}

// Canonicalize produces the deterministic byte encoding of an event's
// hashed fields: RFC 8785 (JCS) JSON with lexicographically sorted
// keys. Timestamps are rendered as RFC 3339 nanoseconds in UTC so the
// encoding is independent of the zone the value was scanned in.
func Canonicalize(taskID int64, eventType string, payload json.RawMessage, triggerSource string, createdAt time.Time) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`null`)
	}

	raw, err := json.Marshal(content{
		TaskID:        taskID,
		EventType:     eventType,
		Payload:       payload,
		TriggerSource: triggerSource,
		CreatedAt:     createdAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event content: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize event content: %w", err)
	}

	return canonical, nil
}
