// Package mapper normalizes provider webhook payloads into canonical
// event tuples for the ingestion pipeline. Mappers never trust a
// payload that has not passed signature verification.
package mapper

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"

	"github.com/vins-anity/trailpack/internal/model"
)

// ErrUnsupportedEvent marks provider events with no canonical mapping.
// The pipeline acknowledges these without appending.
var ErrUnsupportedEvent = errors.New("unsupported provider event")

// Normalized is the canonical tuple a provider payload maps to.
type Normalized struct {
	EventType     model.EventType
	TaskKey       string          // external task key, e.g. "PROJ-142"
	Payload       json.RawMessage // normalized provider-specific data
	TriggerSource string          // "<provider>:<mechanism>"
	DeliveryID    string          // provider delivery/event id, "" when the provider sends none
	Actor         string          // username of the triggering actor, best effort
}

// EventMapper maps a verified raw body plus headers to a Normalized
// event.
type EventMapper interface {
	Map(ctx context.Context, body []byte, headers map[string]string) (*Normalized, error)
}

// taskKeyPattern matches Jira-style task keys embedded in branch names,
// titles and messages.
var taskKeyPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)

// ExtractTaskKey returns the first task key found in any of the given
// strings, or "".
func ExtractTaskKey(candidates ...string) string {
	for _, s := range candidates {
		if key := taskKeyPattern.FindString(s); key != "" {
			return key
		}
	}
	return ""
}
