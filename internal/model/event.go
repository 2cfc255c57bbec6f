package model

import (
	"encoding/json"
	"time"
)

// Provider identifies the external system a webhook originated from.
type Provider string

const (
	ProviderSlack  Provider = "slack"
	ProviderGitHub Provider = "github"
	ProviderJira   Provider = "jira"
	// ProviderSystem marks events appended by internal policy, such as
	// veto-window auto-finalization.
	ProviderSystem Provider = "system"
)

// EventType is the canonical lifecycle event classification. Values are
// persisted, so renames require a migration.
type EventType string

const (
	EventHandshake         EventType = "handshake"
	EventHandshakeRejected EventType = "handshake_rejected"
	EventPROpened          EventType = "pr_opened"
	EventPRMerged          EventType = "pr_merged"
	EventPRApproved        EventType = "pr_approved"
	EventCIPassed          EventType = "ci_passed"
	EventCIFailed          EventType = "ci_failed"
	EventClosureProposed   EventType = "closure_proposed"
	EventClosureVetoed     EventType = "closure_vetoed"
	EventClosureFinalized  EventType = "closure_finalized"
)

// Event is one link of a task's hash chain. Events are created once by
// the ingestion pipeline and never mutated or deleted.
type Event struct {
	ID            int64           `json:"id"`
	TaskID        int64           `json:"task_id"`
	Seq           int64           `json:"seq"` // per-task insertion counter, breaks created_at ties
	EventType     EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	TriggerSource string          `json:"trigger_source"` // "<provider>:<mechanism>", e.g. "github:webhook"
	EventHash     string          `json:"event_hash"`
	PrevHash      string          `json:"prev_hash"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IsClosure reports whether t participates in the packet state machine.
func (t EventType) IsClosure() bool {
	switch t {
	case EventClosureProposed, EventClosureVetoed, EventClosureFinalized:
		return true
	}
	return false
}
