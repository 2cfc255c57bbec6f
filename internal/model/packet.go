package model

import "time"

// PacketStatus is the proof packet state machine.
//
//	draft -> pending -> finalized -> exported
//
// pending reverts to draft on a veto. Nothing leaves finalized or
// exported for the same packet; later task activity opens a new packet.
type PacketStatus string

const (
	PacketDraft     PacketStatus = "draft"
	PacketPending   PacketStatus = "pending"
	PacketFinalized PacketStatus = "finalized"
	PacketExported  PacketStatus = "exported"
)

// ProofPacket is an immutable, shareable summary of a task's verified
// event history. Events are referenced by ID, not copied.
type ProofPacket struct {
	ID           int64        `json:"id"`
	TaskID       int64        `json:"task_id"`
	Status       PacketStatus `json:"status"`
	EventIDs     []int64      `json:"event_ids"`
	Summary      *string      `json:"summary,omitempty"`
	SummaryModel *string      `json:"summary_model,omitempty"` // producing model id, or "fallback"
	ShareToken   *string      `json:"-"`                       // never serialized into API responses directly
	CreatedAt    time.Time    `json:"created_at"`
	PendingSince *time.Time   `json:"pending_since,omitempty"` // set on draft->pending, drives veto-window policy
	FinalizedAt  *time.Time   `json:"finalized_at,omitempty"`
	ExportedAt   *time.Time   `json:"exported_at,omitempty"`
}

// Immutable reports whether the packet's event set and summary are
// committed.
func (s PacketStatus) Immutable() bool {
	return s == PacketFinalized || s == PacketExported
}

// CanTransition reports whether the status may move to next. Export is
// re-enterable for repeated exports.
func (s PacketStatus) CanTransition(next PacketStatus) bool {
	switch s {
	case PacketDraft:
		return next == PacketPending
	case PacketPending:
		return next == PacketDraft || next == PacketFinalized
	case PacketFinalized:
		return next == PacketExported
	case PacketExported:
		return next == PacketExported
	}
	return false
}
