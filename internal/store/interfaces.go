package store

import (
	"context"
	"errors"
	"time"

	"github.com/vins-anity/trailpack/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// TaskStore defines the contract for task data access.
type TaskStore interface {
	GetByID(ctx context.Context, id int64) (*model.Task, error)
	GetByWorkspaceAndKey(ctx context.Context, workspaceID int64, taskKey string) (*model.Task, error)
	// Upsert creates the task or returns the existing one for the same
	// workspace and key.
	Upsert(ctx context.Context, task *model.Task) (*model.Task, error)
}

// EventStore defines the contract for hash-chain event access. Events
// are append-only; there are no update or delete operations.
type EventStore interface {
	// LockTask takes the per-task append lock for the remainder of the
	// surrounding transaction. Callers must hold it across the
	// read-tail-then-write-head step; without it concurrent appends to
	// the same task can fork the chain.
	LockTask(ctx context.Context, taskID int64) error
	// GetTail returns the newest event of the task's chain, or
	// ErrNotFound for an empty chain.
	GetTail(ctx context.Context, taskID int64) (*model.Event, error)
	Create(ctx context.Context, ev *model.Event) (*model.Event, error)
	// ListByTask returns the full chain in order (ascending seq).
	ListByTask(ctx context.Context, taskID int64) ([]model.Event, error)
	ListByIDs(ctx context.Context, ids []int64) ([]model.Event, error)
}

// PacketStore defines the contract for proof packet data access.
type PacketStore interface {
	GetByID(ctx context.Context, id int64) (*model.ProofPacket, error)
	// GetOpenByTask returns the task's latest non-immutable packet, or
	// ErrNotFound when every packet is finalized or exported.
	GetOpenByTask(ctx context.Context, taskID int64) (*model.ProofPacket, error)
	// GetLatestByTask returns the task's newest packet regardless of
	// status, or ErrNotFound when the task has none.
	GetLatestByTask(ctx context.Context, taskID int64) (*model.ProofPacket, error)
	GetByShareToken(ctx context.Context, token string) (*model.ProofPacket, error)
	Create(ctx context.Context, packet *model.ProofPacket) (*model.ProofPacket, error)
	// Update persists status, event snapshot, summary and timestamps.
	// Stores do not re-check immutability; that is service policy.
	Update(ctx context.Context, packet *model.ProofPacket) (*model.ProofPacket, error)
	SetShareToken(ctx context.Context, id int64, token *string) error
	// ListPendingBefore returns packets still pending whose
	// pending_since is older than cutoff, for veto-window sweeps.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int32) ([]model.ProofPacket, error)
}

// DeliveryStore deduplicates provider webhook deliveries.
type DeliveryStore interface {
	// Insert records a delivery ID. It returns false when the same
	// provider delivery was already recorded.
	Insert(ctx context.Context, provider model.Provider, deliveryID string) (bool, error)
}

// WorkspaceStore defines the contract for workspace and webhook secret
// access.
type WorkspaceStore interface {
	GetByID(ctx context.Context, id int64) (*model.Workspace, error)
	// GetSecret returns the workspace's signing secret for the
	// provider, or ErrNotFound when none is configured.
	GetSecret(ctx context.Context, workspaceID int64, provider model.Provider) (string, error)
	UpsertSecret(ctx context.Context, secret *model.WorkspaceSecret) error
}
