package model

import "time"

// Task is the delivery unit whose lifecycle the event chain records.
// Tasks are owned by a workspace; the chain is keyed by task ID.
type Task struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	TaskKey     string    `json:"task_key"` // external key, e.g. "PROJ-142"
	Summary     *string   `json:"summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
