package model

import "time"

// Workspace is the tenant boundary. All secrets, tasks and packets are
// scoped to a workspace.
type Workspace struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	VetoWindowSeconds *int64    `json:"veto_window_seconds,omitempty"` // nil = deployment default
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// WorkspaceSecret is a per-provider webhook signing secret. A missing
// secret is a hard rejection for that provider's webhooks, never a
// pass-through.
type WorkspaceSecret struct {
	WorkspaceID int64     `json:"workspace_id"`
	Provider    Provider  `json:"provider"`
	Secret      string    `json:"-"` // never expose secrets in API responses
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WebhookDelivery records a processed provider delivery ID so replayed
// deliveries are acknowledged without re-appending.
type WebhookDelivery struct {
	ID         int64     `json:"id"`
	Provider   Provider  `json:"provider"`
	DeliveryID string    `json:"delivery_id"`
	CreatedAt  time.Time `json:"created_at"`
}
