package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields carries structured fields that are automatically attached
// to every log record emitted within a context. Handlers, services and
// the worker enrich the context once and never repeat the fields in
// individual log calls.
type LogFields struct {
	TaskID      *int64  // owning task of the event chain
	EventID     *int64  // appended event ID
	PacketID    *int64  // proof packet ID
	WorkspaceID *int64  // tenant workspace
	DeliveryID  *string // provider webhook delivery ID
	Provider    *string // webhook provider (slack, github, jira)
	EventType   *string // canonical event type
	MessageID   *string // Redis stream message ID
	Component   string  // component name, e.g. "trailpack.worker.processor"
}

// WithLogFields enriches ctx with structured log fields. Repeated calls
// merge, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields returns the log fields stored in ctx, or a zero value.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.TaskID != nil {
		result.TaskID = next.TaskID
	}
	if next.EventID != nil {
		result.EventID = next.EventID
	}
	if next.PacketID != nil {
		result.PacketID = next.PacketID
	}
	if next.WorkspaceID != nil {
		result.WorkspaceID = next.WorkspaceID
	}
	if next.DeliveryID != nil {
		result.DeliveryID = next.DeliveryID
	}
	if next.Provider != nil {
		result.Provider = next.Provider
	}
	if next.EventType != nil {
		result.EventType = next.EventType
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr builds a pointer from a value, for inline LogFields literals.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to maxLen characters, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
