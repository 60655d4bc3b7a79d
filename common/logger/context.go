package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so delivery context
// (channel_id, agent_id, entry_id, ...) is included without touching every
// log statement.
type LogFields struct {
	ChannelID  *string // channel the operation targets
	AgentID    *string // acting or receiving agent
	EntryID    *string // channel log entry ID (Redis stream ID)
	EventType  *string // event type (e.g. "message", "mention")
	DeliveryID *string // webhook delivery ID
	Component  string  // component name (e.g. "courier.push.router")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.ChannelID != nil {
		result.ChannelID = next.ChannelID
	}
	if next.AgentID != nil {
		result.AgentID = next.AgentID
	}
	if next.EntryID != nil {
		result.EntryID = next.EntryID
	}
	if next.EventType != nil {
		result.EventType = next.EventType
	}
	if next.DeliveryID != nil {
		result.DeliveryID = next.DeliveryID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline.
func Ptr[T any](v T) *T {
	return &v
}
