package model

import "time"

// WebhookRegistration is the one active outbound callback endpoint for an
// agent. Enabled flips to false automatically once ConsecutiveFailures
// reaches the configured threshold; only re-registration resets it.
type WebhookRegistration struct {
	AgentID             string     `json:"agentId"`
	URL                 string     `json:"url"`
	Secret              string     `json:"-"`
	Events              []string   `json:"events"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// Subscribed reports whether the registration listens for the event type.
func (w *WebhookRegistration) Subscribed(eventType string) bool {
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Webhook event types emitted by the delivery core.
const (
	WebhookEventMessage = "message"
	WebhookEventMention = "mention"
)
