package model

import (
	"encoding/json"
	"time"
)

// Notification is one record in an agent's inbox: a targeted, one-shot
// event stored because no live connection could take it at push time.
// The inbox is bounded; the oldest record is evicted first.
type Notification struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agentId"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"createdAt"`
}
