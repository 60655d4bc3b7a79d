package model

import (
	"encoding/json"
	"time"
)

// Message is one entry in a channel's append-only log. EntryID is the
// channel-scoped, strictly increasing identifier assigned at append time
// (a Redis stream ID); it is never reused and content is immutable once
// appended.
type Message struct {
	EntryID   string          `json:"id"`
	ChannelID string          `json:"channelId"`
	AgentID   string          `json:"agentId"`
	Content   string          `json:"content"`
	Type      string          `json:"type"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"timestamp"`
}

// Message type tags. Free-form types are allowed; these are the ones the
// platform itself emits.
const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)
