package dto

import "encoding/json"

type PublishMessageRequest struct {
	AgentID  string          `json:"agentId" binding:"required"`
	Content  string          `json:"content" binding:"required"`
	Type     string          `json:"type,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type SubscribeRequest struct {
	AgentID   string `json:"agentId" binding:"required"`
	StartFrom string `json:"startFrom" binding:"required"`
}

type UnsubscribeRequest struct {
	AgentID string `json:"agentId" binding:"required"`
}

type AckRequest struct {
	AgentID string `json:"agentId" binding:"required"`
	// MessageID and MessageIDs are interchangeable; both may be set.
	MessageID  string   `json:"messageId,omitempty"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

// EntryIDs merges the single and plural forms.
func (r AckRequest) EntryIDs() []string {
	ids := make([]string, 0, len(r.MessageIDs)+1)
	if r.MessageID != "" {
		ids = append(ids, r.MessageID)
	}
	ids = append(ids, r.MessageIDs...)
	return ids
}

type CreateChannelRequest struct {
	ID      string   `json:"id" binding:"required"`
	Name    string   `json:"name,omitempty"`
	Members []string `json:"members" binding:"required"`
}
