package model

// StartPosition controls where a newly created consumer group begins
// reading.
type StartPosition string

const (
	// StartNew delivers only entries appended after the subscription.
	StartNew StartPosition = "new"
	// StartAll delivers the full retained history of the channel.
	StartAll StartPosition = "all"
)

func (p StartPosition) Valid() bool {
	return p == StartNew || p == StartAll
}

// GroupStatus reports the delivery state of one (channel, agent) consumer
// group.
type GroupStatus struct {
	ChannelID    string `json:"channelId"`
	AgentID      string `json:"agentId"`
	Subscribed   bool   `json:"subscribed"`
	PendingCount int64  `json:"pendingCount"`
	// Cursor is the highest entry ID already delivered to this group.
	// Empty when nothing has been delivered yet.
	Cursor string `json:"cursor"`
}

// Subscriber is one consumer group as seen from the channel side, for
// operational visibility.
type Subscriber struct {
	AgentID      string `json:"agentId"`
	PendingCount int64  `json:"pendingCount"`
	Cursor       string `json:"cursor"`
}
