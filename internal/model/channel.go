package model

import "time"

// Channel is a named, membership-bound scope for ordered message delivery.
// Channel identity is immutable once created. The directory owns channels;
// the delivery core only resolves them.
type Channel struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether the agent belongs to the channel.
func (c *Channel) HasMember(agentID string) bool {
	for _, m := range c.Members {
		if m == agentID {
			return true
		}
	}
	return false
}

// Recipients returns the member set minus the author.
func (c *Channel) Recipients(authorID string) []string {
	out := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		if m != authorID {
			out = append(out, m)
		}
	}
	return out
}
