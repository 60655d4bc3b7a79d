// Package push delivers newly published entries to currently-connected
// consumers with minimal latency, and bridges publishes across process
// instances through a shared fan-out medium. It owns only live Connections;
// consumer-group and inbox state are never touched on disconnect.
package push

import (
	"sync"

	"agora.dev/courier/common/id"
	"agora.dev/courier/internal/model"
)

// EventKind discriminates what a push Event carries.
type EventKind string

const (
	EventKindMessage      EventKind = "message"
	EventKindNotification EventKind = "notification"
)

// Event is one item pushed down a live connection.
type Event struct {
	Kind         EventKind           `json:"kind"`
	Message      *model.Message      `json:"message,omitempty"`
	Notification *model.Notification `json:"notification,omitempty"`
}

// Connection is a live push-subscriber session for one agent. It exists
// only for the lifetime of the transport connection and is owned by the
// Registry of the instance that accepted it.
type Connection struct {
	ID      int64
	AgentID string

	// ChannelID restricts a channel-stream connection to one channel's
	// traffic; empty for notification streams.
	ChannelID string

	events chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(agentID, channelID string, buffer int) *Connection {
	return &Connection{
		ID:        id.New(),
		AgentID:   agentID,
		ChannelID: channelID,
		events:    make(chan Event, buffer),
		closed:    make(chan struct{}),
	}
}

// Events is the stream the transport handler reads from.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// Closed is closed when the connection is torn down.
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// send is non-blocking: a consumer too slow to drain its buffer loses the
// push, and catches up through the pull path instead.
func (c *Connection) send(ev Event) bool {
	select {
	case <-c.closed:
		return false
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// Registry is the instance-local table of live Connections, keyed by agent.
// One agent may hold several simultaneous connections. The registry is
// constructed at process start and injected, so tests can run several
// instances in-process.
type Registry struct {
	mu     sync.RWMutex
	agents map[string][]*Connection

	buffer int
}

func NewRegistry(buffer int) *Registry {
	if buffer <= 0 {
		buffer = 16
	}
	return &Registry{
		agents: make(map[string][]*Connection),
		buffer: buffer,
	}
}

// Register creates and tracks a Connection for the agent.
func (r *Registry) Register(agentID, channelID string) *Connection {
	conn := newConnection(agentID, channelID, r.buffer)

	r.mu.Lock()
	r.agents[agentID] = append(r.agents[agentID], conn)
	r.mu.Unlock()

	return conn
}

// Remove tears the Connection down and drops it from the registry in one
// step, so nothing can deliver to a dead socket afterwards.
func (r *Registry) Remove(conn *Connection) {
	conn.close()

	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.agents[conn.AgentID]
	for i, c := range conns {
		if c.ID == conn.ID {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(r.agents, conn.AgentID)
	} else {
		r.agents[conn.AgentID] = conns
	}
}

// Deliver pushes the event to every live connection of the agent that
// matches its scope, returning how many connections took it.
func (r *Registry) Deliver(agentID string, ev Event) int {
	r.mu.RLock()
	conns := make([]*Connection, len(r.agents[agentID]))
	copy(conns, r.agents[agentID])
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range conns {
		if !connWants(conn, ev) {
			continue
		}
		if conn.send(ev) {
			delivered++
		}
	}
	return delivered
}

// ConnectionCount reports the live connections for an agent.
func (r *Registry) ConnectionCount(agentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents[agentID])
}

func connWants(conn *Connection, ev Event) bool {
	switch ev.Kind {
	case EventKindMessage:
		return conn.ChannelID != "" && ev.Message != nil && conn.ChannelID == ev.Message.ChannelID
	case EventKindNotification:
		return conn.ChannelID == ""
	default:
		return false
	}
}
