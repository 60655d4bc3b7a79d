package push

import (
	"context"
	"log/slog"
	"time"

	"agora.dev/courier/common/id"
	"agora.dev/courier/common/logger"
	"agora.dev/courier/internal/inbox"
	"agora.dev/courier/internal/model"
)

// Router wires the local Connection registry to the cross-instance fan-out
// bus. Channel broadcasts are push-only (consumer groups carry the durable
// path); targeted notifications fall through to the inbox when no instance
// anywhere holds a live connection within the grace window.
type Router struct {
	instanceID int64
	registry   *Registry
	bus        Bus
	claimer    Claimer
	inbox      inbox.Inbox
	grace      time.Duration
}

func NewRouter(registry *Registry, bus Bus, claimer Claimer, ib inbox.Inbox, grace time.Duration) *Router {
	return &Router{
		instanceID: id.New(),
		registry:   registry,
		bus:        bus,
		claimer:    claimer,
		inbox:      ib,
		grace:      grace,
	}
}

// Registry exposes the instance-local connection registry for transport
// handlers.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Run consumes fan-out records until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	return r.bus.Run(ctx, r.handleFanout)
}

// Broadcast pushes a freshly appended entry to the channel's recipients:
// locally right away, then to sibling instances via the bus. Push failures
// are quiet; the entry is already durable in the channel log.
func (r *Router) Broadcast(ctx context.Context, channel *model.Channel, msg *model.Message) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "courier.push.router",
		ChannelID: &msg.ChannelID,
		EntryID:   &msg.EntryID,
	})

	ev := Event{Kind: EventKindMessage, Message: msg}
	recipients := channel.Recipients(msg.AgentID)

	delivered := 0
	for _, agentID := range recipients {
		delivered += r.registry.Deliver(agentID, ev)
	}
	slog.DebugContext(ctx, "local push complete", "recipients", len(recipients), "connections", delivered)

	if err := r.bus.Publish(ctx, FanoutRecord{
		Kind:       EventKindMessage,
		Origin:     r.instanceID,
		Recipients: recipients,
		Message:    msg,
	}); err != nil {
		slog.WarnContext(ctx, "fanout publish failed", "error", err)
	}
}

// Notify pushes a targeted notification. If no connection on any instance
// claims it within the grace window, the record lands in the agent's inbox.
func (r *Router) Notify(ctx context.Context, n *model.Notification) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "courier.push.router",
		AgentID:   &n.AgentID,
		EventType: &n.EventType,
	})

	ev := Event{Kind: EventKindNotification, Notification: n}
	if r.registry.Deliver(n.AgentID, ev) > 0 {
		if _, err := r.claimer.Claim(ctx, n.ID); err != nil {
			slog.WarnContext(ctx, "delivery claim failed", "error", err)
		}
	}

	if err := r.bus.Publish(ctx, FanoutRecord{
		Kind:         EventKindNotification,
		Origin:       r.instanceID,
		TargetAgent:  n.AgentID,
		DeliveryID:   n.ID,
		Notification: n,
	}); err != nil {
		slog.WarnContext(ctx, "fanout publish failed", "error", err)
	}

	// The request must not wait out the grace window; detach from its
	// cancellation but keep its trace context.
	go r.settleNotify(context.WithoutCancel(ctx), n)
}

func (r *Router) settleNotify(ctx context.Context, n *model.Notification) {
	timer := time.NewTimer(r.grace)
	defer timer.Stop()
	<-timer.C

	claimed, err := r.claimer.Claimed(ctx, n.ID)
	if err != nil {
		slog.WarnContext(ctx, "claim check failed, storing notification", "error", err)
	}
	if claimed && err == nil {
		return
	}

	if err := r.inbox.Enqueue(ctx, n); err != nil {
		slog.ErrorContext(ctx, "inbox fallback failed", "error", err)
		return
	}
	slog.DebugContext(ctx, "notification stored in inbox")
}

func (r *Router) handleFanout(ctx context.Context, rec FanoutRecord) {
	if rec.Origin == r.instanceID {
		// Local connections were already served before publishing.
		return
	}

	switch rec.Kind {
	case EventKindMessage:
		if rec.Message == nil {
			return
		}
		ev := Event{Kind: EventKindMessage, Message: rec.Message}
		for _, agentID := range rec.Recipients {
			r.registry.Deliver(agentID, ev)
		}

	case EventKindNotification:
		if rec.Notification == nil {
			return
		}
		ev := Event{Kind: EventKindNotification, Notification: rec.Notification}
		if r.registry.Deliver(rec.TargetAgent, ev) > 0 {
			if _, err := r.claimer.Claim(ctx, rec.DeliveryID); err != nil {
				slog.WarnContext(ctx, "delivery claim failed", "error", err)
			}
		}
	}
}
