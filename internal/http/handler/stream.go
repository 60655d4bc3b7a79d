package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"agora.dev/courier/internal/push"
	"agora.dev/courier/internal/service"
)

// StreamHandler serves the push path: long-lived SSE connections backed
// by push.Connection objects in the instance-local registry. Heartbeat
// and teardown are lifecycle methods of the connection, not timers
// closed over the request handler.
type StreamHandler struct {
	router        *push.Router
	channels      service.ChannelService
	notifications service.NotificationService
	heartbeat     time.Duration
}

func NewStreamHandler(router *push.Router, channels service.ChannelService, notifications service.NotificationService, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StreamHandler{
		router:        router,
		channels:      channels,
		notifications: notifications,
		heartbeat:     heartbeat,
	}
}

// ChannelStream pushes new channel entries as they arrive. The stream
// is best-effort: a slow client loses pushes and catches up through the
// pull path.
func (h *StreamHandler) ChannelStream(c *gin.Context) {
	ctx := c.Request.Context()

	channelID := c.Param("id")
	agentID := c.Query("agentId")
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agentId is required"})
		return
	}

	channel, err := h.channels.Get(ctx, channelID)
	if err != nil {
		respondServiceError(c, err, "failed to resolve channel")
		return
	}
	if !channel.HasMember(agentID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "agent is not a channel member"})
		return
	}

	conn := h.router.Registry().Register(agentID, channelID)
	defer h.router.Registry().Remove(conn)

	h.serve(c, conn)
}

// NotificationStream pushes targeted notifications. While at least one
// instance holds such a connection for the agent, notifications are not
// diverted to the inbox.
func (h *StreamHandler) NotificationStream(c *gin.Context) {
	ctx := c.Request.Context()

	agentID := c.Param("agentId")
	backlog, err := h.notifications.BacklogLen(ctx, agentID)
	if err != nil {
		respondServiceError(c, err, "failed to resolve agent")
		return
	}

	conn := h.router.Registry().Register(agentID, "")
	defer h.router.Registry().Remove(conn)

	h.serveWithReady(c, conn, gin.H{"backlog": backlog})
}

func (h *StreamHandler) serve(c *gin.Context, conn *push.Connection) {
	h.serveWithReady(c, conn, "ready")
}

func (h *StreamHandler) serveWithReady(c *gin.Context, conn *push.Connection, ready any) {
	setSSEHeaders(c.Writer)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	sseWrite(c.Writer, "ping", ready)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	clientClosed := c.Request.Context().Done()

	for {
		select {
		case <-clientClosed:
			return
		case <-conn.Closed():
			return
		case ev := <-conn.Events():
			sseWrite(c.Writer, string(ev.Kind), ev)
			flusher.Flush()
		case <-ticker.C:
			sseWrite(c.Writer, "ping", time.Now().UTC().Format(time.RFC3339Nano))
			flusher.Flush()
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	payload := marshalPayload(data)
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}
