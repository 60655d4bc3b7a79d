package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"agora.dev/courier/internal/http/dto"
	"agora.dev/courier/internal/model"
	"agora.dev/courier/internal/service"
)

type ChannelHandler struct {
	messages service.MessageService
	subs     service.SubscriptionService
	channels service.ChannelService
}

func NewChannelHandler(messages service.MessageService, subs service.SubscriptionService, channels service.ChannelService) *ChannelHandler {
	return &ChannelHandler{
		messages: messages,
		subs:     subs,
		channels: channels,
	}
}

// Publish appends a message to the channel log and fans it out.
func (h *ChannelHandler) Publish(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.PublishMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: agentId and content are required"})
		return
	}

	result, err := h.messages.Publish(ctx, service.PublishParams{
		ChannelID: c.Param("id"),
		AgentID:   req.AgentID,
		Content:   req.Content,
		Type:      req.Type,
		Metadata:  req.Metadata,
	})
	if err != nil {
		respondServiceError(c, err, "failed to publish message")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    result.Message,
		"recipients": result.Recipients,
	})
}

// History returns recent channel history, oldest first.
func (h *ChannelHandler) History(c *gin.Context) {
	ctx := c.Request.Context()

	msgs, err := h.messages.History(ctx, service.HistoryParams{
		ChannelID: c.Param("id"),
		Limit:     queryInt64(c, "limit", 0),
		Since:     c.Query("since"),
	})
	if err != nil {
		respondServiceError(c, err, "failed to read history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": emptyIfNil(msgs)})
}

func (h *ChannelHandler) Subscribe(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: agentId and startFrom are required"})
		return
	}

	if err := h.subs.Subscribe(ctx, c.Param("id"), req.AgentID, model.StartPosition(req.StartFrom)); err != nil {
		respondServiceError(c, err, "failed to subscribe")
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscribed": true})
}

func (h *ChannelHandler) Unsubscribe(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: agentId is required"})
		return
	}

	if err := h.subs.Unsubscribe(ctx, c.Param("id"), req.AgentID); err != nil {
		respondServiceError(c, err, "failed to unsubscribe")
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscribed": false})
}

// Read is the pull path: it advances the group cursor and moves returned
// entries into the pending set. block=0 returns immediately.
func (h *ChannelHandler) Read(c *gin.Context) {
	ctx := c.Request.Context()

	block := time.Duration(queryInt64(c, "block", 0)) * time.Millisecond
	msgs, err := h.subs.ReadNext(ctx, c.Param("id"), c.Param("agentId"), queryInt64(c, "count", 0), block)
	if err != nil {
		respondServiceError(c, err, "failed to read messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": emptyIfNil(msgs)})
}

// Pending returns delivered-but-unacknowledged entries without altering
// delivery state.
func (h *ChannelHandler) Pending(c *gin.Context) {
	ctx := c.Request.Context()

	msgs, err := h.subs.ListPending(ctx, c.Param("id"), c.Param("agentId"), queryInt64(c, "count", 0))
	if err != nil {
		respondServiceError(c, err, "failed to list pending messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": emptyIfNil(msgs)})
}

func (h *ChannelHandler) Ack(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: agentId and messageId(s) are required"})
		return
	}

	if err := h.subs.Acknowledge(ctx, c.Param("id"), req.AgentID, req.EntryIDs()); err != nil {
		respondServiceError(c, err, "failed to acknowledge")
		return
	}

	c.JSON(http.StatusOK, gin.H{"acknowledged": len(req.EntryIDs())})
}

func (h *ChannelHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	status, err := h.subs.Status(ctx, c.Param("id"), c.Param("agentId"))
	if err != nil {
		respondServiceError(c, err, "failed to read status")
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *ChannelHandler) Subscribers(c *gin.Context) {
	ctx := c.Request.Context()

	subs, err := h.subs.ListSubscribers(ctx, c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "failed to list subscribers")
		return
	}

	if subs == nil {
		subs = []model.Subscriber{}
	}
	c.JSON(http.StatusOK, gin.H{"subscribers": subs})
}

// Create registers a channel in the directory. Admin convenience for
// wiring; channel ownership lives upstream.
func (h *ChannelHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: id and members are required"})
		return
	}

	ch := &model.Channel{
		ID:      req.ID,
		Name:    req.Name,
		Members: req.Members,
	}
	if err := h.channels.Create(ctx, ch); err != nil {
		respondServiceError(c, err, "failed to create channel")
		return
	}

	c.JSON(http.StatusCreated, ch)
}

func queryInt64(c *gin.Context, key string, fallback int64) int64 {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func emptyIfNil(msgs []model.Message) []model.Message {
	if msgs == nil {
		return []model.Message{}
	}
	return msgs
}
