package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agora.dev/courier/internal/model"
	"agora.dev/courier/internal/service"
)

type NotificationHandler struct {
	notifications service.NotificationService
}

func NewNotificationHandler(notifications service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List drains the agent's inbox backlog, oldest first. ?ack=true clears
// the backlog after returning it.
func (h *NotificationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := c.Param("agentId")
	ack := c.Query("ack") == "true"

	records, err := h.notifications.Drain(ctx, agentID, ack)
	if err != nil {
		respondServiceError(c, err, "failed to read notifications")
		return
	}

	backlog, err := h.notifications.BacklogLen(ctx, agentID)
	if err != nil {
		respondServiceError(c, err, "failed to read notification backlog")
		return
	}

	if records == nil {
		records = []model.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": records,
		"backlog":       backlog,
	})
}

type markReadRequest struct {
	ID string `json:"id" binding:"required"`
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()

	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: id is required"})
		return
	}

	if err := h.notifications.MarkRead(ctx, c.Param("agentId"), req.ID); err != nil {
		respondServiceError(c, err, "failed to mark notification read")
		return
	}

	c.JSON(http.StatusOK, gin.H{"read": true})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.notifications.MarkAllRead(ctx, c.Param("agentId")); err != nil {
		respondServiceError(c, err, "failed to mark notifications read")
		return
	}

	c.JSON(http.StatusOK, gin.H{"read": true})
}
