package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agora.dev/courier/internal/http/dto"
	"agora.dev/courier/internal/service"
)

type WebhookHandler struct {
	webhooks service.WebhookService
}

func NewWebhookHandler(webhooks service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Register creates or replaces the agent's webhook registration. The
// signing secret appears in this response and nowhere else.
func (h *WebhookHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.RegisterWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: url and events are required"})
		return
	}

	result, err := h.webhooks.Register(ctx, service.RegisterWebhookParams{
		AgentID: c.Param("id"),
		URL:     req.URL,
		Secret:  req.Secret,
		Events:  req.Events,
	})
	if err != nil {
		respondServiceError(c, err, "failed to register webhook")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": result.Registration,
		"secret":  result.Secret,
	})
}

// Status returns the registration including failure counters, without
// the secret.
func (h *WebhookHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	reg, err := h.webhooks.Get(ctx, c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "failed to read webhook")
		return
	}

	c.JSON(http.StatusOK, gin.H{"webhook": reg})
}

func (h *WebhookHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.webhooks.Delete(ctx, c.Param("id")); err != nil {
		respondServiceError(c, err, "failed to delete webhook")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
