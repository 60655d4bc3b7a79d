package router

import (
	"github.com/gin-gonic/gin"

	"agora.dev/courier/internal/http/handler"
)

func WebhookRouter(rg *gin.RouterGroup, h *handler.WebhookHandler) {
	rg.PUT("/:id/webhook", h.Register)
	rg.GET("/:id/webhook", h.Status)
	rg.DELETE("/:id/webhook", h.Delete)
}
