package router

import (
	"github.com/gin-gonic/gin"

	"agora.dev/courier/internal/http/handler"
)

func NotificationRouter(rg *gin.RouterGroup, h *handler.NotificationHandler, stream *handler.StreamHandler) {
	rg.GET("/:agentId", h.List)
	rg.GET("/:agentId/stream", stream.NotificationStream)
	rg.POST("/:agentId/read", h.MarkRead)
	rg.POST("/:agentId/read-all", h.MarkAllRead)
}
