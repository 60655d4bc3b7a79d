package router

import (
	"github.com/gin-gonic/gin"

	"agora.dev/courier/internal/http/handler"
)

func ChannelRouter(rg *gin.RouterGroup, h *handler.ChannelHandler, stream *handler.StreamHandler) {
	rg.POST("", h.Create)

	rg.POST("/:id/message", h.Publish)
	rg.GET("/:id/messages", h.History)
	rg.GET("/:id/stream", stream.ChannelStream)

	rg.POST("/:id/subscribe", h.Subscribe)
	rg.POST("/:id/unsubscribe", h.Unsubscribe)
	rg.GET("/:id/read/:agentId", h.Read)
	rg.GET("/:id/pending/:agentId", h.Pending)
	rg.POST("/:id/ack", h.Ack)
	rg.GET("/:id/status/:agentId", h.Status)
	rg.GET("/:id/subscribers", h.Subscribers)
}
