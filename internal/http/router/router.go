package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"agora.dev/courier/internal/http/handler"
	"agora.dev/courier/internal/service"
)

type RouterConfig struct {
	Heartbeat    time.Duration
	IsProduction bool
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	streamHandler := handler.NewStreamHandler(services.Router(), services.Channels(), services.Notifications(), cfg.Heartbeat)

	channelHandler := handler.NewChannelHandler(services.Messages(), services.Subscriptions(), services.Channels())
	ChannelRouter(router.Group("/channels"), channelHandler, streamHandler)

	notificationHandler := handler.NewNotificationHandler(services.Notifications())
	NotificationRouter(router.Group("/notifications"), notificationHandler, streamHandler)

	webhookHandler := handler.NewWebhookHandler(services.Webhooks())
	WebhookRouter(router.Group("/agents"), webhookHandler)
}
