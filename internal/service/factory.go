package service

import (
	"agora.dev/courier/internal/chanlog"
	"agora.dev/courier/internal/directory"
	"agora.dev/courier/internal/group"
	"agora.dev/courier/internal/inbox"
	"agora.dev/courier/internal/push"
	"agora.dev/courier/internal/webhook"
)

type Services struct {
	log        chanlog.Log
	groups     group.Manager
	inbox      inbox.Inbox
	dir        directory.Directory
	router     *push.Router
	hooks      webhook.Store
	dispatcher *webhook.Dispatcher
}

func NewServices(log chanlog.Log, groups group.Manager, ib inbox.Inbox, dir directory.Directory, router *push.Router, hooks webhook.Store, dispatcher *webhook.Dispatcher) *Services {
	return &Services{
		log:        log,
		groups:     groups,
		inbox:      ib,
		dir:        dir,
		router:     router,
		hooks:      hooks,
		dispatcher: dispatcher,
	}
}

func (s *Services) Messages() MessageService {
	return NewMessageService(s.log, s.dir, s.router, s.dispatcher)
}

func (s *Services) Subscriptions() SubscriptionService {
	return NewSubscriptionService(s.groups, s.dir)
}

func (s *Services) Notifications() NotificationService {
	return NewNotificationService(s.inbox, s.dir)
}

func (s *Services) Webhooks() WebhookService {
	return NewWebhookService(s.hooks, s.dir)
}

func (s *Services) Channels() ChannelService {
	return NewChannelService(s.dir)
}

// Router exposes the push router for the streaming handlers.
func (s *Services) Router() *push.Router {
	return s.router
}
