package handler_test

import (
	"context"
	"time"

	"agora.dev/courier/internal/model"
	"agora.dev/courier/internal/service"
)

type mockMessageService struct {
	publishFn func(ctx context.Context, params service.PublishParams) (*service.PublishResult, error)
	historyFn func(ctx context.Context, params service.HistoryParams) ([]model.Message, error)
}

func (m *mockMessageService) Publish(ctx context.Context, params service.PublishParams) (*service.PublishResult, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, params)
	}
	return &service.PublishResult{Message: &model.Message{}}, nil
}

func (m *mockMessageService) History(ctx context.Context, params service.HistoryParams) ([]model.Message, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, params)
	}
	return []model.Message{}, nil
}

type mockSubscriptionService struct {
	subscribeFn       func(ctx context.Context, channelID, agentID string, start model.StartPosition) error
	unsubscribeFn     func(ctx context.Context, channelID, agentID string) error
	readNextFn        func(ctx context.Context, channelID, agentID string, count int64, block time.Duration) ([]model.Message, error)
	listPendingFn     func(ctx context.Context, channelID, agentID string, count int64) ([]model.Message, error)
	acknowledgeFn     func(ctx context.Context, channelID, agentID string, entryIDs []string) error
	statusFn          func(ctx context.Context, channelID, agentID string) (model.GroupStatus, error)
	listSubscribersFn func(ctx context.Context, channelID string) ([]model.Subscriber, error)
}

func (m *mockSubscriptionService) Subscribe(ctx context.Context, channelID, agentID string, start model.StartPosition) error {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, channelID, agentID, start)
	}
	return nil
}

func (m *mockSubscriptionService) Unsubscribe(ctx context.Context, channelID, agentID string) error {
	if m.unsubscribeFn != nil {
		return m.unsubscribeFn(ctx, channelID, agentID)
	}
	return nil
}

func (m *mockSubscriptionService) ReadNext(ctx context.Context, channelID, agentID string, count int64, block time.Duration) ([]model.Message, error) {
	if m.readNextFn != nil {
		return m.readNextFn(ctx, channelID, agentID, count, block)
	}
	return []model.Message{}, nil
}

func (m *mockSubscriptionService) ListPending(ctx context.Context, channelID, agentID string, count int64) ([]model.Message, error) {
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx, channelID, agentID, count)
	}
	return []model.Message{}, nil
}

func (m *mockSubscriptionService) Acknowledge(ctx context.Context, channelID, agentID string, entryIDs []string) error {
	if m.acknowledgeFn != nil {
		return m.acknowledgeFn(ctx, channelID, agentID, entryIDs)
	}
	return nil
}

func (m *mockSubscriptionService) Status(ctx context.Context, channelID, agentID string) (model.GroupStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, channelID, agentID)
	}
	return model.GroupStatus{}, nil
}

func (m *mockSubscriptionService) ListSubscribers(ctx context.Context, channelID string) ([]model.Subscriber, error) {
	if m.listSubscribersFn != nil {
		return m.listSubscribersFn(ctx, channelID)
	}
	return []model.Subscriber{}, nil
}

type mockNotificationService struct {
	drainFn       func(ctx context.Context, agentID string, ack bool) ([]model.Notification, error)
	markReadFn    func(ctx context.Context, agentID, recordID string) error
	markAllReadFn func(ctx context.Context, agentID string) error
	backlogLenFn  func(ctx context.Context, agentID string) (int64, error)
}

func (m *mockNotificationService) Drain(ctx context.Context, agentID string, ack bool) ([]model.Notification, error) {
	if m.drainFn != nil {
		return m.drainFn(ctx, agentID, ack)
	}
	return []model.Notification{}, nil
}

func (m *mockNotificationService) MarkRead(ctx context.Context, agentID, recordID string) error {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, agentID, recordID)
	}
	return nil
}

func (m *mockNotificationService) MarkAllRead(ctx context.Context, agentID string) error {
	if m.markAllReadFn != nil {
		return m.markAllReadFn(ctx, agentID)
	}
	return nil
}

func (m *mockNotificationService) BacklogLen(ctx context.Context, agentID string) (int64, error) {
	if m.backlogLenFn != nil {
		return m.backlogLenFn(ctx, agentID)
	}
	return 0, nil
}

type mockWebhookService struct {
	registerFn func(ctx context.Context, params service.RegisterWebhookParams) (*service.RegisterWebhookResult, error)
	getFn      func(ctx context.Context, agentID string) (*model.WebhookRegistration, error)
	deleteFn   func(ctx context.Context, agentID string) error
}

func (m *mockWebhookService) Register(ctx context.Context, params service.RegisterWebhookParams) (*service.RegisterWebhookResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, params)
	}
	return &service.RegisterWebhookResult{Registration: &model.WebhookRegistration{}}, nil
}

func (m *mockWebhookService) Get(ctx context.Context, agentID string) (*model.WebhookRegistration, error) {
	if m.getFn != nil {
		return m.getFn(ctx, agentID)
	}
	return &model.WebhookRegistration{}, nil
}

func (m *mockWebhookService) Delete(ctx context.Context, agentID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, agentID)
	}
	return nil
}

type mockChannelService struct {
	createFn func(ctx context.Context, ch *model.Channel) error
	getFn    func(ctx context.Context, channelID string) (*model.Channel, error)
}

func (m *mockChannelService) Create(ctx context.Context, ch *model.Channel) error {
	if m.createFn != nil {
		return m.createFn(ctx, ch)
	}
	return nil
}

func (m *mockChannelService) Get(ctx context.Context, channelID string) (*model.Channel, error) {
	if m.getFn != nil {
		return m.getFn(ctx, channelID)
	}
	return &model.Channel{ID: channelID}, nil
}
