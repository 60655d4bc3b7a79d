package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agora.dev/courier/common/logger"
	"agora.dev/courier/internal/directory"
	"agora.dev/courier/internal/group"
	"agora.dev/courier/internal/model"
)

// SubscriptionService fronts the consumer-group manager with channel and
// membership validation.
type SubscriptionService interface {
	Subscribe(ctx context.Context, channelID, agentID string, start model.StartPosition) error
	Unsubscribe(ctx context.Context, channelID, agentID string) error
	ReadNext(ctx context.Context, channelID, agentID string, count int64, block time.Duration) ([]model.Message, error)
	ListPending(ctx context.Context, channelID, agentID string, count int64) ([]model.Message, error)
	Acknowledge(ctx context.Context, channelID, agentID string, entryIDs []string) error
	Status(ctx context.Context, channelID, agentID string) (model.GroupStatus, error)
	ListSubscribers(ctx context.Context, channelID string) ([]model.Subscriber, error)
}

type subscriptionService struct {
	groups group.Manager
	dir    directory.Directory
}

func NewSubscriptionService(groups group.Manager, dir directory.Directory) SubscriptionService {
	return &subscriptionService{groups: groups, dir: dir}
}

func (s *subscriptionService) resolveChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	if channelID == "" {
		return nil, fmt.Errorf("%w: channelId is required", ErrValidation)
	}
	channel, err := s.dir.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
		}
		return nil, fmt.Errorf("resolving channel: %w", err)
	}
	return channel, nil
}

func (s *subscriptionService) Subscribe(ctx context.Context, channelID, agentID string, start model.StartPosition) error {
	if agentID == "" {
		return fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	if !start.Valid() {
		return fmt.Errorf("%w: startFrom must be %q or %q", ErrValidation, model.StartNew, model.StartAll)
	}

	channel, err := s.resolveChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if !channel.HasMember(agentID) {
		return fmt.Errorf("%w: %s not in %s", ErrNotMember, agentID, channelID)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "courier.service.subscription",
		ChannelID: &channelID,
		AgentID:   &agentID,
	})
	return s.groups.Subscribe(ctx, channelID, agentID, start)
}

func (s *subscriptionService) Unsubscribe(ctx context.Context, channelID, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	if _, err := s.resolveChannel(ctx, channelID); err != nil {
		return err
	}
	return s.groups.Unsubscribe(ctx, channelID, agentID)
}

func (s *subscriptionService) ReadNext(ctx context.Context, channelID, agentID string, count int64, block time.Duration) ([]model.Message, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	if _, err := s.resolveChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 10
	}
	return s.groups.ReadNext(ctx, channelID, agentID, count, block)
}

func (s *subscriptionService) ListPending(ctx context.Context, channelID, agentID string, count int64) ([]model.Message, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	if _, err := s.resolveChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 100
	}
	return s.groups.ListPending(ctx, channelID, agentID, count)
}

func (s *subscriptionService) Acknowledge(ctx context.Context, channelID, agentID string, entryIDs []string) error {
	if agentID == "" {
		return fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	if len(entryIDs) == 0 {
		return fmt.Errorf("%w: messageId or messageIds is required", ErrValidation)
	}
	if _, err := s.resolveChannel(ctx, channelID); err != nil {
		return err
	}
	return s.groups.Acknowledge(ctx, channelID, agentID, entryIDs)
}

func (s *subscriptionService) Status(ctx context.Context, channelID, agentID string) (model.GroupStatus, error) {
	if agentID == "" {
		return model.GroupStatus{}, fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	if _, err := s.resolveChannel(ctx, channelID); err != nil {
		return model.GroupStatus{}, err
	}
	return s.groups.Status(ctx, channelID, agentID)
}

func (s *subscriptionService) ListSubscribers(ctx context.Context, channelID string) ([]model.Subscriber, error) {
	if _, err := s.resolveChannel(ctx, channelID); err != nil {
		return nil, err
	}
	return s.groups.ListSubscribers(ctx, channelID)
}
