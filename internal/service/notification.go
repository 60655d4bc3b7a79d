package service

import (
	"context"
	"errors"
	"fmt"

	"agora.dev/courier/internal/directory"
	"agora.dev/courier/internal/inbox"
	"agora.dev/courier/internal/model"
)

type NotificationService interface {
	// Drain returns the agent's inbox backlog oldest first; with ack it
	// also clears the backlog.
	Drain(ctx context.Context, agentID string, ack bool) ([]model.Notification, error)
	MarkRead(ctx context.Context, agentID, recordID string) error
	MarkAllRead(ctx context.Context, agentID string) error
	BacklogLen(ctx context.Context, agentID string) (int64, error)
}

type notificationService struct {
	inbox inbox.Inbox
	dir   directory.Directory
}

func NewNotificationService(ib inbox.Inbox, dir directory.Directory) NotificationService {
	return &notificationService{inbox: ib, dir: dir}
}

func (s *notificationService) resolveAgent(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	exists, err := s.dir.AgentExists(ctx, agentID)
	if err != nil {
		return fmt.Errorf("resolving agent: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return nil
}

func (s *notificationService) Drain(ctx context.Context, agentID string, ack bool) ([]model.Notification, error) {
	if err := s.resolveAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.inbox.Drain(ctx, agentID, ack)
}

func (s *notificationService) MarkRead(ctx context.Context, agentID, recordID string) error {
	if err := s.resolveAgent(ctx, agentID); err != nil {
		return err
	}
	if recordID == "" {
		return fmt.Errorf("%w: notification id is required", ErrValidation)
	}
	if err := s.inbox.MarkRead(ctx, agentID, recordID); err != nil {
		if errors.Is(err, inbox.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
		}
		return err
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, agentID string) error {
	if err := s.resolveAgent(ctx, agentID); err != nil {
		return err
	}
	return s.inbox.MarkAllRead(ctx, agentID)
}

func (s *notificationService) BacklogLen(ctx context.Context, agentID string) (int64, error) {
	if err := s.resolveAgent(ctx, agentID); err != nil {
		return 0, err
	}
	return s.inbox.Len(ctx, agentID)
}
