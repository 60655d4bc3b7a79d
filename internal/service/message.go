package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"agora.dev/courier/common/logger"
	"agora.dev/courier/internal/chanlog"
	"agora.dev/courier/internal/directory"
	"agora.dev/courier/internal/model"
	"agora.dev/courier/internal/push"
	"agora.dev/courier/internal/webhook"
)

type PublishParams struct {
	ChannelID string
	AgentID   string
	Content   string
	Type      string
	Metadata  json.RawMessage
}

type PublishResult struct {
	Message    *model.Message
	Recipients []string
}

type HistoryParams struct {
	ChannelID string
	Limit     int64
	// Since is the last entry ID the caller has seen; only entries
	// strictly after it are returned. Empty returns the newest Limit
	// entries.
	Since string
}

type MessageService interface {
	Publish(ctx context.Context, params PublishParams) (*PublishResult, error)
	History(ctx context.Context, params HistoryParams) ([]model.Message, error)
}

type messageService struct {
	log        chanlog.Log
	dir        directory.Directory
	router     *push.Router
	dispatcher *webhook.Dispatcher
}

func NewMessageService(log chanlog.Log, dir directory.Directory, router *push.Router, dispatcher *webhook.Dispatcher) MessageService {
	return &messageService{
		log:        log,
		dir:        dir,
		router:     router,
		dispatcher: dispatcher,
	}
}

func (s *messageService) Publish(ctx context.Context, params PublishParams) (*PublishResult, error) {
	if params.ChannelID == "" || params.AgentID == "" {
		return nil, fmt.Errorf("%w: channelId and agentId are required", ErrValidation)
	}
	if params.Content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if len(params.Metadata) > 0 && !json.Valid(params.Metadata) {
		return nil, fmt.Errorf("%w: metadata must be valid JSON", ErrValidation)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "courier.service.message",
		ChannelID: &params.ChannelID,
		AgentID:   &params.AgentID,
	})

	channel, err := s.dir.GetChannel(ctx, params.ChannelID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, params.ChannelID)
		}
		return nil, fmt.Errorf("resolving channel: %w", err)
	}
	if !channel.HasMember(params.AgentID) {
		return nil, fmt.Errorf("%w: %s not in %s", ErrNotMember, params.AgentID, params.ChannelID)
	}

	msgType := params.Type
	if msgType == "" {
		msgType = model.MessageTypeText
	}

	msg := &model.Message{
		ChannelID: params.ChannelID,
		AgentID:   params.AgentID,
		Content:   params.Content,
		Type:      msgType,
		Metadata:  params.Metadata,
		CreatedAt: time.Now().UTC(),
	}

	// The append is the commit point. Everything after it is best-effort
	// notification and must not fail the request.
	if _, err := s.log.Append(ctx, msg); err != nil {
		return nil, err
	}

	s.router.Broadcast(ctx, channel, msg)
	s.notifyRecipients(ctx, channel, msg)

	return &PublishResult{
		Message:    msg,
		Recipients: channel.Recipients(msg.AgentID),
	}, nil
}

func (s *messageService) notifyRecipients(ctx context.Context, channel *model.Channel, msg *model.Message) {
	for _, agentID := range channel.Recipients(msg.AgentID) {
		s.dispatcher.Dispatch(ctx, agentID, model.WebhookEventMessage, msg)
	}

	for _, agentID := range mentionedMembers(msg.Content, msg.AgentID, channel.Members) {
		s.dispatcher.Dispatch(ctx, agentID, model.WebhookEventMention, msg)

		payload, err := json.Marshal(msg)
		if err != nil {
			slog.ErrorContext(ctx, "failed to encode mention payload", "error", err)
			continue
		}
		s.router.Notify(ctx, &model.Notification{
			ID:        uuid.NewString(),
			AgentID:   agentID,
			EventType: model.WebhookEventMention,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		})
	}
}

func (s *messageService) History(ctx context.Context, params HistoryParams) ([]model.Message, error) {
	if params.ChannelID == "" {
		return nil, fmt.Errorf("%w: channelId is required", ErrValidation)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	if _, err := s.dir.GetChannel(ctx, params.ChannelID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, params.ChannelID)
		}
		return nil, fmt.Errorf("resolving channel: %w", err)
	}

	if params.Since != "" {
		if _, _, err := chanlog.ParseEntryID(params.Since); err != nil {
			return nil, fmt.Errorf("%w: since must be an entry id", ErrValidation)
		}
		return s.log.ReadRange(ctx, params.ChannelID, params.Since, limit)
	}
	return s.log.ReadLatest(ctx, params.ChannelID, limit)
}
