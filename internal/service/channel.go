package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agora.dev/courier/internal/directory"
	"agora.dev/courier/internal/model"
)

// ChannelService is the admin convenience surface over the directory. The
// delivery core only resolves channels; creation normally happens in the
// channel registry upstream.
type ChannelService interface {
	Create(ctx context.Context, ch *model.Channel) error
	Get(ctx context.Context, channelID string) (*model.Channel, error)
}

type channelService struct {
	dir directory.Directory
}

func NewChannelService(dir directory.Directory) ChannelService {
	return &channelService{dir: dir}
}

func (s *channelService) Create(ctx context.Context, ch *model.Channel) error {
	if ch.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if len(ch.Members) == 0 {
		return fmt.Errorf("%w: members is required", ErrValidation)
	}
	if ch.Name == "" {
		ch.Name = ch.ID
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	return s.dir.CreateChannel(ctx, ch)
}

func (s *channelService) Get(ctx context.Context, channelID string) (*model.Channel, error) {
	if channelID == "" {
		return nil, fmt.Errorf("%w: channelId is required", ErrValidation)
	}
	ch, err := s.dir.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
		}
		return nil, err
	}
	return ch, nil
}
