package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"agora.dev/courier/internal/directory"
	"agora.dev/courier/internal/model"
	"agora.dev/courier/internal/webhook"
)

type RegisterWebhookParams struct {
	AgentID string
	URL     string
	// Secret is optional; when empty the server generates one.
	Secret string
	Events []string
}

type RegisterWebhookResult struct {
	Registration *model.WebhookRegistration
	// Secret is returned exactly once, at registration time.
	Secret string
}

type WebhookService interface {
	Register(ctx context.Context, params RegisterWebhookParams) (*RegisterWebhookResult, error)
	Get(ctx context.Context, agentID string) (*model.WebhookRegistration, error)
	Delete(ctx context.Context, agentID string) error
}

type webhookService struct {
	store webhook.Store
	dir   directory.Directory
}

func NewWebhookService(store webhook.Store, dir directory.Directory) WebhookService {
	return &webhookService{store: store, dir: dir}
}

func (s *webhookService) Register(ctx context.Context, params RegisterWebhookParams) (*RegisterWebhookResult, error) {
	if params.AgentID == "" {
		return nil, fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	if err := validateWebhookURL(params.URL); err != nil {
		return nil, err
	}
	if len(params.Events) == 0 {
		return nil, fmt.Errorf("%w: events is required", ErrValidation)
	}

	exists, err := s.dir.AgentExists(ctx, params.AgentID)
	if err != nil {
		return nil, fmt.Errorf("resolving agent: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, params.AgentID)
	}

	secret := params.Secret
	if secret == "" {
		secret, err = webhook.GenerateSecret()
		if err != nil {
			return nil, err
		}
	}

	reg := &model.WebhookRegistration{
		AgentID: params.AgentID,
		URL:     params.URL,
		Secret:  secret,
		Events:  params.Events,
	}
	if err := s.store.Upsert(ctx, reg); err != nil {
		return nil, err
	}

	return &RegisterWebhookResult{Registration: reg, Secret: secret}, nil
}

func (s *webhookService) Get(ctx context.Context, agentID string) (*model.WebhookRegistration, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	reg, err := s.store.Get(ctx, agentID)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWebhookNotFound, agentID)
		}
		return nil, err
	}
	return reg, nil
}

func (s *webhookService) Delete(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	if err := s.store.Delete(ctx, agentID); err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrWebhookNotFound, agentID)
		}
		return err
	}
	return nil
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%w: url must be http or https", ErrValidation)
	}
	return nil
}
