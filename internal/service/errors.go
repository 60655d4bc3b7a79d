package service

import "errors"

// Service-level sentinels the HTTP layer maps onto status codes.
// Validation failures wrap ErrValidation (400); the not-found family maps
// to 404; membership violations map to 403; chanlog.ErrUnavailable passes
// through untouched and maps to 503.
var (
	ErrValidation      = errors.New("validation failed")
	ErrChannelNotFound = errors.New("channel not found")
	ErrAgentNotFound   = errors.New("agent not found")
	ErrWebhookNotFound = errors.New("webhook registration not found")
	ErrRecordNotFound  = errors.New("notification record not found")
	ErrNotMember       = errors.New("agent is not a channel member")
)
