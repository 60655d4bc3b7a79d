package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"agora.dev/courier/internal/chanlog"
	"agora.dev/courier/internal/group"
	"agora.dev/courier/internal/service"
)

// respondServiceError maps service sentinels onto the HTTP error
// taxonomy: 400 validation, 403 membership, 404 not found, 503 when the
// underlying log/store is unreachable, 500 otherwise.
func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrChannelNotFound),
		errors.Is(err, service.ErrAgentNotFound),
		errors.Is(err, service.ErrWebhookNotFound),
		errors.Is(err, service.ErrRecordNotFound),
		errors.Is(err, group.ErrNotSubscribed):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chanlog.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "channel log unavailable"})
	default:
		slog.ErrorContext(c.Request.Context(), fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
