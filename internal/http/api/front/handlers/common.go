package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/creditstudio/CreditStudio/internal/generation"
	"github.com/creditstudio/CreditStudio/internal/ledger"
	"github.com/creditstudio/CreditStudio/internal/logging"
	"github.com/creditstudio/CreditStudio/internal/pricing"
	"github.com/creditstudio/CreditStudio/internal/workflow"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// getUserID extracts the user ID from gin context.
func getUserID(c *gin.Context) uint64 {
	val, exists := c.Get("userID")
	if !exists {
		return 0
	}
	switch v := val.(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case int:
		return uint64(v)
	default:
		return 0
	}
}

// requireUser writes 401 and returns false when the context carries no user.
func requireUser(c *gin.Context) (uint64, bool) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	return userID, true
}

// parseIDParam reads a positive integer path parameter.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(c.Param(name), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// writeError maps domain errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var insufficient *workflow.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     "insufficient credits",
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, generation.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
	case errors.Is(err, pricing.ErrProviderInactive),
		errors.Is(err, pricing.ErrPricingNotFound),
		errors.Is(err, pricing.ErrServiceDisabled),
		errors.Is(err, workflow.ErrProviderUnavailable),
		errors.Is(err, workflow.ErrServiceUnavailable),
		errors.Is(err, generation.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, workflow.ErrNoWorkflowStep),
		errors.Is(err, workflow.ErrChatBusy),
		errors.Is(err, workflow.ErrChatNotActive),
		errors.Is(err, generation.ErrDuplicateRequest):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrChatNotFound),
		errors.Is(err, generation.ErrNotFound),
		errors.Is(err, ledger.ErrBalanceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, generation.ErrInvalidRequest),
		errors.Is(err, ledger.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		log.WithField("request_id", logging.GetGinRequestID(c)).WithError(err).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
