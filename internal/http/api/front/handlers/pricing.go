package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/creditstudio/CreditStudio/internal/pricing"
	"github.com/gin-gonic/gin"
)

// Quoter prices a request with details. *pricing.Resolver satisfies it.
type Quoter interface {
	Quote(ctx context.Context, serviceType string, providerID uint64, params map[string]any) (*pricing.Quote, error)
}

// PricingHandler serves price quotes.
type PricingHandler struct {
	quoter Quoter
}

// NewPricingHandler constructs a PricingHandler.
func NewPricingHandler(quoter Quoter) *PricingHandler {
	return &PricingHandler{quoter: quoter}
}

// quoteRequest defines the request body for a quote.
type quoteRequest struct {
	ServiceType string         `json:"service_type"`
	ProviderID  uint64         `json:"provider_id"`
	Parameters  map[string]any `json:"parameters"`
}

// Quote prices a (service type, provider, parameters) tuple without charging.
func (h *PricingHandler) Quote(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}

	var body quoteRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	serviceType := strings.ToLower(strings.TrimSpace(body.ServiceType))
	if serviceType == "" || body.ProviderID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "service_type and provider_id are required"})
		return
	}

	quote, errQuote := h.quoter.Quote(c.Request.Context(), serviceType, body.ProviderID, body.Parameters)
	if errQuote != nil {
		writeError(c, errQuote)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": quote})
}
