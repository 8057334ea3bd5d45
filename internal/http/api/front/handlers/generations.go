package handlers

import (
	"net/http"
	"time"

	"github.com/creditstudio/CreditStudio/internal/generation"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/gin-gonic/gin"
)

// GenerationHandler serves single-shot generations.
type GenerationHandler struct {
	svc *generation.Service
}

// NewGenerationHandler constructs a GenerationHandler.
func NewGenerationHandler(svc *generation.Service) *GenerationHandler {
	return &GenerationHandler{svc: svc}
}

// createGenerationRequest defines the request body for a generation.
type createGenerationRequest struct {
	RequestID  string         `json:"request_id"`
	ProviderID uint64         `json:"provider_id"`
	Kind       string         `json:"kind"`
	Prompt     string         `json:"prompt"`
	Parameters map[string]any `json:"parameters"`
}

// generationDTO defines the generation response payload.
type generationDTO struct {
	ID           uint64         `json:"id"`
	RequestID    string         `json:"request_id"`
	ProviderID   uint64         `json:"provider_id"`
	Kind         string         `json:"kind"`
	Status       string         `json:"status"`
	CreditsSpent int64          `json:"credits_spent"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func toGenerationDTO(gen *models.Generation) generationDTO {
	return generationDTO{
		ID:           gen.ID,
		RequestID:    gen.RequestID,
		ProviderID:   gen.ProviderID,
		Kind:         string(gen.Kind),
		Status:       string(gen.Status),
		CreditsSpent: gen.CreditsSpent,
		Result:       gen.Result,
		Error:        gen.Error,
		CreatedAt:    gen.CreatedAt,
	}
}

// Create runs a generation. Provider failures answer 502 with the refunded record.
func (h *GenerationHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var body createGenerationRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	gen, errGenerate := h.svc.Generate(c.Request.Context(), generation.Request{
		RequestID:  body.RequestID,
		UserID:     userID,
		ProviderID: body.ProviderID,
		Kind:       models.GenerationKind(body.Kind),
		Prompt:     body.Prompt,
		Parameters: body.Parameters,
	})
	if errGenerate != nil {
		if gen != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": errGenerate.Error(), "generation": toGenerationDTO(gen)})
			return
		}
		writeError(c, errGenerate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generation": toGenerationDTO(gen)})
}

// Get returns one of the user's generations.
func (h *GenerationHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	gen, errGet := h.svc.Get(c.Request.Context(), userID, id)
	if errGet != nil {
		writeError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generation": toGenerationDTO(gen)})
}
