package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/creditstudio/CreditStudio/internal/workflow"
	"github.com/gin-gonic/gin"
)

// ChatHandler drives workflow chats.
type ChatHandler struct {
	engine *workflow.Engine
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(engine *workflow.Engine) *ChatHandler {
	return &ChatHandler{engine: engine}
}

// chatDTO defines the chat response payload.
type chatDTO struct {
	ID               uint64         `json:"id"`
	ServiceID        uint64         `json:"service_id"`
	Title            string         `json:"title"`
	Status           string         `json:"status"`
	CurrentStepOrder int            `json:"current_step_order"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// messageDTO defines the message response payload.
type messageDTO struct {
	ID             uint64         `json:"id"`
	WorkflowStepID *uint64        `json:"workflow_step_id,omitempty"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Status         string         `json:"status"`
	CreditsSpent   int64          `json:"credits_spent"`
	Error          string         `json:"error,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func toChatDTO(chat *models.Chat) chatDTO {
	return chatDTO{
		ID:               chat.ID,
		ServiceID:        chat.ServiceID,
		Title:            chat.Title,
		Status:           string(chat.Status),
		CurrentStepOrder: chat.CurrentStepOrder,
		Metadata:         chat.Metadata,
		CreatedAt:        chat.CreatedAt,
		UpdatedAt:        chat.UpdatedAt,
	}
}

func toMessageDTO(msg *models.Message) messageDTO {
	return messageDTO{
		ID:             msg.ID,
		WorkflowStepID: msg.WorkflowStepID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		Status:         string(msg.Status),
		CreditsSpent:   msg.CreditsSpent,
		Error:          msg.Error,
		Metadata:       msg.Metadata,
		CreatedAt:      msg.CreatedAt,
	}
}

// createChatRequest defines the request body for starting a chat.
type createChatRequest struct {
	ServiceID uint64 `json:"service_id"`
	Title     string `json:"title"`
}

// executeStepRequest defines the request body for running the current step.
type executeStepRequest struct {
	Input string `json:"input"`
}

// Create starts a chat on a service.
func (h *ChatHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var body createChatRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.ServiceID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "service_id is required"})
		return
	}

	chat, errCreate := h.engine.CreateChat(c.Request.Context(), userID, body.ServiceID, body.Title)
	if errCreate != nil {
		writeError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat": toChatDTO(chat)})
}

// Get returns the chat, its messages and progress.
func (h *ChatHandler) Get(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	msgs, errMsgs := h.engine.Messages(ctx, chat.ID)
	if errMsgs != nil {
		writeError(c, errMsgs)
		return
	}
	progress, errProgress := h.engine.GetProgress(ctx, chat.ID)
	if errProgress != nil {
		writeError(c, errProgress)
		return
	}
	out := make([]messageDTO, 0, len(msgs))
	for i := range msgs {
		out = append(out, toMessageDTO(&msgs[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"chat":     toChatDTO(chat),
		"messages": out,
		"progress": progress,
	})
}

// ExecuteStep runs the chat's current step.
func (h *ChatHandler) ExecuteStep(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}
	var body executeStepRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || strings.TrimSpace(body.Input) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "input is required"})
		return
	}

	res, errExec := h.engine.ExecuteStep(c.Request.Context(), chat.ID, body.Input)
	if errExec != nil {
		writeError(c, errExec)
		return
	}
	resp := gin.H{
		"chat":              toChatDTO(res.Chat),
		"step_order":        res.Step.Order,
		"user_message":      toMessageDTO(res.UserMessage),
		"assistant_message": toMessageDTO(res.AssistantMessage),
		"credits_spent":     res.Cost,
		"cost_estimated":    res.CostEstimated,
	}
	if res.Advance != nil {
		resp["advance"] = res.Advance
	}
	c.JSON(http.StatusOK, resp)
}

// Advance moves the chat to its next step.
func (h *ChatHandler) Advance(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}
	adv, errMove := h.engine.MoveToNextStep(c.Request.Context(), chat.ID)
	if errMove != nil {
		writeError(c, errMove)
		return
	}
	c.JSON(http.StatusOK, adv)
}

// Progress reports the chat's position in its service.
func (h *ChatHandler) Progress(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}
	progress, errProgress := h.engine.GetProgress(c.Request.Context(), chat.ID)
	if errProgress != nil {
		writeError(c, errProgress)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// Archive closes the chat.
func (h *ChatHandler) Archive(c *gin.Context) {
	chat, ok := h.ownedChat(c)
	if !ok {
		return
	}
	archived, errArchive := h.engine.Archive(c.Request.Context(), chat.ID)
	if errArchive != nil {
		writeError(c, errArchive)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": toChatDTO(archived)})
}

// ownedChat loads the :id chat and hides chats of other users behind a 404.
func (h *ChatHandler) ownedChat(c *gin.Context) (*models.Chat, bool) {
	userID, ok := requireUser(c)
	if !ok {
		return nil, false
	}
	chatID, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	chat, errChat := h.engine.Chat(c.Request.Context(), chatID)
	if errChat != nil {
		writeError(c, errChat)
		return nil, false
	}
	if chat.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return nil, false
	}
	return chat, true
}
