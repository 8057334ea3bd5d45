package provider

import (
	"context"
	"strings"

	"github.com/creditstudio/CreditStudio/internal/models"
)

// ModelType tags what a generator produces; it doubles as the pricing service type.
type ModelType string

// Model types.
const (
	ModelTypeText  ModelType = "text"
	ModelTypeImage ModelType = "image"
	ModelTypeAudio ModelType = "audio"
	ModelTypeVideo ModelType = "video"
)

// ParseModelType normalizes s, defaulting to text.
func ParseModelType(s string) ModelType {
	switch ModelType(strings.ToLower(strings.TrimSpace(s))) {
	case ModelTypeImage:
		return ModelTypeImage
	case ModelTypeAudio:
		return ModelTypeAudio
	case ModelTypeVideo:
		return ModelTypeVideo
	default:
		return ModelTypeText
	}
}

// Turn is one prior exchange passed to a generator.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is the conversation a generator sees besides the prompt.
type Context struct {
	System string `json:"system,omitempty"`
	Turns  []Turn `json:"turns,omitempty"`
}

// Usage reports provider-side consumption.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Result is a successful generation.
type Result struct {
	Output Output
	Model  string
	Usage  Usage
}

// Generator is the capability every provider adapter implements.
type Generator interface {
	ProviderName() string
	ModelName() string
	ModelType() ModelType
	BuildContext(history []models.Message) Context
	Generate(ctx context.Context, prompt string, conversation Context, params map[string]any) (*Result, error)
}

// ConversationContext keeps the completed user and assistant messages of history, in order.
func ConversationContext(history []models.Message) Context {
	var out Context
	for _, msg := range history {
		if msg.Status != models.MessageStatusCompleted {
			continue
		}
		switch msg.Role {
		case models.MessageRoleSystem:
			out.System = msg.Content
		case models.MessageRoleUser, models.MessageRoleAssistant:
			out.Turns = append(out.Turns, Turn{Role: string(msg.Role), Content: msg.Content})
		}
	}
	return out
}
