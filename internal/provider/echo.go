package provider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/creditstudio/CreditStudio/internal/models"
)

// Echo is a local generator that reflects the prompt back. Image-typed echoes return a
// deterministic placeholder URL.
type Echo struct {
	name      string
	model     string
	modelType ModelType
}

// NewEcho constructs an Echo generator.
func NewEcho(name, model string, modelType ModelType) *Echo {
	if strings.TrimSpace(model) == "" {
		model = "echo-1"
	}
	return &Echo{name: name, model: model, modelType: modelType}
}

// ProviderName implements Generator.
func (e *Echo) ProviderName() string { return e.name }

// ModelName implements Generator.
func (e *Echo) ModelName() string { return e.model }

// ModelType implements Generator.
func (e *Echo) ModelType() ModelType { return e.modelType }

// BuildContext implements Generator.
func (e *Echo) BuildContext(history []models.Message) Context {
	return ConversationContext(history)
}

// Generate implements Generator.
func (e *Echo) Generate(ctx context.Context, prompt string, conversation Context, _ map[string]any) (*Result, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return nil, errCtx
	}
	usage := Usage{InputTokens: int64(len(strings.Fields(prompt))), OutputTokens: int64(len(strings.Fields(prompt)))}
	if e.modelType == ModelTypeImage {
		sum := sha1.Sum([]byte(prompt))
		return &Result{
			Output: Image{URL: "echo://image/" + hex.EncodeToString(sum[:8]), MimeType: "image/png", RevisedPrompt: prompt},
			Model:  e.model,
			Usage:  usage,
		}, nil
	}
	return &Result{Output: Text{Body: prompt}, Model: e.model, Usage: usage}, nil
}
