package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/creditstudio/CreditStudio/internal/config"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/creditstudio/CreditStudio/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrEmptyResponse indicates the provider answered without content at the configured path.
var ErrEmptyResponse = errors.New("provider: empty response")

const maxErrorBody = 512

// HTTPJSON calls a JSON-over-HTTP model endpoint. The request carries model, prompt,
// messages and parameters; the output is read from ResponsePath.
type HTTPJSON struct {
	name         string
	model        string
	modelType    ModelType
	outputKind   OutputKind
	endpoint     string
	apiKey       string
	headers      map[string]string
	responsePath string
	client       *http.Client
}

// NewHTTPJSON builds an adapter from configuration.
func NewHTTPJSON(cfg config.ProviderConfig, client *http.Client) (*HTTPJSON, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("provider: %s: endpoint is required", cfg.Name)
	}
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	modelType := ParseModelType(cfg.ModelType)
	kind := OutputKind(strings.ToLower(strings.TrimSpace(cfg.OutputKind)))
	switch kind {
	case OutputText, OutputImage, OutputInfographic:
	case "":
		kind = OutputText
		if modelType == ModelTypeImage {
			kind = OutputImage
		}
	default:
		return nil, fmt.Errorf("provider: %s: unknown output kind %q", cfg.Name, cfg.OutputKind)
	}
	path := strings.TrimSpace(cfg.ResponsePath)
	if path == "" {
		path = defaultResponsePath(kind)
	}
	return &HTTPJSON{
		name:         cfg.Name,
		model:        cfg.Model,
		modelType:    modelType,
		outputKind:   kind,
		endpoint:     endpoint,
		apiKey:       cfg.APIKey,
		headers:      cfg.Headers,
		responsePath: path,
		client:       client,
	}, nil
}

func defaultResponsePath(kind OutputKind) string {
	switch kind {
	case OutputImage:
		return "data.0.url"
	case OutputInfographic:
		return "infographic"
	default:
		return "output"
	}
}

// ProviderName implements Generator.
func (h *HTTPJSON) ProviderName() string { return h.name }

// ModelName implements Generator.
func (h *HTTPJSON) ModelName() string { return h.model }

// ModelType implements Generator.
func (h *HTTPJSON) ModelType() ModelType { return h.modelType }

// BuildContext implements Generator. Image endpoints are stateless and get no history.
func (h *HTTPJSON) BuildContext(history []models.Message) Context {
	if h.modelType == ModelTypeImage {
		return Context{}
	}
	return ConversationContext(history)
}

// Generate implements Generator.
func (h *HTTPJSON) Generate(ctx context.Context, prompt string, conversation Context, params map[string]any) (*Result, error) {
	body, errBody := h.buildRequestBody(prompt, conversation, params)
	if errBody != nil {
		return nil, fmt.Errorf("provider: %s: build request: %w", h.name, errBody)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if errReq != nil {
		return nil, fmt.Errorf("provider: %s: new request: %w", h.name, errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, errDo := h.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("provider: %s: request: %w", h.name, errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("provider: close response body")
		}
	}()
	payload, errRead := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if errRead != nil {
		return nil, fmt.Errorf("provider: %s: read response: %w", h.name, errRead)
	}

	log.WithFields(log.Fields{
		"provider":   h.name,
		"model":      h.model,
		"endpoint":   util.MaskURL(h.endpoint),
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("provider call finished")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(payload)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("provider: %s: status %d: %s", h.name, resp.StatusCode, strings.TrimSpace(snippet))
	}
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("provider: %s: response is not valid json", h.name)
	}

	output, errOutput := h.parseOutput(payload)
	if errOutput != nil {
		return nil, fmt.Errorf("provider: %s: %w", h.name, errOutput)
	}
	model := gjson.GetBytes(payload, "model").String()
	if model == "" {
		model = h.model
	}
	return &Result{
		Output: output,
		Model:  model,
		Usage: Usage{
			InputTokens:  firstInt(payload, "usage.input_tokens", "usage.prompt_tokens"),
			OutputTokens: firstInt(payload, "usage.output_tokens", "usage.completion_tokens"),
		},
	}, nil
}

func (h *HTTPJSON) buildRequestBody(prompt string, conversation Context, params map[string]any) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if h.model != "" {
		if body, err = sjson.SetBytes(body, "model", h.model); err != nil {
			return nil, err
		}
	}
	if body, err = sjson.SetBytes(body, "prompt", prompt); err != nil {
		return nil, err
	}
	if conversation.System != "" {
		if body, err = sjson.SetBytes(body, "system", conversation.System); err != nil {
			return nil, err
		}
	}
	if len(conversation.Turns) > 0 {
		if body, err = sjson.SetBytes(body, "messages", conversation.Turns); err != nil {
			return nil, err
		}
	}
	if len(params) > 0 {
		if body, err = sjson.SetBytes(body, "parameters", params); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (h *HTTPJSON) parseOutput(payload []byte) (Output, error) {
	value := gjson.GetBytes(payload, h.responsePath)
	if !value.Exists() {
		return nil, fmt.Errorf("%w at %q", ErrEmptyResponse, h.responsePath)
	}

	switch h.outputKind {
	case OutputImage:
		url := strings.TrimSpace(value.String())
		if url == "" {
			return nil, ErrEmptyResponse
		}
		return Image{
			URL:           url,
			MimeType:      gjson.GetBytes(payload, "data.0.mime_type").String(),
			Width:         int(gjson.GetBytes(payload, "data.0.width").Int()),
			Height:        int(gjson.GetBytes(payload, "data.0.height").Int()),
			RevisedPrompt: gjson.GetBytes(payload, "data.0.revised_prompt").String(),
		}, nil
	case OutputInfographic:
		if !value.IsObject() {
			return nil, fmt.Errorf("%w: infographic must be an object", ErrEmptyResponse)
		}
		out := Infographic{
			Title:    value.Get("title").String(),
			ImageURL: value.Get("image_url").String(),
		}
		value.Get("sections").ForEach(func(_, section gjson.Result) bool {
			out.Sections = append(out.Sections, InfographicSection{
				Heading: section.Get("heading").String(),
				Body:    section.Get("body").String(),
			})
			return true
		})
		if out.Title == "" && len(out.Sections) == 0 {
			return nil, ErrEmptyResponse
		}
		return out, nil
	default:
		text := value.String()
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyResponse
		}
		return Text{Body: text}, nil
	}
}

func firstInt(payload []byte, paths ...string) int64 {
	for _, p := range paths {
		if v := gjson.GetBytes(payload, p); v.Exists() {
			return v.Int()
		}
	}
	return 0
}
