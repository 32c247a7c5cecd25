package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// MaxAnthropicTemperature is the highest temperature the Messages API accepts.
const MaxAnthropicTemperature = 1.0

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicBackend creates a backend using the official client. An empty
// apiKey falls back to the SDK's environment lookup.
func NewAnthropicBackend(apiKey, model string, opts ...option.RequestOption) *AnthropicBackend {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	// Retries are owned by Client
	opts = append(opts, option.WithMaxRetries(0))
	client := anthropic.NewClient(opts...)
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicBackend{client: &client, model: model}
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return "anthropic" }

// Complete implements Backend. Temperatures above MaxAnthropicTemperature
// are clamped to it.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(b.model),
		MaxTokens:   int64(req.Params.MaxTokens),
		Temperature: anthropic.Float(min(req.Params.Temperature, MaxAnthropicTemperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Context)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Code: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("anthropic request: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
