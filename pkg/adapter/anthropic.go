package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements BackendClient for Claude models.
type AnthropicClient struct {
	id     string
	model  string
	client anthropic.Client
}

// NewAnthropicClient creates a new Anthropic backend client.
func NewAnthropicClient(id, apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	// Retries are owned by the resilience layer.
	client := anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &AnthropicClient{id: id, model: model, client: client}, nil
}

// ID returns the backend identifier.
func (a *AnthropicClient) ID() string {
	return a.id
}

// Invoke sends the prompt to Claude.
func (a *AnthropicClient) Invoke(ctx context.Context, prompt string, pc PromptContext) (*Response, error) {
	start := time.Now()

	var messages []anthropic.MessageParam
	for _, m := range nonEmptyHistory(pc.History) {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens(pc, 4096)),
		Messages:  messages,
	}
	if pc.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: pc.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.wrapError(err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &Response{
		Content:   content,
		BackendID: a.id,
		Model:     a.model,
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			CachedTokens: int(resp.Usage.CacheReadInputTokens),
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (a *AnthropicClient) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewStatusError(a.id, apiErr.StatusCode, fmt.Errorf("anthropic API error: %w", err))
	}
	return &AdapterError{Backend: a.id, Err: fmt.Errorf("anthropic API error: %w", err)}
}
