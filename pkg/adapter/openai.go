package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements BackendClient for OpenAI chat models.
type OpenAIClient struct {
	id     string
	model  string
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI backend client.
func NewOpenAIClient(id, apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = "gpt-5.2-thinking"
	}

	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &OpenAIClient{id: id, model: model, client: client}, nil
}

// ID returns the backend identifier.
func (a *OpenAIClient) ID() string {
	return a.id
}

// Invoke sends the prompt to OpenAI.
func (a *OpenAIClient) Invoke(ctx context.Context, prompt string, pc PromptContext) (*Response, error) {
	start := time.Now()

	var messages []openai.ChatCompletionMessageParamUnion
	if pc.System != "" {
		messages = append(messages, openai.SystemMessage(pc.System))
	}
	for _, m := range nonEmptyHistory(pc.History) {
		if m.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(a.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens(pc, 4096))),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, NewStatusError(a.id, apiErr.StatusCode, fmt.Errorf("openai API error: %w", err))
		}
		return nil, &AdapterError{Backend: a.id, Err: fmt.Errorf("openai API error: %w", err)}
	}

	if len(resp.Choices) == 0 {
		return nil, &AdapterError{Backend: a.id, Temporary: true, Err: fmt.Errorf("openai returned no choices")}
	}

	return &Response{
		Content:   resp.Choices[0].Message.Content,
		BackendID: a.id,
		Model:     a.model,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			CachedTokens: int(resp.Usage.PromptTokensDetails.CachedTokens),
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
