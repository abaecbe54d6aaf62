package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekClient implements BackendClient for DeepSeek models.
// DeepSeek uses an OpenAI-compatible API format.
type DeepSeekClient struct {
	id         string
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// deepseekRequest represents the OpenAI-compatible request format.
type deepseekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

// deepseekMessage represents a chat message.
type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// deepseekResponse represents the OpenAI-compatible response format.
type deepseekResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens         int `json:"prompt_tokens"`
		CompletionTokens     int `json:"completion_tokens"`
		TotalTokens          int `json:"total_tokens"`
		PromptCacheHitTokens int `json:"prompt_cache_hit_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewDeepSeekClient creates a new DeepSeek backend client. An empty baseURL
// selects the public API.
func NewDeepSeekClient(id, apiKey, model, baseURL string) (*DeepSeekClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}
	if model == "" {
		model = "deepseek-reasoner"
	}
	if baseURL == "" {
		baseURL = deepseekBaseURL
	}

	return &DeepSeekClient{
		id:         id,
		model:      model,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}, nil
}

// ID returns the backend identifier.
func (a *DeepSeekClient) ID() string {
	return a.id
}

// Invoke sends the prompt to DeepSeek.
func (a *DeepSeekClient) Invoke(ctx context.Context, prompt string, pc PromptContext) (*Response, error) {
	start := time.Now()

	var messages []deepseekMessage
	if pc.System != "" {
		messages = append(messages, deepseekMessage{Role: "system", Content: pc.System})
	}
	for _, m := range nonEmptyHistory(pc.History) {
		messages = append(messages, deepseekMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, deepseekMessage{Role: "user", Content: prompt})

	jsonBody, err := json.Marshal(deepseekRequest{
		Model:     a.model,
		Messages:  messages,
		MaxTokens: maxTokens(pc, 4096),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &AdapterError{Backend: a.id, Temporary: true, Err: fmt.Errorf("deepseek API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AdapterError{Backend: a.id, Temporary: true, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewStatusError(a.id, resp.StatusCode, fmt.Errorf("deepseek API returned status %d: %s", resp.StatusCode, string(body)))
	}

	var deepseekResp deepseekResponse
	if err := json.Unmarshal(body, &deepseekResp); err != nil {
		return nil, &AdapterError{Backend: a.id, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if deepseekResp.Error != nil {
		return nil, &AdapterError{Backend: a.id, Err: fmt.Errorf("deepseek API error: %s (type: %s, code: %s)",
			deepseekResp.Error.Message, deepseekResp.Error.Type, deepseekResp.Error.Code)}
	}

	if len(deepseekResp.Choices) == 0 {
		return nil, &AdapterError{Backend: a.id, Temporary: true, Err: fmt.Errorf("deepseek returned no choices")}
	}

	return &Response{
		Content:   deepseekResp.Choices[0].Message.Content,
		BackendID: a.id,
		Model:     a.model,
		Usage: Usage{
			InputTokens:  deepseekResp.Usage.PromptTokens,
			OutputTokens: deepseekResp.Usage.CompletionTokens,
			CachedTokens: deepseekResp.Usage.PromptCacheHitTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
