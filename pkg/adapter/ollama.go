package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"
)

const ollamaBaseURL = "http://127.0.0.1:11434"

// ErrOllamaNotRunning is returned when the local Ollama server refuses connections.
var ErrOllamaNotRunning = errors.New("ollama is not running")

// OllamaClient implements BackendClient for a locally hosted model served by
// Ollama. It is the fallback backend of last resort: free, private and
// available when remote providers are not.
type OllamaClient struct {
	id         string
	model      string
	baseURL    string
	httpClient *http.Client
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaClient creates a client for a local Ollama server. An empty
// baseURL selects http://127.0.0.1:11434.
func NewOllamaClient(id, model, baseURL string) *OllamaClient {
	if model == "" {
		model = "qwen2.5:14b"
	}
	if baseURL == "" {
		baseURL = ollamaBaseURL
	}
	return &OllamaClient{
		id:         id,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// ID returns the backend identifier.
func (c *OllamaClient) ID() string {
	return c.id
}

// Invoke sends the prompt to the local model.
func (c *OllamaClient) Invoke(ctx context.Context, prompt string, pc PromptContext) (*Response, error) {
	start := time.Now()

	var messages []ollamaMessage
	if pc.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: pc.System})
	}
	for _, m := range nonEmptyHistory(pc.History) {
		messages = append(messages, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  &ollamaOptions{NumPredict: maxTokens(pc, 2048)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, &AdapterError{Backend: c.id, Temporary: true, Err: ErrOllamaNotRunning}
		}
		return nil, &AdapterError{Backend: c.id, Temporary: true, Err: fmt.Errorf("ollama request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AdapterError{Backend: c.id, Temporary: true, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewStatusError(c.id, resp.StatusCode, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var chat ollamaChatResponse
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, &AdapterError{Backend: c.id, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if chat.Error != "" {
		return nil, &AdapterError{Backend: c.id, Err: fmt.Errorf("ollama error: %s", chat.Error)}
	}

	return &Response{
		Content:   chat.Message.Content,
		BackendID: c.id,
		Model:     c.model,
		Usage: Usage{
			InputTokens:  chat.PromptEvalCount,
			OutputTokens: chat.EvalCount,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}
