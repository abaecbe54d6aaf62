package adapter

import (
	"context"
	"strings"
)

// BackendClient is the contract every inference backend implements.
// Provider-specific request and response translation happens entirely
// inside the client; the deadline for the call is carried by ctx.
type BackendClient interface {
	// ID returns the backend identifier used for routing, breakers and budgets.
	ID() string

	// Invoke sends a prompt with its surrounding context and returns the response.
	Invoke(ctx context.Context, prompt string, pc PromptContext) (*Response, error)
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// PromptContext carries everything a backend needs besides the prompt itself.
type PromptContext struct {
	// System is the system instruction for the model.
	System string `json:"system,omitempty"`

	// History is prior conversation, oldest first.
	History []Message `json:"history,omitempty"`

	// LiveData asks backends that can reach live sources to use them.
	LiveData bool `json:"live_data,omitempty"`

	// MaxTokens bounds the completion length. Zero means the client default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

func maxTokens(pc PromptContext, def int) int {
	if pc.MaxTokens > 0 {
		return pc.MaxTokens
	}
	return def
}

func nonEmptyHistory(history []Message) []Message {
	out := make([]Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
