package adapter

import (
	"context"
	"fmt"
	"sync/atomic"
)

// MockClient returns deterministic responses for local runs and tests.
type MockClient struct {
	id              string
	responses       map[string]string
	defaultResponse string
	Usage           Usage
	calls           atomic.Int64
}

// NewMockClient creates a mock backend with a default response.
func NewMockClient(id string) *MockClient {
	return &MockClient{
		id:              id,
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockClientWithResponses creates a mock backend with predefined responses.
func NewMockClientWithResponses(id string, responses map[string]string, defaultResponse string) *MockClient {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockClient{id: id, responses: responses, defaultResponse: defaultResponse}
}

// ID returns the backend identifier.
func (m *MockClient) ID() string {
	return m.id
}

// Calls reports how many times Invoke ran.
func (m *MockClient) Calls() int {
	return int(m.calls.Load())
}

// Invoke returns a deterministic response for the prompt.
func (m *MockClient) Invoke(_ context.Context, prompt string, _ PromptContext) (*Response, error) {
	m.calls.Add(1)
	content, ok := m.responses[prompt]
	if !ok {
		content = fmt.Sprintf("%s\n%s", m.defaultResponse, prompt)
	}
	return &Response{
		Content:   content,
		BackendID: m.id,
		Model:     "mock-1",
		Usage:     m.Usage,
	}, nil
}
