package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepSeekClientInvoke(t *testing.T) {
	var got deepseekRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"deepseek-chat","choices":[{"message":{"role":"assistant","content":"answer"}}],
			"usage":{"prompt_tokens":12,"completion_tokens":30,"prompt_cache_hit_tokens":4}}`))
	}))
	defer srv.Close()

	client, err := NewDeepSeekClient("deepseek", "key", "deepseek-chat", srv.URL)
	require.NoError(t, err)

	resp, err := client.Invoke(context.Background(), "what changed?", PromptContext{
		System:  "be brief",
		History: []Message{{Role: RoleUser, Content: "earlier"}, {Role: RoleAssistant, Content: "  "}},
	})
	require.NoError(t, err)

	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, "deepseek", resp.BackendID)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 30, CachedTokens: 4}, resp.Usage)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "earlier", got.Messages[1].Content)
	assert.Equal(t, "what changed?", got.Messages[2].Content)
}

func TestDeepSeekClientStatusErrors(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", status)
	}))
	defer srv.Close()

	client, err := NewDeepSeekClient("deepseek", "key", "", srv.URL)
	require.NoError(t, err)

	_, err = client.Invoke(context.Background(), "hi", PromptContext{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, KindTransient, KindOf(err))

	status = http.StatusUnauthorized
	_, err = client.Invoke(context.Background(), "hi", PromptContext{})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, KindPermission, KindOf(err))
}

func TestDeepSeekClientRequiresKey(t *testing.T) {
	_, err := NewDeepSeekClient("deepseek", "", "", "")
	assert.Error(t, err)
}

func TestOllamaClientInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama3", req.Model)
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"local answer"},"done":true,"prompt_eval_count":7,"eval_count":21}`))
	}))
	defer srv.Close()

	client := NewOllamaClient("local", "llama3", srv.URL)
	resp, err := client.Invoke(context.Background(), "hello", PromptContext{})
	require.NoError(t, err)
	assert.Equal(t, "local answer", resp.Content)
	assert.Equal(t, 7, resp.Usage.InputTokens)
	assert.Equal(t, 21, resp.Usage.OutputTokens)
}

func TestOllamaClientNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewOllamaClient("local", "llama3", url)
	_, err := client.Invoke(context.Background(), "hello", PromptContext{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestOllamaClientModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewOllamaClient("local", "missing", srv.URL)
	_, err := client.Invoke(context.Background(), "hello", PromptContext{})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}
