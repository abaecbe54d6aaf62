package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GoogleClient implements BackendClient for Gemini models. When the prompt
// context asks for live data and grounding is enabled, requests carry the
// Google Search tool and grounding chunks are returned as sources.
type GoogleClient struct {
	id        string
	model     string
	grounding bool
	client    *genai.Client
}

// NewGoogleClient creates a new Google Gemini backend client.
func NewGoogleClient(ctx context.Context, id, apiKey, model string, grounding bool) (*GoogleClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if model == "" {
		model = "gemini-2.0-pro"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleClient{
		id:        id,
		model:     model,
		grounding: grounding,
		client:    client,
	}, nil
}

// ID returns the backend identifier.
func (a *GoogleClient) ID() string {
	return a.id
}

// Invoke sends the prompt to Gemini.
func (a *GoogleClient) Invoke(ctx context.Context, prompt string, pc PromptContext) (*Response, error) {
	start := time.Now()

	var contents []*genai.Content
	for _, m := range nonEmptyHistory(pc.History) {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens(pc, 4096)),
	}
	if pc.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(pc.System, genai.RoleUser)
	}
	if a.grounding && pc.LiveData {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, cfg)
	if err != nil {
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			return nil, NewStatusError(a.id, apiErr.Code, fmt.Errorf("google API error: %w", err))
		}
		return nil, &AdapterError{Backend: a.id, Err: fmt.Errorf("google API error: %w", err)}
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &AdapterError{Backend: a.id, Temporary: true, Err: fmt.Errorf("google returned no candidates")}
	}

	candidate := resp.Candidates[0]
	var content string
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				content += part.Text
			}
		}
	}

	out := &Response{
		Content:   content,
		BackendID: a.id,
		Model:     a.model,
		Sources:   groundingSources(candidate),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if md := resp.UsageMetadata; md != nil {
		out.Usage = Usage{
			InputTokens:  int(md.PromptTokenCount),
			OutputTokens: int(md.CandidatesTokenCount),
			CachedTokens: int(md.CachedContentTokenCount),
		}
	}
	return out, nil
}

func groundingSources(c *genai.Candidate) []Source {
	if c == nil || c.GroundingMetadata == nil {
		return nil
	}
	var sources []Source
	for _, chunk := range c.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		sources = append(sources, Source{Title: chunk.Web.Title, URL: chunk.Web.URI})
	}
	return sources
}
