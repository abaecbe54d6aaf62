package coordinator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/cache"
	"github.com/zen-systems/intelgate/pkg/router"
)

// MaxQueryLength bounds QueryText in characters.
const MaxQueryLength = 8000

// StrategicMode biases the framing of recommendations.
type StrategicMode string

const (
	ModeDefensive StrategicMode = "defensive"
	ModeNeutral   StrategicMode = "neutral"
	ModeOffensive StrategicMode = "offensive"
)

// Request is one analysis request. It is passed by value and never
// modified after submission.
type Request struct {
	TopicContext        string            `json:"topic_context,omitempty"`
	QueryText           string            `json:"query_text"`
	Depth               router.Depth      `json:"depth,omitempty"`
	StrategicMode       StrategicMode     `json:"strategic_mode,omitempty"`
	ConversationHistory []adapter.Message `json:"conversation_history,omitempty"`

	// Urgent forces URGENT complexity.
	Urgent bool `json:"urgent,omitempty"`

	// KnownVersion is the version tag of an answer the caller already holds.
	KnownVersion string `json:"known_version,omitempty"`
}

// ValidationError reports a malformed request. It is the only error Answer
// returns.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// normalize validates r and fills defaults.
func (r Request) normalize() (Request, error) {
	r.QueryText = strings.TrimSpace(r.QueryText)
	if r.QueryText == "" {
		return r, &ValidationError{Field: "query_text", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(r.QueryText); n > MaxQueryLength {
		return r, &ValidationError{Field: "query_text", Reason: fmt.Sprintf("%d characters exceeds %d", n, MaxQueryLength)}
	}

	depth, err := router.ParseDepth(string(r.Depth))
	if err != nil {
		return r, &ValidationError{Field: "depth", Reason: err.Error()}
	}
	r.Depth = depth

	switch r.StrategicMode {
	case "":
		r.StrategicMode = ModeNeutral
	case ModeDefensive, ModeNeutral, ModeOffensive:
	default:
		return r, &ValidationError{Field: "strategic_mode", Reason: fmt.Sprintf("unknown mode %q", r.StrategicMode)}
	}

	for i, m := range r.ConversationHistory {
		if m.Role != adapter.RoleUser && m.Role != adapter.RoleAssistant {
			return r, &ValidationError{Field: fmt.Sprintf("conversation_history[%d].role", i), Reason: fmt.Sprintf("unknown role %q", m.Role)}
		}
	}
	return r, nil
}

// hasHistory reports whether any history turn carries content.
func (r Request) hasHistory() bool {
	for _, m := range r.ConversationHistory {
		if strings.TrimSpace(m.Content) != "" {
			return true
		}
	}
	return false
}

// cacheKey identifies requests that may share an answer.
func (r Request) cacheKey() string {
	parts := []string{string(r.Depth), string(r.StrategicMode), r.TopicContext, r.QueryText}
	if r.Urgent {
		parts = append(parts, "urgent")
	}
	for _, m := range r.ConversationHistory {
		parts = append(parts, string(m.Role)+":"+m.Content)
	}
	return cache.Key(answerNamespace, parts...)
}
