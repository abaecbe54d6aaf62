package coordinator

import (
	"strings"

	"github.com/zen-systems/intelgate/pkg/adapter"
)

// ConversationalStrategy decides how much prior conversation a backend sees.
type ConversationalStrategy interface {
	History(history []adapter.Message) []adapter.Message
}

// WindowedConversation keeps the last Turns non-empty messages.
type WindowedConversation struct {
	Turns int
}

// History implements ConversationalStrategy.
func (w WindowedConversation) History(history []adapter.Message) []adapter.Message {
	out := make([]adapter.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) != "" {
			out = append(out, m)
		}
	}
	if w.Turns > 0 && len(out) > w.Turns {
		out = out[len(out)-w.Turns:]
	}
	return out
}
