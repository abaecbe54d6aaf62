package coordinator

import (
	"fmt"
	"strings"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/router"
)

const responseFormat = `Respond with a single JSON object and nothing else:
{
  "summary": "direct answer in a few paragraphs",
  "insights": [{"title": "...", "detail": "...", "confidence": 0.0}],
  "risks": [{"description": "...", "severity": "low|medium|high|critical", "likelihood": "low|medium|high", "mitigation": "..."}],
  "actions": [{"description": "...", "priority": "low|medium|high|critical", "timeframe": "...", "owner": "..."}],
  "opportunities": [{"description": "...", "impact": "low|medium|high", "timeframe": "..."}],
  "evidence": [{"claim": "...", "source": "...", "url": "...", "credibility": 0.0}],
  "confidence": 0.0
}
Omit sections you have nothing for. Confidence values are between 0 and 1.`

// PromptBuilder renders backend prompts from a request and its routing.
type PromptBuilder struct {
	strategy ConversationalStrategy
}

// NewPromptBuilder creates a builder that trims history with strategy.
func NewPromptBuilder(strategy ConversationalStrategy) *PromptBuilder {
	if strategy == nil {
		strategy = WindowedConversation{Turns: 6}
	}
	return &PromptBuilder{strategy: strategy}
}

// Build returns the prompt and its context for one backend call.
func (b *PromptBuilder) Build(req Request, analysis *router.QueryAnalysis) (string, adapter.PromptContext) {
	var p strings.Builder
	if topic := strings.TrimSpace(req.TopicContext); topic != "" {
		fmt.Fprintf(&p, "Context:\n%s\n\n", topic)
	}
	fmt.Fprintf(&p, "Question:\n%s\n\n", req.QueryText)
	p.WriteString(responseFormat)

	pc := adapter.PromptContext{
		System:   b.system(req, analysis),
		History:  b.strategy.History(req.ConversationHistory),
		LiveData: analysis != nil && analysis.RequiresLiveData,
	}
	switch req.Depth {
	case router.DepthQuick:
		pc.MaxTokens = 1024
	case router.DepthDeep:
		pc.MaxTokens = 8192
	default:
		pc.MaxTokens = 4096
	}
	return p.String(), pc
}

func (b *PromptBuilder) system(req Request, analysis *router.QueryAnalysis) string {
	var s strings.Builder
	s.WriteString("You are a strategic intelligence analyst. Be specific, cite evidence, and separate facts from judgement.")

	switch req.Depth {
	case router.DepthQuick:
		s.WriteString(" Keep the answer brief: the key finding and at most three actions.")
	case router.DepthDeep:
		s.WriteString(" Give a thorough analysis covering second-order effects and alternative scenarios.")
	}

	switch req.StrategicMode {
	case ModeDefensive:
		s.WriteString(" Frame recommendations around protecting the current position and reducing exposure.")
	case ModeOffensive:
		s.WriteString(" Frame recommendations around seizing advantage and moving first.")
	}

	if analysis != nil {
		if analysis.RequiresLiveData {
			s.WriteString(" The question concerns recent events; use current sources and date your evidence.")
		}
		if analysis.Complexity == router.ComplexityUrgent {
			s.WriteString(" This is time-critical; lead with what to do now.")
		}
	}
	return s.String()
}
