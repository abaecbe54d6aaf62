package router

import (
	"fmt"
	"math"
	"strings"
)

// signals is the term-matching breakdown of a query.
type signals struct {
	words      int
	analytical []string
	recency    []string
	locality   []string
	urgent     []string
	domain     []string
}

func extractSignals(in Input, lex *Lexicon) signals {
	text := in.QueryText
	return signals{
		words:      len(strings.Fields(text)),
		analytical: matchTerms(text, lex.Analytical),
		recency:    matchTerms(text, lex.Recency),
		locality:   matchTerms(text, lex.Locality),
		urgent:     matchTerms(text, lex.Urgent),
		domain:     matchTerms(text+"\n"+in.TopicContext, lex.Domain),
	}
}

// complexityScore is the weighted sum of the length (<=0.3), analytical
// (<=0.4), recency (<=0.2) and locality (<=0.1) signals.
func complexityScore(s signals) (score float64, parts [4]float64) {
	parts[0] = 0.3 * math.Min(1, float64(s.words)/60)
	parts[1] = math.Min(0.4, 0.1*float64(len(s.analytical)))
	parts[2] = math.Min(0.2, 0.1*float64(len(s.recency)))
	parts[3] = math.Min(0.1, 0.05*float64(len(s.locality)))
	return parts[0] + parts[1] + parts[2] + parts[3], parts
}

func classifyComplexity(score float64, urgent bool) Complexity {
	switch {
	case urgent:
		return ComplexityUrgent
	case score >= 0.7:
		return ComplexityComplex
	case score >= 0.4:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}

func urgencyScore(s signals, flagged bool) float64 {
	if flagged {
		return 1
	}
	return math.Min(1, 0.25*float64(len(s.urgent)))
}

func domainRelevance(s signals) float64 {
	return math.Min(1, float64(len(s.domain))/5)
}

func requiredCapabilities(in Input, c Complexity, liveData bool, relevance float64) []Capability {
	var caps []Capability
	if liveData {
		caps = append(caps, CapLiveData)
	}
	if c == ComplexityComplex || c == ComplexityUrgent || in.Depth == DepthDeep {
		caps = append(caps, CapDeepReasoning)
	}
	if in.HasHistory {
		caps = append(caps, CapConversationAware)
	}
	if in.Depth == DepthDeep || relevance >= 0.6 {
		caps = append(caps, CapSourceVerification)
	}
	return caps
}

func estimatedLatency(depth Depth, c Complexity) int {
	latency := depth.baseLatencyS()
	if c == ComplexityComplex {
		latency += 10
	}
	return latency
}

func describeSignals(s signals, score float64, parts [4]float64) string {
	return fmt.Sprintf("complexity=%.2f (length=%.2f analytical=%.2f recency=%.2f locality=%.2f) words=%d",
		score, parts[0], parts[1], parts[2], parts[3], s.words)
}
