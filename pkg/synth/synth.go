// Package synth turns one or more backend answers into a single
// confidence-scored result.
package synth

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/router"
)

// Credibility given to grounding sources a backend attached to its answer.
const sourceCredibility = 0.8

// Result is the synthesized answer returned to callers.
type Result struct {
	RequestID       string  `json:"request_id"`
	Content         string  `json:"content"`
	ConfidenceScore float64 `json:"confidence_score"`

	// ConsensusScore is set only when more than one backend answered.
	ConsensusScore *float64 `json:"consensus_score,omitempty"`

	Insights           []Insight          `json:"insights,omitempty"`
	Risks              []Risk             `json:"risks,omitempty"`
	RecommendedActions []Action           `json:"recommended_actions,omitempty"`
	Opportunities      []Opportunity      `json:"opportunities,omitempty"`
	Evidence           []EvidenceItem     `json:"evidence,omitempty"`
	Weights            map[string]float64 `json:"weights,omitempty"`
	Backends           []string           `json:"backends,omitempty"`

	Complexity router.Complexity `json:"complexity,omitempty"`
	CostUSD    float64           `json:"cost_usd"`
	VersionTag string            `json:"version_tag,omitempty"`

	FallbackMode         bool          `json:"fallback_mode"`
	CircuitBreakerActive bool          `json:"circuit_breaker_active"`
	BudgetExceeded       bool          `json:"budget_exceeded"`
	Degraded             bool          `json:"degraded"`
	CacheHit             bool          `json:"cache_hit"`
	NotModified          bool          `json:"not_modified"`
	RetryAfter           time.Duration `json:"retry_after,omitempty"`
}

// Synthesizer merges backend outcomes.
type Synthesizer struct {
	scorer      *Scorer
	baseWeights map[string]float64
}

// New creates a synthesizer. Backends missing from baseWeights get 1.0.
func New(baseWeights map[string]float64) *Synthesizer {
	if baseWeights == nil {
		baseWeights = map[string]float64{}
	}
	return &Synthesizer{scorer: NewScorer(), baseWeights: baseWeights}
}

// Scorer returns the quality scorer used for backend answers.
func (s *Synthesizer) Scorer() *Scorer {
	return s.scorer
}

type scored struct {
	id     string
	resp   adapter.Response
	sec    Sections
	weight float64
}

// Synthesize combines the successful outcomes of one request. Each
// response's QualityScore is used as that backend's confidence.
func (s *Synthesizer) Synthesize(outcomes map[string]adapter.Response, analysis *router.QueryAnalysis) *Result {
	res := &Result{Weights: make(map[string]float64)}
	if analysis != nil {
		res.Complexity = analysis.Complexity
	}
	if len(outcomes) == 0 {
		return res
	}

	parts := make([]*scored, 0, len(outcomes))
	for id, resp := range outcomes {
		sec := Parse(resp.Content)
		sec.Evidence = append(sec.Evidence, sourcesAsEvidence(resp.Sources)...)
		resp.QualityScore = clamp(resp.QualityScore, 0, 1)
		parts = append(parts, &scored{id: id, resp: resp, sec: sec})
		res.CostUSD += resp.CostUSD
	}

	if len(parts) == 1 {
		p := parts[0]
		p.weight = 1
		res.ConfidenceScore = clamp(p.resp.QualityScore+evidenceBoost(p.sec)+actionabilityBoost(p.sec), 0, 1)
		res.Content = content(p)
	} else {
		raw := make([]float64, len(parts))
		for i, p := range parts {
			raw[i] = s.adaptiveWeight(p)
		}
		weights := NormalizeWeights(raw)
		for i, p := range parts {
			p.weight = weights[i]
		}
		sort.SliceStable(parts, func(i, j int) bool {
			if parts[i].weight == parts[j].weight {
				return parts[i].id < parts[j].id
			}
			return parts[i].weight > parts[j].weight
		})

		var weighted, lo, hi float64
		lo, hi = 1, 0
		for _, p := range parts {
			q := p.resp.QualityScore
			weighted += p.weight * q
			lo = math.Min(lo, q)
			hi = math.Max(hi, q)
		}
		consensus := 1 - math.Abs(hi-lo)
		res.ConsensusScore = &consensus

		routing := 0.0
		if analysis != nil {
			routing = clamp(analysis.RoutingConfidence, 0, 1)
		}
		res.ConfidenceScore = clamp(weighted+0.1*routing+0.05*consensus, 0, 1)

		var b strings.Builder
		for i, p := range parts {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "[%s, weight %.2f]\n%s", p.id, p.weight, content(p))
		}
		res.Content = b.String()
	}

	merge(res, parts)
	return res
}

// adaptiveWeight is base + quality adjustment + evidence adjustment,
// clamped to [0.1, 1].
func (s *Synthesizer) adaptiveWeight(p *scored) float64 {
	base, ok := s.baseWeights[p.id]
	if !ok {
		base = 1.0
	}
	evidence := math.Min(0.1, 0.02*float64(len(p.sec.Evidence)))
	return clamp(base+(p.resp.QualityScore-0.5)*0.4+evidence, 0.1, 1)
}

// NormalizeWeights scales weights to sum to 1. Negative weights count as
// zero; all-zero input yields equal weights.
func NormalizeWeights(raw []float64) []float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make([]float64, len(raw))
	var sum float64
	for i, w := range raw {
		if w < 0 || math.IsNaN(w) {
			w = 0
		}
		out[i] = w
		sum += w
	}
	if sum <= 0 || math.IsInf(sum, 0) {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func evidenceBoost(sec Sections) float64 {
	if len(sec.Evidence) == 0 {
		return 0
	}
	var cred float64
	for _, e := range sec.Evidence {
		cred += e.Credibility
	}
	return math.Min(0.1, 0.025*float64(len(sec.Evidence))*cred/float64(len(sec.Evidence)))
}

func actionabilityBoost(sec Sections) float64 {
	return math.Min(0.05, 0.01*float64(len(sec.Actions)))
}

func content(p *scored) string {
	if p.sec.Structured && p.sec.Summary != "" {
		return p.sec.Summary
	}
	return strings.TrimSpace(p.resp.Content)
}

func sourcesAsEvidence(sources []adapter.Source) []EvidenceItem {
	out := make([]EvidenceItem, 0, len(sources))
	for _, src := range sources {
		if src.URL == "" {
			continue
		}
		claim := src.Title
		if claim == "" {
			claim = src.URL
		}
		out = append(out, EvidenceItem{Claim: claim, Source: src.Title, URL: src.URL, Credibility: sourceCredibility})
	}
	return out
}

// merge collects typed sections in weight order, dropping duplicates.
func merge(res *Result, parts []*scored) {
	seen := make(map[string]bool)
	fresh := func(kind, s string) bool {
		key := kind + "\x00" + strings.ToLower(strings.Join(strings.Fields(s), " "))
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	}

	for _, p := range parts {
		res.Backends = append(res.Backends, p.id)
		res.Weights[p.id] = p.weight

		for _, in := range p.sec.Insights {
			if fresh("insight", in.Title) {
				in.Backend = p.id
				res.Insights = append(res.Insights, in)
			}
		}
		for _, r := range p.sec.Risks {
			if fresh("risk", r.Description) {
				r.Backend = p.id
				res.Risks = append(res.Risks, r)
			}
		}
		for _, a := range p.sec.Actions {
			if fresh("action", a.Description) {
				a.Backend = p.id
				res.RecommendedActions = append(res.RecommendedActions, a)
			}
		}
		for _, o := range p.sec.Opportunities {
			if fresh("opportunity", o.Description) {
				o.Backend = p.id
				res.Opportunities = append(res.Opportunities, o)
			}
		}
		for _, e := range p.sec.Evidence {
			if fresh("evidence", e.Claim+"\x00"+e.URL) {
				e.Backend = p.id
				e.Credibility = clamp(e.Credibility*p.weight, 0, 1)
				res.Evidence = append(res.Evidence, e)
			}
		}
	}
}
