// Package router classifies analysis requests and ranks backends for them.
package router

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/budget"
	"github.com/zen-systems/intelgate/pkg/config"
	"github.com/zen-systems/intelgate/pkg/resilience"
)

// Performance is the observed track record of a backend.
type Performance struct {
	SuccessRate   float64
	AvgConfidence float64
	AvgLatencyS   float64
}

// DefaultPerformance is assumed for backends with no history.
var DefaultPerformance = Performance{SuccessRate: 1.0, AvgConfidence: 0.7, AvgLatencyS: 10}

// PerformanceSource gives read-only access to backend performance.
type PerformanceSource interface {
	Performance(backend string) Performance
}

// AvailabilitySource reports the breaker state a new call would meet. An
// OPEN breaker whose recovery window has elapsed reports HALF_OPEN.
type AvailabilitySource interface {
	EffectiveState(backend string) resilience.State
}

// BackendProfile is the static routing view of a backend.
type BackendProfile struct {
	ID           string
	Capabilities map[Capability]bool
}

// ProfilesFromConfig builds profiles for the enabled backends, skipping the
// ids in exclude.
func ProfilesFromConfig(cfg *config.OrchestrationConfig, exclude ...string) []BackendProfile {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var profiles []BackendProfile
	for _, id := range cfg.EnabledBackends() {
		if skip[id] {
			continue
		}
		caps := make(map[Capability]bool)
		for _, c := range cfg.Backends[id].Capabilities {
			caps[Capability(c)] = true
		}
		profiles = append(profiles, BackendProfile{ID: id, Capabilities: caps})
	}
	return profiles
}

// Router ranks backends for a request. Classify has no side effects.
type Router struct {
	profiles []BackendProfile
	lexicon  *Lexicon
	pricing  budget.Pricing
	perf     PerformanceSource
	avail    AvailabilitySource
	margin   float64
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLexicon replaces the built-in term lists.
func WithLexicon(l *Lexicon) Option {
	return func(r *Router) {
		if l != nil {
			r.lexicon = l
		}
	}
}

// WithPricing sets the per-backend prices used for cost estimates.
func WithPricing(p budget.Pricing) Option {
	return func(r *Router) {
		r.pricing = p
	}
}

// WithPerformance supplies observed backend performance.
func WithPerformance(p PerformanceSource) Option {
	return func(r *Router) {
		r.perf = p
	}
}

// WithAvailability supplies live breaker state.
func WithAvailability(a AvailabilitySource) Option {
	return func(r *Router) {
		r.avail = a
	}
}

// WithSecondaryMargin sets how close the runner-up must score to be used.
func WithSecondaryMargin(m float64) Option {
	return func(r *Router) {
		if m >= 0 {
			r.margin = m
		}
	}
}

// WithLogger sets the logger for routing debug output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter creates a router over the given backends.
func NewRouter(profiles []BackendProfile, opts ...Option) *Router {
	r := &Router{
		profiles: profiles,
		lexicon:  DefaultLexicon(),
		margin:   0.2,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Profiles returns the routable backends.
func (r *Router) Profiles() []BackendProfile {
	return r.profiles
}

// Classify analyses the request and ranks every routable backend.
func (r *Router) Classify(in Input) *QueryAnalysis {
	if in.Depth == "" {
		in.Depth = DepthStandard
	}
	sig := extractSignals(in, r.lexicon)
	score, parts := complexityScore(sig)
	complexity := classifyComplexity(score, in.Urgent)
	relevance := domainRelevance(sig)
	liveData := len(sig.recency) > 0
	required := requiredCapabilities(in, complexity, liveData, relevance)

	analysis := &QueryAnalysis{
		Complexity:           complexity,
		ComplexityScore:      score,
		UrgencyScore:         urgencyScore(sig, in.Urgent),
		DomainRelevance:      relevance,
		RequiresLiveData:     liveData,
		RequiredCapabilities: required,
		EstimatedLatencyS:    estimatedLatency(in.Depth, complexity),
	}
	analysis.Reasons = append(analysis.Reasons, describeSignals(sig, score, parts))
	if len(sig.recency) > 0 {
		analysis.Reasons = append(analysis.Reasons, "recency terms: "+strings.Join(sig.recency, ", "))
	}
	if len(required) > 0 {
		analysis.Reasons = append(analysis.Reasons, fmt.Sprintf("required capabilities: %v", required))
	}

	candidates := make([]Candidate, 0, len(r.profiles))
	for _, p := range r.profiles {
		candidates = append(candidates, r.score(p, required))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].BackendID < candidates[j].BackendID
		}
		return candidates[i].Score > candidates[j].Score
	})
	analysis.Scores = candidates

	for _, c := range candidates {
		analysis.RecommendedBackends = append(analysis.RecommendedBackends, c.BackendID)
	}
	if len(candidates) > 0 {
		top := candidates[0]
		analysis.RoutingConfidence = top.Score
		for _, c := range candidates[1:] {
			// An open breaker is never picked for the parallel leg.
			if c.Availability == 0 {
				continue
			}
			if top.Score-c.Score <= r.margin {
				analysis.Secondary = c.BackendID
			}
			break
		}
		analysis.Reasons = append(analysis.Reasons,
			fmt.Sprintf("primary=%s score=%.3f secondary=%q", top.BackendID, top.Score, analysis.Secondary))
	}

	analysis.EstimatedCostUSD = r.estimateCost(in, analysis)

	r.logger.Debug("routed request",
		"complexity", complexity, "live_data", liveData,
		"primary", analysis.Primary(), "secondary", analysis.Secondary,
		"routing_confidence", analysis.RoutingConfidence,
		"estimated_cost_usd", analysis.EstimatedCostUSD)
	return analysis
}

func (r *Router) score(p BackendProfile, required []Capability) Candidate {
	overlap := 1.0
	if len(required) > 0 {
		matched := 0
		for _, c := range required {
			if p.Capabilities[c] {
				matched++
			}
		}
		overlap = float64(matched) / float64(len(required))
	}

	perf := DefaultPerformance
	if r.perf != nil {
		perf = r.perf.Performance(p.ID)
	}
	latencyScore := 1 / (1 + perf.AvgLatencyS/10)
	performance := 0.5*perf.SuccessRate + 0.3*perf.AvgConfidence + 0.2*latencyScore

	availability := 1.0
	if r.avail != nil {
		switch r.avail.EffectiveState(p.ID) {
		case resilience.StateOpen:
			availability = 0
		case resilience.StateHalfOpen:
			availability = 0.5
		}
	}

	return Candidate{
		BackendID:         p.ID,
		Score:             0.5*overlap + 0.3*performance + 0.2*availability,
		CapabilityOverlap: overlap,
		Performance:       performance,
		Availability:      availability,
	}
}

func (r *Router) estimateCost(in Input, a *QueryAnalysis) float64 {
	usage := adapter.Usage{
		InputTokens:  budget.EstimateInputTokens(in.TopicContext + " " + in.QueryText),
		OutputTokens: in.Depth.outputTokens(),
	}
	var total float64
	for _, id := range []string{a.Primary(), a.Secondary} {
		if id == "" {
			continue
		}
		cost, _ := r.pricing.Cost(id, usage)
		total += cost
	}
	return total
}
