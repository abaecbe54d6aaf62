package router

import "fmt"

// Complexity is the classified difficulty of a query.
type Complexity string

const (
	ComplexitySimple   Complexity = "SIMPLE"
	ComplexityModerate Complexity = "MODERATE"
	ComplexityComplex  Complexity = "COMPLEX"
	ComplexityUrgent   Complexity = "URGENT"
)

// Depth is the requested analysis depth.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// ParseDepth validates a depth string. Empty means standard.
func ParseDepth(s string) (Depth, error) {
	switch Depth(s) {
	case "":
		return DepthStandard, nil
	case DepthQuick, DepthStandard, DepthDeep:
		return Depth(s), nil
	default:
		return "", fmt.Errorf("invalid depth %q (want quick, standard or deep)", s)
	}
}

// outputTokens is the expected completion length per depth.
func (d Depth) outputTokens() int {
	switch d {
	case DepthQuick:
		return 400
	case DepthDeep:
		return 2500
	default:
		return 1000
	}
}

// baseLatencyS is the expected latency in seconds per depth.
func (d Depth) baseLatencyS() int {
	switch d {
	case DepthQuick:
		return 5
	case DepthDeep:
		return 30
	default:
		return 15
	}
}

// Capability is something a backend is good at.
type Capability string

const (
	CapDeepReasoning      Capability = "deep-reasoning"
	CapLiveData           Capability = "live-data"
	CapConversationAware  Capability = "conversation-aware"
	CapSourceVerification Capability = "source-verification"
)

// Input is what the router sees of a request.
type Input struct {
	QueryText    string
	TopicContext string
	Depth        Depth
	HasHistory   bool
	Urgent       bool
}

// Candidate is one backend's routing score.
type Candidate struct {
	BackendID         string  `json:"backend_id"`
	Score             float64 `json:"score"`
	CapabilityOverlap float64 `json:"capability_overlap"`
	Performance       float64 `json:"performance"`
	Availability      float64 `json:"availability"`
}

// QueryAnalysis is the routing decision for one request. It is not mutated
// after Classify returns.
type QueryAnalysis struct {
	Complexity           Complexity   `json:"complexity"`
	ComplexityScore      float64      `json:"complexity_score"`
	UrgencyScore         float64      `json:"urgency_score"`
	DomainRelevance      float64      `json:"domain_relevance"`
	RequiresLiveData     bool         `json:"requires_live_data"`
	RequiredCapabilities []Capability `json:"required_capabilities,omitempty"`

	// RecommendedBackends lists every routable backend, best first.
	RecommendedBackends []string    `json:"recommended_backends"`
	Secondary           string      `json:"secondary,omitempty"`
	RoutingConfidence   float64     `json:"routing_confidence"`
	Scores              []Candidate `json:"scores,omitempty"`

	EstimatedCostUSD  float64  `json:"estimated_cost_usd"`
	EstimatedLatencyS int      `json:"estimated_latency_s"`
	Reasons           []string `json:"reasons,omitempty"`
}

// Primary returns the top-ranked backend, or "" when none is routable.
func (a *QueryAnalysis) Primary() string {
	if a == nil || len(a.RecommendedBackends) == 0 {
		return ""
	}
	return a.RecommendedBackends[0]
}
