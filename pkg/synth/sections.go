package synth

import "strings"

// Level is a normalised priority, severity or impact rating.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Rank orders levels, higher is more important.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// ParseLevel maps the many ways backends spell a rating onto a Level.
// Unknown or empty values become medium.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "minor", "p3", "p4":
		return LevelLow
	case "high", "major", "important", "p1":
		return LevelHigh
	case "critical", "urgent", "severe", "blocker", "p0":
		return LevelCritical
	default:
		return LevelMedium
	}
}

// Insight is an observation a backend drew from the request.
type Insight struct {
	Title      string  `json:"title"`
	Detail     string  `json:"detail,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Backend    string  `json:"backend,omitempty"`
}

// Risk is a threat with its rating and mitigation.
type Risk struct {
	Description string `json:"description"`
	Severity    Level  `json:"severity"`
	Likelihood  Level  `json:"likelihood"`
	Mitigation  string `json:"mitigation,omitempty"`
	Backend     string `json:"backend,omitempty"`
}

// Action is a recommended next step.
type Action struct {
	Description string `json:"description"`
	Priority    Level  `json:"priority"`
	Timeframe   string `json:"timeframe,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Backend     string `json:"backend,omitempty"`
}

// Opportunity is an upside worth pursuing.
type Opportunity struct {
	Description string `json:"description"`
	Impact      Level  `json:"impact"`
	Timeframe   string `json:"timeframe,omitempty"`
	Backend     string `json:"backend,omitempty"`
}

// EvidenceItem supports a claim. Credibility is in [0,1].
type EvidenceItem struct {
	Claim       string  `json:"claim"`
	Source      string  `json:"source,omitempty"`
	URL         string  `json:"url,omitempty"`
	Credibility float64 `json:"credibility"`
	Backend     string  `json:"backend,omitempty"`
}

// Sections is the validated, typed body of one backend answer.
type Sections struct {
	Summary       string
	Insights      []Insight
	Risks         []Risk
	Actions       []Action
	Opportunities []Opportunity
	Evidence      []EvidenceItem

	// Confidence is the backend's own estimate, nil when it gave none.
	Confidence *float64

	// Structured is false when the body was not JSON and only Summary is set.
	Structured bool
}

// Items counts the typed entries across all sections.
func (s Sections) Items() int {
	return len(s.Insights) + len(s.Risks) + len(s.Actions) + len(s.Opportunities) + len(s.Evidence)
}
