package router

import (
	"sort"
	"strings"

	"github.com/zen-systems/intelgate/pkg/config"
)

// Lexicon holds the term lists the classifier matches against.
type Lexicon struct {
	Analytical []string
	Recency    []string
	Locality   []string
	Urgent     []string
	Domain     []string
}

// DefaultLexicon returns the built-in terms.
func DefaultLexicon() *Lexicon {
	return compileLexicon(&Lexicon{
		Analytical: []string{
			"analyze", "analysis", "assess", "compare", "evaluate", "implications",
			"impact", "strategy", "strategic", "trade-off", "tradeoffs", "forecast",
			"scenario", "risk", "risks", "why", "root cause",
		},
		Recency: []string{
			"latest", "recent", "recently", "today", "yesterday", "this week",
			"this month", "current", "currently", "news", "breaking",
			"just announced", "update",
		},
		Locality: []string{
			"local", "regional", "region", "domestic", "nearby", "city", "country",
			"in our market", "on the ground",
		},
		Urgent: []string{
			"urgent", "urgently", "asap", "immediately", "critical", "emergency",
			"right now", "deadline", "time-sensitive",
		},
		Domain: []string{
			"competitor", "competitors", "market", "market share", "pricing",
			"acquisition", "merger", "regulation", "regulatory", "supply chain",
			"revenue", "customer", "customers", "positioning", "launch",
			"partnership", "patent",
		},
	})
}

// LexiconFromConfig overlays configured term lists onto the defaults.
func LexiconFromConfig(cfg config.RoutingConfig) *Lexicon {
	l := DefaultLexicon()
	if len(cfg.AnalyticalTerms) > 0 {
		l.Analytical = cfg.AnalyticalTerms
	}
	if len(cfg.RecencyTerms) > 0 {
		l.Recency = cfg.RecencyTerms
	}
	if len(cfg.LocalityTerms) > 0 {
		l.Locality = cfg.LocalityTerms
	}
	if len(cfg.UrgentTerms) > 0 {
		l.Urgent = cfg.UrgentTerms
	}
	if len(cfg.DomainTerms) > 0 {
		l.Domain = cfg.DomainTerms
	}
	return compileLexicon(l)
}

// compileLexicon lowercases, dedupes and orders terms longest first.
func compileLexicon(l *Lexicon) *Lexicon {
	return &Lexicon{
		Analytical: compileTerms(l.Analytical),
		Recency:    compileTerms(l.Recency),
		Locality:   compileTerms(l.Locality),
		Urgent:     compileTerms(l.Urgent),
		Domain:     compileTerms(l.Domain),
	}
}

func compileTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// matchTerms returns the terms found in text at word boundaries. Terms are
// tried longest first and a matched span is consumed, so "market share"
// does not also count as "market".
func matchTerms(text string, terms []string) []string {
	buf := []byte(strings.ToLower(text))
	var matched []string
	for _, term := range terms {
		if consumeTrigger(buf, term) {
			matched = append(matched, term)
		}
	}
	return matched
}

// consumeTrigger blanks every word-boundary occurrence of trigger in buf and
// reports whether there was one.
func consumeTrigger(buf []byte, trigger string) bool {
	found := false
	for {
		idx := triggerIndex(string(buf), trigger)
		if idx == -1 {
			return found
		}
		found = true
		for i := idx; i < idx+len(trigger); i++ {
			buf[i] = ' '
		}
	}
}

// triggerIndex returns the first word-boundary occurrence of trigger in text,
// or -1. Every occurrence is tried, so "newsletter news" still matches "news".
func triggerIndex(text, trigger string) int {
	offset := 0
	for {
		idx := strings.Index(text[offset:], trigger)
		if idx == -1 {
			return -1
		}
		idx += offset
		endIdx := idx + len(trigger)

		before := idx == 0 || !isWordChar(text[idx-1])
		after := endIdx >= len(text) || !isWordChar(text[endIdx])
		if before && after {
			return idx
		}
		offset = idx + 1
	}
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
