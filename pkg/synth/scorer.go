package synth

import (
	"math"
	"strings"
	"unicode"
)

type component struct {
	factor string
	score  float64
	weight float64
}

// Scorer rates the quality of a backend answer in [0,1] from text
// heuristics, blended 50/50 with the backend's own confidence when it
// reported one.
type Scorer struct {
	hedgeWords []string
}

// NewScorer creates a heuristic scorer.
func NewScorer() *Scorer {
	return &Scorer{
		hedgeWords: []string{
			"might", "maybe", "perhaps", "possibly", "could be",
			"i think", "i believe", "it seems", "probably",
			"not sure", "uncertain", "unclear", "appears to",
		},
	}
}

// Score parses content and rates it.
func (s *Scorer) Score(content string) float64 {
	return s.ScoreSections(content, Parse(content))
}

// ScoreSections rates content whose sections were already parsed.
func (s *Scorer) ScoreSections(content string, sec Sections) float64 {
	if strings.TrimSpace(content) == "" {
		return 0
	}
	components := []component{
		s.scoreLength(content),
		s.scoreHedging(strings.ToLower(content)),
		s.scoreStructure(content, sec),
		s.scoreSpecificity(content, sec),
	}

	var sum, weightSum float64
	for _, c := range components {
		sum += c.score * c.weight
		weightSum += c.weight
	}
	heuristic := 0.5
	if weightSum > 0 {
		heuristic = sum / weightSum
	}
	heuristic = clamp(heuristic, 0, 1)

	if sec.Confidence != nil {
		return clamp(0.5*heuristic+0.5*(*sec.Confidence), 0, 1)
	}
	return heuristic
}

func (s *Scorer) scoreLength(content string) component {
	words := len(strings.Fields(content))

	var score float64
	switch {
	case words < 10:
		score = 0.3
	case words < 50:
		score = 0.5
	case words < 200:
		score = 0.7
	case words < 500:
		score = 0.8
	default:
		score = 0.9
	}
	return component{factor: "length", score: score, weight: 0.15}
}

// Some hedging is calibrated; a lot of it means the backend is unsure.
func (s *Scorer) scoreHedging(lower string) component {
	hedges := 0
	for _, w := range s.hedgeWords {
		hedges += strings.Count(lower, w)
	}

	var score float64
	switch {
	case hedges == 0:
		score = 0.8
	case hedges <= 2:
		score = 0.9
	case hedges <= 5:
		score = 0.7
	default:
		score = 0.5
	}
	return component{factor: "hedging", score: score, weight: 0.2}
}

func (s *Scorer) scoreStructure(content string, sec Sections) component {
	score := 0.5
	if sec.Structured {
		score += 0.1
		filled := 0
		for _, n := range []int{len(sec.Insights), len(sec.Risks), len(sec.Actions), len(sec.Opportunities)} {
			if n > 0 {
				filled++
			}
		}
		score += 0.1 * float64(filled)
	} else {
		if strings.Contains(content, "- ") || strings.Contains(content, "1.") {
			score += 0.15
		}
		if strings.Contains(content, "##") || strings.Contains(content, "**") {
			score += 0.1
		}
		if strings.Count(content, "\n\n") >= 2 {
			score += 0.1
		}
	}
	return component{factor: "structure", score: math.Min(score, 1), weight: 0.25}
}

func (s *Scorer) scoreSpecificity(content string, sec Sections) component {
	score := 0.5
	if strings.IndexFunc(content, unicode.IsDigit) >= 0 {
		score += 0.1
	}
	if strings.Contains(content, "%") || strings.Contains(content, "$") {
		score += 0.1
	}
	if strings.Contains(content, "http://") || strings.Contains(content, "https://") {
		score += 0.15
	}
	if len(sec.Evidence) > 0 {
		score += 0.15
	}
	return component{factor: "specificity", score: math.Min(score, 1), weight: 0.4}
}
