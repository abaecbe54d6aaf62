package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fencedAnswer = "```json\n" + `{
  "summary": "Competitor X is cutting prices in the EU.",
  "insights": [
    {"title": "Price war likely", "detail": "Two rivals followed within a week", "confidence": 80},
    "Margins are thin",
    {"title": "   "}
  ],
  "risks": [{"description": "Share loss in DACH", "severity": "HIGH", "likelihood": "moderate", "mitigation": "Bundle support"}],
  "recommended_actions": [{"action": "Review EU price list", "priority": "P0", "timeframe": "2 weeks"}],
  "opportunities": ["Upsell premium tier"],
  "evidence": [
    {"claim": "X cut list prices 15%", "source": "Reuters", "url": "https://example.com/x", "credibility": 0.9},
    {"claim": "Analyst note"}
  ],
  "confidence": 0.75
}` + "\n```"

func TestParseFencedJSON(t *testing.T) {
	s := Parse(fencedAnswer)

	require.True(t, s.Structured)
	assert.Equal(t, "Competitor X is cutting prices in the EU.", s.Summary)

	require.Len(t, s.Insights, 2, "blank insight is dropped")
	assert.Equal(t, "Price war likely", s.Insights[0].Title)
	assert.InDelta(t, 0.8, s.Insights[0].Confidence, 1e-9)
	assert.Equal(t, "Margins are thin", s.Insights[1].Title)

	require.Len(t, s.Risks, 1)
	assert.Equal(t, LevelHigh, s.Risks[0].Severity)
	assert.Equal(t, LevelMedium, s.Risks[0].Likelihood)

	require.Len(t, s.Actions, 1)
	assert.Equal(t, "Review EU price list", s.Actions[0].Description)
	assert.Equal(t, LevelCritical, s.Actions[0].Priority)
	assert.Equal(t, "2 weeks", s.Actions[0].Timeframe)

	require.Len(t, s.Opportunities, 1)
	assert.Equal(t, LevelMedium, s.Opportunities[0].Impact)

	require.Len(t, s.Evidence, 2)
	assert.InDelta(t, 0.9, s.Evidence[0].Credibility, 1e-9)
	assert.InDelta(t, defaultEvidenceCredibility, s.Evidence[1].Credibility, 1e-9)

	require.NotNil(t, s.Confidence)
	assert.InDelta(t, 0.75, *s.Confidence, 1e-9)
	assert.Equal(t, 7, s.Items())
}

func TestParseJSONInsideProse(t *testing.T) {
	s := Parse(`Here is my analysis: {"summary": "ok", "actions": ["Call the customer"]} Hope it helps.`)

	require.True(t, s.Structured)
	assert.Equal(t, "ok", s.Summary)
	require.Len(t, s.Actions, 1)
	assert.Equal(t, LevelMedium, s.Actions[0].Priority)
	assert.Nil(t, s.Confidence)
}

func TestParsePlainText(t *testing.T) {
	s := Parse("  Just a paragraph of prose.  ")

	assert.False(t, s.Structured)
	assert.Equal(t, "Just a paragraph of prose.", s.Summary)
	assert.Zero(t, s.Items())
}

func TestParseRejectsArrays(t *testing.T) {
	s := Parse(`["not", "an", "object"]`)
	assert.False(t, s.Structured)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"":         LevelMedium,
		"Low":      LevelLow,
		"major":    LevelHigh,
		"urgent":   LevelCritical,
		"whatever": LevelMedium,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Greater(t, LevelCritical.Rank(), LevelHigh.Rank())
}
