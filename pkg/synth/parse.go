package synth

import (
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultEvidenceCredibility = 0.6

// Parse extracts typed sections from a backend answer. Bodies wrapped in
// markdown fences or surrounded by prose are accepted; anything that is not
// a JSON object is returned as a summary-only Sections.
func Parse(content string) Sections {
	body, ok := jsonBody(content)
	if !ok {
		return Sections{Summary: strings.TrimSpace(content)}
	}

	root := gjson.Parse(body)
	s := Sections{
		Summary:    firstString(root, "summary", "analysis", "answer", "content"),
		Structured: true,
	}

	root.Get("insights").ForEach(func(_, v gjson.Result) bool {
		in := Insight{
			Title:      text(v, "title", "insight", "description"),
			Detail:     firstString(v, "detail", "details", "explanation"),
			Confidence: unit(v.Get("confidence")),
		}
		if in.Title == "" && in.Detail != "" {
			in.Title, in.Detail = in.Detail, ""
		}
		if in.Title != "" {
			s.Insights = append(s.Insights, in)
		}
		return true
	})

	root.Get("risks").ForEach(func(_, v gjson.Result) bool {
		r := Risk{
			Description: text(v, "description", "risk", "title"),
			Severity:    ParseLevel(v.Get("severity").String()),
			Likelihood:  ParseLevel(v.Get("likelihood").String()),
			Mitigation:  firstString(v, "mitigation"),
		}
		if r.Description != "" {
			s.Risks = append(s.Risks, r)
		}
		return true
	})

	actions := root.Get("actions")
	if !actions.Exists() {
		actions = root.Get("recommended_actions")
	}
	actions.ForEach(func(_, v gjson.Result) bool {
		a := Action{
			Description: text(v, "description", "action", "title"),
			Priority:    ParseLevel(v.Get("priority").String()),
			Timeframe:   firstString(v, "timeframe", "timeline"),
			Owner:       firstString(v, "owner"),
		}
		if a.Description != "" {
			s.Actions = append(s.Actions, a)
		}
		return true
	})

	root.Get("opportunities").ForEach(func(_, v gjson.Result) bool {
		o := Opportunity{
			Description: text(v, "description", "opportunity", "title"),
			Impact:      ParseLevel(v.Get("impact").String()),
			Timeframe:   firstString(v, "timeframe", "timeline"),
		}
		if o.Description != "" {
			s.Opportunities = append(s.Opportunities, o)
		}
		return true
	})

	root.Get("evidence").ForEach(func(_, v gjson.Result) bool {
		e := EvidenceItem{
			Claim:       text(v, "claim", "description", "fact"),
			Source:      firstString(v, "source", "title"),
			URL:         firstString(v, "url", "link"),
			Credibility: defaultEvidenceCredibility,
		}
		if c := v.Get("credibility"); c.Exists() {
			e.Credibility = unit(c)
		}
		if e.Claim != "" {
			s.Evidence = append(s.Evidence, e)
		}
		return true
	})

	if c := root.Get("confidence"); c.Exists() && (c.Type == gjson.Number || c.Type == gjson.String) {
		v := unit(c)
		s.Confidence = &v
	}
	return s
}

// jsonBody strips markdown fences and surrounding prose and reports whether
// what is left is a JSON object.
func jsonBody(content string) (string, bool) {
	body := strings.TrimSpace(content)
	if strings.HasPrefix(body, "```") {
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = strings.TrimPrefix(body, "```")
		}
		body = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
	}
	if gjson.Valid(body) && gjson.Parse(body).IsObject() {
		return body, true
	}

	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end <= start {
		return "", false
	}
	body = body[start : end+1]
	if gjson.Valid(body) && gjson.Parse(body).IsObject() {
		return body, true
	}
	return "", false
}

// text reads a list entry that may be a bare string or an object.
func text(v gjson.Result, keys ...string) string {
	if v.Type == gjson.String {
		return strings.TrimSpace(v.String())
	}
	return firstString(v, keys...)
}

func firstString(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(v.Get(k).String()); s != "" {
			return s
		}
	}
	return ""
}

// unit reads a probability, accepting percentages, and clamps it to [0,1].
func unit(v gjson.Result) float64 {
	if !v.Exists() {
		return 0
	}
	f := v.Float()
	if f > 1 && f <= 100 {
		f /= 100
	}
	return clamp(f, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
