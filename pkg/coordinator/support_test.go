package coordinator

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/router"
)

func TestPerformanceRegistryEMA(t *testing.T) {
	r := NewPerformanceRegistry(0.1)

	r.Observe("alpha", true, 0.9, 2)
	rec := r.Record("alpha")
	assert.InDelta(t, 1.0, rec.SuccessRate, 1e-9)
	assert.InDelta(t, 0.1*0.9+0.9*0.7, rec.AvgConfidence, 1e-9)
	assert.InDelta(t, 0.1*2+0.9*10, rec.AvgLatencyS, 1e-9)

	r.Observe("alpha", false, 0.9, 100)
	rec = r.Record("alpha")
	assert.InDelta(t, 0.9, rec.SuccessRate, 1e-9)
	assert.InDelta(t, 0.9*(0.1*0.9+0.9*0.7), rec.AvgConfidence, 1e-9)
	assert.InDelta(t, 0.1*2+0.9*10, rec.AvgLatencyS, 1e-9, "latency only moves on success")
	assert.Equal(t, int64(2), rec.Calls)

	assert.Equal(t, router.DefaultPerformance, r.Performance("unknown"))
}

func TestPerformanceRegistryConcurrent(t *testing.T) {
	r := NewPerformanceRegistry(0.5)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "a"
			if i%2 == 0 {
				id = "b"
			}
			r.Observe(id, true, 1, 1)
		}(i)
	}
	wg.Wait()

	records := r.Records()
	assert.Len(t, records, 2)
	assert.Equal(t, "a", records[0].BackendID)
	assert.Equal(t, int64(25), records[0].Calls)
}

func TestWindowedConversation(t *testing.T) {
	history := []adapter.Message{
		{Role: adapter.RoleUser, Content: "one"},
		{Role: adapter.RoleAssistant, Content: "  "},
		{Role: adapter.RoleAssistant, Content: "two"},
		{Role: adapter.RoleUser, Content: "three"},
	}

	got := WindowedConversation{Turns: 2}.History(history)
	assert.Equal(t, []adapter.Message{
		{Role: adapter.RoleAssistant, Content: "two"},
		{Role: adapter.RoleUser, Content: "three"},
	}, got)

	assert.Len(t, WindowedConversation{}.History(history), 3)
}

func TestPromptBuilder(t *testing.T) {
	b := NewPromptBuilder(WindowedConversation{Turns: 1})
	req := Request{
		TopicContext:  "EU pricing",
		QueryText:     "What changed?",
		Depth:         router.DepthQuick,
		StrategicMode: ModeDefensive,
		ConversationHistory: []adapter.Message{
			{Role: adapter.RoleUser, Content: "earlier"},
			{Role: adapter.RoleAssistant, Content: "reply"},
		},
	}

	prompt, pc := b.Build(req, &router.QueryAnalysis{RequiresLiveData: true})
	assert.Contains(t, prompt, "Context:\nEU pricing")
	assert.Contains(t, prompt, "Question:\nWhat changed?")
	assert.Contains(t, prompt, `"summary"`)
	assert.True(t, pc.LiveData)
	assert.Equal(t, 1024, pc.MaxTokens)
	assert.Len(t, pc.History, 1)
	assert.Contains(t, pc.System, "protecting the current position")
	assert.Contains(t, pc.System, "recent events")
}

func TestRequestCacheKeyStable(t *testing.T) {
	a, err := Request{QueryText: "  Hello  "}.normalize()
	assert.NoError(t, err)
	b, err := Request{QueryText: "Hello", Depth: router.DepthStandard, StrategicMode: ModeNeutral}.normalize()
	assert.NoError(t, err)
	assert.Equal(t, a.cacheKey(), b.cacheKey())

	c, _ := Request{QueryText: "Hello", Depth: router.DepthDeep}.normalize()
	assert.NotEqual(t, a.cacheKey(), c.cacheKey())
}

func TestRunErr(t *testing.T) {
	r := &run{outcomes: make(map[string]adapter.Response)}
	assert.ErrorIs(t, r.err(), errAllBackendsExhausted)

	cause := errors.New("boom")
	r.add(attempt{backend: "alpha", err: cause})
	err := r.err()
	assert.ErrorIs(t, err, errAllBackendsExhausted)
	assert.ErrorIs(t, err, cause)

	r.add(attempt{backend: "beta", resp: &adapter.Response{Content: "ok"}})
	assert.NoError(t, r.err())
	assert.Equal(t, []string{"alpha", "beta"}, r.attempted)
}
