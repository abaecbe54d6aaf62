package budget

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/config"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func TestGateAdmitAndRecord(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	var spent []float64
	g, err := NewGate(ctx, GateConfig{
		TotalUSD: 1.0,
		Period:   time.Hour,
		Now:      clk.now,
		OnSpend:  func(_ string, usd float64) { spent = append(spent, usd) },
	})
	require.NoError(t, err)

	require.NoError(t, g.Admit(0.5))
	g.Record(ctx, "claude", 0.7)
	g.Record(ctx, "gemini", 0.1)

	err = g.Admit(0.5)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.InDelta(t, 0.2, exceeded.RemainingUSD, 1e-9)
	assert.Equal(t, clk.now().Add(time.Hour), exceeded.PeriodEnd)

	s := g.Summary()
	assert.InDelta(t, 0.8, s.CurrentSpendUSD, 1e-9)
	assert.InDelta(t, 80, s.UtilizationPct, 1e-9)
	assert.InDelta(t, 0.7, s.SpendByBackend["claude"], 1e-9)
	assert.Equal(t, 2, s.Calls)
	assert.Equal(t, []float64{0.7, 0.1}, spent)
}

func TestGateRollsOverPeriod(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := NewMemoryStore()
	g, err := NewGate(ctx, GateConfig{TotalUSD: 1.0, Period: time.Hour, Store: store, Now: clk.now})
	require.NoError(t, err)

	g.Record(ctx, "claude", 1.0)
	require.Error(t, g.Admit(0.01))

	clk.advance(150 * time.Minute)
	require.NoError(t, g.Admit(0.5))

	s := g.Summary()
	assert.Zero(t, s.CurrentSpendUSD)
	assert.Equal(t, time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC), s.PeriodStart)

	history, err := g.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.InDelta(t, 1.0, history[1].CurrentSpendUSD, 1e-9)
}

func TestGateUnlimitedWhenNoBudget(t *testing.T) {
	g, err := NewGate(context.Background(), GateConfig{})
	require.NoError(t, err)
	assert.NoError(t, g.Admit(1e9))
}

func TestGateResumesFromSQLite(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	g, err := NewGate(ctx, GateConfig{TotalUSD: 5, Period: 24 * time.Hour, Store: store, Now: clk.now})
	require.NoError(t, err)
	g.Record(ctx, "gpt", 1.25)
	require.NoError(t, g.Close())

	clk.advance(time.Hour)
	store, err = OpenSQLiteStore(path)
	require.NoError(t, err)
	g, err = NewGate(ctx, GateConfig{TotalUSD: 5, Period: 24 * time.Hour, Store: store, Now: clk.now})
	require.NoError(t, err)
	defer g.Close()

	s := g.Summary()
	assert.InDelta(t, 1.25, s.CurrentSpendUSD, 1e-9)
	assert.InDelta(t, 1.25, s.SpendByBackend["gpt"], 1e-9)
	assert.InDelta(t, 3.75, g.Remaining(), 1e-9)
}

func TestGateConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	g, err := NewGate(ctx, GateConfig{TotalUSD: 100})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Record(ctx, "a", 0.01)
		}()
	}
	wg.Wait()
	assert.InDelta(t, 0.5, g.Summary().CurrentSpendUSD, 1e-9)
}

func TestPricingCost(t *testing.T) {
	p := Pricing{"claude": config.ModelPricing{PromptPer1K: 0.003, CompletionPer1K: 0.015}}

	cost, ok := p.Cost("claude", adapter.Usage{InputTokens: 2000, OutputTokens: 1000})
	require.True(t, ok)
	assert.InDelta(t, 0.021, cost, 1e-9)

	_, ok = p.Cost("unknown", adapter.Usage{InputTokens: 1})
	assert.False(t, ok)

	assert.Equal(t, 13, EstimateInputTokens("one two three four five six seven eight nine ten"))
	assert.Equal(t, 0, EstimateInputTokens("   "))
}
