// Package budget admits requests against a per-period spend ceiling and
// records what every completed backend call cost.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// GateConfig configures a Gate.
type GateConfig struct {
	// TotalUSD is the per-period ceiling. Zero or less disables admission control.
	TotalUSD float64

	// Period is the ledger length. Default: 24h
	Period time.Duration

	// Store persists ledgers. Defaults to an in-memory store.
	Store Store

	Logger *slog.Logger

	// OnSpend is called after each recorded call.
	OnSpend func(backend string, usd float64)

	// WarnAt is the utilization fraction that logs a warning. Default: 0.8
	WarnAt float64

	// Now overrides the clock.
	Now func() time.Time
}

// Gate is the single shared spend counter. Admission reads before writes;
// concurrent requests may overshoot the ceiling slightly.
type Gate struct {
	mu     sync.Mutex
	ledger *Ledger
	warned bool

	total   float64
	period  time.Duration
	warnAt  float64
	store   Store
	logger  *slog.Logger
	onSpend func(string, float64)
	now     func() time.Time
}

// NewGate resumes the latest stored ledger when it is still active, or
// opens a new period.
func NewGate(ctx context.Context, cfg GateConfig) (*Gate, error) {
	if cfg.Period <= 0 {
		cfg.Period = 24 * time.Hour
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WarnAt <= 0 {
		cfg.WarnAt = 0.8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Gate{
		total:   cfg.TotalUSD,
		period:  cfg.Period,
		warnAt:  cfg.WarnAt,
		store:   cfg.Store,
		logger:  cfg.Logger,
		onSpend: cfg.OnSpend,
		now:     cfg.Now,
	}

	latest, err := cfg.Store.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load budget ledger: %w", err)
	}
	now := g.now().UTC()
	if latest != nil && latest.Active(now) {
		latest.TotalBudgetUSD = cfg.TotalUSD
		g.ledger = latest
		g.logger.Debug("resumed budget ledger", "ledger", latest.ID, "spend_usd", latest.CurrentSpendUSD)
		return g, nil
	}

	start := now
	if latest != nil && !now.Before(latest.PeriodEnd) {
		start = alignStart(latest.PeriodEnd, now, cfg.Period)
	}
	g.ledger = NewLedger(start, cfg.Period, cfg.TotalUSD)
	if err := g.store.Save(ctx, g.ledger); err != nil {
		return nil, fmt.Errorf("save budget ledger: %w", err)
	}
	return g, nil
}

// Admit rejects a request whose estimated cost exceeds the remaining budget.
func (g *Gate) Admit(estimatedUSD float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked()
	if g.total <= 0 {
		return nil
	}
	remaining := g.ledger.Remaining()
	if estimatedUSD > remaining {
		g.logger.Warn("budget gate rejected request",
			"estimated_usd", estimatedUSD, "remaining_usd", remaining)
		return &ExceededError{
			EstimatedUSD: estimatedUSD,
			RemainingUSD: remaining,
			PeriodEnd:    g.ledger.PeriodEnd,
		}
	}
	return nil
}

// Record adds the actual cost of a completed call and persists the ledger.
// Persistence failures are logged, not returned; spend is always counted.
func (g *Gate) Record(ctx context.Context, backend string, usd float64) {
	if usd < 0 {
		usd = 0
	}

	g.mu.Lock()
	g.rolloverLocked()
	g.ledger.CurrentSpendUSD += usd
	g.ledger.SpendByBackend[backend] += usd
	g.ledger.Calls++
	snapshot := g.ledger.clone()
	crossed := false
	if g.total > 0 && !g.warned && snapshot.CurrentSpendUSD >= g.total*g.warnAt {
		g.warned = true
		crossed = true
	}
	if err := g.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		g.logger.Error("failed to persist budget ledger", "ledger", snapshot.ID, "error", err)
	}
	g.mu.Unlock()

	if crossed {
		g.logger.Warn("budget warning threshold reached",
			"spend_usd", snapshot.CurrentSpendUSD, "total_usd", g.total)
	}
	if g.onSpend != nil {
		g.onSpend(backend, usd)
	}
}

// Remaining returns the unspent budget of the active period.
func (g *Gate) Remaining() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()
	return g.ledger.Remaining()
}

// Summary returns a view of the active ledger.
func (g *Gate) Summary() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()

	l := g.ledger.clone()
	s := Summary{
		PeriodStart:     l.PeriodStart,
		PeriodEnd:       l.PeriodEnd,
		TotalBudgetUSD:  l.TotalBudgetUSD,
		CurrentSpendUSD: l.CurrentSpendUSD,
		RemainingUSD:    l.Remaining(),
		SpendByBackend:  l.SpendByBackend,
		Calls:           l.Calls,
	}
	if l.TotalBudgetUSD > 0 {
		s.UtilizationPct = l.CurrentSpendUSD / l.TotalBudgetUSD * 100
	}
	return s
}

// History returns past and current ledgers, newest first.
func (g *Gate) History(ctx context.Context, limit int) ([]*Ledger, error) {
	return g.store.History(ctx, limit)
}

// Close releases the ledger store.
func (g *Gate) Close() error {
	return g.store.Close()
}

// rolloverLocked opens a new period once the active one has ended. Must be
// called with lock held.
func (g *Gate) rolloverLocked() {
	now := g.now().UTC()
	if now.Before(g.ledger.PeriodEnd) {
		return
	}
	prev := g.ledger
	g.ledger = NewLedger(alignStart(prev.PeriodEnd, now, g.period), g.period, g.total)
	g.warned = false
	if err := g.store.Save(context.Background(), g.ledger); err != nil {
		g.logger.Error("failed to persist budget ledger", "ledger", g.ledger.ID, "error", err)
	}
	g.logger.Info("budget period rolled over",
		"previous_spend_usd", prev.CurrentSpendUSD, "period_start", g.ledger.PeriodStart)
}

// alignStart returns the start of the period containing now, counting whole
// periods from end.
func alignStart(end, now time.Time, period time.Duration) time.Time {
	if now.Before(end) {
		return end
	}
	elapsed := now.Sub(end)
	return end.Add(elapsed - elapsed%period)
}
