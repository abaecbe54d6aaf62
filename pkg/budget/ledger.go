package budget

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger is the spend record of one budget period.
type Ledger struct {
	ID              string             `json:"id"`
	PeriodStart     time.Time          `json:"period_start"`
	PeriodEnd       time.Time          `json:"period_end"`
	TotalBudgetUSD  float64            `json:"total_budget_usd"`
	CurrentSpendUSD float64            `json:"current_spend_usd"`
	SpendByBackend  map[string]float64 `json:"spend_by_backend"`
	Calls           int                `json:"calls"`
}

// NewLedger opens a period starting at start.
func NewLedger(start time.Time, period time.Duration, total float64) *Ledger {
	return &Ledger{
		ID:             fmt.Sprintf("ledger:%s", uuid.New().String()),
		PeriodStart:    start,
		PeriodEnd:      start.Add(period),
		TotalBudgetUSD: total,
		SpendByBackend: make(map[string]float64),
	}
}

// Remaining returns the unspent budget, never negative.
func (l *Ledger) Remaining() float64 {
	r := l.TotalBudgetUSD - l.CurrentSpendUSD
	if r < 0 {
		return 0
	}
	return r
}

// Active reports whether at falls inside the ledger's period.
func (l *Ledger) Active(at time.Time) bool {
	return !at.Before(l.PeriodStart) && at.Before(l.PeriodEnd)
}

func (l *Ledger) clone() *Ledger {
	c := *l
	c.SpendByBackend = make(map[string]float64, len(l.SpendByBackend))
	for k, v := range l.SpendByBackend {
		c.SpendByBackend[k] = v
	}
	return &c
}

// ExceededError rejects a request whose estimated cost exceeds the remaining budget.
type ExceededError struct {
	EstimatedUSD float64
	RemainingUSD float64
	PeriodEnd    time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: estimated $%.4f, remaining $%.4f until %s",
		e.EstimatedUSD, e.RemainingUSD, e.PeriodEnd.Format(time.RFC3339))
}

// Summary is a read-only view of the active ledger.
type Summary struct {
	PeriodStart     time.Time          `json:"period_start"`
	PeriodEnd       time.Time          `json:"period_end"`
	TotalBudgetUSD  float64            `json:"total_budget_usd"`
	CurrentSpendUSD float64            `json:"current_spend_usd"`
	RemainingUSD    float64            `json:"remaining_usd"`
	UtilizationPct  float64            `json:"utilization_pct"`
	SpendByBackend  map[string]float64 `json:"spend_by_backend"`
	Calls           int                `json:"calls"`
}
