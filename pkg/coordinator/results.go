package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/zen-systems/intelgate/pkg/budget"
	"github.com/zen-systems/intelgate/pkg/router"
	"github.com/zen-systems/intelgate/pkg/synth"
)

// FallbackConfidence is the confidence reported with the fallback answer.
const FallbackConfidence = 0.3

const fallbackContent = "We could not complete this analysis right now because none of the " +
	"analysis backends are available. No conclusions should be drawn from this response. " +
	"Please try again shortly."

func (c *Coordinator) fallbackResult(r *run, analysis *router.QueryAnalysis) *synth.Result {
	retryAfter := r.retryAfter
	if retryAfter <= 0 {
		retryAfter = c.cfg.Degradation.RetryAfter
	}
	return &synth.Result{
		Content:              fallbackContent,
		ConfidenceScore:      FallbackConfidence,
		Complexity:           analysis.Complexity,
		FallbackMode:         true,
		Degraded:             true,
		CircuitBreakerActive: r.circuitOpen,
		RetryAfter:           retryAfter,
	}
}

func budgetExceededResult(err error, analysis *router.QueryAnalysis, now time.Time) *synth.Result {
	res := &synth.Result{
		Content:        "The analysis budget for the current period is exhausted, so no backend was called.",
		Complexity:     analysis.Complexity,
		BudgetExceeded: true,
	}
	var exceeded *budget.ExceededError
	if errors.As(err, &exceeded) {
		res.Content = fmt.Sprintf("The analysis budget for the current period is exhausted: this request "+
			"was estimated at $%.4f with $%.4f remaining. Budget resets at %s.",
			exceeded.EstimatedUSD, exceeded.RemainingUSD, exceeded.PeriodEnd.UTC().Format(time.RFC3339))
		if wait := exceeded.PeriodEnd.Sub(now); wait > 0 {
			res.RetryAfter = wait
		}
	}
	return res
}
