package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the counters and histograms recorded per request and per
// backend call. A nil *Instruments records nothing.
type Instruments struct {
	requests    metric.Int64Counter
	calls       metric.Int64Counter
	latency     metric.Float64Histogram
	transitions metric.Int64Counter
	spend       metric.Float64Counter
}

// NewInstruments registers the instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var (
		ins Instruments
		err error
	)
	if ins.requests, err = meter.Int64Counter("intelgate.requests",
		metric.WithDescription("Answer calls by outcome")); err != nil {
		return nil, fmt.Errorf("telemetry: requests counter: %w", err)
	}
	if ins.calls, err = meter.Int64Counter("intelgate.backend.calls",
		metric.WithDescription("Backend invocations by outcome")); err != nil {
		return nil, fmt.Errorf("telemetry: calls counter: %w", err)
	}
	if ins.latency, err = meter.Float64Histogram("intelgate.backend.latency",
		metric.WithDescription("Backend call latency"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("telemetry: latency histogram: %w", err)
	}
	if ins.transitions, err = meter.Int64Counter("intelgate.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes")); err != nil {
		return nil, fmt.Errorf("telemetry: transitions counter: %w", err)
	}
	if ins.spend, err = meter.Float64Counter("intelgate.budget.spend",
		metric.WithDescription("Recorded backend spend"), metric.WithUnit("USD")); err != nil {
		return nil, fmt.Errorf("telemetry: spend counter: %w", err)
	}
	return &ins, nil
}

// Request counts one Answer call. outcome is e.g. "ok", "cache_hit",
// "fallback" or "budget_exceeded".
func (i *Instruments) Request(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// BackendCall counts one backend call and records its latency on success.
func (i *Instruments) BackendCall(ctx context.Context, backend, outcome string, latency time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("backend", backend), attribute.String("outcome", outcome))
	i.calls.Add(ctx, 1, attrs)
	if outcome == "ok" {
		i.latency.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("backend", backend)))
	}
}

// BreakerTransition counts a breaker state change.
func (i *Instruments) BreakerTransition(backend, from, to string) {
	if i == nil {
		return
	}
	i.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// Spend adds recorded cost for backend.
func (i *Instruments) Spend(backend string, usd float64) {
	if i == nil || usd <= 0 {
		return
	}
	i.spend.Add(context.Background(), usd, metric.WithAttributes(attribute.String("backend", backend)))
}
