package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/resilience"
	"github.com/zen-systems/intelgate/pkg/router"
)

// callArgs identifies a backend call for fallback caching.
type callArgs struct {
	Prompt  string                `json:"prompt"`
	Context adapter.PromptContext `json:"context"`
}

// attempt is the outcome of one degradation-wrapped backend call.
type attempt struct {
	backend     string
	resp        *adapter.Response
	degraded    bool
	circuitOpen bool
	retryAfter  time.Duration
	err         error
}

var errAllBackendsExhausted = errors.New("all backends exhausted")

// run collects every attempt made for one request.
type run struct {
	outcomes    map[string]adapter.Response
	attempted   []string
	degraded    bool
	circuitOpen bool
	retryAfter  time.Duration
	lastErr     error
}

func (r *run) add(a attempt) {
	r.attempted = append(r.attempted, a.backend)
	if a.err != nil {
		r.lastErr = a.err
	}
	r.circuitOpen = r.circuitOpen || a.circuitOpen
	if a.retryAfter > r.retryAfter {
		r.retryAfter = a.retryAfter
	}
	if a.resp == nil {
		return
	}
	key := a.backend
	if a.degraded {
		// Several failed legs may be answered by the same fallback backend.
		key = a.resp.BackendID
		r.degraded = true
	}
	r.outcomes[key] = *a.resp
}

// err is nil once any backend has answered.
func (r *run) err() error {
	if len(r.outcomes) > 0 {
		return nil
	}
	if r.lastErr == nil {
		return errAllBackendsExhausted
	}
	return fmt.Errorf("%w: %w", errAllBackendsExhausted, r.lastErr)
}

// execute picks single or parallel mode and runs the plan.
func (c *Coordinator) execute(ctx context.Context, analysis *router.QueryAnalysis, prompt string, pc adapter.PromptContext, logger *slog.Logger) *run {
	r := &run{outcomes: make(map[string]adapter.Response)}
	args := callArgs{Prompt: prompt, Context: pc}

	var plan []string
	for _, id := range analysis.RecommendedBackends {
		// An OPEN breaker past its window is available: its Allow admits the trial call.
		if !c.breakers.Available(id) {
			logger.Debug("skipping backend with open circuit", "backend", id)
			r.circuitOpen = true
			continue
		}
		plan = append(plan, id)
	}
	if len(plan) == 0 && analysis.Primary() != "" {
		// No breaker admits a call. The primary still goes through degradation
		// so a fallback backend can answer.
		plan = []string{analysis.Primary()}
	}
	if len(plan) == 0 {
		return r
	}

	maxAttempts := c.cfg.Coordinator.MaxCascade
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	single := analysis.Secondary == "" ||
		(analysis.RoutingConfidence >= c.cfg.Coordinator.HighConfidenceThreshold && !c.cfg.Coordinator.ParallelEnabled())
	if single || len(plan) < 2 {
		logger.Debug("running cascade", "plan", plan, "routing_confidence", analysis.RoutingConfidence)
		c.cascade(ctx, r, plan[:min(len(plan), maxAttempts)], args)
		return r
	}

	legs := plan[:2]
	logger.Debug("running parallel", "legs", legs, "routing_confidence", analysis.RoutingConfidence)
	c.parallel(ctx, r, legs, args, logger)
	if len(r.outcomes) == 0 && ctx.Err() == nil {
		rest := plan[2:]
		if n := maxAttempts - len(legs); n < len(rest) {
			rest = rest[:max(n, 0)]
		}
		c.cascade(ctx, r, rest, args)
	}
	return r
}

// cascade tries backends in order and stops at the first answer.
func (c *Coordinator) cascade(ctx context.Context, r *run, ids []string, args callArgs) {
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		a := c.call(ctx, id, args)
		r.add(a)
		if a.resp != nil {
			return
		}
	}
}

// parallel calls every leg concurrently. Results arrive on a buffered
// channel, so legs still running when the request deadline passes finish
// into the buffer and are dropped.
func (c *Coordinator) parallel(ctx context.Context, r *run, legs []string, args callArgs, logger *slog.Logger) {
	results := make(chan attempt, len(legs))
	for _, id := range legs {
		go func(id string) {
			results <- c.call(ctx, id, args)
		}(id)
	}

	for range legs {
		select {
		case a := <-results:
			r.add(a)
		case <-ctx.Done():
			logger.Warn("request deadline passed; abandoning in-flight backend calls",
				"answered", len(r.outcomes), "legs", legs)
			return
		}
	}
}

// call runs Degradation(Breaker(Retry(invoke))) for one backend.
func (c *Coordinator) call(ctx context.Context, id string, args callArgs) attempt {
	a := attempt{backend: id}
	breaker := c.breakers.Get(id)

	d := resilience.Execute(ctx, c.degrade, serviceName(id), args, func(ctx context.Context) (adapter.Response, error) {
		var resp *adapter.Response
		err := breaker.Execute(ctx, func(ctx context.Context) error {
			return resilience.Retry(ctx, c.retryPolicy(id), func(ctx context.Context) error {
				r, err := c.invoke(ctx, id, args)
				if err != nil {
					return err
				}
				resp = r
				return nil
			})
		})
		if err != nil {
			return adapter.Response{}, err
		}
		return *resp, nil
	})

	if d.Err != nil {
		a.err = d.Err
		var open *resilience.CircuitOpenError
		switch {
		case errors.As(d.Err, &open):
			a.circuitOpen = true
			a.retryAfter = open.RetryAfter
		case ctx.Err() != nil:
			// The request gave up; say nothing about the backend.
		default:
			c.perf.Observe(id, false, 0, 0)
		}
		c.logger.Debug("backend call failed", "backend", id, "kind", adapter.KindOf(d.Err), "error", d.Err)
	}

	if !d.OK() {
		if d.Response.RetryAfter > a.retryAfter {
			a.retryAfter = d.Response.RetryAfter
		}
		return a
	}

	resp := d.Value
	a.resp = &resp
	a.degraded = d.Degraded
	if !d.Degraded {
		c.perf.Observe(id, true, resp.QualityScore, float64(resp.LatencyMs)/1000)
	}
	return a
}

// fallback answers for a failed backend with the configured fallback
// backend. It is registered with the degradation manager.
func (c *Coordinator) fallback(ctx context.Context, raw any) (adapter.Response, error) {
	args, ok := raw.(callArgs)
	if !ok {
		return adapter.Response{}, fmt.Errorf("fallback: unexpected arguments %T", raw)
	}
	id := c.cfg.Degradation.FallbackBackend

	var resp *adapter.Response
	err := c.breakers.Get(id).Execute(ctx, func(ctx context.Context) error {
		r, err := c.invoke(ctx, id, args)
		resp = r
		return err
	})
	if err != nil {
		if !resilience.IsCircuitOpen(err) && ctx.Err() == nil {
			c.perf.Observe(id, false, 0, 0)
		}
		return adapter.Response{}, err
	}
	c.perf.Observe(id, true, resp.QualityScore, float64(resp.LatencyMs)/1000)
	return *resp, nil
}

// invoke makes one paced, time-bounded call, then prices, scores and
// records it.
func (c *Coordinator) invoke(ctx context.Context, id string, args callArgs) (*adapter.Response, error) {
	client, ok := c.clients[id]
	if !ok {
		return nil, &adapter.AdapterError{Backend: id, Status: 404, Err: errors.New("no client configured")}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Backends[id].Timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Invoke(callCtx, args.Prompt, args.Context)
	latency := time.Since(start)
	if err == nil && resp == nil {
		err = &adapter.AdapterError{Backend: id, Err: errors.New("empty response")}
	}
	if err != nil {
		c.metrics.BackendCall(ctx, id, string(adapter.KindOf(err)), latency)
		return nil, err
	}

	out := *resp
	out.BackendID = id
	out.LatencyMs = latency.Milliseconds()
	out.CostUSD, _ = c.pricing.Cost(id, out.Usage)
	out.QualityScore = c.synth.Scorer().Score(out.Content)
	c.gate.Record(ctx, id, out.CostUSD)
	c.metrics.BackendCall(ctx, id, "ok", latency)
	return &out, nil
}

func (c *Coordinator) retryPolicy(id string) resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxRetries: c.cfg.Retry.MaxRetries,
		BaseDelay:  time.Duration(c.cfg.Retry.BaseBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(c.cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Jitter:     c.jitter,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.logger.Debug("retrying backend call",
				"backend", id, "attempt", attempt, "delay", delay, "error", err)
		},
	}
}
