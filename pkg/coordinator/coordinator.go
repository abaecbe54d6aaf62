// Package coordinator answers analysis requests by routing them to one or
// more backends under budget, breaker, retry and degradation control, and
// synthesizing the outcomes into a single result.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/budget"
	"github.com/zen-systems/intelgate/pkg/cache"
	"github.com/zen-systems/intelgate/pkg/config"
	"github.com/zen-systems/intelgate/pkg/resilience"
	"github.com/zen-systems/intelgate/pkg/router"
	"github.com/zen-systems/intelgate/pkg/synth"
	"github.com/zen-systems/intelgate/pkg/telemetry"
)

const answerNamespace = "answer"

// Coordinator owns every per-backend registry and runs the answer pipeline.
type Coordinator struct {
	cfg      *config.OrchestrationConfig
	clients  map[string]adapter.BackendClient
	router   *router.Router
	breakers *resilience.BreakerRegistry
	perf     *PerformanceRegistry
	degrade  *resilience.DegradationManager
	cache    *cache.Cache
	gate     *budget.Gate
	synth    *synth.Synthesizer
	prompts  *PromptBuilder
	pricing  budget.Pricing
	metrics  *telemetry.Instruments
	logger   *slog.Logger
	jitter   func() float64
	newID    func() string
}

type options struct {
	logger   *slog.Logger
	cache    *cache.Cache
	gate     *budget.Gate
	strategy ConversationalStrategy
	metrics  *telemetry.Instruments
	jitter   func() float64
}

// Option configures a Coordinator.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCache sets the answer cache. Its store also backs fallback caching.
// Defaults to an in-memory store.
func WithCache(c *cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithBudgetGate sets the budget gate. Defaults to an in-memory ledger
// built from the budget config.
func WithBudgetGate(g *budget.Gate) Option {
	return func(o *options) { o.gate = g }
}

// WithConversationalStrategy replaces the windowed history strategy.
func WithConversationalStrategy(s ConversationalStrategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithInstruments records metrics into ins.
func WithInstruments(ins *telemetry.Instruments) Option {
	return func(o *options) { o.metrics = ins }
}

// WithRetryJitter overrides the retry jitter source.
func WithRetryJitter(j func() float64) Option {
	return func(o *options) { o.jitter = j }
}

// New creates a coordinator over clients, keyed by backend id. Configured
// backends without a client are not routed to. Clients are paced with the
// per-backend rate limits from cfg.
func New(ctx context.Context, cfg *config.OrchestrationConfig, clients map[string]adapter.BackendClient, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.DefaultOrchestrationConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("orchestration config: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.cache == nil {
		o.cache = cache.New(cache.NewMemoryStore(time.Minute))
	}
	if o.strategy == nil {
		o.strategy = WindowedConversation{Turns: cfg.Coordinator.HistoryTurns}
	}

	c := &Coordinator{
		cfg:     cfg,
		clients: make(map[string]adapter.BackendClient, len(clients)),
		perf:    NewPerformanceRegistry(cfg.Coordinator.EMAAlpha),
		cache:   o.cache,
		prompts: NewPromptBuilder(o.strategy),
		pricing: budget.PricingFromConfig(cfg),
		metrics: o.metrics,
		logger:  o.logger,
		jitter:  o.jitter,
		newID:   uuid.NewString,
	}

	for id, client := range clients {
		b, ok := cfg.Backends[id]
		if !ok {
			return nil, fmt.Errorf("client %q has no backend config", id)
		}
		c.clients[id] = adapter.Paced(client, adapter.NewLimiter(b.RequestsPerSecond, b.Burst))
	}

	c.breakers = resilience.NewBreakerRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		MaxMultiplier:    cfg.Breaker.MaxMultiplier,
		OnStateChange: func(backend string, from, to resilience.State) {
			c.metrics.BreakerTransition(backend, from.String(), to.String())
		},
	}, o.logger)

	gate := o.gate
	if gate == nil {
		var err error
		gate, err = budget.NewGate(ctx, budget.GateConfig{
			TotalUSD: cfg.Budget.TotalUSD,
			Period:   cfg.Budget.Period,
			Logger:   o.logger,
			OnSpend:  c.metrics.Spend,
		})
		if err != nil {
			return nil, err
		}
	}
	c.gate = gate

	fallbackID := cfg.Degradation.FallbackBackend
	var profiles []router.BackendProfile
	for _, p := range router.ProfilesFromConfig(cfg, fallbackID) {
		if _, ok := c.clients[p.ID]; ok {
			profiles = append(profiles, p)
		} else {
			o.logger.Debug("backend has no client; not routable", "backend", p.ID)
		}
	}
	c.router = router.NewRouter(profiles,
		router.WithLexicon(router.LexiconFromConfig(cfg.Routing)),
		router.WithPricing(c.pricing),
		router.WithPerformance(c.perf),
		router.WithAvailability(c.breakers),
		router.WithSecondaryMargin(cfg.Routing.SecondaryMargin),
		router.WithLogger(o.logger),
	)

	baseWeights := make(map[string]float64, len(cfg.Backends))
	for id, b := range cfg.Backends {
		baseWeights[id] = b.BaseWeight
	}
	c.synth = synth.New(baseWeights)

	c.degrade = resilience.NewDegradationManager(c.cache.Store(), o.logger, cfg.Degradation.RetryAfter)
	_, haveFallback := c.clients[fallbackID]
	for _, p := range profiles {
		var fallback func(context.Context, any) (adapter.Response, error)
		if haveFallback {
			fallback = c.fallback
		}
		resilience.Register(c.degrade, serviceName(p.ID), fallback, cfg.Degradation.FallbackCacheTTL)
	}
	return c, nil
}

// Answer runs the full pipeline for req. Only a *ValidationError is ever
// returned; every other failure is reported through the result's flags.
func (c *Coordinator) Answer(ctx context.Context, req Request) (*synth.Result, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Coordinator.DefaultDeadline)
		defer cancel()
	}

	key := req.cacheKey()
	if res, ok := c.cached(ctx, key, req.KnownVersion); ok {
		c.metrics.Request(ctx, "cache_hit")
		return res, nil
	}

	analysis := c.router.Classify(router.Input{
		QueryText:    req.QueryText,
		TopicContext: req.TopicContext,
		Depth:        req.Depth,
		HasHistory:   req.hasHistory(),
		Urgent:       req.Urgent,
	})
	requestID := c.newID()
	logger := c.logger.With("request_id", requestID)

	if err := c.gate.Admit(analysis.EstimatedCostUSD); err != nil {
		res := budgetExceededResult(err, analysis, time.Now())
		res.RequestID = requestID
		c.store(ctx, key, res, c.cfg.Budget.ExceededTTL)
		c.metrics.Request(ctx, "budget_exceeded")
		return res, nil
	}

	prompt, pc := c.prompts.Build(req, analysis)
	r := c.execute(ctx, analysis, prompt, pc, logger)

	if err := r.err(); err != nil {
		logger.Warn("serving fallback answer",
			"attempted", r.attempted, "circuit_open", r.circuitOpen, "error", err)
		res := c.fallbackResult(r, analysis)
		res.RequestID = requestID
		c.metrics.Request(ctx, "fallback")
		return res, nil
	}

	res := c.synth.Synthesize(r.outcomes, analysis)
	res.RequestID = requestID
	res.Degraded = r.degraded
	res.CircuitBreakerActive = r.circuitOpen
	if !res.Degraded {
		// Degraded answers stay in the degradation manager's short-lived
		// fallback cache only, so recovered backends answer the next request.
		c.store(ctx, key, res, c.ttlFor(req.Depth))
	}

	logger.Info("answered request",
		"backends", res.Backends, "confidence", res.ConfidenceScore,
		"degraded", res.Degraded, "cost_usd", res.CostUSD)
	c.metrics.Request(ctx, "ok")
	return res, nil
}

// Invalidate removes cached answers whose keys match pattern. An empty
// pattern clears every cached answer.
func (c *Coordinator) Invalidate(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		pattern = answerNamespace + ":*"
	}
	return c.cache.Invalidate(ctx, pattern)
}

// Close releases the cache store and the budget ledger store.
func (c *Coordinator) Close() error {
	return errors.Join(c.cache.Store().Close(), c.gate.Close())
}

func (c *Coordinator) cached(ctx context.Context, key, knownVersion string) (*synth.Result, bool) {
	entry, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("answer cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if knownVersion != "" && knownVersion == entry.VersionTag {
		return &synth.Result{NotModified: true, CacheHit: true, VersionTag: entry.VersionTag}, true
	}

	var res synth.Result
	if err := json.Unmarshal(entry.Value, &res); err != nil {
		c.logger.Warn("cached answer is unreadable", "key", key, "error", err)
		return nil, false
	}
	res.CacheHit = true
	res.VersionTag = entry.VersionTag
	return &res, true
}

// store stamps res with its version tag and caches it.
func (c *Coordinator) store(ctx context.Context, key string, res *synth.Result, ttl time.Duration) {
	body := *res
	body.RequestID = ""
	body.VersionTag = ""
	data, err := json.Marshal(body)
	if err != nil {
		c.logger.Warn("answer not cacheable", "error", err)
		return
	}
	res.VersionTag = cache.VersionTag(data)

	if data, err = json.Marshal(res); err != nil {
		return
	}
	if err := c.cache.Set(context.WithoutCancel(ctx), key, data, res.VersionTag, ttl); err != nil {
		c.logger.Warn("answer cache write failed", "key", key, "error", err)
	}
}

func (c *Coordinator) ttlFor(d router.Depth) time.Duration {
	switch d {
	case router.DepthQuick:
		return c.cfg.Cache.QuickTTL
	case router.DepthDeep:
		return c.cfg.Cache.DeepTTL
	default:
		return c.cfg.Cache.StandardTTL
	}
}

func serviceName(backend string) string {
	return "backend:" + backend
}
