package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderDeepSeek  = "deepseek"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// OrchestrationConfig is ~/.intelgate/orchestration.yaml.
type OrchestrationConfig struct {
	Backends    map[string]BackendConfig `yaml:"backends"`
	Breaker     BreakerConfig            `yaml:"breaker,omitempty"`
	Retry       RetryConfig              `yaml:"retry,omitempty"`
	Budget      BudgetConfig             `yaml:"budget,omitempty"`
	Cache       CacheConfig              `yaml:"cache,omitempty"`
	Degradation DegradationConfig        `yaml:"degradation,omitempty"`
	Coordinator CoordinatorConfig        `yaml:"coordinator,omitempty"`
	Routing     RoutingConfig            `yaml:"routing,omitempty"`
}

// BackendConfig describes one callable backend.
type BackendConfig struct {
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model,omitempty"`
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty"`

	// Timeout bounds a single call, independently of the request deadline.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	Pricing ModelPricing `yaml:"pricing,omitempty"`

	// BaseWeight seeds the backend's weight in multi-backend synthesis.
	BaseWeight float64 `yaml:"base_weight,omitempty"`

	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`

	BaseURL string `yaml:"base_url,omitempty"`

	// Grounding enables live search grounding where the provider has it.
	Grounding bool `yaml:"grounding,omitempty"`
}

// IsEnabled reports whether the backend takes part in routing.
func (b BackendConfig) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// BreakerConfig configures every backend's circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold,omitempty"`
	SuccessThreshold int           `yaml:"success_threshold,omitempty"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout,omitempty"`
	MaxMultiplier    int           `yaml:"max_multiplier,omitempty"`
}

// RetryConfig defines retry and backoff behavior.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries,omitempty"`
	BaseBackoffMs int `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs  int `yaml:"max_backoff_ms,omitempty"`
}

// BudgetConfig bounds spend per period.
type BudgetConfig struct {
	TotalUSD float64       `yaml:"total_usd,omitempty"`
	Period   time.Duration `yaml:"period,omitempty"`

	// ExceededTTL is how long a budget-exceeded answer is cached.
	ExceededTTL time.Duration `yaml:"exceeded_ttl,omitempty"`
}

// CacheConfig sets answer TTLs per analysis depth.
type CacheConfig struct {
	QuickTTL    time.Duration `yaml:"quick_ttl,omitempty"`
	StandardTTL time.Duration `yaml:"standard_ttl,omitempty"`
	DeepTTL     time.Duration `yaml:"deep_ttl,omitempty"`
}

// DegradationConfig configures fallback serving.
type DegradationConfig struct {
	// FallbackBackend answers when a remote backend fails. Usually local.
	FallbackBackend  string        `yaml:"fallback_backend,omitempty"`
	FallbackCacheTTL time.Duration `yaml:"fallback_cache_ttl,omitempty"`
	RetryAfter       time.Duration `yaml:"retry_after,omitempty"`
}

// CoordinatorConfig tunes the execution strategy.
type CoordinatorConfig struct {
	HighConfidenceThreshold float64       `yaml:"high_confidence_threshold,omitempty"`
	EnableParallel          *bool         `yaml:"enable_parallel,omitempty"`
	MaxCascade              int           `yaml:"max_cascade,omitempty"`
	DefaultDeadline         time.Duration `yaml:"default_deadline,omitempty"`
	EMAAlpha                float64       `yaml:"ema_alpha,omitempty"`
	HistoryTurns            int           `yaml:"history_turns,omitempty"`
}

// ParallelEnabled reports whether primary and secondary may run concurrently.
func (c CoordinatorConfig) ParallelEnabled() bool {
	return c.EnableParallel == nil || *c.EnableParallel
}

// RoutingConfig holds the classifier lexicons. Empty lists use built-in terms.
type RoutingConfig struct {
	AnalyticalTerms []string `yaml:"analytical_terms,omitempty"`
	RecencyTerms    []string `yaml:"recency_terms,omitempty"`
	LocalityTerms   []string `yaml:"locality_terms,omitempty"`
	UrgentTerms     []string `yaml:"urgent_terms,omitempty"`
	DomainTerms     []string `yaml:"domain_terms,omitempty"`

	// SecondaryMargin is how close the runner-up must score to be used.
	SecondaryMargin float64 `yaml:"secondary_margin,omitempty"`
}

// LoadOrchestrationConfig reads orchestration configuration from a YAML file.
func LoadOrchestrationConfig(path string) (*OrchestrationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Decode over the defaults so keys present in the file win, including
	// explicit zeros such as max_retries: 0.
	cfg := defaultTuning()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends = DefaultOrchestrationConfig().Backends
	}

	applyOrchestrationDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultOrchestrationConfig returns the built-in backend table and tuning.
func DefaultOrchestrationConfig() *OrchestrationConfig {
	cfg := defaultTuning()
	cfg.Backends = map[string]BackendConfig{
		"claude": {
			Provider:     ProviderAnthropic,
			Model:        "quality",
			Capabilities: []string{"deep-reasoning", "conversation-aware", "source-verification"},
			Timeout:      45 * time.Second,
			Pricing:      ModelPricing{PromptPer1K: 0.003, CompletionPer1K: 0.015},
			BaseWeight:   1.0,
		},
		"gpt": {
			Provider:     ProviderOpenAI,
			Model:        "thinking",
			Capabilities: []string{"deep-reasoning", "conversation-aware"},
			Timeout:      45 * time.Second,
			Pricing:      ModelPricing{PromptPer1K: 0.00125, CompletionPer1K: 0.01},
			BaseWeight:   0.9,
		},
		"gemini": {
			Provider:     ProviderGoogle,
			Model:        "research",
			Capabilities: []string{"live-data", "source-verification"},
			Timeout:      30 * time.Second,
			Pricing:      ModelPricing{PromptPer1K: 0.00125, CompletionPer1K: 0.01},
			BaseWeight:   0.9,
			Grounding:    true,
		},
		"deepseek": {
			Provider:     ProviderDeepSeek,
			Model:        "reason",
			Capabilities: []string{"deep-reasoning"},
			Timeout:      45 * time.Second,
			Pricing:      ModelPricing{PromptPer1K: 0.00055, CompletionPer1K: 0.00219},
			BaseWeight:   0.7,
		},
		"local": {
			Provider:   ProviderOllama,
			Model:      "qwen2.5:14b",
			Timeout:    60 * time.Second,
			BaseWeight: 0.5,
		},
	}
	cfg.Degradation.FallbackBackend = "local"
	applyOrchestrationDefaults(&cfg)
	return &cfg
}

// defaultTuning holds every default except the backend table. Retry counts,
// the budget total, the confidence threshold, history turns and the
// secondary margin all accept an explicit zero.
func defaultTuning() OrchestrationConfig {
	return OrchestrationConfig{
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 2,
			RecoveryTimeout:  30 * time.Second,
			MaxMultiplier:    8,
		},
		Retry: RetryConfig{MaxRetries: 2, BaseBackoffMs: 200, MaxBackoffMs: 2000},
		Budget: BudgetConfig{
			TotalUSD:    50,
			Period:      24 * time.Hour,
			ExceededTTL: 5 * time.Minute,
		},
		Cache: CacheConfig{
			QuickTTL:    15 * time.Minute,
			StandardTTL: time.Hour,
			DeepTTL:     6 * time.Hour,
		},
		Degradation: DegradationConfig{
			FallbackCacheTTL: 5 * time.Minute,
			RetryAfter:       30 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			HighConfidenceThreshold: 0.8,
			MaxCascade:              3,
			DefaultDeadline:         90 * time.Second,
			EMAAlpha:                0.1,
			HistoryTurns:            6,
		},
		Routing: RoutingConfig{SecondaryMargin: 0.2},
	}
}

// applyOrchestrationDefaults fills per-backend defaults and replaces values
// that cannot be zero.
func applyOrchestrationDefaults(cfg *OrchestrationConfig) {
	if cfg == nil {
		return
	}
	for id, b := range cfg.Backends {
		if b.Timeout <= 0 {
			b.Timeout = 30 * time.Second
		}
		if b.BaseWeight <= 0 {
			b.BaseWeight = 1.0
		}
		cfg.Backends[id] = b
	}

	def := defaultTuning()
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker.FailureThreshold = def.Breaker.FailureThreshold
	}
	if cfg.Breaker.SuccessThreshold <= 0 {
		cfg.Breaker.SuccessThreshold = def.Breaker.SuccessThreshold
	}
	if cfg.Breaker.RecoveryTimeout <= 0 {
		cfg.Breaker.RecoveryTimeout = def.Breaker.RecoveryTimeout
	}
	if cfg.Breaker.MaxMultiplier <= 0 {
		cfg.Breaker.MaxMultiplier = def.Breaker.MaxMultiplier
	}

	if cfg.Retry.MaxBackoffMs < cfg.Retry.BaseBackoffMs {
		cfg.Retry.MaxBackoffMs = cfg.Retry.BaseBackoffMs
	}

	if cfg.Budget.Period <= 0 {
		cfg.Budget.Period = def.Budget.Period
	}
	if cfg.Budget.ExceededTTL <= 0 {
		cfg.Budget.ExceededTTL = def.Budget.ExceededTTL
	}

	if cfg.Cache.QuickTTL <= 0 {
		cfg.Cache.QuickTTL = def.Cache.QuickTTL
	}
	if cfg.Cache.StandardTTL <= 0 {
		cfg.Cache.StandardTTL = def.Cache.StandardTTL
	}
	if cfg.Cache.DeepTTL <= 0 {
		cfg.Cache.DeepTTL = def.Cache.DeepTTL
	}

	if cfg.Degradation.FallbackCacheTTL <= 0 {
		cfg.Degradation.FallbackCacheTTL = def.Degradation.FallbackCacheTTL
	}
	if cfg.Degradation.RetryAfter <= 0 {
		cfg.Degradation.RetryAfter = def.Degradation.RetryAfter
	}

	if cfg.Coordinator.MaxCascade <= 0 {
		cfg.Coordinator.MaxCascade = def.Coordinator.MaxCascade
	}
	if cfg.Coordinator.DefaultDeadline <= 0 {
		cfg.Coordinator.DefaultDeadline = def.Coordinator.DefaultDeadline
	}
	if cfg.Coordinator.EMAAlpha == 0 {
		cfg.Coordinator.EMAAlpha = def.Coordinator.EMAAlpha
	}
}

// Validate checks the configuration for values the coordinator cannot run with.
func (c *OrchestrationConfig) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("no backends configured")
	}
	for id, b := range c.Backends {
		switch b.Provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderDeepSeek, ProviderOllama, ProviderMock:
		default:
			return fmt.Errorf("backend %q: unknown provider %q", id, b.Provider)
		}
	}
	if fb := c.Degradation.FallbackBackend; fb != "" {
		if _, ok := c.Backends[fb]; !ok {
			return fmt.Errorf("fallback backend %q is not configured", fb)
		}
	}
	if a := c.Coordinator.EMAAlpha; a <= 0 || a > 1 {
		return fmt.Errorf("ema_alpha must be in (0,1], got %v", a)
	}
	if t := c.Coordinator.HighConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("high_confidence_threshold must be in [0,1], got %v", t)
	}
	if n := c.Retry.MaxRetries; n < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", n)
	}
	if c.Retry.BaseBackoffMs < 0 {
		return fmt.Errorf("base_backoff_ms must not be negative, got %d", c.Retry.BaseBackoffMs)
	}
	if m := c.Routing.SecondaryMargin; m < 0 {
		return fmt.Errorf("secondary_margin must not be negative, got %v", m)
	}
	return nil
}

// ResolveModels replaces model aliases with canonical names.
func (c *OrchestrationConfig) ResolveModels(aliases *ModelAliases) {
	if c == nil {
		return
	}
	for id, b := range c.Backends {
		b.Model = aliases.Resolve(b.Model)
		c.Backends[id] = b
	}
}

// EnabledBackends returns the ids of enabled backends in sorted order.
func (c *OrchestrationConfig) EnabledBackends() []string {
	ids := make([]string, 0, len(c.Backends))
	for id, b := range c.Backends {
		if b.IsEnabled() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
