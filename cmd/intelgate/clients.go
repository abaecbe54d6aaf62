package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/budget"
	"github.com/zen-systems/intelgate/pkg/cache"
	"github.com/zen-systems/intelgate/pkg/config"
	"github.com/zen-systems/intelgate/pkg/telemetry"
)

// createClients builds a client for every enabled backend whose provider
// is usable. Backends without credentials are skipped with a warning.
func createClients(ctx context.Context, cfg *config.Config, logger *slog.Logger) (map[string]adapter.BackendClient, error) {
	clients := make(map[string]adapter.BackendClient)
	for _, id := range cfg.Orchestration.EnabledBackends() {
		b := cfg.Orchestration.Backends[id]
		if !cfg.HasProvider(b.Provider) {
			logger.Warn("backend skipped: no API key", "backend", id, "provider", b.Provider)
			continue
		}
		key := cfg.APIKey(b.Provider)

		var (
			client adapter.BackendClient
			err    error
		)
		switch b.Provider {
		case config.ProviderAnthropic:
			client, err = adapter.NewAnthropicClient(id, key, b.Model)
		case config.ProviderOpenAI:
			client, err = adapter.NewOpenAIClient(id, key, b.Model)
		case config.ProviderGoogle:
			client, err = adapter.NewGoogleClient(ctx, id, key, b.Model, b.Grounding)
		case config.ProviderDeepSeek:
			client, err = adapter.NewDeepSeekClient(id, key, b.Model, b.BaseURL)
		case config.ProviderOllama:
			baseURL := b.BaseURL
			if baseURL == "" {
				baseURL = cfg.OllamaHost
			}
			client = adapter.NewOllamaClient(id, b.Model, baseURL)
		case config.ProviderMock:
			client = adapter.NewMockClient(id)
		default:
			return nil, fmt.Errorf("backend %s: unknown provider %q", id, b.Provider)
		}
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", id, err)
		}
		clients[id] = client
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no usable backends; set an API key or enable a local backend")
	}
	return clients, nil
}

func openCache(cfg *config.Config) (*cache.Cache, error) {
	switch cfg.Settings.Cache.Backend {
	case "sqlite":
		store, err := cache.OpenSQLiteStore(cfg.Settings.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open answer cache: %w", err)
		}
		return cache.New(store), nil
	case "memory", "":
		return cache.New(cache.NewMemoryStore(time.Minute)), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Settings.Cache.Backend)
	}
}

func openBudget(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *telemetry.Instruments) (*budget.Gate, error) {
	var store budget.Store = budget.NewMemoryStore()
	if path := cfg.Settings.Ledger.Path; path != "" {
		s, err := budget.OpenSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("open budget ledger: %w", err)
		}
		store = s
	}
	gate, err := budget.NewGate(ctx, budget.GateConfig{
		TotalUSD: cfg.Orchestration.Budget.TotalUSD,
		Period:   cfg.Orchestration.Budget.Period,
		Store:    store,
		Logger:   logger,
		OnSpend:  metrics.Spend,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return gate, nil
}
