package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestConfigIgnoresFileAPIKeys(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)

	configDir := filepath.Join(home, ".intelgate")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte("api_keys:\n  anthropic: file-ant\n  openai: file-openai\n  google: file-google\n  deepseek: file-deepseek\n")
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "" || cfg.OpenAIAPIKey != "" || cfg.GoogleAPIKey != "" || cfg.DeepSeekAPIKey != "" {
		t.Fatalf("expected file API keys to be ignored")
	}
	if cfg.HasProvider(ProviderAnthropic) {
		t.Fatalf("anthropic should be unavailable without a key")
	}
	if !cfg.HasProvider(ProviderOllama) {
		t.Fatalf("local backends need no key")
	}
}

func TestConfigUsesEnvAPIKeys(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearKeys(t)

	t.Setenv("ANTHROPIC_API_KEY", "env-ant")
	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("GEMINI_API_KEY", "env-google")
	t.Setenv("DEEPSEEK_API_KEY", "env-deepseek")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "env-ant" || cfg.OpenAIAPIKey != "env-openai" || cfg.GoogleAPIKey != "env-google" || cfg.DeepSeekAPIKey != "env-deepseek" {
		t.Fatalf("expected env API keys to be used")
	}
	if cfg.APIKey(ProviderGoogle) != "env-google" {
		t.Fatalf("APIKey(google) = %q", cfg.APIKey(ProviderGoogle))
	}
}

func TestLoadDefaults(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	orch := cfg.Orchestration
	if orch.Breaker.FailureThreshold != 3 || orch.Breaker.SuccessThreshold != 2 || orch.Breaker.MaxMultiplier != 8 {
		t.Fatalf("unexpected breaker defaults: %+v", orch.Breaker)
	}
	if orch.Coordinator.EMAAlpha != 0.1 {
		t.Fatalf("ema alpha = %v", orch.Coordinator.EMAAlpha)
	}
	if !orch.Coordinator.ParallelEnabled() {
		t.Fatalf("parallel should default to enabled")
	}
	if got := orch.Backends["claude"].Model; got != "claude-sonnet-4-20250514" {
		t.Fatalf("alias not resolved: %q", got)
	}
	if cfg.Settings.Cache.Backend != "memory" {
		t.Fatalf("cache backend = %q", cfg.Settings.Cache.Backend)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Fatalf("log level = %v", cfg.SlogLevel())
	}
}

func TestLoadOrchestrationFile(t *testing.T) {
	dir := t.TempDir()
	clearKeys(t)
	t.Setenv("INTELGATE_LOG_LEVEL", "debug")

	settings := []byte("cache:\n  backend: sqlite\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), settings, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	orch := []byte(`
backends:
  primary:
    provider: mock
    capabilities: [deep-reasoning]
    timeout: 5s
    requests_per_second: 2
  backup:
    provider: mock
    enabled: false
breaker:
  failure_threshold: 5
  recovery_timeout: 1m
coordinator:
  enable_parallel: false
  max_cascade: 2
routing:
  domain_terms: [latency, throughput]
`)
	if err := os.WriteFile(filepath.Join(dir, "orchestration.yaml"), orch, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFrom(dir, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	o := cfg.Orchestration
	if o.Backends["primary"].Timeout != 5*time.Second {
		t.Fatalf("timeout = %v", o.Backends["primary"].Timeout)
	}
	if o.Breaker.FailureThreshold != 5 || o.Breaker.RecoveryTimeout != time.Minute {
		t.Fatalf("breaker = %+v", o.Breaker)
	}
	if o.Breaker.SuccessThreshold != 2 {
		t.Fatalf("unset fields should take defaults, got %+v", o.Breaker)
	}
	if o.Coordinator.ParallelEnabled() {
		t.Fatalf("parallel should be disabled")
	}
	if got := o.EnabledBackends(); len(got) != 1 || got[0] != "primary" {
		t.Fatalf("enabled backends = %v", got)
	}
	if cfg.Settings.Cache.Path != filepath.Join(dir, "cache.db") {
		t.Fatalf("cache path = %q", cfg.Settings.Cache.Path)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("env log level not applied")
	}
}

func TestLoadOrchestrationKeepsExplicitZeros(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestration.yaml")
	orch := []byte(`
backends:
  only:
    provider: mock
retry:
  max_retries: 0
coordinator:
  high_confidence_threshold: 0
  history_turns: 0
routing:
  secondary_margin: 0
budget:
  total_usd: 0
`)
	if err := os.WriteFile(path, orch, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadOrchestrationConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Retry.MaxRetries != 0 {
		t.Fatalf("max_retries = %d, want explicit 0", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseBackoffMs != 200 {
		t.Fatalf("unset base_backoff_ms = %d, want default 200", cfg.Retry.BaseBackoffMs)
	}
	if cfg.Coordinator.HighConfidenceThreshold != 0 {
		t.Fatalf("high_confidence_threshold = %v, want explicit 0", cfg.Coordinator.HighConfidenceThreshold)
	}
	if cfg.Coordinator.HistoryTurns != 0 || cfg.Routing.SecondaryMargin != 0 || cfg.Budget.TotalUSD != 0 {
		t.Fatalf("explicit zeros rewritten: %+v %+v %+v", cfg.Coordinator, cfg.Routing, cfg.Budget)
	}
	if cfg.Coordinator.MaxCascade != 3 || cfg.Breaker.FailureThreshold != 3 {
		t.Fatalf("unset fields should take defaults, got %+v %+v", cfg.Coordinator, cfg.Breaker)
	}
}

func TestLoadOrchestrationRejectsNegativeRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestration.yaml")
	if err := os.WriteFile(path, []byte("backends:\n  x:\n    provider: mock\nretry:\n  max_retries: -1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadOrchestrationConfig(path); err == nil {
		t.Fatal("expected negative max_retries error")
	}
}

func TestLoadOrchestrationRejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestration.yaml")
	if err := os.WriteFile(path, []byte("backends:\n  x:\n    provider: carrier-pigeon\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadOrchestrationConfig(path); err == nil {
		t.Fatal("expected unknown provider error")
	}
}

func TestLoadFromMissingExplicitFile(t *testing.T) {
	if _, err := LoadFrom(t.TempDir(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit orchestration file")
	}
}

func clearKeys(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY", "DEEPSEEK_API_KEY", "INTELGATE_HOME", "INTELGATE_LOG_LEVEL", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
