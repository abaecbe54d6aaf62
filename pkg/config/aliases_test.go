package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	aliases := &ModelAliases{
		Aliases: map[string]string{
			"fast":    "gpt-5.2-instant",
			"quality": "claude-sonnet-4-20250514",
		},
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "known alias", input: "fast", expected: "gpt-5.2-instant"},
		{name: "another alias", input: "quality", expected: "claude-sonnet-4-20250514"},
		{name: "unknown returns input", input: "llama3", expected: "llama3"},
		{name: "canonical returns input", input: "gpt-5.2-instant", expected: "gpt-5.2-instant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aliases.Resolve(tt.input); got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveNilAliases(t *testing.T) {
	var aliases *ModelAliases
	if got := aliases.Resolve("fast"); got != "fast" {
		t.Errorf("Resolve on nil should return input, got %q", got)
	}
	if aliases.IsAlias("fast") {
		t.Error("nil aliases should know no alias")
	}
}

func TestValidateModel(t *testing.T) {
	aliases := DefaultAliases()

	if err := aliases.ValidateModel(ProviderAnthropic, "claude-sonnet-4-20250514"); err != nil {
		t.Errorf("expected valid model, got %v", err)
	}
	if err := aliases.ValidateModel(ProviderAnthropic, "gpt-5.2-instant"); err == nil {
		t.Error("expected error for model listed under another provider")
	}
	if err := aliases.ValidateModel(ProviderOllama, "qwen2.5:14b"); err != nil {
		t.Errorf("providers without a model list should accept any model: %v", err)
	}
}

func TestValidateBackends(t *testing.T) {
	aliases := DefaultAliases()
	cfg := DefaultOrchestrationConfig()
	if errs := aliases.ValidateBackends(cfg); len(errs) != 0 {
		t.Fatalf("default backends should validate: %v", errs)
	}

	cfg.Backends["claude"] = BackendConfig{Provider: ProviderAnthropic, Model: "claude-1"}
	errs := aliases.ValidateBackends(cfg)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
}

func TestLoadAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	data := []byte("aliases:\n  tiny: llama3.2:1b\nproviders:\n  ollama: [llama3.2:1b]\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	aliases, err := LoadAliases(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := aliases.Resolve("tiny"); got != "llama3.2:1b" {
		t.Errorf("Resolve(tiny) = %q", got)
	}
	if got := aliases.ListProviders(); len(got) != 1 || got[0] != "ollama" {
		t.Errorf("ListProviders() = %v", got)
	}
}
