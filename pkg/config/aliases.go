package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModelAliases maps short model names used in orchestration.yaml to
// canonical provider model ids.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// LoadAliases reads model aliases from a YAML file.
func LoadAliases(path string) (*ModelAliases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var aliases ModelAliases
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, err
	}
	if aliases.Aliases == nil {
		aliases.Aliases = make(map[string]string)
	}
	if aliases.Providers == nil {
		aliases.Providers = make(map[string][]string)
	}
	return &aliases, nil
}

// Resolve returns the canonical model name for an alias, or the input unchanged.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil || a.Aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := a.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// IsAlias returns true if the given string is a known alias.
func (a *ModelAliases) IsAlias(name string) bool {
	if a == nil || a.Aliases == nil {
		return false
	}
	_, ok := a.Aliases[name]
	return ok
}

// ValidateModel checks that model is listed for provider. Providers without
// a model list (local and mock backends) accept any model.
func (a *ModelAliases) ValidateModel(provider, model string) error {
	if a == nil || a.Providers == nil {
		return nil
	}
	models, ok := a.Providers[provider]
	if !ok {
		return nil
	}
	for _, m := range models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %q not in %s provider list", model, provider)
}

// ListProviders returns a sorted list of provider names.
func (a *ModelAliases) ListProviders() []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	providers := make([]string, 0, len(a.Providers))
	for p := range a.Providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// ValidateBackends checks every backend model after alias resolution.
func (a *ModelAliases) ValidateBackends(cfg *OrchestrationConfig) []error {
	if a == nil || cfg == nil {
		return nil
	}
	var errs []error
	for _, id := range sortedKeys(cfg.Backends) {
		b := cfg.Backends[id]
		if b.Model == "" {
			continue
		}
		if err := a.ValidateModel(b.Provider, a.Resolve(b.Model)); err != nil {
			errs = append(errs, fmt.Errorf("backend %q: %w", id, err))
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultAliases returns the built-in model aliases.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			"quality":  "claude-sonnet-4-20250514",
			"deep":     "claude-opus-4-20250514",
			"fast":     "gpt-5.2-instant",
			"thinking": "gpt-5.2-thinking",
			"research": "gemini-2.5-pro",
			"cheap":    "deepseek-chat",
			"reason":   "deepseek-reasoner",
		},
		Providers: map[string][]string{
			ProviderAnthropic: {"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			ProviderOpenAI:    {"gpt-5.2-instant", "gpt-5.2-thinking"},
			ProviderGoogle:    {"gemini-2.5-pro", "gemini-2.5-flash"},
			ProviderDeepSeek:  {"deepseek-chat", "deepseek-reasoner"},
		},
	}
}
