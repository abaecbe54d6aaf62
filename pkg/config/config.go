// Package config loads intelgate settings from ~/.intelgate and the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string
	OllamaHost      string

	Settings      Settings
	Orchestration *OrchestrationConfig
	Aliases       *ModelAliases
	ConfigDir     string
}

// Settings is the non-secret part of ~/.intelgate/config.yaml. API keys are
// only ever read from the environment.
type Settings struct {
	LogLevel  string            `yaml:"log_level,omitempty"`
	Cache     CacheStoreConfig  `yaml:"cache,omitempty"`
	Ledger    LedgerStoreConfig `yaml:"ledger,omitempty"`
	Telemetry TelemetryConfig   `yaml:"telemetry,omitempty"`
}

// CacheStoreConfig selects the key-value store behind the cache.
type CacheStoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// LedgerStoreConfig selects where budget ledgers are persisted. An empty
// path keeps the ledger in memory.
type LedgerStoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// TelemetryConfig configures OTLP metric export. No endpoint means no export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
}

// Load reads configuration from ~/.intelgate and environment variables.
func Load() (*Config, error) {
	return LoadWithOrchestration("")
}

// LoadWithOrchestration is Load with an explicit orchestration file. An
// empty path behaves like Load.
func LoadWithOrchestration(orchestrationPath string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return LoadFrom(configDir, orchestrationPath)
}

// LoadFrom reads configuration from configDir. A non-empty orchestrationPath
// overrides configDir/orchestration.yaml and must exist.
func LoadFrom(configDir, orchestrationPath string) (*Config, error) {
	settings, err := loadSettings(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		return nil, err
	}
	applySettingsDefaults(&settings, configDir)

	cfg := &Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleAPIKey:    firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY"),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		OllamaHost:      os.Getenv("OLLAMA_HOST"),
		Settings:        settings,
		ConfigDir:       configDir,
	}
	if level := os.Getenv("INTELGATE_LOG_LEVEL"); level != "" {
		cfg.Settings.LogLevel = level
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Settings.Telemetry.Endpoint = endpoint
	}

	explicit := orchestrationPath != ""
	if !explicit {
		orchestrationPath = filepath.Join(configDir, "orchestration.yaml")
	}
	if _, statErr := os.Stat(orchestrationPath); statErr == nil || explicit {
		orch, err := LoadOrchestrationConfig(orchestrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load orchestration config from %s: %w", orchestrationPath, err)
		}
		cfg.Orchestration = orch
	} else {
		cfg.Orchestration = DefaultOrchestrationConfig()
	}

	aliasPath := filepath.Join(configDir, "models.yaml")
	if _, statErr := os.Stat(aliasPath); statErr == nil {
		aliases, err := LoadAliases(aliasPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load model aliases: %w", err)
		}
		cfg.Aliases = aliases
	} else {
		cfg.Aliases = DefaultAliases()
	}
	cfg.Orchestration.ResolveModels(cfg.Aliases)

	return cfg, nil
}

// APIKey returns the credential for a provider. Providers that need no key
// report an empty string.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderGoogle:
		return c.GoogleAPIKey
	case ProviderDeepSeek:
		return c.DeepSeekAPIKey
	default:
		return ""
	}
}

// HasProvider reports whether a backend of this provider can be built.
func (c *Config) HasProvider(provider string) bool {
	switch provider {
	case ProviderOllama, ProviderMock:
		return true
	default:
		return c.APIKey(provider) != ""
	}
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Settings.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadSettings(path string) (Settings, error) {
	var settings Settings
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return settings, nil
}

func applySettingsDefaults(s *Settings, configDir string) {
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.Cache.Backend == "" {
		s.Cache.Backend = "memory"
	}
	if s.Cache.Backend == "sqlite" && s.Cache.Path == "" {
		s.Cache.Path = filepath.Join(configDir, "cache.db")
	}
	if s.Telemetry.ServiceName == "" {
		s.Telemetry.ServiceName = "intelgate"
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getConfigDir() (string, error) {
	if dir := os.Getenv("INTELGATE_HOME"); dir != "" {
		return dir, os.MkdirAll(dir, 0o755)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".intelgate")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", err
	}
	return configDir, nil
}
