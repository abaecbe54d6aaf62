package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/intelgate/pkg/config"
	"github.com/zen-systems/intelgate/pkg/synth"
)

func TestCreateClientsSkipsMissingKeys(t *testing.T) {
	disabled := false
	cfg := &config.Config{
		Orchestration: &config.OrchestrationConfig{
			Backends: map[string]config.BackendConfig{
				"claude": {Provider: config.ProviderAnthropic},
				"local":  {Provider: config.ProviderOllama, Model: "llama3"},
				"mock":   {Provider: config.ProviderMock},
				"off":    {Provider: config.ProviderMock, Enabled: &disabled},
			},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	clients, err := createClients(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.Len(t, clients, 2)
	assert.Contains(t, clients, "local")
	assert.Contains(t, clients, "mock")
}

func TestCreateClientsNeedsOneBackend(t *testing.T) {
	cfg := &config.Config{
		Orchestration: &config.OrchestrationConfig{
			Backends: map[string]config.BackendConfig{
				"gpt": {Provider: config.ProviderOpenAI},
			},
		},
	}
	_, err := createClients(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestOpenCacheRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{Settings: config.Settings{Cache: config.CacheStoreConfig{Backend: "redis"}}}
	_, err := openCache(cfg)
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	consensus := 0.9
	res := &synth.Result{
		Content:         "Prices are falling.",
		ConfidenceScore: 0.72,
		ConsensusScore:  &consensus,
		Risks:           []synth.Risk{{Description: "Share loss", Severity: synth.LevelHigh}},
		Backends:        []string{"claude", "gpt"},
		CostUSD:         0.0123,
		Degraded:        true,
		VersionTag:      "abc",
	}

	var buf bytes.Buffer
	printResult(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "Prices are falling.")
	assert.Contains(t, out, "Risks:\n  - [high] Share loss")
	assert.Contains(t, out, "Confidence 0.72, consensus 0.90")
	assert.Contains(t, out, "backends claude, gpt")
	assert.Contains(t, out, "Flags: degraded")
	assert.NotContains(t, out, "Insights:")
}

func TestPrintResultNotModified(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &synth.Result{NotModified: true, VersionTag: "v1"})
	assert.Equal(t, "Not modified (version v1)\n", buf.String())
}

func TestCommandHelpIsLeftAligned(t *testing.T) {
	for _, cmd := range []*cobra.Command{askCmd(), statusCmd(), backendsCmd(), budgetCmd(), cacheCmd()} {
		for _, line := range strings.Split(cmd.Long, "\n") {
			assert.False(t, strings.HasPrefix(line, "\t"), "%s help line %q is indented", cmd.Name(), line)
		}
	}
}
