package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zen-systems/intelgate/pkg/config"
	"github.com/zen-systems/intelgate/pkg/coordinator"
	"github.com/zen-systems/intelgate/pkg/telemetry"
)

var version = "dev"

var (
	configFile string
	debugFlag  bool
	jsonFlag   bool
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "intelgate",
		Short: "Strategic intelligence gateway over multiple AI backends",
		Long: `Intelgate routes analysis questions to the best-suited AI backends,
protects them with circuit breakers, retries and a spend budget, and merges
their answers into one weighted result with insights, risks and actions.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to orchestration config file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "print results as JSON")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(backendsCmd())
	rootCmd.AddCommand(budgetCmd())
	rootCmd.AddCommand(cacheCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// app is everything a command needs, built from configuration.
type app struct {
	cfg      *config.Config
	coord    *coordinator.Coordinator
	logger   *slog.Logger
	shutdown telemetry.Shutdown
}

func (a *app) Close(ctx context.Context) {
	if err := a.coord.Close(); err != nil {
		a.logger.Warn("close coordinator", "error", err)
	}
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("flush telemetry", "error", err)
	}
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithOrchestration(configFile)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if debugFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	for _, err := range cfg.Aliases.ValidateBackends(cfg.Orchestration) {
		logger.Warn("backend model check", "error", err)
	}

	tel := cfg.Settings.Telemetry
	shutdown, err := telemetry.Init(ctx, tel.Endpoint, tel.ServiceName, version, tel.Insecure)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewInstruments(telemetry.Meter(telemetry.ScopeName))
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	clients, err := createClients(ctx, cfg, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to create backends: %w", err)
	}

	answers, err := openCache(cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	gate, err := openBudget(ctx, cfg, logger, metrics)
	if err != nil {
		_ = answers.Store().Close()
		_ = shutdown(ctx)
		return nil, err
	}

	coord, err := coordinator.New(ctx, cfg.Orchestration, clients,
		coordinator.WithLogger(logger),
		coordinator.WithCache(answers),
		coordinator.WithBudgetGate(gate),
		coordinator.WithInstruments(metrics),
	)
	if err != nil {
		_ = answers.Store().Close()
		_ = gate.Close()
		_ = shutdown(ctx)
		return nil, err
	}
	return &app{cfg: cfg, coord: coord, logger: logger, shutdown: shutdown}, nil
}

// withApp builds the app, runs fn and releases everything afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}
