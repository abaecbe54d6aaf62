package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zen-systems/intelgate/pkg/adapter"
	"github.com/zen-systems/intelgate/pkg/coordinator"
	"github.com/zen-systems/intelgate/pkg/router"
	"github.com/zen-systems/intelgate/pkg/synth"
)

func askCmd() *cobra.Command {
	var (
		topic        string
		depth        string
		mode         string
		urgent       bool
		historyFile  string
		knownVersion string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask an analysis question",
		Long: `Classifies the question, routes it to the best-suited backends and prints
the synthesized answer.

Use --topic to give background the backends should take into account.
Use --history with a YAML list of {role, content} messages to continue
an earlier conversation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := coordinator.Request{
				TopicContext:  topic,
				QueryText:     args[0],
				Depth:         router.Depth(depth),
				StrategicMode: coordinator.StrategicMode(mode),
				Urgent:        urgent,
				KnownVersion:  knownVersion,
			}
			if historyFile != "" {
				history, err := readHistory(historyFile)
				if err != nil {
					return err
				}
				req.ConversationHistory = history
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.coord.Answer(ctx, req)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(os.Stdout, res)
				}
				printResult(os.Stdout, res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "background context for the question")
	cmd.Flags().StringVar(&depth, "depth", "standard", "analysis depth: quick, standard or deep")
	cmd.Flags().StringVar(&mode, "mode", "neutral", "strategic mode: defensive, neutral or offensive")
	cmd.Flags().BoolVar(&urgent, "urgent", false, "treat the question as time-critical")
	cmd.Flags().StringVar(&historyFile, "history", "", "YAML file with prior conversation turns")
	cmd.Flags().StringVar(&knownVersion, "if-none-match", "", "version tag of an answer already held")

	return cmd
}

func readHistory(path string) ([]adapter.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var history []adapter.Message
	if err := yaml.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return history, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend health, budget and degradation state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				status := a.coord.GetSystemStatus(ctx)
				if jsonFlag {
					return printJSON(os.Stdout, status)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "BACKEND\tSTATE\tFAILURES\tBACKOFF\tSUCCESS\tCONFIDENCE\tLATENCY\tCALLS\tROUTABLE")
				for _, id := range a.coord.BackendIDs() {
					h := status.BackendHealth[id]
					fmt.Fprintf(w, "%s\t%s\t%d\t%dx\t%.0f%%\t%.2f\t%.1fs\t%d\t%t\n",
						id, h.State, h.ConsecutiveFailures, h.RecoveryMultiplier,
						h.SuccessRate*100, h.AvgConfidence, h.AvgLatencyS, h.Calls, h.Routable)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				fmt.Println()
				b := status.Budget
				fmt.Printf("Budget: $%.4f of $%.2f spent (%.1f%%), $%.4f left until %s\n",
					b.CurrentSpendUSD, b.TotalBudgetUSD, b.UtilizationPct, b.RemainingUSD,
					b.PeriodEnd.Local().Format("2006-01-02 15:04"))

				var degraded []string
				for name, healthy := range status.Services {
					if !healthy {
						degraded = append(degraded, name)
					}
				}
				sort.Strings(degraded)
				if len(degraded) > 0 {
					fmt.Printf("Degraded services: %s\n", strings.Join(degraded, ", "))
				}
				return nil
			})
		},
	}
}

func backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List configured backends and whether they can be used",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			orch := cfg.Orchestration

			ids := make([]string, 0, len(orch.Backends))
			for id := range orch.Backends {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tPROVIDER\tMODEL\tCAPABILITIES\tSTATUS")
			for _, id := range ids {
				b := orch.Backends[id]
				status := "ready"
				switch {
				case !b.IsEnabled():
					status = "disabled"
				case !cfg.HasProvider(b.Provider):
					status = "no key"
				case id == orch.Degradation.FallbackBackend:
					status = "fallback"
				}
				caps := "-"
				if len(b.Capabilities) > 0 {
					caps = strings.Join(b.Capabilities, ", ")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, b.Provider, b.Model, caps, status)
			}
			return w.Flush()
		},
	}
}

func budgetCmd() *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show spend for the current budget period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				gate := a.coord.Budget()
				if history > 0 {
					ledgers, err := gate.History(ctx, history)
					if err != nil {
						return err
					}
					if jsonFlag {
						return printJSON(os.Stdout, ledgers)
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "PERIOD START\tPERIOD END\tSPENT\tBUDGET\tCALLS")
					for _, l := range ledgers {
						fmt.Fprintf(w, "%s\t%s\t$%.4f\t$%.2f\t%d\n",
							l.PeriodStart.Local().Format("2006-01-02 15:04"),
							l.PeriodEnd.Local().Format("2006-01-02 15:04"),
							l.CurrentSpendUSD, l.TotalBudgetUSD, l.Calls)
					}
					return w.Flush()
				}

				s := gate.Summary()
				if jsonFlag {
					return printJSON(os.Stdout, s)
				}
				fmt.Printf("Period: %s to %s\n",
					s.PeriodStart.Local().Format("2006-01-02 15:04"), s.PeriodEnd.Local().Format("2006-01-02 15:04"))
				fmt.Printf("Spent:  $%.4f of $%.2f (%.1f%%) over %d calls\n",
					s.CurrentSpendUSD, s.TotalBudgetUSD, s.UtilizationPct, s.Calls)

				backends := make([]string, 0, len(s.SpendByBackend))
				for id := range s.SpendByBackend {
					backends = append(backends, id)
				}
				sort.Strings(backends)
				for _, id := range backends {
					fmt.Printf("  %-12s $%.4f\n", id, s.SpendByBackend[id])
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "show the last N budget periods")
	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached answers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "invalidate [pattern]",
		Short: "Remove cached answers matching a glob pattern (default: all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.coord.Invalidate(ctx, pattern)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d cached answer(s)\n", n)
				return nil
			})
		},
	})
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, res *synth.Result) {
	if res.NotModified {
		fmt.Fprintf(w, "Not modified (version %s)\n", res.VersionTag)
		return
	}

	var flags []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{res.CacheHit, "cached"},
		{res.FallbackMode, "fallback"},
		{res.Degraded, "degraded"},
		{res.CircuitBreakerActive, "circuit open"},
		{res.BudgetExceeded, "budget exceeded"},
	} {
		if f.on {
			flags = append(flags, f.name)
		}
	}

	fmt.Fprintln(w, res.Content)
	fmt.Fprintln(w)
	writeSection(w, "Insights", len(res.Insights), func(i int) string {
		in := res.Insights[i]
		if in.Detail == "" {
			return in.Title
		}
		return in.Title + ": " + in.Detail
	})
	writeSection(w, "Risks", len(res.Risks), func(i int) string {
		r := res.Risks[i]
		return fmt.Sprintf("[%s] %s", r.Severity, r.Description)
	})
	writeSection(w, "Recommended actions", len(res.RecommendedActions), func(i int) string {
		a := res.RecommendedActions[i]
		s := fmt.Sprintf("[%s] %s", a.Priority, a.Description)
		if a.Timeframe != "" {
			s += " (" + a.Timeframe + ")"
		}
		return s
	})
	writeSection(w, "Opportunities", len(res.Opportunities), func(i int) string {
		return res.Opportunities[i].Description
	})
	writeSection(w, "Evidence", len(res.Evidence), func(i int) string {
		e := res.Evidence[i]
		if e.Source == "" {
			return e.Claim
		}
		return fmt.Sprintf("%s (%s)", e.Claim, e.Source)
	})

	fmt.Fprintf(w, "Confidence %.2f", res.ConfidenceScore)
	if res.ConsensusScore != nil {
		fmt.Fprintf(w, ", consensus %.2f", *res.ConsensusScore)
	}
	fmt.Fprintf(w, " | backends %s | $%.4f | %s\n", strings.Join(res.Backends, ", "), res.CostUSD, res.Complexity)
	if len(flags) > 0 {
		fmt.Fprintf(w, "Flags: %s\n", strings.Join(flags, ", "))
	}
	if res.RetryAfter > 0 {
		fmt.Fprintf(w, "Retry after %s\n", res.RetryAfter)
	}
	if res.VersionTag != "" {
		fmt.Fprintf(w, "Version %s\n", res.VersionTag)
	}
}

func writeSection(w io.Writer, title string, n int, line func(int) string) {
	if n == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for i := 0; i < n; i++ {
		fmt.Fprintf(w, "  - %s\n", line(i))
	}
	fmt.Fprintln(w)
}

