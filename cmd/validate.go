package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/michaelpento.lv/cyclearb/config"
	"github.com/michaelpento.lv/cyclearb/dex/static"
	"github.com/michaelpento.lv/cyclearb/graph"
	"github.com/michaelpento.lv/cyclearb/strategies/arbitrage"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var validateQuotes string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and, optionally, a quotes file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config ok: %d tokens, hop limit %d, cycle length %d-%d\n",
			len(cfg.Tokens), cfg.Detection.HopLimit, cfg.Detection.MinCycleLength, cfg.Detection.MaxCycleLength)

		if validateQuotes == "" {
			return nil
		}
		stats, err := checkQuotes(cmd.Context(), cfg, validateQuotes)
		if err != nil {
			return err
		}
		renderAdmission(out, stats)
		return nil
	},
}

// checkQuotes runs the admission filter over a quotes file without searching.
func checkQuotes(ctx context.Context, cfg *config.Config, path string) (graph.ReplaceStats, error) {
	engine, err := arbitrage.NewEngine(cfg, static.NewFileSource(path), zap.NewNop(),
		arbitrage.WithTracer(arbitrage.NopTracer{}))
	if err != nil {
		return graph.ReplaceStats{}, err
	}
	return engine.Refresh(ctx)
}

func renderAdmission(w io.Writer, stats graph.ReplaceStats) {
	fmt.Fprintf(w, "quotes: %d admitted, %d rejected\n", stats.Admitted, len(stats.Rejected))
	if len(stats.Rejected) == 0 {
		return
	}

	rejected := append([]graph.Rejection(nil), stats.Rejected...)
	sort.Slice(rejected, func(i, j int) bool {
		return rejected[i].Pair.String() < rejected[j].Pair.String()
	})

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Pair", "Exchange", "Rate", "Reason"})
	for _, r := range rejected {
		table.Append([]string{r.Pair.String(), r.Quote.Exchange, fmt.Sprintf("%g", r.Quote.Rate), string(r.Reason)})
	}
	table.Render()
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateQuotes, "quotes", "", "YAML quotes file to check against the admission rules")
}
