package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/michaelpento.lv/cyclearb/cmd/bot"
	"github.com/michaelpento.lv/cyclearb/strategies/arbitrage"
	"github.com/michaelpento.lv/cyclearb/types"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scanQuotes string
	scanTop    int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single detection pass and print the ranked opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if scanQuotes != "" {
			cfg.Sources.Static.Path = scanQuotes
		}

		source, cleanup, err := bot.BuildSource(cmd.Context(), cfg, log, nil)
		if err != nil {
			return err
		}
		defer cleanup.Run()

		engine, err := arbitrage.NewEngine(cfg, source, log.With(zap.String("component", "engine")))
		if err != nil {
			return err
		}
		result, err := engine.RunPass(cmd.Context())
		if err != nil {
			return err
		}

		renderPass(cmd.OutOrStdout(), result, scanTop)
		return nil
	},
}

func renderPass(w io.Writer, result types.PassResult, top int) {
	fmt.Fprintf(w, "pass %s  snapshot %d  edges %d  cycles %d  discarded %d  filtered %d  (%s)\n",
		result.ID, result.SnapshotVersion, result.Stats.Edges, result.Stats.CyclesFound,
		result.Stats.CyclesDiscarded, result.Stats.Filtered, result.Duration)

	if result.Empty() {
		fmt.Fprintln(w, "no opportunities")
		return
	}

	opps := result.Opportunities
	if top > 0 && len(opps) > top {
		opps = opps[:top]
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Route", "Exchanges", "Hops", "Final", "Profit", "Profit %", "Bps", "Cost"})
	table.SetAutoWrapText(false)
	for i, opp := range opps {
		table.Append([]string{
			strconv.Itoa(i + 1),
			opp.Route(),
			strings.Join(opp.Exchanges, ","),
			strconv.Itoa(opp.Hops()),
			strconv.FormatFloat(opp.FinalAmount, 'f', 4, 64),
			strconv.FormatFloat(opp.Profit, 'f', 4, 64),
			strconv.FormatFloat(opp.ProfitPct, 'f', 4, 64),
			strconv.FormatFloat(opp.ProfitBps, 'f', 1, 64),
			strconv.FormatFloat(opp.EstimatedCost, 'f', 2, 64),
		})
	}
	table.Render()
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanQuotes, "quotes", "", "YAML quotes file to scan (overrides sources.static.path)")
	scanCmd.Flags().IntVar(&scanTop, "top", 0, "print only the best N opportunities (0 prints all)")
}
