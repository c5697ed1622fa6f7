package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/michaelpento.lv/cyclearb/report/sqlite"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent passes from the SQLite archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		return showHistory(cmd.Context(), cmd.OutOrStdout(), cfg.Reporting.SQLite.Path, historyLimit)
	},
}

// showHistory prints the most recent archived passes. A missing archive is an
// error rather than an empty table.
func showHistory(ctx context.Context, out io.Writer, path string, limit int) error {
	archive, err := sqlite.OpenExisting(path)
	if err != nil {
		return err
	}
	defer archive.Close()

	records, err := archive.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "no archived passes")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Started", "Pass", "Snapshot", "Cycles", "Opportunities", "Best route", "Best %"})
	table.SetAutoWrapText(false)
	for _, rec := range records {
		best, pct := "-", "-"
		if len(rec.BestPath) > 0 {
			best = strings.Join(rec.BestPath, " -> ")
			pct = strconv.FormatFloat(rec.BestProfitPct, 'f', 4, 64)
		}
		table.Append([]string{
			rec.StartedAt.Format(time.RFC3339),
			rec.ID,
			strconv.FormatUint(rec.SnapshotVersion, 10),
			strconv.Itoa(rec.Stats.CyclesFound),
			strconv.Itoa(rec.Opportunities),
			best,
			pct,
		})
	}
	table.Render()
	return nil
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of passes to show")
}
