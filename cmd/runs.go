package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ipeds-etl/internal/etl"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show load run history",
	Long: `List load runs from ipeds_meta.load_runs, most recent first.
Runs still marked running after an hour are flagged as stale, usually the
trace of an invocation that died without finalizing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runLog := etl.NewRunLog(pool)
		runs, err := runLog.ListAll(ctx)
		if err != nil {
			return eris.Wrap(err, "runs: list")
		}
		stale, err := runLog.Stale(ctx, time.Hour)
		if err != nil {
			return eris.Wrap(err, "runs: list stale")
		}
		staleIDs := make(map[string]bool, len(stale))
		for _, s := range stale {
			staleIDs[s.RunID.String()] = true
		}

		limit, _ := cmd.Flags().GetInt("limit")

		fmt.Printf("%-36s %-12s %-9s %-8s %8s %8s %6s %7s  %s\n",
			"RUN", "ENDPOINT", "YEARS", "STATUS", "INSERTED", "UPDATED", "PAGES", "SKIPPED", "STARTED")
		for i, r := range runs {
			if limit > 0 && i >= limit {
				break
			}
			status := string(r.Status)
			if staleIDs[r.RunID.String()] {
				status = "stale"
			}
			fmt.Printf("%-36s %-12s %4d-%-4d %-8s %8d %8d %6d %7d  %s\n",
				r.RunID, r.Endpoint, r.YearStart, r.YearEnd, status,
				r.RowsInserted, r.RowsUpdated, r.PagesFetched, r.RecordsSkipped,
				r.StartedAt.Format(time.RFC3339))
			if r.Error != "" {
				fmt.Printf("    error: %s\n", r.Error)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "max runs to show (0 = all)")
	rootCmd.AddCommand(runsCmd)
}
