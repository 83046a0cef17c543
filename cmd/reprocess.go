package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ipeds-etl/internal/etl"
	"github.com/sells-group/ipeds-etl/internal/etl/endpoint"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Rebuild core tables from stored raw pages",
	Long: `Re-run mapping and loading from pages already landed in ipeds_raw,
without any network fetch. Useful after a mapper fix: raw stays untouched and
core converges on the corrected output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "reprocess"))

		yearStart, yearEnd, err := yearRange(cmd)
		if err != nil {
			return err
		}

		reg, err := endpoint.Builtin()
		if err != nil {
			return eris.Wrap(err, "reprocess: build registry")
		}
		descs, err := selectEndpoints(cmd, reg)
		if err != nil {
			return err
		}

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := etl.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "reprocess: migrate")
		}

		log.Info("starting reprocess",
			zap.Int("year_start", yearStart),
			zap.Int("year_end", yearEnd),
			zap.Int("endpoints", len(descs)),
		)

		for _, desc := range descs {
			r := etl.NewRunner(pool, nil, desc, cfg.API.BaseURL)
			res := r.Reprocess(ctx, yearStart, yearEnd)
			fmt.Printf("%s: %s  pages=%d inserted=%d updated=%d skipped=%d\n",
				res.Endpoint, res.State, res.PagesFetched, res.RowsInserted, res.RowsUpdated, res.RecordsSkipped)
			if res.Err != nil {
				return eris.Wrapf(res.Err, "reprocess %s", desc.Name)
			}
		}
		return nil
	},
}

func init() {
	reprocessCmd.Flags().StringSlice("endpoints", nil, "endpoints to reprocess (default: all registered)")
	reprocessCmd.Flags().Int("start", 0, "first survey year (inclusive)")
	reprocessCmd.Flags().Int("end", 0, "last survey year (inclusive)")
	rootCmd.AddCommand(reprocessCmd)
}
