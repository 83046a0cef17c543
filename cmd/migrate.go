package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ipeds-etl/internal/etl"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply store migrations",
	Long:  "Creates the ipeds_raw, ipeds_core, and ipeds_meta regions and brings the schema up to date. Safe to run repeatedly; an advisory lock serializes concurrent invocations.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := etl.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "migrate")
		}
		fmt.Println("Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
