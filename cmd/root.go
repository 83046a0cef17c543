package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ipeds-etl/internal/config"
	"github.com/sells-group/ipeds-etl/internal/db"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ipeds-etl",
	Short: "IPEDS ingestion pipeline",
	Long:  "Fetches paginated IPEDS endpoints from the Urban Institute Education Data API and loads them into ipeds_raw/ipeds_core Postgres tables with full lineage.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// storePool connects to the configured Postgres backend and pings it.
func storePool(ctx context.Context) (db.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("no database_url configured (set store.database_url or IPEDS_STORE_DATABASE_URL)")
	}
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
	if err != nil {
		return nil, eris.Wrap(err, "connect to store")
	}
	return pool, nil
}
