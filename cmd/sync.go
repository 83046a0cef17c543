package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ipeds-etl/internal/etl"
	"github.com/sells-group/ipeds-etl/internal/etl/endpoint"
	"github.com/sells-group/ipeds-etl/internal/fetcher"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and load endpoint data for a year range",
	Long: `Fetch paginated endpoint data and load it through raw and core tables.

By default, runs every registered endpoint. Use --endpoints for a subset.
Each endpoint-year fetch lands pages append-only in ipeds_raw, then commits
the mapped records to ipeds_core as one transaction per year.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "sync"))

		yearStart, yearEnd, err := yearRange(cmd)
		if err != nil {
			return err
		}

		reg, err := endpoint.Builtin()
		if err != nil {
			return eris.Wrap(err, "sync: build registry")
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
			return eris.Wrap(err, "sync: migrate")
		}

		client := fetcher.NewClient(fetcher.Options{
			UserAgent:  cfg.API.UserAgent,
			Timeout:    cfg.API.Timeout(),
			MaxRetries: cfg.API.MaxRetries,
			RatePerSec: cfg.API.RateLimitRPS,
		})

		log.Info("starting sync",
			zap.Int("year_start", yearStart),
			zap.Int("year_end", yearEnd),
			zap.Int("endpoints", len(descs)),
		)

		uiprogress.Start()
		g, gctx := errgroup.WithContext(ctx)
		results := make([]etl.RunResult, len(descs))
		for i, desc := range descs {
			bar := uiprogress.AddBar(yearEnd - yearStart + 1).AppendCompleted().PrependElapsed()
			prog := newEndpointProgress(bar, desc.Name, yearStart)

			g.Go(func() error {
				r := etl.NewRunner(pool, client, desc, cfg.API.BaseURL)
				r.OnPage = prog.onPage
				res := r.Run(gctx, yearStart, yearEnd)
				if res.State == etl.StateSucceeded {
					prog.finish()
				}
				results[i] = res
				return res.Err
			})
		}
		runErr := g.Wait()
		uiprogress.Stop()

		for _, res := range results {
			if res.Endpoint == "" {
				continue
			}
			fmt.Printf("%s: %s  pages=%d inserted=%d updated=%d skipped=%d\n",
				res.Endpoint, res.State, res.PagesFetched, res.RowsInserted, res.RowsUpdated, res.RecordsSkipped)
		}
		if runErr != nil {
			return eris.Wrap(runErr, "sync")
		}
		fmt.Println("Sync complete")
		return nil
	},
}

// endpointProgress adapts runner page callbacks to a uiprogress bar without
// racing its render goroutine: the bar only moves through its mutex-guarded
// Set, and the page count the decorator reads is atomic. The bar tracks whole
// years; page totals are unknown up front, so pages render as a plain counter.
type endpointProgress struct {
	bar       *uiprogress.Bar
	yearStart int
	pages     atomic.Int64
}

func newEndpointProgress(bar *uiprogress.Bar, name string, yearStart int) *endpointProgress {
	p := &endpointProgress{bar: bar, yearStart: yearStart}
	bar.PrependFunc(func(*uiprogress.Bar) string {
		return fmt.Sprintf("%-12s", name)
	})
	bar.AppendFunc(func(*uiprogress.Bar) string {
		return fmt.Sprintf("%d pages", p.pages.Load())
	})
	return p
}

func (p *endpointProgress) onPage(_ string, year, _ int) {
	p.pages.Add(1)
	p.bar.Set(year - p.yearStart)
}

func (p *endpointProgress) finish() {
	p.bar.Set(p.bar.Total)
}

func init() {
	syncCmd.Flags().StringSlice("endpoints", nil, "endpoints to sync (default: all registered)")
	syncCmd.Flags().Int("start", 0, "first survey year (inclusive)")
	syncCmd.Flags().Int("end", 0, "last survey year (inclusive)")
	rootCmd.AddCommand(syncCmd)
}

// yearRange reads and validates the --start/--end flags. --end defaults to
// --start for single-year runs.
func yearRange(cmd *cobra.Command) (int, int, error) {
	start, _ := cmd.Flags().GetInt("start")
	end, _ := cmd.Flags().GetInt("end")
	if start == 0 {
		return 0, 0, eris.New("--start is required")
	}
	if end == 0 {
		end = start
	}
	if end < start {
		return 0, 0, eris.Errorf("--end %d precedes --start %d", end, start)
	}
	if start < 1980 || end > time.Now().Year() {
		return 0, 0, eris.Errorf("year range %d-%d outside survey coverage", start, end)
	}
	return start, end, nil
}

// selectEndpoints resolves the --endpoints flag against the registry, or
// returns everything registered when the flag is unset.
func selectEndpoints(cmd *cobra.Command, reg *endpoint.Registry) ([]endpoint.Descriptor, error) {
	names, _ := cmd.Flags().GetStringSlice("endpoints")
	if len(names) == 0 {
		return reg.All(), nil
	}
	descs := make([]endpoint.Descriptor, 0, len(names))
	for _, name := range names {
		d, err := reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}
