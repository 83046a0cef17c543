package etl

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ipeds-etl/internal/db"
	"github.com/sells-group/ipeds-etl/internal/etl/endpoint"
	"github.com/sells-group/ipeds-etl/internal/fetcher"
)

// State is the runner's position in the pipeline. Transitions are strictly
// forward: pending → fetching → transforming → loading → succeeded|failed.
type State string

const (
	StatePending      State = "pending"
	StateFetching     State = "fetching"
	StateTransforming State = "transforming"
	StateLoading      State = "loading"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
)

// RunResult summarizes one completed run.
type RunResult struct {
	RunID          uuid.UUID
	Endpoint       string
	State          State
	PagesFetched   int
	RowsInserted   int64
	RowsUpdated    int64
	RecordsSkipped int
	Err            error
}

// Runner drives one endpoint through fetch → raw land → transform → core load
// → lineage for a year range. One Runner per endpoint invocation; safe to run
// several Runners concurrently against different endpoints since the only
// shared state is the fetcher's rate budget and the pool.
type Runner struct {
	desc    endpoint.Descriptor
	baseURL string
	fetch   fetcher.PageFetcher
	raw     *RawLoader
	core    *CoreLoader
	traces  *TraceWriter
	runs    *RunLog
	log     *zap.Logger

	// OnPage is invoked after each page lands in raw, for progress reporting.
	OnPage func(endpoint string, year, page int)
}

// NewRunner wires a Runner for one endpoint.
func NewRunner(pool db.Pool, fetch fetcher.PageFetcher, desc endpoint.Descriptor, baseURL string) *Runner {
	return &Runner{
		desc:    desc,
		baseURL: baseURL,
		fetch:   fetch,
		raw:     NewRawLoader(pool),
		core:    NewCoreLoader(pool),
		traces:  NewTraceWriter(pool),
		runs:    NewRunLog(pool),
		log: zap.L().With(
			zap.String("component", "runner"),
			zap.String("endpoint", desc.Name),
		),
	}
}

// Run executes the full pipeline for the year range [yearStart, yearEnd],
// inclusive. Fetching and raw landing happen page by page; mapping and the
// core upsert happen once per year so each year commits as one batch.
func (r *Runner) Run(ctx context.Context, yearStart, yearEnd int) RunResult {
	res := RunResult{Endpoint: r.desc.Name, State: StatePending}

	// The run log is an audit record, not a gate: a failed start write is
	// logged and the load proceeds under the client-generated ID.
	runID, err := r.runs.Start(ctx, r.desc.Name, yearStart, yearEnd)
	res.RunID = runID
	if err != nil {
		r.log.Warn("run log start failed", zap.Error(err))
	}

	for year := yearStart; year <= yearEnd; year++ {
		pages, err := r.fetchYear(ctx, &res, year)
		if err != nil {
			return r.fail(ctx, &res, err)
		}
		if err := r.loadYear(ctx, &res, year, pages); err != nil {
			return r.fail(ctx, &res, err)
		}
	}

	res.State = StateSucceeded
	if err := r.runs.Complete(ctx, runID, r.report(&res)); err != nil {
		r.log.Warn("run log completion failed", zap.Error(err))
	}
	r.log.Info("run succeeded",
		zap.Int("pages", res.PagesFetched),
		zap.Int64("inserted", res.RowsInserted),
		zap.Int64("updated", res.RowsUpdated),
		zap.Int("skipped", res.RecordsSkipped))
	return res
}

// Reprocess re-derives core rows from stored raw pages without touching the
// network. Raw stays untouched; core converges on the mapper's current output.
func (r *Runner) Reprocess(ctx context.Context, yearStart, yearEnd int) RunResult {
	res := RunResult{Endpoint: r.desc.Name, State: StatePending}

	runID, err := r.runs.Start(ctx, r.desc.Name, yearStart, yearEnd)
	res.RunID = runID
	if err != nil {
		r.log.Warn("run log start failed", zap.Error(err))
	}

	years := make([]int, 0, yearEnd-yearStart+1)
	for y := yearStart; y <= yearEnd; y++ {
		years = append(years, y)
	}

	res.State = StateTransforming
	byYear := make(map[int][]RawPage)
	n, err := r.raw.Replay(ctx, r.desc, years, func(p RawPage) error {
		byYear[p.Year] = append(byYear[p.Year], p)
		return nil
	})
	if err != nil {
		return r.fail(ctx, &res, eris.Wrapf(err, "runner: replay raw pages for %s", r.desc.Name))
	}
	res.PagesFetched = n

	for _, year := range years {
		if err := r.loadYear(ctx, &res, year, byYear[year]); err != nil {
			return r.fail(ctx, &res, err)
		}
	}

	res.State = StateSucceeded
	if err := r.runs.Complete(ctx, runID, r.report(&res)); err != nil {
		r.log.Warn("run log completion failed", zap.Error(err))
	}
	r.log.Info("reprocess succeeded",
		zap.Int("pages", res.PagesFetched),
		zap.Int64("inserted", res.RowsInserted),
		zap.Int64("updated", res.RowsUpdated),
		zap.Int("skipped", res.RecordsSkipped))
	return res
}

// fetchYear walks one year's pages, landing each in raw as it arrives.
func (r *Runner) fetchYear(ctx context.Context, res *RunResult, year int) ([]RawPage, error) {
	res.State = StateFetching
	startURL := r.desc.URL(r.baseURL, year)

	var pages []RawPage
	_, err := r.fetch.FetchPages(ctx, startURL, func(p fetcher.Page) error {
		rp := NewRawPage(year, p.Number, p.URL, p.Payload, p.RetrievedAt)
		rp.records = p.Records
		if err := r.raw.Append(ctx, r.desc, rp); err != nil {
			// Skip the whole page: loading its records without a raw row
			// would leave core data with no provenance.
			r.log.Warn("raw append failed, page skipped",
				zap.Int("year", year),
				zap.Int("page", p.Number),
				zap.Error(err))
			return nil
		}
		pages = append(pages, rp)
		res.PagesFetched++
		if r.OnPage != nil {
			r.OnPage(r.desc.Name, year, p.Number)
		}
		return nil
	})
	if err != nil {
		var rej *fetcher.RejectedError
		if errors.As(err, &rej) && rej.Status == 404 {
			// Some endpoints simply have no data for a year; treat as empty.
			r.log.Info("no data for year", zap.Int("year", year))
			return nil, nil
		}
		return nil, eris.Wrapf(err, "runner: fetch %s year %d", r.desc.Name, year)
	}
	return pages, nil
}

// loadYear maps one year's pages and commits them as a single core batch,
// then records lineage for every written row.
func (r *Runner) loadYear(ctx context.Context, res *RunResult, year int, pages []RawPage) error {
	res.State = StateTransforming

	var records []endpoint.Record
	var origins []RawPage // parallel to records: the page each one came from

	for _, page := range pages {
		raws := page.records
		if raws == nil {
			var err error
			raws, err = decodeRecords(page.Payload)
			if err != nil {
				return eris.Wrapf(err, "runner: decode raw page %d for %s year %d", page.PageNumber, r.desc.Name, year)
			}
		}
		for _, raw := range raws {
			rec, err := r.desc.Map(raw)
			if err != nil {
				var me *endpoint.MappingError
				if errors.As(err, &me) {
					res.RecordsSkipped++
					r.log.Warn("record skipped",
						zap.Int("year", year),
						zap.Int("page", page.PageNumber),
						zap.String("field", me.Field),
						zap.String("reason", me.Reason))
					continue
				}
				return eris.Wrapf(err, "runner: map record for %s year %d", r.desc.Name, year)
			}
			records = append(records, rec)
			origins = append(origins, page)
		}
	}

	res.State = StateLoading
	inserted, updated, err := r.core.Upsert(ctx, r.desc, records)
	if err != nil {
		return err
	}
	res.RowsInserted += inserted
	res.RowsUpdated += updated

	loadTS := time.Now().UTC()
	traces := make([]SourceTrace, len(records))
	for i, rec := range records {
		traces[i] = SourceTrace{
			CoreTable:  r.desc.CoreTable,
			CorePK:     r.desc.PK(rec),
			SourceURL:  origins[i].SourceURL,
			SourceHash: origins[i].SourceHash,
			IngestedAt: origins[i].IngestedAt,
			LoadTS:     loadTS,
		}
	}
	if _, err := r.traces.Write(ctx, traces); err != nil {
		// Lineage is diagnostic; the committed data stands.
		r.log.Warn("source trace write failed", zap.Int("year", year), zap.Error(err))
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, res *RunResult, err error) RunResult {
	res.State = StateFailed
	res.Err = err
	r.log.Error("run failed", zap.Error(err))
	if res.RunID != uuid.Nil {
		if logErr := r.runs.Fail(ctx, res.RunID, err.Error(), r.report(res)); logErr != nil {
			r.log.Warn("run log finalization failed", zap.Error(logErr))
		}
	}
	return *res
}

func (r *Runner) report(res *RunResult) RunReport {
	return RunReport{
		RowsInserted:   res.RowsInserted,
		RowsUpdated:    res.RowsUpdated,
		PagesFetched:   res.PagesFetched,
		RecordsSkipped: res.RecordsSkipped,
	}
}
