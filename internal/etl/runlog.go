package etl

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ipeds-etl/internal/db"
)

// RunStatus is the lifecycle state of a LoadRun row.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// LoadRun is one row in ipeds_meta.load_runs: a single Runner invocation for
// an endpoint and year range. Immutable once finalized.
type LoadRun struct {
	RunID          uuid.UUID
	Endpoint       string
	YearStart      int
	YearEnd        int
	Status         RunStatus
	RowsInserted   int64
	RowsUpdated    int64
	PagesFetched   int
	RecordsSkipped int
	Error          string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// RunReport carries the counters written when a run is finalized.
type RunReport struct {
	RowsInserted   int64
	RowsUpdated    int64
	PagesFetched   int
	RecordsSkipped int
}

// RunLog provides read/write access to ipeds_meta.load_runs. Writes are
// best-effort audit records: a failure here is reported to the caller but
// must never roll back the data write it describes.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a run and returns its ID. The ID is
// generated client-side so the caller keeps a handle even when the insert
// fails.
func (l *RunLog) Start(ctx context.Context, endpoint string, yearStart, yearEnd int) (uuid.UUID, error) {
	runID := uuid.New()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO ipeds_meta.load_runs (run_id, endpoint, year_start, year_end, status, started_at)
		 VALUES ($1, $2, $3, $4, 'running', now())`,
		runID, endpoint, yearStart, yearEnd,
	)
	if err != nil {
		return runID, eris.Wrapf(err, "runlog: start run for %s", endpoint)
	}
	return runID, nil
}

// Complete finalizes a run as successful.
func (l *RunLog) Complete(ctx context.Context, runID uuid.UUID, rep RunReport) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE ipeds_meta.load_runs
		 SET status = 'success', finished_at = now(),
		     rows_inserted = $1, rows_updated = $2, pages_fetched = $3, records_skipped = $4
		 WHERE run_id = $5`,
		rep.RowsInserted, rep.RowsUpdated, rep.PagesFetched, rep.RecordsSkipped, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", runID)
	}
	return nil
}

// Fail finalizes a run as failed, keeping whatever partial counters the run
// accumulated before the fatal error.
func (l *RunLog) Fail(ctx context.Context, runID uuid.UUID, errMsg string, rep RunReport) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE ipeds_meta.load_runs
		 SET status = 'failed', finished_at = now(), error = $1,
		     rows_inserted = $2, rows_updated = $3, pages_fetched = $4, records_skipped = $5
		 WHERE run_id = $6`,
		errMsg, rep.RowsInserted, rep.RowsUpdated, rep.PagesFetched, rep.RecordsSkipped, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", runID)
	}
	return nil
}

// ListAll returns all runs, most recent first.
func (l *RunLog) ListAll(ctx context.Context) ([]LoadRun, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT run_id, endpoint, year_start, year_end, status, rows_inserted, rows_updated,
		        pages_fetched, records_skipped, error, started_at, finished_at
		 FROM ipeds_meta.load_runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	return scanRuns(rows)
}

// Stale returns runs still marked running that started before the cutoff,
// the signature of an invocation that crashed mid-flight.
func (l *RunLog) Stale(ctx context.Context, olderThan time.Duration) ([]LoadRun, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := l.pool.Query(ctx,
		`SELECT run_id, endpoint, year_start, year_end, status, rows_inserted, rows_updated,
		        pages_fetched, records_skipped, error, started_at, finished_at
		 FROM ipeds_meta.load_runs
		 WHERE status = 'running' AND started_at < $1
		 ORDER BY started_at`,
		cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list stale runs")
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows pgx.Rows) ([]LoadRun, error) {
	var runs []LoadRun
	for rows.Next() {
		var r LoadRun
		var errStr *string
		if err := rows.Scan(
			&r.RunID, &r.Endpoint, &r.YearStart, &r.YearEnd, &r.Status,
			&r.RowsInserted, &r.RowsUpdated, &r.PagesFetched, &r.RecordsSkipped,
			&errStr, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		if errStr != nil {
			r.Error = *errStr
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
