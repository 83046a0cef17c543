package etl

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runColumns = []string{
	"run_id", "endpoint", "year_start", "year_end", "status",
	"rows_inserted", "rows_updated", "pages_fetched", "records_skipped",
	"error", "started_at", "finished_at",
}

func TestRunLog_Start(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO ipeds_meta.load_runs").
		WithArgs(pgxmock.AnyArg(), "directory", 2018, 2019).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	runID, err := NewRunLog(mock).Start(context.Background(), "directory", 2018, 2019)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, runID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_StartReturnsIDOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO ipeds_meta.load_runs").
		WithArgs(pgxmock.AnyArg(), "directory", 2018, 2018).
		WillReturnError(assert.AnError)

	runID, err := NewRunLog(mock).Start(context.Background(), "directory", 2018, 2018)
	assert.Error(t, err)
	assert.NotEqual(t, uuid.Nil, runID, "caller keeps a handle even when the insert fails")
}

func TestRunLog_CompleteAndFail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runID := uuid.New()
	rep := RunReport{RowsInserted: 10, RowsUpdated: 3, PagesFetched: 2, RecordsSkipped: 1}

	mock.ExpectExec("UPDATE ipeds_meta.load_runs").
		WithArgs(int64(10), int64(3), 2, 1, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, NewRunLog(mock).Complete(context.Background(), runID, rep))

	mock.ExpectExec("UPDATE ipeds_meta.load_runs").
		WithArgs("fetch exhausted", int64(10), int64(3), 2, 1, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, NewRunLog(mock).Fail(context.Background(), runID, "fetch exhausted", rep))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_ListAll(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id1, id2 := uuid.New(), uuid.New()
	started := time.Now().UTC()
	finished := started.Add(time.Minute)
	errMsg := "core load failed"

	mock.ExpectQuery("FROM ipeds_meta.load_runs").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow(id1, "directory", 2018, 2019, "success", int64(7806), int64(0), 7, 0, nil, started, &finished).
			AddRow(id2, "admissions", 2018, 2018, "failed", int64(0), int64(0), 1, 0, &errMsg, started, &finished))

	runs, err := NewRunLog(mock).ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, id1, runs[0].RunID)
	assert.Equal(t, RunSuccess, runs[0].Status)
	assert.Equal(t, int64(7806), runs[0].RowsInserted)
	assert.Empty(t, runs[0].Error)

	assert.Equal(t, RunFailed, runs[1].Status)
	assert.Equal(t, "core load failed", runs[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLog_Stale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	started := time.Now().UTC().Add(-2 * time.Hour)

	mock.ExpectQuery("WHERE status = 'running' AND started_at <").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow(id, "directory", 2018, 2018, "running", int64(0), int64(0), 3, 0, nil, started, nil))

	runs, err := NewRunLog(mock).Stale(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
