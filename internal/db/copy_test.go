package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFromSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"core_table", "source_url"}
	mock.ExpectCopyFrom(pgx.Identifier{"ipeds_meta", "source_trace"}, cols).WillReturnResult(2)

	n, err := CopyFromSchema(context.Background(), mock, "ipeds_meta", "source_trace", cols, [][]any{
		{"ipeds_core.directory", "https://example.test/1"},
		{"ipeds_core.directory", "https://example.test/2"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_EmptyIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := CopyFromSchema(context.Background(), mock, "ipeds_meta", "source_trace", []string{"a"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_PropagatesError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	copyErr := errors.New("connection reset")
	mock.ExpectCopyFrom(pgx.Identifier{"ipeds_meta", "source_trace"}, []string{"a"}).WillReturnError(copyErr)

	_, err = CopyFromSchema(context.Background(), mock, "ipeds_meta", "source_trace", []string{"a"}, [][]any{{"x"}})
	assert.ErrorIs(t, err, copyErr)
}

func TestPing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, Ping(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}
