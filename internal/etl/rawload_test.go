package etl

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ipeds-etl/internal/etl/endpoint"
)

func TestNewRawPage_HashesPayload(t *testing.T) {
	payload := []byte(`[{"unitid":100654}]`)
	now := time.Now()

	p := NewRawPage(2018, 1, "https://example.test/page", payload, now)
	assert.Equal(t, 2018, p.Year)
	assert.Equal(t, 1, p.PageNumber)
	assert.Len(t, p.SourceHash, 40) // hex sha1
	assert.Equal(t, now.UTC(), p.IngestedAt)

	// Same bytes, same hash; different bytes, different hash.
	again := NewRawPage(2018, 2, "https://example.test/other", payload, now)
	assert.Equal(t, p.SourceHash, again.SourceHash)
	other := NewRawPage(2018, 1, "https://example.test/page", []byte(`[]`), now)
	assert.NotEqual(t, p.SourceHash, other.SourceHash)
}

func TestRawLoader_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	desc := endpoint.Directory()
	page := NewRawPage(2018, 1, "https://example.test/page", []byte(`[{"unitid":100654}]`), time.Now())

	mock.ExpectExec("INSERT INTO ipeds_raw.directory_raw").
		WithArgs(page.Year, page.PageNumber, page.SourceURL, page.SourceHash, page.IngestedAt, page.Payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewRawLoader(mock).Append(context.Background(), desc, page))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRawLoader_Replay(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	desc := endpoint.Directory()
	now := time.Now().UTC()

	mock.ExpectQuery("FROM ipeds_raw.directory_raw").
		WithArgs([]int{2018, 2019}).
		WillReturnRows(pgxmock.NewRows([]string{"year", "page_number", "source_url", "source_hash", "ingested_at", "payload"}).
			AddRow(2018, 1, "https://example.test/2018/", "h1", now, []byte(`[{"unitid":100654}]`)).
			AddRow(2019, 1, "https://example.test/2019/", "h2", now, []byte(`[{"unitid":100654}]`)))

	var seen []RawPage
	n, err := NewRawLoader(mock).Replay(context.Background(), desc, []int{2018, 2019}, func(p RawPage) error {
		seen = append(seen, p)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, seen, 2)
	assert.Equal(t, 2018, seen[0].Year)
	assert.Equal(t, 2019, seen[1].Year)
	assert.Equal(t, "h2", seen[1].SourceHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRawLoader_ReplayStopsOnCallbackError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	desc := endpoint.Directory()
	now := time.Now().UTC()

	mock.ExpectQuery("FROM ipeds_raw.directory_raw").
		WithArgs([]int{2018}).
		WillReturnRows(pgxmock.NewRows([]string{"year", "page_number", "source_url", "source_hash", "ingested_at", "payload"}).
			AddRow(2018, 1, "u1", "h1", now, []byte(`[]`)).
			AddRow(2018, 2, "u2", "h2", now, []byte(`[]`)))

	n, err := NewRawLoader(mock).Replay(context.Background(), desc, []int{2018}, func(p RawPage) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, n)
}

func TestDecodeRecords(t *testing.T) {
	recs, err := decodeRecords([]byte(`[{"unitid":100654,"year":2018}]`))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, float64(100654), recs[0]["unitid"])

	recs, err = decodeRecords(nil)
	require.NoError(t, err)
	assert.Nil(t, recs)

	_, err = decodeRecords([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}
