package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testClient(retries int) *Client {
	return NewClient(Options{
		UserAgent:  "ipeds-etl-test/1.0",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
		RatePerSec: 1000, // effectively unlimited in tests
		Burst:      1000,
		Backoff:    time.Millisecond,
	})
}

func TestFetchPages_FollowsCursorUntilNull(t *testing.T) {
	var pagesServed atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed.Add(1)
		switch r.URL.RawQuery {
		case "":
			fmt.Fprintf(w, `{"count":3,"next":"%s/?page=2","results":[{"unitid":1}]}`, "http://"+r.Host)
		case "page=2":
			fmt.Fprintf(w, `{"count":3,"next":"%s/?page=3","results":[{"unitid":2}]}`, "http://"+r.Host)
		case "page=3":
			fmt.Fprint(w, `{"count":3,"next":null,"results":[{"unitid":3}]}`)
		default:
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
	}))
	defer srv.Close()

	var pages []Page
	n, err := testClient(3).FetchPages(context.Background(), srv.URL+"/", func(p Page) error {
		pages = append(pages, p)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int32(3), pagesServed.Load())

	require.Len(t, pages, 3)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 3, pages[2].Number)
	assert.Equal(t, float64(2), pages[1].Records[0]["unitid"])
	assert.NotEmpty(t, pages[0].Next)
	assert.Empty(t, pages[2].Next)
	assert.NotEmpty(t, pages[0].Payload)
}

func TestFetchPages_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"count":1,"next":null,"results":[{"unitid":100654}]}`)
	}))
	defer srv.Close()

	n, err := testClient(3).FetchPages(context.Background(), srv.URL, func(p Page) error {
		assert.Equal(t, float64(100654), p.Records[0]["unitid"])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPages_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n, err := testClient(3).FetchPages(context.Background(), srv.URL, func(p Page) error {
		t.Fatal("fn must not run when the page never arrives")
		return nil
	})
	assert.Equal(t, 0, n)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, srv.URL, exhausted.URL)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPages_RejectsClientErrorWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"no such endpoint"}`)
	}))
	defer srv.Close()

	_, err := testClient(3).FetchPages(context.Background(), srv.URL, func(p Page) error { return nil })

	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, http.StatusNotFound, rej.Status)
	assert.Contains(t, rej.Body, "no such endpoint")
	assert.Equal(t, int32(1), calls.Load(), "4xx must not retry")
}

func TestFetchPages_HonorsRetryAfterOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"count":0,"next":null,"results":[]}`)
	}))
	defer srv.Close()

	start := time.Now()
	n, err := testClient(3).FetchPages(context.Background(), srv.URL, func(p Page) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "second attempt must wait out Retry-After")
}

func TestFetchPages_ResolvesRelativeCursor(t *testing.T) {
	var secondPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/directory/" && r.URL.RawQuery == "" {
			fmt.Fprint(w, `{"count":2,"next":"/api/v1/directory/?page=2","results":[{"unitid":1}]}`)
			return
		}
		secondPath.Store(r.URL.String())
		fmt.Fprint(w, `{"count":2,"next":null,"results":[{"unitid":2}]}`)
	}))
	defer srv.Close()

	n, err := testClient(3).FetchPages(context.Background(), srv.URL+"/api/v1/directory/", func(p Page) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "/api/v1/directory/?page=2", secondPath.Load())
}

func TestFetchPages_SetsUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ipeds-etl-test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `{"count":0,"next":null,"results":[]}`)
	}))
	defer srv.Close()

	_, err := testClient(1).FetchPages(context.Background(), srv.URL, func(p Page) error { return nil })
	require.NoError(t, err)
}

func TestFetchPages_CallbackErrorStopsWalk(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, `{"count":10,"next":"%s/?page=next","results":[{"unitid":1}]}`, "http://"+r.Host)
	}))
	defer srv.Close()

	boom := errors.New("store unavailable")
	n, err := testClient(1).FetchPages(context.Background(), srv.URL+"/", func(p Page) error {
		return boom
	})
	assert.Equal(t, 0, n)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchPages_DeadlineSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient(Options{
		UserAgent:  "ipeds-etl-test/1.0",
		Timeout:    time.Second,
		MaxRetries: 10,
		RatePerSec: 1000,
		Burst:      1000,
		Backoff:    50 * time.Millisecond,
	})
	_, err := c.FetchPages(ctx, srv.URL, func(p Page) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5"))
	assert.Equal(t, 7*time.Second, parseRetryAfter("7"))
}

func TestResolveNext(t *testing.T) {
	got, err := resolveNext("https://example.test/api/v1/d/?page=1", "https://example.test/api/v1/d/?page=2")
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/api/v1/d/?page=2", got)

	got, err = resolveNext("https://example.test/api/v1/d/", "?page=2")
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/api/v1/d/?page=2", got)
}
