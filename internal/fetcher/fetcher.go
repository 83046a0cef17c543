// Package fetcher retrieves paginated JSON from the Education Data API with
// session reuse, bounded retry, per-host rate limiting, and cursor pagination.
package fetcher

import (
	"context"
	"time"
)

// Page is one API response unit as retrieved: the decoded records, the raw
// bytes of the results array, and the cursor to the next page (empty when the
// sequence is finished).
type Page struct {
	URL         string
	Number      int
	Records     []map[string]any
	Payload     []byte
	Next        string
	RetrievedAt time.Time
}

// PageFetcher walks a paginated endpoint. Implemented by *Client; mocked in
// runner tests.
type PageFetcher interface {
	// FetchPages starts at startURL and invokes fn once per page, in order,
	// until no next-page cursor remains or fn returns an error. The walk is
	// restartable: startURL may be any page's URL, including a cursor saved
	// from an earlier run. Returns the number of pages visited.
	FetchPages(ctx context.Context, startURL string, fn func(Page) error) (int, error)
}
