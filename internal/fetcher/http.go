package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ipeds-etl/internal/resilience"
)

// Options configures the HTTP client.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int           // total attempts per page, including the first
	RatePerSec float64       // per-host request budget
	Burst      int           // per-host burst allowance
	Backoff    time.Duration // initial retry backoff; grows exponentially
}

// Client implements PageFetcher over net/http. One Client is shared by all
// runs in a process so the per-host rate budget is enforced globally.
type Client struct {
	client *http.Client
	opts   Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a Client with connection reuse and per-host rate limiting.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ipeds-etl/1.0"
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 4
	}
	if opts.Burst == 0 {
		opts.Burst = 1
	}
	if opts.Backoff == 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the process-wide limiter for the URL's host, creating it
// on first use.
func (c *Client) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.opts.RatePerSec), c.opts.Burst)
		c.limiters[host] = lim
	}
	return lim
}

// envelope is the standard paginated response shape: a results array plus an
// optional next-page cursor.
type envelope struct {
	Count   int             `json:"count"`
	Next    *string         `json:"next"`
	Results json.RawMessage `json:"results"`
}

// FetchPages walks the paginated endpoint starting at startURL. The cursor is
// carried only within this loop; no cursor state is shared across concurrent
// fetches of different endpoints.
func (c *Client) FetchPages(ctx context.Context, startURL string, fn func(Page) error) (int, error) {
	log := zap.L().With(zap.String("component", "fetcher"))

	pageURL := startURL
	visited := 0
	for pageURL != "" {
		env, err := c.getPage(ctx, pageURL)
		if err != nil {
			return visited, err
		}

		page := Page{
			URL:         pageURL,
			Number:      visited + 1,
			Payload:     env.Results,
			RetrievedAt: time.Now().UTC(),
		}
		if len(env.Results) > 0 {
			if err := json.Unmarshal(env.Results, &page.Records); err != nil {
				return visited, eris.Wrapf(err, "fetcher: decode results from %s", pageURL)
			}
		}

		next := ""
		if env.Next != nil && *env.Next != "" {
			next, err = resolveNext(pageURL, *env.Next)
			if err != nil {
				return visited, err
			}
		}
		page.Next = next

		if err := fn(page); err != nil {
			return visited, err
		}
		visited++

		log.Debug("page fetched",
			zap.String("url", pageURL),
			zap.Int("records", len(page.Records)),
			zap.Bool("has_next", next != ""),
		)

		pageURL = next
	}

	return visited, nil
}

// getPage issues one GET with retry. Transient failures (network errors, 5xx,
// 429) are retried with exponential backoff up to the configured bound; other
// 4xx responses fail immediately with a RejectedError.
func (c *Client) getPage(ctx context.Context, rawURL string) (*envelope, error) {
	cfg := resilience.RetryConfig{
		MaxAttempts:    c.opts.MaxRetries,
		InitialBackoff: c.opts.Backoff,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
		OnRetry:        resilience.RetryLogger("educationdata", "fetch_page"),
	}

	env, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*envelope, error) {
		return c.attempt(ctx, rawURL)
	})
	if err == nil {
		return env, nil
	}

	var rej *RejectedError
	if errors.As(err, &rej) {
		return nil, rej
	}
	if ctx.Err() != nil {
		return nil, eris.Wrapf(ctx.Err(), "fetcher: abandoned %s", rawURL)
	}
	if resilience.IsTransient(err) {
		return nil, &ExhaustedError{URL: rawURL, Last: err}
	}
	return nil, err
}

func (c *Client) attempt(ctx context.Context, rawURL string) (*envelope, error) {
	if err := c.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: create request for %s", rawURL)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err // network errors classify as transient downstream
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewRateLimitedError(
			eris.Errorf("fetcher: http 429 from %s", rawURL),
			parseRetryAfter(resp.Header.Get("Retry-After")),
		)
	case resp.StatusCode >= 500:
		return nil, resilience.NewTransientError(
			eris.Errorf("fetcher: http %d from %s", resp.StatusCode, rawURL),
			resp.StatusCode,
		)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RejectedError{URL: rawURL, Status: resp.StatusCode, Body: string(body)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode page from %s", rawURL)
	}
	return &env, nil
}

// parseRetryAfter handles the delay-seconds form of the Retry-After header.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// resolveNext handles both absolute and relative next-page cursors.
func resolveNext(current, next string) (string, error) {
	nextURL, err := url.Parse(next)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse next cursor %q", next)
	}
	if nextURL.IsAbs() {
		return next, nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse page url %q", current)
	}
	return base.ResolveReference(nextURL).String(), nil
}
