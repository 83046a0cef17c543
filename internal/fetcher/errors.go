package fetcher

import "fmt"

// RejectedError reports a non-retryable HTTP response (4xx other than 429).
// Retrying a malformed request cannot succeed, so the request is failed
// immediately with the response body attached for diagnosis.
type RejectedError struct {
	URL    string
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("fetcher: rejected with http %d from %s: %s", e.Status, e.URL, e.Body)
}

// ExhaustedError reports that every retry attempt for a page failed with a
// transient error. Fatal to the page; the caller decides whether the run dies.
type ExhaustedError struct {
	URL  string
	Last error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetcher: retries exhausted for %s: %v", e.URL, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
