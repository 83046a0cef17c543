package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
)

func TestIsTransient_ServerError(t *testing.T) {
	err := NewTransientError(errors.New("http 503 from educationdata.urban.org"), 503)
	if !IsTransient(err) {
		t.Error("expected 5xx TransientError to be transient")
	}
}

func TestIsTransient_RateLimited(t *testing.T) {
	err := NewRateLimitedError(errors.New("http 429 from educationdata.urban.org"), 30*time.Second)
	if !IsTransient(err) {
		t.Error("expected rate-limited error to be transient")
	}
}

func TestIsTransient_WrappedThroughEris(t *testing.T) {
	inner := NewRateLimitedError(errors.New("http 429"), time.Second)
	wrapped := eris.Wrap(inner, "fetcher: get page")
	if !IsTransient(wrapped) {
		t.Error("expected eris-wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RejectedRequest(t *testing.T) {
	err := errors.New("fetcher: rejected with http 400: unknown query parameter")
	if IsTransient(err) {
		t.Error("a malformed request should not be transient")
	}
}

func TestIsTransient_NetworkErrors(t *testing.T) {
	cases := map[string]error{
		"connection reset":   fmt.Errorf("write tcp: %w", syscall.ECONNRESET),
		"connection refused": fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED),
		"dns timeout":        &net.DNSError{IsTimeout: true, Err: "timeout"},
	}
	for name, err := range cases {
		if !IsTransient(err) {
			t.Errorf("expected %s to be transient", name)
		}
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"TLS handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range patterns {
		if !IsTransient(errors.New(p)) {
			t.Errorf("expected %q to be transient", p)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}

	permanent := []int{200, 201, 400, 401, 403, 404, 405, 409, 422}
	for _, code := range permanent {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestNewRateLimitedError(t *testing.T) {
	inner := errors.New("http 429 from educationdata.urban.org")
	te := NewRateLimitedError(inner, 42*time.Second)

	if te.StatusCode != 429 {
		t.Errorf("expected StatusCode 429, got %d", te.StatusCode)
	}
	if te.RetryAfter != 42*time.Second {
		t.Errorf("expected RetryAfter 42s, got %v", te.RetryAfter)
	}
	if !errors.Is(te, inner) {
		t.Error("NewRateLimitedError should preserve the inner error")
	}
}

func TestRetryAfterHint(t *testing.T) {
	hint, ok := RetryAfterHint(NewRateLimitedError(errors.New("http 429"), 15*time.Second))
	if !ok || hint != 15*time.Second {
		t.Errorf("expected 15s hint, got %v (ok=%v)", hint, ok)
	}

	// The hint survives wrapping, which is how the retry loop sees it.
	wrapped := eris.Wrap(NewRateLimitedError(errors.New("http 429"), time.Minute), "fetcher: get page")
	hint, ok = RetryAfterHint(wrapped)
	if !ok || hint != time.Minute {
		t.Errorf("expected 1m hint through wrap, got %v (ok=%v)", hint, ok)
	}
}

func TestRetryAfterHint_Absent(t *testing.T) {
	// A 429 with no advertised Retry-After carries no hint.
	if _, ok := RetryAfterHint(NewRateLimitedError(errors.New("http 429"), 0)); ok {
		t.Error("zero Retry-After should yield no hint")
	}
	// Plain transient 5xx errors never carry one.
	if _, ok := RetryAfterHint(NewTransientError(errors.New("http 502"), 502)); ok {
		t.Error("5xx TransientError should yield no hint")
	}
	if _, ok := RetryAfterHint(errors.New("connection reset by peer")); ok {
		t.Error("untyped error should yield no hint")
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("http 500 from educationdata.urban.org")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("TransientError.Unwrap should return the inner error")
	}
	if te.Error() != inner.Error() {
		t.Errorf("expected message %q, got %q", inner.Error(), te.Error())
	}
}
