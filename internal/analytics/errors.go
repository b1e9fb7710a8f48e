package analytics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Remote service errors.
// These errors are returned when the analytics service rejects or fails
// a request.
//
// Design decision: We define specific error types rather than wrapping all
// errors generically. This allows callers to handle different failure modes
// appropriately (e.g., retry on rate limit, refresh the session on auth
// failure, but fail fast on a malformed response).
var (
	// ErrRateLimited is returned when the service answers HTTP 429.
	// This is the only failure class worth retrying; the concrete error is
	// usually a *RateLimitError carrying the server's Retry-After hint.
	ErrRateLimited = errors.New("analytics service rate limited the request")

	// ErrAuthFailed is returned on HTTP 401 or 403. The session is stale
	// or the credentials are wrong; retrying the same request cannot help.
	ErrAuthFailed = errors.New("analytics service rejected the session")

	// ErrMalformedResponse is returned when the service answers with a
	// body we cannot interpret: undecodable JSON, a missing count field,
	// or a search page without a result counter.
	ErrMalformedResponse = errors.New("analytics service returned a malformed response")

	// ErrServiceUnavailable is returned on HTTP 5xx. The service is down
	// or overloaded; the caller should degrade rather than hammer it.
	ErrServiceUnavailable = errors.New("analytics service is unavailable")

	// ErrInvalidEndpoint is returned when the configured endpoint is not
	// an absolute http or https URL.
	ErrInvalidEndpoint = errors.New("invalid analytics endpoint: expected absolute http(s) URL")
)

// RateLimitError is the concrete rate-limit error. It unwraps to
// ErrRateLimited and carries the server's Retry-After hint when one was
// present and parseable.
type RateLimitError struct {
	// RetryAfter is the server-requested wait. Zero when the server gave
	// no usable hint.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("analytics service rate limited the request (retry after %s)", e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

// Unwrap makes errors.Is(err, ErrRateLimited) work on the concrete type.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// Class buckets an error by how the caller should react to it.
type Class int

const (
	// ClassNone means no error.
	ClassNone Class = iota

	// ClassRateLimited means the request may succeed if repeated after a
	// backoff delay. This is the only retryable class.
	ClassRateLimited

	// ClassAuth means the session was rejected. Worth exactly one session
	// refresh; fatal if it recurs.
	ClassAuth

	// ClassFatal covers everything else: malformed responses, 5xx,
	// transport errors. Retrying cannot help within the same tier.
	ClassFatal
)

// String returns a human-readable description of the class.
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRateLimited:
		return "rate limited"
	case ClassAuth:
		return "auth failed"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify buckets err into a Class. Unknown errors, including plain
// transport failures, classify as fatal: only an explicit 429 from the
// service justifies another attempt.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, ErrAuthFailed):
		return ClassAuth
	default:
		return ClassFatal
	}
}

// RetryAfterHint extracts the server's Retry-After wish from err, or zero
// when err carries none.
func RetryAfterHint(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}

// classifyStatus maps a non-success HTTP response onto the error taxonomy.
// The caller has already ruled out the status codes it accepts.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w (status %d)", ErrServiceUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrMalformedResponse, resp.StatusCode)
	}
}

// parseRetryAfter parses a Retry-After header value, which is either a
// delay in seconds or an HTTP date (RFC 9110 section 10.2.3).
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
