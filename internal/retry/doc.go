// Package retry implements the backoff controller for analytics
// requests.
//
// Only rate limiting earns another attempt: the service explicitly asked
// us to slow down, so waiting can help. Every other failure class (auth,
// malformed, unavailable, transport) returns immediately and the caller
// decides whether to refresh the session or degrade to the next
// acquisition tier. The attempt ceiling resolves to ErrExhausted rather
// than a fabricated result.
package retry
