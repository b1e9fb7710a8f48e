// Package dispatch fans roster queries out to the analytics service
// under a fixed concurrency cap and folds the results into a report.
//
// The dispatcher guarantees three things: every query completes before
// Dispatch returns, a failing query never cancels its siblings, and
// results come back in roster order no matter which goroutine finished
// first. Per-query failures surface as unavailable counts, not errors;
// the only error Dispatch itself returns is context cancellation.
//
// CountResolver implements the tiered acquisition chain for one query:
// the count API under the retry policy, one serialized session refresh
// when the service rejects the session, the search-page fallback, and
// finally the explicit unavailable marker.
package dispatch
