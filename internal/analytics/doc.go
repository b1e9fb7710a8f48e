// Package analytics implements the HTTP client for the remote analytics
// service: the primary count API, the HTML search-page fallback, and
// session login.
//
// Every request failure is mapped onto a small error taxonomy (rate
// limited, authentication rejected, malformed response, service
// unavailable) so callers can decide between retrying, refreshing the
// session, and degrading to the next acquisition tier without inspecting
// HTTP details themselves.
package analytics
