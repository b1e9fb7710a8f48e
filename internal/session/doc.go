// Package session manages the authenticated analytics session.
//
// The backend issues a session once per login and expects it to be reused
// across queries. This package captures that session, persists it under the
// XDG state directory, and hands it to the HTTP client for every request.
// When the backend rejects a session, the Manager serializes the refresh so
// that concurrent queries trigger exactly one new login.
//
// Design decision: the Manager does not perform HTTP itself. It depends on
// the small Authenticator interface so the analytics client owns the wire
// protocol and this package owns only lifecycle and persistence. This also
// keeps the import graph acyclic: the client imports session for the
// Session type, never the other way around.
package session
