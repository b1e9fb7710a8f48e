package session

import "errors"

// Session lifecycle errors.
var (
	// ErrNoSession is returned when no usable session is stored.
	// A corrupted session file is treated the same as a missing one so
	// a bad file never blocks a fresh login.
	ErrNoSession = errors.New("no stored session")

	// ErrNoCredentials is returned when a login is required but no
	// credentials are available. Set MENTIONSCAN_USERNAME and
	// MENTIONSCAN_PASSWORD or run the login command.
	ErrNoCredentials = errors.New("no credentials available: set MENTIONSCAN_USERNAME and MENTIONSCAN_PASSWORD or run 'mentionscan login'")
)
