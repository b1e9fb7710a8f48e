package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoEndpoint is returned when no analytics backend endpoint is
	// configured. Set it in the config file or via the --endpoint flag.
	ErrNoEndpoint = errors.New("no endpoint specified: set one in the config file or use --endpoint")

	// ErrInvalidEndpoint is returned when the endpoint is not an
	// absolute http(s) URL.
	ErrInvalidEndpoint = errors.New("invalid endpoint: must be an absolute http(s) URL")

	// ErrNoSubjects is returned when the roster is empty. Report
	// generation over zero subjects would always produce an empty report.
	ErrNoSubjects = errors.New("no subjects configured: add a subjects section to the config file")

	// ErrInvalidConcurrency is returned when the concurrency cap is
	// outside 1..MaxConcurrency.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be between 1 and 32")

	// ErrInvalidMaxAttempts is returned when the retry ceiling allows
	// fewer than one attempt.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be at least 1")

	// ErrInvalidRetryBase is returned when the backoff base is not positive.
	ErrInvalidRetryBase = errors.New("invalid retry base: must be positive")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	// A timeout of zero or negative would cause immediate request failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidJobTimeout is returned when the scheduler job timeout is
	// not positive.
	ErrInvalidJobTimeout = errors.New("invalid job timeout: must be positive")

	// ErrInvalidPollInterval is returned when the scheduler poll interval
	// is not positive.
	ErrInvalidPollInterval = errors.New("invalid poll interval: must be positive")

	// ErrInvalidFormat is returned when the report format is not one of
	// text, json, or markdown.
	ErrInvalidFormat = errors.New("invalid report format")

	// ErrInvalidTimezone is returned when the timezone is not a loadable
	// IANA location name.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidWeekday is returned when a schedule weekday name cannot
	// be parsed.
	ErrInvalidWeekday = errors.New("invalid weekday")

	// ErrInvalidTriggerTime is returned when a schedule hour, minute, or
	// day of month is out of range.
	ErrInvalidTriggerTime = errors.New("invalid trigger time")
)
