package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/mentionscan/internal/model"
)

// Default configuration values.
// These values are chosen for a remote analytics backend that rate-limits
// aggressively; concurrency and retry defaults stay conservative.
const (
	// DefaultConcurrency is the number of count queries in flight at once.
	// Analytics backends typically allow a handful of concurrent search
	// requests per session before rate limiting kicks in; 4 stays well
	// under common limits while still overlapping network latency.
	DefaultConcurrency = 4

	// MaxConcurrency is the upper bound accepted for the concurrency cap.
	// More in-flight queries than this only increases rate limiting.
	MaxConcurrency = 32

	// DefaultMaxAttempts is the attempt ceiling per request when the
	// backend answers with a rate limit. Four attempts with exponential
	// backoff spans roughly half a minute, which outlasts the short
	// rate-limit windows analytics backends use.
	DefaultMaxAttempts = 4

	// DefaultRetryBase is the backoff base. The delay before attempt n is
	// base * 2^n plus jitter, so 2s yields 2s, 4s, 8s between attempts.
	DefaultRetryBase = 2 * time.Second

	// DefaultRetryMaxDelay caps a single backoff sleep. Without a cap the
	// exponential curve can exceed the job timeout on high attempt counts.
	DefaultRetryMaxDelay = 2 * time.Minute

	// DefaultRetryJitter is the upper bound of the random jitter added to
	// each backoff sleep so parallel queries do not retry in lockstep.
	DefaultRetryJitter = 500 * time.Millisecond

	// DefaultTimeout is the per-request HTTP timeout. Count queries are
	// small; 60 seconds covers slow backend searches without hanging a
	// whole report run on one request.
	DefaultTimeout = 60 * time.Second

	// DefaultJobTimeout bounds one full report generation when started by
	// the scheduler. A stuck run must not block the next trigger window.
	DefaultJobTimeout = 10 * time.Minute

	// DefaultPollInterval is how often the scheduler checks the wall
	// clock. One minute keeps trigger latency low without busy-waiting.
	DefaultPollInterval = 1 * time.Minute

	// DefaultTimezone anchors calendar ranges and trigger times.
	DefaultTimezone = "UTC"

	// DefaultSessionTTL is assumed when the backend returns a session
	// without an expiry and the token carries none either.
	DefaultSessionTTL = 24 * time.Hour

	// DefaultUserAgent identifies mentionscan in HTTP requests.
	// Using a descriptive User-Agent is good practice and allows operators
	// to identify tool traffic in their logs.
	DefaultUserAgent = "mentionscan/1.0 (+https://github.com/nao1215/mentionscan)"

	// AppName is the application name used for XDG directory paths.
	AppName = "mentionscan"
)

// Report output formats accepted by the --format flag and config file.
const (
	// FormatText is the human-readable terminal format.
	FormatText = "text"
	// FormatJSON is structured JSON output for tool integration.
	FormatJSON = "json"
	// FormatMarkdown is GitHub Flavored Markdown with tables and charts.
	FormatMarkdown = "markdown"
)

// DefaultFormat is the report format used when none is configured.
const DefaultFormat = FormatText

// Config holds all configuration options for mentionscan.
// This struct is designed to be populated from CLI flags and the optional
// YAML config file, then passed through the application via dependency
// injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., RetryConfig, ScheduleConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
// If the configuration grows significantly, consider refactoring into sub-structs.
type Config struct {
	// Endpoint is the base URL of the analytics backend, e.g.
	// "https://metrics.example.com". Required for all network commands.
	Endpoint string

	// Timezone is the IANA location name that anchors calendar ranges and
	// scheduler trigger times. Defaults to UTC.
	Timezone string

	// Subjects is the roster whose mentions are counted, loaded from the
	// config file. Must contain at least one entry for report commands.
	Subjects []model.Subject

	// Concurrency is the number of count queries dispatched at once.
	// Higher values increase throughput but trip backend rate limits sooner.
	Concurrency int

	// MaxAttempts is the attempt ceiling per request for rate-limited
	// responses. Other failures never retry.
	MaxAttempts int

	// RetryBase is the exponential backoff base between retry attempts.
	RetryBase time.Duration

	// Timeout is the HTTP timeout for each individual request.
	Timeout time.Duration

	// JobTimeout bounds one scheduler-started report generation.
	JobTimeout time.Duration

	// PollInterval is the scheduler's wall-clock check cadence.
	PollInterval time.Duration

	// Format selects the report output format: text, json, or markdown.
	Format string

	// OutputDir is where the scheduler writes rendered report files.
	// Defaults to the XDG data directory.
	OutputDir string

	// ReportFile is the output file path for a one-shot report.
	// When set, the report is written to this file instead of stdout.
	// Directories are created automatically if they don't exist.
	ReportFile string

	// Proxy is an optional SOCKS5 proxy address in "host:port" format for
	// outbound HTTP. Empty means direct connections.
	Proxy string

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches the current directory, the home
	// directory, and the XDG config directory in that order.
	ConfigFilePath string

	// FileConfig holds the parsed YAML config file, when one was found.
	FileConfig *File

	// DBDir is the directory path for storing the SQLite database.
	// When set, reports are saved for historical comparison.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB indicates whether to save generated reports to the database.
	SaveToDB bool

	// SkipArchive disables the archive upload even when the config file
	// has an archive section.
	SkipArchive bool

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeouts, the
// concurrency cap). This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Timezone:     DefaultTimezone,
		Concurrency:  DefaultConcurrency,
		MaxAttempts:  DefaultMaxAttempts,
		RetryBase:    DefaultRetryBase,
		Timeout:      DefaultTimeout,
		JobTimeout:   DefaultJobTimeout,
		PollInterval: DefaultPollInterval,
		Format:       DefaultFormat,
		OutputDir:    filepath.Join(XDGDataDir(), "reports"),
		UserAgent:    DefaultUserAgent,
		DBDir:        XDGDataDir(),
		SaveToDB:     true,
	}
}

// XDGDataDir returns the XDG data directory for mentionscan.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/mentionscan
// On macOS: ~/Library/Application Support/mentionscan
// On Windows: %LOCALAPPDATA%\mentionscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for mentionscan.
// On Linux: ~/.config/mentionscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGStateDir returns the XDG state directory for mentionscan.
// The session file lives here because sessions are mutable local state,
// not configuration and not shareable data.
// On Linux: ~/.local/state/mentionscan
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// Location resolves the configured timezone name.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Timezone)
	}
	return loc, nil
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any network requests.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return ErrNoEndpoint
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, c.Endpoint)
	}

	// We must have at least one subject to count
	if len(c.Subjects) == 0 {
		return ErrNoSubjects
	}

	if c.Concurrency <= 0 || c.Concurrency > MaxConcurrency {
		return ErrInvalidConcurrency
	}

	if c.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.RetryBase <= 0 {
		return ErrInvalidRetryBase
	}

	// Timeout must be positive; zero timeout would cause immediate failures
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.JobTimeout <= 0 {
		return ErrInvalidJobTimeout
	}

	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}

	switch c.Format {
	case FormatText, FormatJSON, FormatMarkdown:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Format)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}
