package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/mentionscan/internal/model"
)

// SubjectEntry is one roster entry in the configuration file.
type SubjectEntry struct {
	// Handle is the subject's account handle. Required.
	Handle string `yaml:"handle"`

	// Name is an optional human-readable name used in report output.
	Name string `yaml:"name,omitempty"`

	// Term overrides the search term sent to the backend.
	// Defaults to the handle.
	Term string `yaml:"term,omitempty"`
}

// WeeklyTrigger configures the weekly report schedule.
type WeeklyTrigger struct {
	// Enabled turns the weekly trigger on.
	Enabled bool `yaml:"enabled,omitempty"`

	// Weekday is the day name the report fires on, e.g. "monday".
	Weekday string `yaml:"weekday,omitempty"`

	// Hour is the local hour of day (0-23) the report fires at.
	Hour int `yaml:"hour,omitempty"`

	// Minute is the local minute (0-59) the report fires at.
	Minute int `yaml:"minute,omitempty"`
}

// MonthlyTrigger configures the monthly report schedule.
type MonthlyTrigger struct {
	// Enabled turns the monthly trigger on.
	Enabled bool `yaml:"enabled,omitempty"`

	// Day is the day of month (1-31) the report fires on. Days past the
	// end of a short month fire on its last day.
	Day int `yaml:"day,omitempty"`

	// Hour is the local hour of day (0-23) the report fires at.
	Hour int `yaml:"hour,omitempty"`

	// Minute is the local minute (0-59) the report fires at.
	Minute int `yaml:"minute,omitempty"`
}

// Schedule groups the calendar triggers.
type Schedule struct {
	Weekly  WeeklyTrigger  `yaml:"weekly,omitempty"`
	Monthly MonthlyTrigger `yaml:"monthly,omitempty"`
}

// Archive configures optional report upload to S3-compatible storage.
// Credentials come from the standard AWS chain or the
// MENTIONSCAN_S3_ACCESS_KEY / MENTIONSCAN_S3_SECRET_KEY environment
// variables, never from this file.
type Archive struct {
	// Bucket is the target bucket name. Empty disables archiving.
	Bucket string `yaml:"bucket,omitempty"`

	// Endpoint overrides the S3 endpoint for MinIO-style deployments.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Region is the bucket region.
	Region string `yaml:"region,omitempty"`

	// Prefix is prepended to every uploaded object key.
	Prefix string `yaml:"prefix,omitempty"`
}

// Defaults contains file-level overrides for values that also have CLI flags.
type Defaults struct {
	Concurrency int    `yaml:"concurrency,omitempty"`
	MaxAttempts int    `yaml:"maxAttempts,omitempty"`
	Format      string `yaml:"format,omitempty"`
}

// File represents the structure of the .mentionscan.yaml configuration file.
type File struct {
	// Endpoint is the analytics backend base URL.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Timezone anchors calendar ranges and trigger times.
	Timezone string `yaml:"timezone,omitempty"`

	// Proxy is an optional SOCKS5 proxy address for outbound HTTP.
	Proxy string `yaml:"proxy,omitempty"`

	// Schedule holds the calendar triggers used by the schedule command.
	Schedule Schedule `yaml:"schedule,omitempty"`

	// Archive configures report upload to object storage.
	Archive Archive `yaml:"archive,omitempty"`

	// Subjects is the roster whose mentions are counted.
	Subjects []SubjectEntry `yaml:"subjects,omitempty"`

	// Defaults contains overrides applied before CLI flags.
	Defaults Defaults `yaml:"defaults,omitempty"`
}

// SubjectRoster materializes the file's subject entries into validated
// model subjects, preserving file order.
func (f *File) SubjectRoster() ([]model.Subject, error) {
	subjects := make([]model.Subject, 0, len(f.Subjects))
	for _, entry := range f.Subjects {
		opts := make([]model.SubjectOption, 0, 2)
		if entry.Name != "" {
			opts = append(opts, model.WithDisplayName(entry.Name))
		}
		if entry.Term != "" {
			opts = append(opts, model.WithSearchTerm(entry.Term))
		}
		s, err := model.NewSubject(entry.Handle, opts...)
		if err != nil {
			return nil, fmt.Errorf("subject %q: %w", entry.Handle, err)
		}
		subjects = append(subjects, s)
	}
	return subjects, nil
}

// ApplyTo merges the file's values into cfg. Only non-empty file values
// are applied; CLI flags applied afterwards take final precedence.
func (f *File) ApplyTo(cfg *Config) error {
	if f.Endpoint != "" {
		cfg.Endpoint = f.Endpoint
	}
	if f.Timezone != "" {
		cfg.Timezone = f.Timezone
	}
	if f.Proxy != "" {
		cfg.Proxy = f.Proxy
	}
	if f.Defaults.Concurrency != 0 {
		cfg.Concurrency = f.Defaults.Concurrency
	}
	if f.Defaults.MaxAttempts != 0 {
		cfg.MaxAttempts = f.Defaults.MaxAttempts
	}
	if f.Defaults.Format != "" {
		cfg.Format = f.Defaults.Format
	}

	subjects, err := f.SubjectRoster()
	if err != nil {
		return err
	}
	cfg.Subjects = subjects
	cfg.FileConfig = f
	return nil
}

// ParseWeekday converts a day name such as "monday" or "Mon" to a
// time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, name)
	}
}

// Validate checks the trigger's clock fields.
func (w WeeklyTrigger) Validate() error {
	if !w.Enabled {
		return nil
	}
	if _, err := ParseWeekday(w.Weekday); err != nil {
		return err
	}
	if w.Hour < 0 || w.Hour > 23 || w.Minute < 0 || w.Minute > 59 {
		return fmt.Errorf("%w: weekly %02d:%02d", ErrInvalidTriggerTime, w.Hour, w.Minute)
	}
	return nil
}

// Validate checks the trigger's calendar and clock fields.
func (m MonthlyTrigger) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Day < 1 || m.Day > 31 {
		return fmt.Errorf("%w: monthly day %d", ErrInvalidTriggerTime, m.Day)
	}
	if m.Hour < 0 || m.Hour > 23 || m.Minute < 0 || m.Minute > 59 {
		return fmt.Errorf("%w: monthly %02d:%02d", ErrInvalidTriggerTime, m.Hour, m.Minute)
	}
	return nil
}
