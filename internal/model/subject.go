package model

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Subject errors.
var (
	// ErrEmptySubjectHandle is returned when the handle is empty.
	ErrEmptySubjectHandle = errors.New("subject handle cannot be empty")
	// ErrInvalidSubjectHandle is returned when the handle format is invalid.
	ErrInvalidSubjectHandle = errors.New("invalid subject handle format")
)

const (
	// maxHandleLength is the maximum length of a subject handle.
	maxHandleLength = 64
)

// titleCaser converts handles to title case for display.
// Created once because cases.Title allocates internal state.
var titleCaser = cases.Title(language.English)

// Subject is an immutable value object representing one roster entry
// whose mentions are counted. It validates the handle format at
// construction so the rest of the pipeline never sees a malformed one.
type Subject struct {
	handle      string // Normalized handle (lowercase, trimmed)
	displayName string // Optional human-readable name
	term        string // Optional search term override
}

// SubjectOption configures a Subject during construction.
type SubjectOption func(*Subject)

// WithDisplayName sets a human-readable name used in report output.
func WithDisplayName(name string) SubjectOption {
	return func(s *Subject) {
		s.displayName = strings.TrimSpace(name)
	}
}

// WithSearchTerm overrides the search term sent to the analytics backend.
// By default the handle itself is used as the term.
func WithSearchTerm(term string) SubjectOption {
	return func(s *Subject) {
		s.term = strings.TrimSpace(term)
	}
}

// NewSubject creates a new Subject from a handle string.
// The handle is normalized to lowercase and validated.
// Returns an error if the handle is empty or malformed.
func NewSubject(handle string, opts ...SubjectOption) (Subject, error) {
	normalized := strings.ToLower(strings.TrimSpace(handle))
	if normalized == "" {
		return Subject{}, ErrEmptySubjectHandle
	}
	if !isValidHandle(normalized) {
		return Subject{}, ErrInvalidSubjectHandle
	}

	s := Subject{handle: normalized}
	for _, opt := range opts {
		opt(&s)
	}
	return s, nil
}

// MustNewSubject creates a new Subject or panics if the handle is invalid.
// Use only for known-valid handles in tests or initialization.
func MustNewSubject(handle string, opts ...SubjectOption) Subject {
	s, err := NewSubject(handle, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// isValidHandle checks the handle charset and length.
// Handles are 1-64 characters of [a-z0-9._-] and start with a letter
// or digit, matching what the analytics backend accepts as an account
// identifier.
func isValidHandle(s string) bool {
	if len(s) > maxHandleLength {
		return false
	}
	for i, c := range s {
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSeparator := c == '.' || c == '_' || c == '-'
		if !isLower && !isDigit && !isSeparator {
			return false
		}
		if i == 0 && isSeparator {
			return false
		}
	}
	return true
}

// Handle returns the normalized handle.
func (s Subject) Handle() string {
	return s.handle
}

// DisplayName returns the configured display name, or empty if none was set.
func (s Subject) DisplayName() string {
	return s.displayName
}

// SearchTerm returns the effective search term: the configured override
// when present, otherwise the handle itself.
func (s Subject) SearchTerm() string {
	if s.term != "" {
		return s.term
	}
	return s.handle
}

// Title returns the name to show in report output. It prefers the
// display name and falls back to a title-cased handle with separators
// replaced by spaces (e.g. "jane_doe" becomes "Jane Doe").
func (s Subject) Title() string {
	if s.displayName != "" {
		return s.displayName
	}
	spaced := strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(s.handle)
	return titleCaser.String(spaced)
}

// IsZero returns true if this is a zero value (empty) Subject.
func (s Subject) IsZero() bool {
	return s.handle == ""
}

// Equals returns true if two Subject values refer to the same handle.
func (s Subject) Equals(other Subject) bool {
	return s.handle == other.handle
}
