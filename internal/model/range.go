package model

import (
	"errors"
	"fmt"
	"time"
)

// Range and ReportKind errors.
var (
	// ErrInvalidReportKind is returned when the report kind is not recognized.
	ErrInvalidReportKind = errors.New("invalid report kind")
	// ErrInvalidRange is returned when the range end does not follow the start.
	ErrInvalidRange = errors.New("range end must be after range start")
)

// ReportKind identifies the calendar cadence a report covers.
type ReportKind string

const (
	// ReportKindWeekly covers the seven complete days before the anchor.
	ReportKindWeekly ReportKind = "weekly"
	// ReportKindMonthly covers the previous full calendar month.
	ReportKindMonthly ReportKind = "monthly"
)

// ParseReportKind converts a string to a ReportKind.
func ParseReportKind(s string) (ReportKind, error) {
	switch ReportKind(s) {
	case ReportKindWeekly:
		return ReportKindWeekly, nil
	case ReportKindMonthly:
		return ReportKindMonthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidReportKind, s)
	}
}

// String returns the string representation of the ReportKind.
func (k ReportKind) String() string {
	return string(k)
}

// Range is a half-open time interval [Start, End) covered by a report.
// Both endpoints are stored in UTC so ranges compare and serialize
// deterministically regardless of the local timezone the report was
// generated in.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewRange creates a Range from explicit endpoints.
// Returns ErrInvalidRange unless end is strictly after start.
func NewRange(start, end time.Time) (Range, error) {
	if !end.After(start) {
		return Range{}, ErrInvalidRange
	}
	return Range{Start: start.UTC(), End: end.UTC()}, nil
}

// WeeklyRange returns the seven complete days ending at the anchor's
// midnight in loc. The anchor day itself is never included, so repeated
// runs within the same day produce the same range.
func WeeklyRange(anchor time.Time, loc *time.Location) Range {
	end := midnight(anchor, loc)
	return Range{Start: end.AddDate(0, 0, -7).UTC(), End: end.UTC()}
}

// MonthlyRange returns the previous full calendar month relative to the
// anchor in loc. For an anchor anywhere in March the range is the whole
// of February.
func MonthlyRange(anchor time.Time, loc *time.Location) Range {
	local := anchor.In(loc)
	end := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return Range{Start: end.AddDate(0, -1, 0).UTC(), End: end.UTC()}
}

// RangeForKind returns the range a report of the given kind covers,
// anchored at the given time.
func RangeForKind(kind ReportKind, anchor time.Time, loc *time.Location) (Range, error) {
	switch kind {
	case ReportKindWeekly:
		return WeeklyRange(anchor, loc), nil
	case ReportKindMonthly:
		return MonthlyRange(anchor, loc), nil
	default:
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidReportKind, kind)
	}
}

// midnight returns 00:00 of the anchor's day in loc.
func midnight(anchor time.Time, loc *time.Location) time.Time {
	local := anchor.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Contains reports whether t falls inside the half-open interval.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Days returns the number of whole days the range spans.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// IsZero returns true if both endpoints are unset.
func (r Range) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// String returns a compact date form such as "2026-08-18..2026-08-25".
// The end date shown is the exclusive endpoint.
func (r Range) String() string {
	return r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02")
}

// Label returns an inclusive human-readable form for report headers,
// such as "2026-08-18 to 2026-08-24".
func (r Range) Label() string {
	lastDay := r.End.Add(-time.Second)
	return r.Start.Format("2006-01-02") + " to " + lastDay.Format("2006-01-02")
}
