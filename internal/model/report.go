package model

import (
	"time"

	"github.com/google/uuid"
)

// SubjectCount pairs one roster entry with its resolved (or unavailable)
// count inside a report. Subject fields are flattened for JSON output
// and database storage.
type SubjectCount struct {
	// Handle is the subject's normalized handle.
	Handle string `json:"handle"`

	// DisplayName is the name shown in report output.
	DisplayName string `json:"display_name,omitempty"`

	// Term is the search term that was actually queried.
	Term string `json:"term"`

	// Count is the resolution result.
	Count Count `json:"count"`
}

// NewSubjectCount builds the report row for one resolved query.
func NewSubjectCount(subject Subject, count Count) SubjectCount {
	return SubjectCount{
		Handle:      subject.Handle(),
		DisplayName: subject.DisplayName(),
		Term:        subject.SearchTerm(),
		Count:       count,
	}
}

// Title returns the name to show for this row, preferring the display name.
func (sc SubjectCount) Title() string {
	if sc.DisplayName != "" {
		return sc.DisplayName
	}
	return sc.Handle
}

// MentionReport is the aggregated result of one report run.
//
// Design decision: derived fields (Total, ResolvedCount,
// UnavailableCount) are stored on the struct and recomputed by Finalize
// rather than calculated on demand because:
//  1. The report is serialized to JSON for storage and output, and
//     consumers of the stored form need the totals without re-deriving them
//  2. Finalize gives a single place where the sum-of-resolved invariant
//     is enforced
//  3. Writers stay read-only over the struct
type MentionReport struct {
	// ID is a unique identifier for this report run.
	ID string `json:"id"`

	// Kind is the calendar cadence this report covers.
	Kind ReportKind `json:"kind"`

	// Range is the interval the counts cover.
	Range Range `json:"range"`

	// GeneratedAt is when the report run completed, in UTC.
	GeneratedAt time.Time `json:"generated_at"`

	// Timezone is the IANA name of the location the range was anchored in.
	Timezone string `json:"timezone,omitempty"`

	// Results holds one row per roster subject, in roster order.
	// Unavailable subjects stay in the slice; they are never dropped.
	Results []SubjectCount `json:"results"`

	// Total is the sum of all resolved count values.
	Total int `json:"total"`

	// ResolvedCount is the number of subjects with a usable count.
	ResolvedCount int `json:"resolved_count"`

	// UnavailableCount is the number of subjects whose count could not
	// be determined.
	UnavailableCount int `json:"unavailable_count"`
}

// NewMentionReport creates an empty report for the given kind and range.
func NewMentionReport(kind ReportKind, r Range) *MentionReport {
	return &MentionReport{
		ID:          uuid.NewString(),
		Kind:        kind,
		Range:       r,
		GeneratedAt: time.Now().UTC(),
		Results:     make([]SubjectCount, 0),
	}
}

// AddResult appends one subject row. Call Finalize after the last row
// to recompute the derived totals.
func (r *MentionReport) AddResult(sc SubjectCount) {
	r.Results = append(r.Results, sc)
}

// Finalize recomputes the derived totals from Results. The total is the
// sum of resolved values only; unavailable rows contribute to
// UnavailableCount and nothing else. Zero-valued resolved counts are
// summed like any other value.
func (r *MentionReport) Finalize() {
	r.Total = 0
	r.ResolvedCount = 0
	r.UnavailableCount = 0
	for _, sc := range r.Results {
		if sc.Count.Resolved() {
			r.Total += sc.Count.Value
			r.ResolvedCount++
			continue
		}
		r.UnavailableCount++
	}
}

// Unresolved returns the rows whose count could not be determined.
func (r *MentionReport) Unresolved() []SubjectCount {
	unresolved := make([]SubjectCount, 0)
	for _, sc := range r.Results {
		if !sc.Count.Resolved() {
			unresolved = append(unresolved, sc)
		}
	}
	return unresolved
}

// ResolvedResults returns the rows that carry a usable count.
func (r *MentionReport) ResolvedResults() []SubjectCount {
	resolved := make([]SubjectCount, 0, len(r.Results))
	for _, sc := range r.Results {
		if sc.Count.Resolved() {
			resolved = append(resolved, sc)
		}
	}
	return resolved
}

// HasUnavailable reports whether any subject could not be resolved.
func (r *MentionReport) HasUnavailable() bool {
	return r.UnavailableCount > 0
}
