package model

// CountSource identifies which acquisition tier produced a count.
type CountSource string

const (
	// CountSourceAPI means the count came from the primary count endpoint.
	CountSourceAPI CountSource = "api"
	// CountSourceFallback means the count was extracted from the search page.
	CountSourceFallback CountSource = "fallback"
	// CountSourceNone means no tier produced a count.
	CountSourceNone CountSource = "none"
)

// Count is the resolution result for one query.
//
// Design decision: Unavailable is an explicit flag rather than a magic
// value because:
//  1. Zero is a legitimate mention count and must stay distinguishable
//  2. Aggregation needs to skip unavailable values without guessing
//  3. Report output must show "n/a" rather than a fabricated number
type Count struct {
	// Value is the mention count. Only meaningful when Unavailable is false.
	Value int `json:"value"`

	// Unavailable marks a count that could not be determined after all
	// acquisition tiers were exhausted.
	Unavailable bool `json:"unavailable,omitempty"`

	// Source records which tier produced the value.
	Source CountSource `json:"source"`

	// Attempts is the total number of requests spent resolving this count.
	Attempts int `json:"attempts,omitempty"`

	// Reason describes why the count is unavailable. Empty for resolved counts.
	Reason string `json:"reason,omitempty"`
}

// NewCount creates a resolved count from the given tier.
func NewCount(value int, source CountSource, attempts int) Count {
	return Count{Value: value, Source: source, Attempts: attempts}
}

// UnavailableCount creates the unavailable sentinel with the reason the
// last tier failed.
func UnavailableCount(reason string, attempts int) Count {
	return Count{
		Unavailable: true,
		Source:      CountSourceNone,
		Attempts:    attempts,
		Reason:      reason,
	}
}

// Resolved reports whether the count carries a usable value.
func (c Count) Resolved() bool {
	return !c.Unavailable
}
