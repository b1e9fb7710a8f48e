package model

// Query is a single unit of dispatch: one subject counted over one range.
// The dispatcher resolves each query independently, so a query carries
// everything needed to run without shared state.
type Query struct {
	// Subject is the roster entry being counted.
	Subject Subject

	// Range is the interval the count covers.
	Range Range
}

// Term returns the search term sent to the analytics backend for this query.
func (q Query) Term() string {
	return q.Subject.SearchTerm()
}

// BuildQueries expands a roster into one query per subject over the
// given range. The returned slice preserves roster order, which the
// dispatcher in turn preserves in its results.
func BuildQueries(subjects []Subject, r Range) []Query {
	queries := make([]Query, 0, len(subjects))
	for _, s := range subjects {
		queries = append(queries, Query{Subject: s, Range: r})
	}
	return queries
}
