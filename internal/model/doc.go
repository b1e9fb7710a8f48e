// Package model defines the core data structures used throughout mentionscan.
//
// This package contains:
//   - Subject: A validated roster entry whose mentions are counted
//   - Range: A half-open calendar interval covered by a report
//   - Query: A single unit of dispatch (subject + range)
//   - Count: The resolution result for one query, including the
//     unavailable sentinel
//   - MentionReport: The aggregated report with derived totals
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (dispatch, report, database) need to use
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
