// Package database provides SQLite-based storage for mentionscan.
//
// This package implements the ReportDB, which stores:
//   - Completed mention reports as JSON with queryable metadata columns
//   - Per-subject count rows for history queries across report runs
//   - Scheduler state recording the last fired window per trigger
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
