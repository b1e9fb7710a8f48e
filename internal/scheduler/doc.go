// Package scheduler runs report generation on a calendar.
//
// The scheduler does not sleep until the next trigger; it polls the wall
// clock on a short interval and compares each trigger's most recent due
// instant against the persisted last-fired window. That makes the loop
// robust against suspend/resume, clock adjustments, and timezone
// changes: an oversleeping host fires a missed window once on the next
// poll, and re-checking within an already-fired window is a no-op.
//
// Fired windows are persisted through the StateStore so a restart never
// duplicates a report and a restart after a missed window still
// produces it.
package scheduler
