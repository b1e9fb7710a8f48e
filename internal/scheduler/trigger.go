package scheduler

import (
	"fmt"
	"time"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/model"
)

// Trigger describes one calendar firing rule anchored in a location.
type Trigger struct {
	// Name identifies the trigger in logs and in the fired-window store.
	Name string

	// Kind selects the report cadence this trigger fires.
	Kind model.ReportKind

	// Weekday is the firing day for weekly triggers.
	Weekday time.Weekday

	// Day is the firing day of month for monthly triggers (1-31). Days
	// past a short month's end fire on its last day.
	Day int

	// Hour and Minute are the firing time in the trigger's location.
	Hour   int
	Minute int

	// Location anchors the calendar arithmetic. Nil means UTC.
	Location *time.Location
}

// NewWeeklyTrigger builds a weekly trigger firing on weekday at
// hour:minute local time.
func NewWeeklyTrigger(name string, weekday time.Weekday, hour, minute int, loc *time.Location) Trigger {
	return Trigger{
		Name:     name,
		Kind:     model.ReportKindWeekly,
		Weekday:  weekday,
		Hour:     hour,
		Minute:   minute,
		Location: loc,
	}
}

// NewMonthlyTrigger builds a monthly trigger firing on day of month at
// hour:minute local time.
func NewMonthlyTrigger(name string, day, hour, minute int, loc *time.Location) Trigger {
	return Trigger{
		Name:     name,
		Kind:     model.ReportKindMonthly,
		Day:      day,
		Hour:     hour,
		Minute:   minute,
		Location: loc,
	}
}

// TriggersFromConfig materializes the enabled triggers of a schedule
// section, anchored in loc.
func TriggersFromConfig(schedule config.Schedule, loc *time.Location) ([]Trigger, error) {
	triggers := make([]Trigger, 0, 2)

	if schedule.Weekly.Enabled {
		if err := schedule.Weekly.Validate(); err != nil {
			return nil, err
		}
		weekday, err := config.ParseWeekday(schedule.Weekly.Weekday)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, NewWeeklyTrigger("weekly", weekday, schedule.Weekly.Hour, schedule.Weekly.Minute, loc))
	}

	if schedule.Monthly.Enabled {
		if err := schedule.Monthly.Validate(); err != nil {
			return nil, err
		}
		triggers = append(triggers, NewMonthlyTrigger("monthly", schedule.Monthly.Day, schedule.Monthly.Hour, schedule.Monthly.Minute, loc))
	}

	return triggers, nil
}

// Validate checks the trigger's calendar and clock fields.
func (t Trigger) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("trigger has no name")
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("trigger %q: invalid time %02d:%02d", t.Name, t.Hour, t.Minute)
	}
	switch t.Kind {
	case model.ReportKindWeekly:
		if t.Weekday < time.Sunday || t.Weekday > time.Saturday {
			return fmt.Errorf("trigger %q: invalid weekday %d", t.Name, t.Weekday)
		}
	case model.ReportKindMonthly:
		if t.Day < 1 || t.Day > 31 {
			return fmt.Errorf("trigger %q: invalid day of month %d", t.Name, t.Day)
		}
	default:
		return fmt.Errorf("trigger %q: unknown kind %q", t.Name, t.Kind)
	}
	return nil
}

// location returns the trigger's location, defaulting to UTC.
func (t Trigger) location() *time.Location {
	if t.Location != nil {
		return t.Location
	}
	return time.UTC
}

// Due returns the most recent trigger instant at or before now. Basing
// the loop on "most recent due" rather than "next fire" is what makes
// the scheduler tolerate oversleeps and clock drift: however late the
// poll arrives, the window it should have fired is still the answer.
func (t Trigger) Due(now time.Time) time.Time {
	local := now.In(t.location())
	switch t.Kind {
	case model.ReportKindWeekly:
		return t.dueWeekly(local)
	case model.ReportKindMonthly:
		return t.dueMonthly(local)
	default:
		return time.Time{}
	}
}

// WindowKey formats a due instant as the idempotency key persisted
// after a fire. The key pins the instant in UTC, so it compares equal
// across restarts and timezone reconfiguration, and keys order
// lexically the same way they order in time.
func (t Trigger) WindowKey(due time.Time) string {
	return due.UTC().Format(time.RFC3339)
}

// dueWeekly finds the most recent configured weekday at hour:minute.
func (t Trigger) dueWeekly(local time.Time) time.Time {
	loc := t.location()

	daysBack := int(local.Weekday() - t.Weekday)
	if daysBack < 0 {
		daysBack += 7
	}
	candidate := time.Date(local.Year(), local.Month(), local.Day()-daysBack, t.Hour, t.Minute, 0, 0, loc)
	if candidate.After(local) {
		// Right weekday, but the firing time is still ahead today.
		candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day()-7, t.Hour, t.Minute, 0, 0, loc)
	}
	return candidate
}

// dueMonthly finds the most recent day-of-month at hour:minute,
// clamping the configured day into short months.
func (t Trigger) dueMonthly(local time.Time) time.Time {
	loc := t.location()

	candidate := t.monthlyInstant(local.Year(), local.Month(), loc)
	if candidate.After(local) {
		// time.Date normalizes month zero to the previous December.
		firstOfPrev := time.Date(local.Year(), local.Month()-1, 1, 0, 0, 0, 0, loc)
		candidate = t.monthlyInstant(firstOfPrev.Year(), firstOfPrev.Month(), loc)
	}
	return candidate
}

// monthlyInstant is day Day of the given month at hour:minute, with the
// day clamped to the month's last day (day 31 in April fires on the
// 30th).
func (t Trigger) monthlyInstant(year int, month time.Month, loc *time.Location) time.Time {
	day := t.Day
	if last := lastDayOfMonth(year, month, loc); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour, t.Minute, 0, 0, loc)
}

// lastDayOfMonth returns the number of days in the given month. Day
// zero of the following month normalizes back to this month's last day.
func lastDayOfMonth(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
