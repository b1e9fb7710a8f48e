package scheduler

import (
	"testing"
	"time"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/model"
)

// TestTriggerDueWeekly tests most-recent-instant resolution for weekly
// triggers. 2026-03-16 is a Monday.
func TestTriggerDueWeekly(t *testing.T) {
	t.Parallel()

	trigger := NewWeeklyTrigger("weekly", time.Monday, 9, 0, time.UTC)

	testCases := []struct {
		name     string
		now      time.Time
		expected time.Time
	}{
		{
			name:     "midweek resolves to the most recent firing day",
			now:      time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC),
			expected: time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "firing day before the firing time uses last week",
			now:      time.Date(2026, 3, 16, 8, 59, 0, 0, time.UTC),
			expected: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "exactly the firing instant is due",
			now:      time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC),
			expected: time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "firing day after the firing time is due today",
			now:      time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC),
			expected: time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "week boundary across month edges",
			now:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2026, 3, 30, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := trigger.Due(tc.now)
			if !got.Equal(tc.expected) {
				t.Errorf("Due(%v) = %v, expected %v", tc.now, got, tc.expected)
			}
		})
	}

	t.Run("anchored in tokyo", func(t *testing.T) {
		t.Parallel()

		tokyo, err := time.LoadLocation("Asia/Tokyo")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tokyoTrigger := NewWeeklyTrigger("weekly", time.Monday, 9, 0, tokyo)

		// 01:00 UTC on Monday is 10:00 the same Monday in Tokyo, so the
		// 09:00 Tokyo firing already happened.
		now := time.Date(2026, 3, 16, 1, 0, 0, 0, time.UTC)
		got := tokyoTrigger.Due(now)
		expected := time.Date(2026, 3, 16, 9, 0, 0, 0, tokyo)
		if !got.Equal(expected) {
			t.Errorf("Due(%v) = %v, expected %v", now, got, expected)
		}
		if key := tokyoTrigger.WindowKey(got); key != "2026-03-16T00:00:00Z" {
			t.Errorf("WindowKey() = %q, expected 2026-03-16T00:00:00Z", key)
		}
	})
}

// TestTriggerDueMonthly tests most-recent-instant resolution for
// monthly triggers, including short-month clamping.
func TestTriggerDueMonthly(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		day      int
		now      time.Time
		expected time.Time
	}{
		{
			name:     "after the firing day uses this month",
			day:      15,
			now:      time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "before the firing day uses last month",
			day:      15,
			now:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2026, 2, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "exactly the firing instant is due",
			day:      15,
			now:      time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
			expected: time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "day 31 clamps into a 30-day month",
			day:      31,
			now:      time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC),
			expected: time.Date(2026, 4, 30, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "day 30 clamps into february",
			day:      30,
			now:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2026, 2, 28, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "leap february keeps day 29",
			day:      31,
			now:      time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 2, 29, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "january reaches back into last december",
			day:      20,
			now:      time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 12, 20, 10, 30, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			trigger := NewMonthlyTrigger("monthly", tc.day, 10, 30, time.UTC)
			got := trigger.Due(tc.now)
			if !got.Equal(tc.expected) {
				t.Errorf("Due(%v) = %v, expected %v", tc.now, got, tc.expected)
			}
		})
	}
}

// TestTriggerWindowKey tests that keys order the way windows order.
func TestTriggerWindowKey(t *testing.T) {
	t.Parallel()

	trigger := NewWeeklyTrigger("weekly", time.Monday, 9, 0, time.UTC)

	first := trigger.WindowKey(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC))
	second := trigger.WindowKey(time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC))

	if first != "2026-03-09T09:00:00Z" {
		t.Errorf("WindowKey() = %q, expected 2026-03-09T09:00:00Z", first)
	}
	if !(first < second) {
		t.Errorf("keys must order chronologically: %q vs %q", first, second)
	}
}

// TestTriggerValidate tests construction-time validation.
func TestTriggerValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		trigger Trigger
		wantErr bool
	}{
		{"valid weekly", NewWeeklyTrigger("weekly", time.Friday, 23, 59, time.UTC), false},
		{"valid monthly", NewMonthlyTrigger("monthly", 1, 0, 0, time.UTC), false},
		{"missing name", Trigger{Kind: model.ReportKindWeekly}, true},
		{"hour out of range", NewWeeklyTrigger("weekly", time.Monday, 24, 0, time.UTC), true},
		{"minute out of range", NewWeeklyTrigger("weekly", time.Monday, 9, 60, time.UTC), true},
		{"monthly day zero", NewMonthlyTrigger("monthly", 0, 9, 0, time.UTC), true},
		{"monthly day 32", NewMonthlyTrigger("monthly", 32, 9, 0, time.UTC), true},
		{"unknown kind", Trigger{Name: "odd", Kind: model.ReportKind("daily")}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.trigger.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestTriggersFromConfig tests materializing the config schedule.
func TestTriggersFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("both triggers enabled", func(t *testing.T) {
		t.Parallel()

		schedule := config.Schedule{
			Weekly:  config.WeeklyTrigger{Enabled: true, Weekday: "monday", Hour: 9, Minute: 0},
			Monthly: config.MonthlyTrigger{Enabled: true, Day: 1, Hour: 6, Minute: 30},
		}

		triggers, err := TriggersFromConfig(schedule, time.UTC)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(triggers) != 2 {
			t.Fatalf("len(triggers) = %d, expected 2", len(triggers))
		}
		if triggers[0].Name != "weekly" || triggers[0].Kind != model.ReportKindWeekly || triggers[0].Weekday != time.Monday {
			t.Errorf("triggers[0] = %+v, expected weekly monday", triggers[0])
		}
		if triggers[1].Name != "monthly" || triggers[1].Kind != model.ReportKindMonthly || triggers[1].Day != 1 {
			t.Errorf("triggers[1] = %+v, expected monthly day 1", triggers[1])
		}
	})

	t.Run("disabled triggers are skipped", func(t *testing.T) {
		t.Parallel()

		triggers, err := TriggersFromConfig(config.Schedule{}, time.UTC)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(triggers) != 0 {
			t.Errorf("len(triggers) = %d, expected 0", len(triggers))
		}
	})

	t.Run("bad weekday name is rejected", func(t *testing.T) {
		t.Parallel()

		schedule := config.Schedule{
			Weekly: config.WeeklyTrigger{Enabled: true, Weekday: "someday", Hour: 9},
		}
		if _, err := TriggersFromConfig(schedule, time.UTC); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}
