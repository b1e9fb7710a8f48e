package config

import (
	"errors"
	"testing"
	"time"

	"github.com/nao1215/mentionscan/internal/model"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected
// default values. This test ensures that defaults are documented through
// tests and that changes to defaults are intentional.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Timezone is UTC", func(t *testing.T) {
		t.Parallel()
		if cfg.Timezone != "UTC" {
			t.Errorf("expected Timezone to be 'UTC', got '%s'", cfg.Timezone)
		}
	})

	t.Run("default Concurrency is 4", func(t *testing.T) {
		t.Parallel()
		if cfg.Concurrency != 4 {
			t.Errorf("expected Concurrency to be 4, got %d", cfg.Concurrency)
		}
	})

	t.Run("default MaxAttempts is 4", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxAttempts != 4 {
			t.Errorf("expected MaxAttempts to be 4, got %d", cfg.MaxAttempts)
		}
	})

	t.Run("default RetryBase is 2 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.RetryBase != 2*time.Second {
			t.Errorf("expected RetryBase to be 2s, got %v", cfg.RetryBase)
		}
	})

	t.Run("default Timeout is 60 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 60*time.Second {
			t.Errorf("expected Timeout to be 60s, got %v", cfg.Timeout)
		}
	})

	t.Run("default JobTimeout is 10 minutes", func(t *testing.T) {
		t.Parallel()
		if cfg.JobTimeout != 10*time.Minute {
			t.Errorf("expected JobTimeout to be 10m, got %v", cfg.JobTimeout)
		}
	})

	t.Run("default PollInterval is 1 minute", func(t *testing.T) {
		t.Parallel()
		if cfg.PollInterval != time.Minute {
			t.Errorf("expected PollInterval to be 1m, got %v", cfg.PollInterval)
		}
	})

	t.Run("default Format is text", func(t *testing.T) {
		t.Parallel()
		if cfg.Format != FormatText {
			t.Errorf("expected Format to be 'text', got '%s'", cfg.Format)
		}
	})

	t.Run("default SaveToDB is true", func(t *testing.T) {
		t.Parallel()
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB to be true")
		}
	})
}

// TestConfigValidate tests the Validate method with various configurations.
// Each test case is designed to test one specific validation rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	// validConfig returns a minimal valid configuration.
	// Tests can modify specific fields to test validation rules.
	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Endpoint = "https://metrics.example.com"
		cfg.Subjects = []model.Subject{model.MustNewSubject("alice")}
		return cfg
	}

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("missing endpoint returns ErrNoEndpoint", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Endpoint = ""
		if err := cfg.Validate(); !errors.Is(err, ErrNoEndpoint) {
			t.Errorf("expected ErrNoEndpoint, got %v", err)
		}
	})

	t.Run("non-http endpoint returns ErrInvalidEndpoint", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Endpoint = "ftp://metrics.example.com"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidEndpoint) {
			t.Errorf("expected ErrInvalidEndpoint, got %v", err)
		}
	})

	t.Run("relative endpoint returns ErrInvalidEndpoint", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Endpoint = "metrics.example.com"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidEndpoint) {
			t.Errorf("expected ErrInvalidEndpoint, got %v", err)
		}
	})

	t.Run("empty roster returns ErrNoSubjects", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Subjects = nil
		if err := cfg.Validate(); !errors.Is(err, ErrNoSubjects) {
			t.Errorf("expected ErrNoSubjects, got %v", err)
		}
	})

	t.Run("zero concurrency returns ErrInvalidConcurrency", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Concurrency = 0
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConcurrency) {
			t.Errorf("expected ErrInvalidConcurrency, got %v", err)
		}
	})

	t.Run("excessive concurrency returns ErrInvalidConcurrency", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Concurrency = MaxConcurrency + 1
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConcurrency) {
			t.Errorf("expected ErrInvalidConcurrency, got %v", err)
		}
	})

	t.Run("zero max attempts returns ErrInvalidMaxAttempts", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.MaxAttempts = 0
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidMaxAttempts) {
			t.Errorf("expected ErrInvalidMaxAttempts, got %v", err)
		}
	})

	t.Run("zero retry base returns ErrInvalidRetryBase", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.RetryBase = 0
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidRetryBase) {
			t.Errorf("expected ErrInvalidRetryBase, got %v", err)
		}
	})

	t.Run("zero timeout returns ErrInvalidTimeout", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Timeout = 0
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidTimeout) {
			t.Errorf("expected ErrInvalidTimeout, got %v", err)
		}
	})

	t.Run("zero job timeout returns ErrInvalidJobTimeout", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.JobTimeout = 0
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidJobTimeout) {
			t.Errorf("expected ErrInvalidJobTimeout, got %v", err)
		}
	})

	t.Run("zero poll interval returns ErrInvalidPollInterval", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.PollInterval = 0
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidPollInterval) {
			t.Errorf("expected ErrInvalidPollInterval, got %v", err)
		}
	})

	t.Run("unknown format returns ErrInvalidFormat", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Format = "pdf"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("expected ErrInvalidFormat, got %v", err)
		}
	})

	t.Run("unknown timezone returns ErrInvalidTimezone", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Timezone = "Mars/Olympus_Mons"
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidTimezone) {
			t.Errorf("expected ErrInvalidTimezone, got %v", err)
		}
	})
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    time.Weekday
		wantErr bool
	}{
		{name: "full name", input: "monday", want: time.Monday},
		{name: "short name", input: "fri", want: time.Friday},
		{name: "mixed case", input: "Sunday", want: time.Sunday},
		{name: "surrounding whitespace", input: " wednesday ", want: time.Wednesday},
		{name: "unknown day", input: "someday", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseWeekday(tt.input)

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidWeekday) {
					t.Errorf("expected ErrInvalidWeekday, got %v", err)
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTriggerValidate(t *testing.T) {
	t.Parallel()

	t.Run("disabled triggers skip validation", func(t *testing.T) {
		t.Parallel()
		w := WeeklyTrigger{Enabled: false, Weekday: "someday"}
		if err := w.Validate(); err != nil {
			t.Errorf("expected no error for disabled trigger, got %v", err)
		}
	})

	t.Run("weekly trigger with bad weekday", func(t *testing.T) {
		t.Parallel()
		w := WeeklyTrigger{Enabled: true, Weekday: "someday", Hour: 9}
		if err := w.Validate(); !errors.Is(err, ErrInvalidWeekday) {
			t.Errorf("expected ErrInvalidWeekday, got %v", err)
		}
	})

	t.Run("weekly trigger with out-of-range hour", func(t *testing.T) {
		t.Parallel()
		w := WeeklyTrigger{Enabled: true, Weekday: "monday", Hour: 24}
		if err := w.Validate(); !errors.Is(err, ErrInvalidTriggerTime) {
			t.Errorf("expected ErrInvalidTriggerTime, got %v", err)
		}
	})

	t.Run("monthly trigger with day zero", func(t *testing.T) {
		t.Parallel()
		m := MonthlyTrigger{Enabled: true, Day: 0, Hour: 9}
		if err := m.Validate(); !errors.Is(err, ErrInvalidTriggerTime) {
			t.Errorf("expected ErrInvalidTriggerTime, got %v", err)
		}
	})

	t.Run("valid monthly trigger", func(t *testing.T) {
		t.Parallel()
		m := MonthlyTrigger{Enabled: true, Day: 1, Hour: 9, Minute: 30}
		if err := m.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}
