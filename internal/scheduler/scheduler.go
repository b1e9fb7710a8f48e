package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/model"
)

// Scheduler construction errors.
var (
	// ErrNoStateStore is returned when the scheduler is built without a
	// fired-window store. Running without one would duplicate reports on
	// every restart.
	ErrNoStateStore = errors.New("scheduler requires a state store")

	// ErrNoJob is returned when the scheduler is built without a job
	// function.
	ErrNoJob = errors.New("scheduler requires a job function")
)

// StateStore persists the last fired window per trigger. LastFired
// returns an empty key for a trigger that never fired.
type StateStore interface {
	LastFired(ctx context.Context, triggerName string) (string, error)
	MarkFired(ctx context.Context, triggerName, windowKey string) error
}

// JobFunc generates one report for the window that became due. The due
// instant is the trigger time the window is anchored on, which the job
// uses to derive the report range.
type JobFunc func(ctx context.Context, kind model.ReportKind, due time.Time) error

// markTimeout bounds the fired-window write that runs after a job.
const markTimeout = 10 * time.Second

// Scheduler fires calendar triggers exactly once per window.
type Scheduler struct {
	// triggers are the firing rules, checked every poll.
	triggers []Trigger

	// store persists fired windows across restarts.
	store StateStore

	// job runs the report generation for a due window.
	job JobFunc

	// pollInterval is how often the wall clock is checked.
	pollInterval time.Duration

	// jobTimeout bounds a single job run.
	jobTimeout time.Duration

	// logger is used for scheduler-level logging.
	logger *slog.Logger

	// now is replaced in tests to pin the wall clock.
	now func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithPollInterval sets how often the wall clock is checked.
func WithPollInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// WithJobTimeout bounds a single job run.
func WithJobTimeout(timeout time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.jobTimeout = timeout
		}
	}
}

// WithSchedulerLogger sets a custom logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a scheduler over the given triggers.
func New(store StateStore, job JobFunc, triggers []Trigger, opts ...SchedulerOption) (*Scheduler, error) {
	if store == nil {
		return nil, ErrNoStateStore
	}
	if job == nil {
		return nil, ErrNoJob
	}
	for _, trigger := range triggers {
		if err := trigger.Validate(); err != nil {
			return nil, err
		}
	}

	s := &Scheduler{
		triggers:     triggers,
		store:        store,
		job:          job,
		pollInterval: config.DefaultPollInterval,
		jobTimeout:   config.DefaultJobTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Run polls the wall clock until ctx is cancelled. Job failures are
// logged, never returned: a broken report run must not take the
// scheduler down with it. The returned error is ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"triggers", len(s.triggers),
		"poll_interval", s.pollInterval.String(),
		"job_timeout", s.jobTimeout.String(),
	)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// Immediate first check so a window that came due while we were not
	// running fires now rather than one poll late.
	s.checkAll(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

// checkAll evaluates every trigger against the current wall clock.
func (s *Scheduler) checkAll(ctx context.Context) {
	now := s.now()
	for _, trigger := range s.triggers {
		if ctx.Err() != nil {
			return
		}
		s.check(ctx, trigger, now)
	}
}

// check fires one trigger if its most recent due window has not been
// fired yet.
func (s *Scheduler) check(ctx context.Context, trigger Trigger, now time.Time) {
	due := trigger.Due(now)
	if due.IsZero() {
		return
	}
	key := trigger.WindowKey(due)

	last, err := s.store.LastFired(ctx, trigger.Name)
	if err != nil {
		// Firing without knowing the last window risks a duplicate, so
		// skip this poll and let the next one retry the load.
		s.logger.Error("failed to load fired state",
			"trigger", trigger.Name,
			"error", err.Error(),
		)
		return
	}
	// Keys are UTC RFC3339, so lexical order is chronological order. A
	// last key at or past the due window also covers clock rollbacks and
	// timezone moves shifting the due instant backwards.
	if last != "" && last >= key {
		return
	}

	if late := now.Sub(due); late > 2*s.pollInterval {
		s.logger.Info("firing missed window",
			"trigger", trigger.Name,
			"window", key,
			"late_by", late.Truncate(time.Second).String(),
		)
	} else {
		s.logger.Info("trigger fired",
			"trigger", trigger.Name,
			"window", key,
		)
	}

	startTime := time.Now()
	if err := s.runJob(ctx, trigger, due); err != nil {
		s.logger.Error("scheduled job failed",
			"trigger", trigger.Name,
			"window", key,
			"elapsed", time.Since(startTime).String(),
			"error", err.Error(),
		)
	} else {
		s.logger.Info("scheduled job complete",
			"trigger", trigger.Name,
			"window", key,
			"elapsed", time.Since(startTime).String(),
		)
	}

	// The window is sealed whether or not the job succeeded: one attempt
	// per window. Without this, a persistently failing job would rerun
	// every poll until the next window.
	s.markFired(ctx, trigger, key)
}

// runJob executes one job under the configured timeout.
func (s *Scheduler) runJob(ctx context.Context, trigger Trigger, due time.Time) error {
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	if err := s.job(jobCtx, trigger.Kind, due); err != nil {
		return fmt.Errorf("trigger %q: %w", trigger.Name, err)
	}
	return nil
}

// markFired persists the fired window. The write is detached from ctx
// cancellation: losing the marker after a completed job would refire
// the window on the next start.
func (s *Scheduler) markFired(ctx context.Context, trigger Trigger, key string) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()

	if err := s.store.MarkFired(markCtx, trigger.Name, key); err != nil {
		s.logger.Error("failed to persist fired window",
			"trigger", trigger.Name,
			"window", key,
			"error", err.Error(),
		)
	}
}
