package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/mentionscan/internal/model"
)

// Run carries the state of a single report generation through the pipeline.
// Steps read what earlier steps produced and append their own results.
//
// Design decision: The run is a separate carrier rather than the report
// itself because several steps produce artifacts that are not part of the
// report: rendered bytes, the archive object key, and execution bookkeeping.
// Keeping those out of model.MentionReport keeps the persisted report clean.
type Run struct {
	// Kind identifies the report cadence (weekly or monthly).
	Kind model.ReportKind

	// Period is the calendar range the report covers.
	Period model.Range

	// Timezone is the IANA zone name the period was derived in.
	Timezone string

	// Subjects is the roster being counted.
	Subjects []model.Subject

	// Queries pairs each subject with the period. Built by NewRun.
	Queries []model.Query

	// Counts holds one resolved or unavailable count per query,
	// in query order. Populated by the collect step.
	Counts []model.Count

	// Report is the aggregated mention report. Populated by the
	// aggregate step.
	Report *model.MentionReport

	// Rendered maps a format name to the rendered report bytes.
	// Populated by render steps.
	Rendered map[string][]byte

	// ObjectKey is the archive object key the report was uploaded
	// under, if archiving ran.
	ObjectKey string

	// Err is the last step error, kept so callers can inspect failures
	// even when the pipeline continues on error.
	Err error

	// ErrorMessage is Err rendered as a string for serialization.
	ErrorMessage string

	// Cancelled is set when the pipeline stopped due to context
	// cancellation or deadline.
	Cancelled bool

	// PerformedSteps lists the names of steps that ran, in order.
	PerformedSteps []string
}

// NewRun creates a run for one report generation. The query list is built
// up front so every step sees the same subject order.
func NewRun(kind model.ReportKind, period model.Range, timezone string, subjects []model.Subject) *Run {
	return &Run{
		Kind:     kind,
		Period:   period,
		Timezone: timezone,
		Subjects: subjects,
		Queries:  model.BuildQueries(subjects, period),
		Rendered: make(map[string][]byte),
	}
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the accumulated
// run state from previous steps.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry configuration state
// 2. It provides a Name() method for logging and debugging
// 3. It's more extensible for future features (e.g., priority, dependencies)
type Step interface {
	// Do executes the pipeline step.
	// It receives the context for cancellation, and the run to modify.
	// Returns an error if the step fails critically; non-critical
	// conditions should be logged and return nil.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
// This follows the functional options pattern for clean API design.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, a default logger is created.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Failed steps are logged and their errors
// are recorded in the run, but subsequent steps still execute.
//
// Design decision: This option exists because a failure in a late stage
// (e.g., the archive upload) shouldn't discard the work of earlier stages.
// However, the default is to stop on error because early failures often
// indicate fundamental problems (e.g., no stored session).
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		continueOnError: false,
	}

	// Apply options
	for _, opt := range opts {
		opt(p)
	}

	// Set default logger if not provided
	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
// It respects context cancellation and logs each step's execution.
//
// Design decision: We check context.Done() before each step rather than
// during, because steps should handle their own timeouts. This allows
// graceful cleanup between steps while still respecting cancellation.
//
// Returns the first error encountered if continueOnError is false,
// or nil if all steps complete (errors are recorded in the run).
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	for _, step := range p.steps {
		// Check for cancellation before starting each step
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			run.Cancelled = true
			return ctx.Err()
		default:
			// Continue with execution
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"kind", run.Kind,
			"period", run.Period.String(),
		)

		// Execute the step
		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"kind", run.Kind,
				"error", err,
			)

			// Record the error in the run
			run.Err = err
			run.ErrorMessage = err.Error()

			// Stop or continue based on configuration
			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed",
				"step", step.Name(),
				"kind", run.Kind,
			)
		}

		// Track which steps were performed
		run.PerformedSteps = append(run.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
