package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/dispatch"
	"github.com/nao1215/mentionscan/internal/model"
	"github.com/nao1215/mentionscan/internal/report"
	"github.com/nao1215/mentionscan/internal/session"
)

// SessionSource yields the current analytics session.
// *session.Manager satisfies this interface.
type SessionSource interface {
	Current(ctx context.Context) (session.Session, error)
}

// SessionStep ensures a usable session exists before any counts are
// requested.
//
// Design decision: Session warm-up is a separate step because:
// 1. A missing or expired credential fails the run fast, before any
//    query budget is spent
// 2. The concurrent queries that follow share the cached session instead
//    of racing each other into the first login
// 3. It can be omitted for runs against pre-authenticated clients
type SessionStep struct {
	// sessions provides the cached or freshly captured session.
	sessions SessionSource

	// logger for structured logging.
	logger *slog.Logger
}

// SessionStepOption configures a SessionStep.
type SessionStepOption func(*SessionStep)

// WithSessionLogger sets a custom logger for the session step.
func WithSessionLogger(logger *slog.Logger) SessionStepOption {
	return func(s *SessionStep) {
		s.logger = logger
	}
}

// NewSessionStep creates a new session warm-up step.
func NewSessionStep(sessions SessionSource, opts ...SessionStepOption) *SessionStep {
	s := &SessionStep{
		sessions: sessions,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *SessionStep) Name() string {
	return "session"
}

// Do executes the session warm-up step.
func (s *SessionStep) Do(ctx context.Context, _ *Run) error {
	if s.sessions == nil {
		s.logger.Debug("skipping session warm-up, no session source configured")
		return nil
	}

	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return fmt.Errorf("session warm-up failed: %w", err)
	}

	s.logger.Debug("session ready", "session", sess.Fingerprint())
	return nil
}

// QueryRunner dispatches queries against the analytics backend and returns
// one count per query, in query order.
// *dispatch.Dispatcher satisfies this interface.
type QueryRunner interface {
	DispatchWithProgress(ctx context.Context, queries []model.Query, progress dispatch.Progress) ([]model.Count, error)
}

// CollectStep resolves a mention count for every query in the run.
//
// Design decision: Collection is its own step because:
// 1. It is the only stage that talks to the analytics backend
// 2. Per-query failures are absorbed by the dispatcher as unavailable
//    counts, so the step itself only fails on cancellation
// 3. Progress reporting stays here instead of coupling the dispatcher
//    to a logger
type CollectStep struct {
	// runner executes the queries with bounded concurrency.
	runner QueryRunner

	// logger for structured logging.
	logger *slog.Logger
}

// CollectStepOption configures a CollectStep.
type CollectStepOption func(*CollectStep)

// WithCollectLogger sets a custom logger for the collect step.
func WithCollectLogger(logger *slog.Logger) CollectStepOption {
	return func(s *CollectStep) {
		s.logger = logger
	}
}

// NewCollectStep creates a new count collection step.
func NewCollectStep(runner QueryRunner, opts ...CollectStepOption) *CollectStep {
	s := &CollectStep{
		runner: runner,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CollectStep) Name() string {
	return "collect"
}

// Do executes the collection step.
func (s *CollectStep) Do(ctx context.Context, run *Run) error {
	if s.runner == nil {
		return fmt.Errorf("no query runner configured")
	}
	if len(run.Queries) == 0 {
		s.logger.Debug("skipping collection, no queries to run")
		return nil
	}

	counts, err := s.runner.DispatchWithProgress(ctx, run.Queries, func(completed, total int, query model.Query, count model.Count) {
		s.logger.Debug("query finished",
			"completed", completed,
			"total", total,
			"subject", query.Subject.Handle(),
			"unavailable", count.Unavailable,
		)
	})
	if err != nil {
		return fmt.Errorf("count collection failed: %w", err)
	}
	run.Counts = counts

	unavailable := 0
	for _, c := range counts {
		if c.Unavailable {
			unavailable++
		}
	}
	s.logger.Info("collection completed",
		"queries", len(counts),
		"unavailable", unavailable,
	)

	return nil
}

// AggregateStep folds the collected counts into a mention report.
//
// Design decision: Aggregation is separate from collection because:
// 1. It is pure and order-independent, so it needs no context plumbing
// 2. Report totals are derived in exactly one place
// 3. Tests can feed it hand-built counts without a backend
type AggregateStep struct {
	// logger for structured logging.
	logger *slog.Logger
}

// AggregateStepOption configures an AggregateStep.
type AggregateStepOption func(*AggregateStep)

// WithAggregateLogger sets a custom logger for the aggregate step.
func WithAggregateLogger(logger *slog.Logger) AggregateStepOption {
	return func(s *AggregateStep) {
		s.logger = logger
	}
}

// NewAggregateStep creates a new report aggregation step.
func NewAggregateStep(opts ...AggregateStepOption) *AggregateStep {
	s := &AggregateStep{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *AggregateStep) Name() string {
	return "aggregate"
}

// Do executes the aggregation step.
func (s *AggregateStep) Do(_ context.Context, run *Run) error {
	rep, err := dispatch.Aggregate(run.Kind, run.Period, run.Timezone, run.Queries, run.Counts)
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}
	run.Report = rep

	s.logger.Info("report aggregated",
		"report_id", rep.ID,
		"total", rep.Total,
		"unavailable", rep.UnavailableCount,
	)

	return nil
}

// ReportStore persists finished reports.
// *database.ReportDB satisfies this interface.
type ReportStore interface {
	SaveReport(ctx context.Context, report *model.MentionReport) error
}

// StoreStep persists the aggregated report.
//
// Design decision: Persistence runs before rendering and archival so a
// failure in the presentation stages never loses the counts. The stored
// report is the source of truth; rendered artifacts can be regenerated
// from it at any time.
type StoreStep struct {
	// store is the report database. May be nil to disable persistence.
	store ReportStore

	// logger for structured logging.
	logger *slog.Logger
}

// StoreStepOption configures a StoreStep.
type StoreStepOption func(*StoreStep)

// WithStoreLogger sets a custom logger for the store step.
func WithStoreLogger(logger *slog.Logger) StoreStepOption {
	return func(s *StoreStep) {
		s.logger = logger
	}
}

// NewStoreStep creates a new report persistence step.
func NewStoreStep(store ReportStore, opts ...StoreStepOption) *StoreStep {
	s := &StoreStep{
		store:  store,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *StoreStep) Name() string {
	return "store"
}

// Do executes the persistence step.
func (s *StoreStep) Do(ctx context.Context, run *Run) error {
	if s.store == nil {
		s.logger.Debug("skipping store, no database configured")
		return nil
	}
	if run.Report == nil {
		s.logger.Debug("skipping store, no report to save")
		return nil
	}

	if err := s.store.SaveReport(ctx, run.Report); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	s.logger.Info("report stored", "report_id", run.Report.ID)
	return nil
}

// RenderStep renders the report in one output format. The rendered bytes
// are kept on the run for later steps and optionally copied to a
// destination writer, typically stdout or a file.
type RenderStep struct {
	// format selects the report writer (text, json, or markdown).
	format string

	// output receives a copy of the rendered bytes. May be nil.
	output io.Writer

	// verbose enables per-subject source detail in the text format.
	verbose bool

	// pretty enables indented output in the JSON format.
	pretty bool

	// logger for structured logging.
	logger *slog.Logger
}

// RenderStepOption configures a RenderStep.
type RenderStepOption func(*RenderStep)

// WithRenderOutput sets the destination that receives a copy of the
// rendered report.
func WithRenderOutput(output io.Writer) RenderStepOption {
	return func(s *RenderStep) {
		s.output = output
	}
}

// WithRenderVerbose enables per-subject source detail in the text format.
func WithRenderVerbose(verbose bool) RenderStepOption {
	return func(s *RenderStep) {
		s.verbose = verbose
	}
}

// WithRenderPretty enables indented output in the JSON format.
func WithRenderPretty(pretty bool) RenderStepOption {
	return func(s *RenderStep) {
		s.pretty = pretty
	}
}

// WithRenderLogger sets a custom logger for the render step.
func WithRenderLogger(logger *slog.Logger) RenderStepOption {
	return func(s *RenderStep) {
		s.logger = logger
	}
}

// NewRenderStep creates a new report rendering step for the given format.
// An empty format falls back to config.DefaultFormat.
func NewRenderStep(format string, opts ...RenderStepOption) *RenderStep {
	s := &RenderStep{
		format: format,
		logger: slog.Default(),
	}
	if s.format == "" {
		s.format = config.DefaultFormat
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *RenderStep) Name() string {
	return "render"
}

// Do executes the rendering step.
func (s *RenderStep) Do(_ context.Context, run *Run) error {
	if run.Report == nil {
		s.logger.Debug("skipping render, no report to render")
		return nil
	}

	var buf bytes.Buffer
	w, err := s.newWriter(&buf)
	if err != nil {
		return err
	}
	if _, err := w.Write(run.Report); err != nil {
		return fmt.Errorf("failed to render report as %s: %w", s.format, err)
	}

	if run.Rendered == nil {
		run.Rendered = make(map[string][]byte)
	}
	run.Rendered[s.format] = buf.Bytes()

	if s.output != nil {
		if _, err := s.output.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write rendered report: %w", err)
		}
	}

	return nil
}

// newWriter builds the report writer for the configured format over out.
func (s *RenderStep) newWriter(out io.Writer) (report.Writer, error) {
	switch s.format {
	case config.FormatJSON:
		var jsonOpts []report.JSONWriterOption
		if s.pretty {
			jsonOpts = append(jsonOpts, report.WithPrettyPrint())
		}
		return report.NewJSONWriter(out, jsonOpts...), nil
	case config.FormatMarkdown:
		return report.NewMarkdownWriter(out), nil
	case config.FormatText:
		var simpleOpts []report.SimpleWriterOption
		if s.verbose {
			simpleOpts = append(simpleOpts, report.WithVerbose(true))
		}
		return report.NewSimpleWriter(out, simpleOpts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidFormat, s.format)
	}
}

// ReportArchiver uploads a rendered report to long-term storage.
// *archive.Uploader satisfies this interface.
type ReportArchiver interface {
	Upload(ctx context.Context, report *model.MentionReport, body []byte, format string) (string, error)
}

// ArchiveStep uploads the rendered report to the configured archive bucket.
//
// Design decision: Archival consumes the render step's bytes instead of
// rendering again because:
// 1. The archived artifact stays byte-identical to what the operator saw
// 2. A nil archiver cleanly disables the stage without rebuilding the
//    pipeline
type ArchiveStep struct {
	// archiver uploads the rendered report. May be nil to disable.
	archiver ReportArchiver

	// format names which rendered artifact to upload.
	format string

	// logger for structured logging.
	logger *slog.Logger
}

// ArchiveStepOption configures an ArchiveStep.
type ArchiveStepOption func(*ArchiveStep)

// WithArchiveLogger sets a custom logger for the archive step.
func WithArchiveLogger(logger *slog.Logger) ArchiveStepOption {
	return func(s *ArchiveStep) {
		s.logger = logger
	}
}

// NewArchiveStep creates a new report archival step.
// An empty format falls back to config.DefaultFormat.
func NewArchiveStep(archiver ReportArchiver, format string, opts ...ArchiveStepOption) *ArchiveStep {
	s := &ArchiveStep{
		archiver: archiver,
		format:   format,
		logger:   slog.Default(),
	}
	if s.format == "" {
		s.format = config.DefaultFormat
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ArchiveStep) Name() string {
	return "archive"
}

// Do executes the archival step.
func (s *ArchiveStep) Do(ctx context.Context, run *Run) error {
	if s.archiver == nil {
		s.logger.Debug("skipping archive, no uploader configured")
		return nil
	}
	if run.Report == nil {
		s.logger.Debug("skipping archive, no report to upload")
		return nil
	}
	body, ok := run.Rendered[s.format]
	if !ok {
		s.logger.Debug("skipping archive, format not rendered", "format", s.format)
		return nil
	}

	key, err := s.archiver.Upload(ctx, run.Report, body, s.format)
	if err != nil {
		return fmt.Errorf("failed to archive report: %w", err)
	}
	run.ObjectKey = key

	s.logger.Info("report archived", "key", key)
	return nil
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// Format selects the rendered output format.
	Format string

	// Output receives a copy of the rendered report. Usually stdout.
	Output io.Writer

	// Verbose enables per-subject source detail in the text format.
	Verbose bool

	// Pretty enables indented output in the JSON format.
	Pretty bool
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineFormat sets the rendered output format.
func WithPipelineFormat(format string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Format = format
	}
}

// WithPipelineOutput sets the destination for the rendered report.
func WithPipelineOutput(output io.Writer) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Output = output
	}
}

// WithPipelineVerbose enables per-subject source detail in the text format.
func WithPipelineVerbose(verbose bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Verbose = verbose
	}
}

// WithPipelinePretty enables indented output in the JSON format.
func WithPipelinePretty(pretty bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Pretty = pretty
	}
}

// DefaultPipeline creates a pipeline with all standard steps configured:
// session warm-up, collection, aggregation, persistence, rendering, and
// archival.
//
// Design decision: We provide a default pipeline because:
// 1. The scheduler and the one-shot report command want identical stage
//    ordering
// 2. Reduces boilerplate in the CLI
// 3. Store-before-render ordering is easy to get wrong when assembled
//    by hand
//
// A nil store disables persistence and a nil archiver disables archival;
// the remaining steps still run.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts pipeline config options (WithPipelineFormat, etc).
func DefaultPipeline(sessions SessionSource, runner QueryRunner, store ReportStore, archiver ReportArchiver, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		Format: config.DefaultFormat,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	renderOpts := []RenderStepOption{
		WithRenderVerbose(cfg.Verbose),
		WithRenderPretty(cfg.Pretty),
	}
	if cfg.Output != nil {
		renderOpts = append(renderOpts, WithRenderOutput(cfg.Output))
	}

	// Add steps in logical order
	p.AddSteps(
		NewSessionStep(sessions),
		NewCollectStep(runner),
		NewAggregateStep(),
		NewStoreStep(store),
		NewRenderStep(cfg.Format, renderOpts...),
		NewArchiveStep(archiver, cfg.Format),
	)

	return p
}
