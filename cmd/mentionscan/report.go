package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/mentionscan/internal/analytics"
	"github.com/nao1215/mentionscan/internal/archive"
	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/database"
	"github.com/nao1215/mentionscan/internal/dispatch"
	"github.com/nao1215/mentionscan/internal/log"
	"github.com/nao1215/mentionscan/internal/model"
	"github.com/nao1215/mentionscan/internal/pipeline"
	"github.com/nao1215/mentionscan/internal/retry"
	"github.com/nao1215/mentionscan/internal/session"
	"github.com/spf13/cobra"
)

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [subject-handle...]",
		Short: "Generate a mention report for the configured subjects",
		Long: `Report counts mentions of each subject on the roster over one calendar
period and renders the result.

The roster normally comes from the configuration file. Subject handles
given as arguments replace the configured roster for this run. The
reporting period is the seven complete days before the anchor date for
weekly reports, or the previous full calendar month for monthly ones.

Subjects whose count could not be determined after all retries are
listed as unavailable rather than dropped, so a partial report never
looks like a complete one.

Examples:
  # Weekly report for the roster in .mentionscan.yaml
  mentionscan report

  # Monthly report anchored at a specific date
  mentionscan report --kind monthly --date 2026-03-01

  # Ad-hoc report for two subjects
  mentionscan report --endpoint https://analytics.example.com aurora borealis

  # Write a Markdown report to a file
  mentionscan report --format markdown --output reports/weekly.md`,
		Args: cobra.ArbitraryArgs,
		RunE: runReportCmd,
	}

	// Period flags
	cmd.Flags().StringP("kind", "k", model.ReportKindWeekly.String(),
		"Report cadence: weekly or monthly")
	cmd.Flags().StringP("date", "d", "",
		"Anchor date for the reporting period (format: YYYY-MM-DD, default: today)")
	cmd.Flags().StringP("timezone", "z", "",
		"IANA timezone for period boundaries (default: UTC)")

	// API flags
	cmd.Flags().StringP("endpoint", "e", "",
		"Analytics service base URL (e.g. https://analytics.example.com)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"HTTP timeout for each request")
	cmd.Flags().StringP("proxy", "p", "",
		"SOCKS5 proxy address for API traffic (e.g. 127.0.0.1:1080)")

	// Dispatch behavior flags
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of count requests in flight at once")
	cmd.Flags().IntP("max-attempts", "a", config.DefaultMaxAttempts,
		"Maximum attempts per count request")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .mentionscan.yaml in current or home directory)")

	// Report flags
	cmd.Flags().StringP("format", "f", config.DefaultFormat,
		"Report format: text, json, or markdown")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// Persistence flags
	cmd.Flags().Bool("no-save", false,
		"Skip saving the report to the local history database")
	cmd.Flags().Bool("no-archive", false,
		"Skip the configured archive upload for this run")

	return cmd
}

// runReportCmd executes the report command.
func runReportCmd(cmd *cobra.Command, args []string) error {
	// Build config from file and flags
	cfg, err := buildReportConfig(cmd, args)
	if err != nil {
		return err
	}

	kindFlag, err := cmd.Flags().GetString("kind")
	if err != nil {
		return err
	}
	kind, err := model.ParseReportKind(kindFlag)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	anchor, err := resolveAnchor(cmd, cfg)
	if err != nil {
		return err
	}

	// Set up structured logging
	verbose := getVerboseFlag(cmd)
	cfg.Verbose = verbose
	logger := setupLogger(verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runReport(ctx, cfg, kind, anchor, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildReportConfig creates a Config from the configuration file and
// cobra command flags. Flag values win over file values, but only for
// flags the user actually set.
func buildReportConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	if err := applyConfigFile(cfg); err != nil {
		return nil, err
	}

	if err := applyReportFlags(cmd, cfg); err != nil {
		return nil, err
	}

	// Positional arguments are ad-hoc subject handles that replace the
	// configured roster for this run.
	if len(args) > 0 {
		subjects := make([]model.Subject, 0, len(args))
		for _, handle := range args {
			subject, err := model.NewSubject(handle)
			if err != nil {
				return nil, fmt.Errorf("invalid subject %q: %w", handle, err)
			}
			subjects = append(subjects, subject)
		}
		cfg.Subjects = subjects
	}

	return cfg, nil
}

// applyConfigFile locates and applies the configuration file.
// If the user explicitly specified a config file path, a missing file is
// an error. If no path was specified, the command runs on flags and
// defaults alone when no file is found.
func applyConfigFile(cfg *config.Config) error {
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath == "" {
		if explicitConfigPath {
			return fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
		}
		return nil
	}

	file, err := config.LoadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	if err := file.ApplyTo(cfg); err != nil {
		return fmt.Errorf("failed to apply config file %s: %w", configPath, err)
	}
	return nil
}

// applyReportFlags overlays flag values onto the config. Flags the user
// did not set keep whatever the config file or the defaults provided.
func applyReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("endpoint") {
		if cfg.Endpoint, err = flags.GetString("endpoint"); err != nil {
			return err
		}
	}
	if flags.Changed("timezone") {
		if cfg.Timezone, err = flags.GetString("timezone"); err != nil {
			return err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return err
		}
	}
	if flags.Changed("max-attempts") {
		if cfg.MaxAttempts, err = flags.GetInt("max-attempts"); err != nil {
			return err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if flags.Changed("proxy") {
		if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
			return err
		}
	}
	if flags.Changed("format") {
		if cfg.Format, err = flags.GetString("format"); err != nil {
			return err
		}
	}
	if flags.Changed("output") {
		if cfg.ReportFile, err = flags.GetString("output"); err != nil {
			return err
		}
	}
	if flags.Changed("no-save") {
		noSave, err := flags.GetBool("no-save")
		if err != nil {
			return err
		}
		cfg.SaveToDB = !noSave
	}
	if flags.Changed("no-archive") {
		if cfg.SkipArchive, err = flags.GetBool("no-archive"); err != nil {
			return err
		}
	}

	return nil
}

// resolveAnchor determines the date the reporting period is computed
// from. The anchor is interpreted in the configured timezone so period
// boundaries land on local midnights.
func resolveAnchor(cmd *cobra.Command, cfg *config.Config) (time.Time, error) {
	dateFlag, err := cmd.Flags().GetString("date")
	if err != nil {
		return time.Time{}, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}

	if dateFlag == "" {
		return time.Now().In(loc), nil
	}

	anchor, err := time.ParseInLocation("2006-01-02", dateFlag, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", dateFlag, err)
	}
	return anchor, nil
}

// setupLogger creates a structured logger based on verbosity setting.
// The logger masks credentials and session material even in verbose
// mode, so debug output stays safe to share.
func setupLogger(verbose bool) *slog.Logger {
	return log.NewSecureLogger(os.Stderr, verbose)
}

// runReport executes one report run.
func runReport(ctx context.Context, cfg *config.Config, kind model.ReportKind, anchor time.Time, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	period, err := model.RangeForKind(kind, anchor, loc)
	if err != nil {
		return err
	}

	logger.Info("starting report run",
		"kind", kind.String(),
		"period", period.String(),
		"subjects", len(cfg.Subjects),
		"endpoint", cfg.Endpoint,
		"saveToDB", cfg.SaveToDB,
	)

	client, err := newAnalyticsClient(cfg)
	if err != nil {
		return err
	}

	sessions := session.NewManager(session.DefaultStore(), client,
		session.WithCredentials(credentialsFromEnv),
		session.WithManagerLogger(logger),
	)

	// Open database connection if saving is enabled
	var db *database.ReportDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	uploader, err := newUploader(ctx, cfg, logger)
	if err != nil {
		return err
	}

	out, closeOut, err := openReportOutput(cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeOut()

	p := newReportPipeline(cfg, client, sessions, db, uploader, out, logger)
	run := pipeline.NewRun(kind, period, cfg.Timezone, cfg.Subjects)

	fmt.Printf("Generating %s mention report for %s...\n\n", kind, period.Label())
	startTime := time.Now()

	// Execute the pipeline
	if err := p.Execute(ctx, run); err != nil {
		return err
	}

	elapsed := time.Since(startTime)
	fmt.Printf("\nReport completed in %s\n", elapsed.Round(time.Millisecond))
	if cfg.ReportFile != "" {
		fmt.Printf("Report written to %s\n", cfg.ReportFile)
	}

	// Partial results are still a valid report; tell the operator on
	// stderr instead of failing the command.
	if run.Report != nil && run.Report.UnavailableCount > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d of %d subjects could not be resolved\n",
			run.Report.UnavailableCount, len(run.Report.Results))
	}
	if run.Err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", run.ErrorMessage)
	}

	return nil
}

// newAnalyticsClient builds the analytics API client from the config.
func newAnalyticsClient(cfg *config.Config) (*analytics.Client, error) {
	opts := []analytics.ClientOption{
		analytics.WithTimeout(cfg.Timeout),
		analytics.WithUserAgent(cfg.UserAgent),
	}
	if cfg.Proxy != "" {
		opts = append(opts, analytics.WithSOCKSProxy(cfg.Proxy))
	}
	return analytics.NewClient(cfg.Endpoint, opts...)
}

// newUploader builds the archive uploader when the configuration file
// has an archive bucket. A missing or empty archive section disables
// uploads rather than failing the run.
func newUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*archive.Uploader, error) {
	if cfg.FileConfig == nil {
		return nil, nil
	}
	if cfg.SkipArchive {
		logger.Debug("archive upload skipped")
		return nil, nil
	}

	uploader, err := archive.NewUploader(ctx, cfg.FileConfig.Archive)
	if err != nil {
		if errors.Is(err, archive.ErrArchiveDisabled) {
			logger.Debug("archive upload disabled")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to configure archive upload: %w", err)
	}

	logger.Info("archive upload enabled", "bucket", cfg.FileConfig.Archive.Bucket)
	return uploader, nil
}

// newReportPipeline assembles the pipeline for one report run.
func newReportPipeline(cfg *config.Config, client *analytics.Client, sessions *session.Manager, db *database.ReportDB, uploader *archive.Uploader, out io.Writer, logger *slog.Logger) *pipeline.Pipeline {
	policy := retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Base:        cfg.RetryBase,
		MaxDelay:    config.DefaultRetryMaxDelay,
		Jitter:      config.DefaultRetryJitter,
		Logger:      logger,
	}

	resolver := dispatch.NewCountResolver(client, sessions, policy,
		dispatch.WithResolverLogger(logger))
	dispatcher := dispatch.NewDispatcher(resolver,
		dispatch.WithConcurrency(cfg.Concurrency),
		dispatch.WithLogger(logger))

	// Continue on error so a failed step degrades the report instead of
	// discarding it: a dead API still yields a report that names every
	// subject as unavailable.
	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	}

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineFormat(cfg.Format),
		pipeline.WithPipelineVerbose(cfg.Verbose),
	}
	if out != nil {
		configOpts = append(configOpts, pipeline.WithPipelineOutput(out))
	}
	if cfg.Format == config.FormatJSON {
		configOpts = append(configOpts, pipeline.WithPipelinePretty(true))
	}

	// Interface values must stay nil when the concrete pointer is nil,
	// otherwise the steps see a non-nil interface wrapping a nil pointer.
	var store pipeline.ReportStore
	if db != nil {
		store = db
	}
	var archiver pipeline.ReportArchiver
	if uploader != nil {
		archiver = uploader
	}

	return pipeline.DefaultPipeline(sessions, dispatcher, store, archiver, pipelineOpts, configOpts...)
}

// openReportOutput opens the report destination. An empty path means
// stdout. The returned func closes the destination when it is a file.
func openReportOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}

	// Create directories if they don't exist
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Create/overwrite the output file with secure permissions (0600)
	// Reports may cover subjects that are not public yet, so keep them
	// readable by the owner only
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // Best effort cleanup
}
