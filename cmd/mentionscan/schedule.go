package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/database"
	"github.com/nao1215/mentionscan/internal/log"
	"github.com/nao1215/mentionscan/internal/model"
	"github.com/nao1215/mentionscan/internal/pipeline"
	"github.com/nao1215/mentionscan/internal/scheduler"
	"github.com/nao1215/mentionscan/internal/session"
	"github.com/spf13/cobra"
)

// NewScheduleCmd creates the schedule command.
func NewScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the report scheduler in the foreground",
		Long: `Schedule runs mentionscan as a long-lived service that generates
reports on the calendar cadence from the configuration file.

The scheduler polls roughly once a minute and fires each configured
window exactly once, even across restarts: fired windows are recorded
in the local database, so a window that already ran is never repeated.
A window missed during downtime fires on the next poll after startup.
A failed run does not repeat either; the failure is logged and the
window is sealed.

Each fired window generates one report, written below the output
directory, saved to the local database, and uploaded to the configured
archive bucket when one is set.

The command blocks until interrupted.

Examples:
  # Run with the roster and schedule from .mentionscan.yaml
  mentionscan schedule

  # Explicit configuration file and output directory
  mentionscan schedule -c /etc/mentionscan.yaml -o /var/lib/mentionscan/reports

  # Archive JSON artifacts instead of text
  mentionscan schedule --format json`,
		Args: cobra.NoArgs,
		RunE: runScheduleCmd,
	}

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .mentionscan.yaml in current or home directory)")

	// API flags
	cmd.Flags().StringP("endpoint", "e", "",
		"Analytics service base URL (e.g. https://analytics.example.com)")
	cmd.Flags().StringP("proxy", "p", "",
		"SOCKS5 proxy address for API traffic (e.g. 127.0.0.1:1080)")

	// Artifact flags
	cmd.Flags().StringP("output-dir", "o", "",
		"Directory for generated report files (default: XDG data directory)")
	cmd.Flags().StringP("format", "f", config.DefaultFormat,
		"Format of generated report files: text, json, or markdown")

	// Scheduler tuning flags
	cmd.Flags().Duration("poll-interval", config.DefaultPollInterval,
		"How often the scheduler checks for due windows")
	cmd.Flags().Duration("job-timeout", config.DefaultJobTimeout,
		"Maximum duration of one report job")

	return cmd
}

// runScheduleCmd executes the schedule command.
func runScheduleCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildScheduleConfig(cmd)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.FileConfig == nil {
		return errors.New("schedule requires a configuration file with a schedule section (run 'mentionscan init' to create one)")
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	triggers, err := scheduler.TriggersFromConfig(cfg.FileConfig.Schedule, loc)
	if err != nil {
		return err
	}
	if len(triggers) == 0 {
		return errors.New("no schedule triggers enabled (enable schedule.weekly or schedule.monthly in the config file)")
	}

	// Set up structured logging
	verbose := getVerboseFlag(cmd)
	cfg.Verbose = verbose
	logger := setupServiceLogger(verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, stopping scheduler...")
		cancel()
	}()

	return runSchedule(ctx, cfg, triggers, logger)
}

// buildScheduleConfig creates a Config from the configuration file and
// cobra command flags. Flag values win over file values, but only for
// flags the user actually set.
func buildScheduleConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	if err := applyConfigFile(cfg); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		if cfg.Endpoint, err = flags.GetString("endpoint"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("proxy") {
		if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("output-dir") {
		if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("format") {
		if cfg.Format, err = flags.GetString("format"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("poll-interval") {
		if cfg.PollInterval, err = flags.GetDuration("poll-interval"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("job-timeout") {
		if cfg.JobTimeout, err = flags.GetDuration("job-timeout"); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// setupServiceLogger creates the logger for the long-running scheduler.
// The service logs at info level so fired windows and job results are
// visible without verbose mode. Credentials and session material are
// masked like in the one-shot commands.
func setupServiceLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(log.NewSecureHandler(handler))
}

// runSchedule runs the scheduler until the context is cancelled.
func runSchedule(ctx context.Context, cfg *config.Config, triggers []scheduler.Trigger, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	client, err := newAnalyticsClient(cfg)
	if err != nil {
		return err
	}

	// The session manager is shared across jobs so a warm session from
	// one window carries into the next.
	sessions := session.NewManager(session.DefaultStore(), client,
		session.WithCredentials(credentialsFromEnv),
		session.WithManagerLogger(logger),
	)

	// The database is mandatory here: it stores the reports and the
	// fired-window bookkeeping that keeps restarts from repeating work.
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Info("database opened", "dir", cfg.DBDir)

	uploader, err := newUploader(ctx, cfg, logger)
	if err != nil {
		return err
	}

	job := func(ctx context.Context, kind model.ReportKind, due time.Time) error {
		period, err := model.RangeForKind(kind, due, loc)
		if err != nil {
			return err
		}

		path := filepath.Join(cfg.OutputDir, reportFileName(kind, period, cfg.Format))
		out, closeOut, err := openReportOutput(path)
		if err != nil {
			return err
		}
		defer closeOut()

		p := newReportPipeline(cfg, client, sessions, db, uploader, out, logger)
		run := pipeline.NewRun(kind, period, cfg.Timezone, cfg.Subjects)

		if err := p.Execute(ctx, run); err != nil {
			return err
		}
		logger.Info("report file written", "path", path)

		// A step failure is reported to the scheduler for logging, but
		// the window still counts as fired.
		return run.Err
	}

	sched, err := scheduler.New(db, job, triggers,
		scheduler.WithPollInterval(cfg.PollInterval),
		scheduler.WithJobTimeout(cfg.JobTimeout),
		scheduler.WithSchedulerLogger(logger),
	)
	if err != nil {
		return err
	}

	fmt.Printf("Scheduler running with %d trigger(s). Press Ctrl+C to stop.\n", len(triggers))
	logger.Info("scheduler starting",
		"triggers", len(triggers),
		"pollInterval", cfg.PollInterval.String(),
		"jobTimeout", cfg.JobTimeout.String(),
		"outputDir", cfg.OutputDir,
	)

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Println("Scheduler stopped.")
	return nil
}

// reportFileName builds the artifact name for one fired window, for
// example "weekly-2026-03-09.json". The date is the first day the
// report covers.
func reportFileName(kind model.ReportKind, period model.Range, format string) string {
	return fmt.Sprintf("%s-%s.%s", kind, period.Start.Format("2006-01-02"), formatExtension(format))
}

// formatExtension maps a report format to a file extension.
func formatExtension(format string) string {
	switch format {
	case config.FormatJSON:
		return "json"
	case config.FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}
