package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nao1215/mentionscan/internal/config"
	"github.com/nao1215/mentionscan/internal/database"
	"github.com/nao1215/mentionscan/internal/model"
	"github.com/nao1215/mentionscan/internal/report"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit caps listings so a long-running installation does
// not dump years of reports by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
// This command browses reports stored in the local database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [subject-handle]",
		Short: "Browse reports stored in the local database",
		Long: `History lists mention reports stored in the local database and prints
individual stored reports.

Without arguments it lists stored reports, newest first. With a subject
handle it lists that subject's counts across reports, which shows how
mentions develop over time. Use --report to print one full report by
ID, or --latest for the most recent report of a kind.

Examples:
  # List stored reports
  mentionscan history

  # List only monthly reports
  mentionscan history --kind monthly

  # Follow one subject across reports
  mentionscan history aurora

  # Print the latest weekly report as JSON
  mentionscan history --latest --format json

  # Print a specific report by ID
  mentionscan history --report 6f1cf1f4-6d8b-43e5-a41c-3a1df4a0e921`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	// Listing flags
	cmd.Flags().StringP("kind", "k", "",
		"Filter by report kind: weekly or monthly")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum entries to list (0 lists everything)")

	// Full report flags
	cmd.Flags().StringP("report", "r", "",
		"Print the full report with this ID")
	cmd.Flags().Bool("latest", false,
		"Print the latest full report of the selected kind (default: weekly)")
	cmd.Flags().StringP("format", "f", config.DefaultFormat,
		"Output format for full reports: text, json, or markdown")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	kindFlag, err := cmd.Flags().GetString("kind")
	if err != nil {
		return err
	}
	var kind model.ReportKind
	if kindFlag != "" {
		if kind, err = model.ParseReportKind(kindFlag); err != nil {
			return err
		}
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	reportID, err := cmd.Flags().GetString("report")
	if err != nil {
		return err
	}
	latest, err := cmd.Flags().GetBool("latest")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	// Use XDG data directory for database
	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	switch {
	case reportID != "":
		return showReportByID(ctx, db, reportID, format)
	case latest:
		if kind == "" {
			kind = model.ReportKindWeekly
		}
		return showLatestReport(ctx, db, kind, format)
	case len(args) == 1:
		return listSubjectHistory(ctx, db, args[0], limit)
	default:
		return listReportHistory(ctx, db, kind, limit)
	}
}

// listReportHistory lists stored reports, newest first.
func listReportHistory(ctx context.Context, db *database.ReportDB, kind model.ReportKind, limit int) error {
	entries, err := db.ReportHistory(ctx, kind, limit)
	if err != nil {
		return fmt.Errorf("failed to list report history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No stored reports found.")
		fmt.Println("\nUse 'mentionscan report' to generate one.")
		return nil
	}

	fmt.Printf("Stored reports (%d):\n\n", len(entries))
	fmt.Printf("  %-36s  %-8s  %-24s  %6s  %11s\n", "ID", "Kind", "Period", "Total", "Unavailable")
	fmt.Println("  " + strings.Repeat("-", 93))

	for _, meta := range entries {
		period := model.Range{Start: meta.RangeStart, End: meta.RangeEnd}
		fmt.Printf("  %-36s  %-8s  %-24s  %6d  %11d\n",
			meta.ID,
			meta.Kind,
			period.Label(),
			meta.Total,
			meta.UnavailableCount,
		)
	}

	fmt.Println("\nUse 'mentionscan history --report <id>' to print a full report.")
	fmt.Println("Use 'mentionscan history <subject-handle>' to follow one subject across reports.")

	return nil
}

// listSubjectHistory lists one subject's counts across stored reports.
func listSubjectHistory(ctx context.Context, db *database.ReportDB, handle string, limit int) error {
	subject, err := model.NewSubject(handle)
	if err != nil {
		return fmt.Errorf("invalid subject %q: %w", handle, err)
	}

	mentions, err := db.SubjectHistory(ctx, subject.Handle(), limit)
	if err != nil {
		return fmt.Errorf("failed to get subject history: %w", err)
	}

	if len(mentions) == 0 {
		fmt.Printf("No stored counts found for %s\n", subject.Handle())
		fmt.Println("\nUse 'mentionscan report' to generate a report that includes this subject.")
		return nil
	}

	fmt.Printf("Mention history for %s (%d reports):\n\n", subject.Handle(), len(mentions))
	fmt.Printf("  %-8s  %-24s  %8s  %-9s\n", "Kind", "Period", "Count", "Source")
	fmt.Println("  " + strings.Repeat("-", 56))

	for _, m := range mentions {
		period := model.Range{Start: m.RangeStart, End: m.RangeEnd}
		fmt.Printf("  %-8s  %-24s  %8s  %-9s\n",
			m.Kind,
			period.Label(),
			formatCount(m.Count),
			m.Count.Source,
		)
	}

	return nil
}

// formatCount renders a stored count, keeping zero distinguishable from
// a count that could not be determined.
func formatCount(c model.Count) string {
	if c.Unavailable {
		return "n/a"
	}
	return strconv.Itoa(c.Value)
}

// showReportByID prints one stored report in full.
func showReportByID(ctx context.Context, db *database.ReportDB, id, format string) error {
	rep, err := db.GetReport(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get report %s: %w", id, err)
	}
	if rep == nil {
		return fmt.Errorf("report %s not found (use 'mentionscan history' to list stored reports)", id)
	}
	return writeStoredReport(rep, format)
}

// showLatestReport prints the most recent stored report of a kind.
func showLatestReport(ctx context.Context, db *database.ReportDB, kind model.ReportKind, format string) error {
	rep, err := db.LatestReport(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to get latest %s report: %w", kind, err)
	}
	if rep == nil {
		return fmt.Errorf("no stored %s report found (use 'mentionscan report' to generate one)", kind)
	}
	return writeStoredReport(rep, format)
}

// writeStoredReport renders a stored report to stdout in the requested
// format.
func writeStoredReport(rep *model.MentionReport, format string) error {
	switch format {
	case config.FormatJSON:
		writer := report.NewJSONWriter(os.Stdout, report.WithPrettyPrint())
		_, err := writer.Write(rep)
		return err
	case config.FormatMarkdown:
		writer := report.NewMarkdownWriter(os.Stdout)
		_, err := writer.Write(rep)
		return err
	case config.FormatText, "":
		writer := report.NewSimpleWriter(os.Stdout, report.WithVerbose(true))
		_, err := writer.Write(rep)
		return err
	default:
		return fmt.Errorf("%w: %q", config.ErrInvalidFormat, format)
	}
}
