package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/mentionscan/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with aligned count
// columns and clear section formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no rows are shown.
	showEmpty bool

	// verbose enables additional detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  false,
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.MentionReport) (int, error) {
	var sb strings.Builder

	// Header
	w.writeHeader(&sb, report)

	// Summary
	w.writeSummary(&sb, report)

	// Per-subject counts
	w.writeCounts(&sb, report)

	// Unavailable subjects with reasons
	w.writeUnavailable(&sb, report)

	// Footer
	w.writeFooter(&sb)

	// Write to output
	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.MentionReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        MENTIONSCAN REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	period := report.Range.Label()
	if report.Timezone != "" {
		period += " (" + report.Timezone + ")"
	}

	sb.WriteString(fmt.Sprintf("Report Kind:  %s\n", report.Kind))
	sb.WriteString(fmt.Sprintf("Period:       %s\n", period))
	sb.WriteString(fmt.Sprintf("Generated:    %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")))

	if report.HasUnavailable() {
		sb.WriteString(fmt.Sprintf("Status:       PARTIAL (%d of %d subjects unavailable)\n",
			report.UnavailableCount, len(report.Results)))
	} else {
		sb.WriteString("Status:       Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the mention totals section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.MentionReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("MENTION SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  SUBJECTS:    %d\n", len(report.Results)))
	sb.WriteString(fmt.Sprintf("  RESOLVED:    %d\n", report.ResolvedCount))
	sb.WriteString(fmt.Sprintf("  UNAVAILABLE: %d\n", report.UnavailableCount))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("  TOTAL MENTIONS: %d\n", report.Total))
	sb.WriteString("\n")
}

// writeCounts writes one aligned line per roster subject.
func (w *SimpleWriter) writeCounts(sb *strings.Builder, report *model.MentionReport) {
	if len(report.Results) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("MENTION COUNTS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Results) == 0 {
		sb.WriteString("  No subjects in roster\n\n")
		return
	}

	width := 0
	for _, sc := range report.Results {
		if len(sc.Title()) > width {
			width = len(sc.Title())
		}
	}

	for _, sc := range report.Results {
		value := "n/a"
		if sc.Count.Resolved() {
			value = strconv.Itoa(sc.Count.Value)
		}
		sb.WriteString(fmt.Sprintf("  %-*s  %s\n", width, sc.Title(), value))

		if w.verbose && sc.Count.Resolved() {
			sb.WriteString(fmt.Sprintf("    Source: %s (%d request(s))\n",
				sourceLabel(sc.Count.Source), sc.Count.Attempts))
		}
	}
	sb.WriteString("\n")
}

// writeUnavailable enumerates subjects whose count could not be
// determined, with the reason each resolution failed.
func (w *SimpleWriter) writeUnavailable(sb *strings.Builder, report *model.MentionReport) {
	unresolved := report.Unresolved()
	if len(unresolved) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("UNAVAILABLE SUBJECTS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(unresolved) == 0 {
		sb.WriteString("  None\n\n")
		return
	}

	for _, sc := range unresolved {
		sb.WriteString(fmt.Sprintf("  * %s\n", sc.Title()))
		if sc.Count.Reason != "" {
			sb.WriteString(fmt.Sprintf("    Reason: %s\n", sc.Count.Reason))
		}
	}
	sb.WriteString("\n")
}

// sourceLabel returns the display name for an acquisition tier.
func sourceLabel(source model.CountSource) string {
	switch source {
	case model.CountSourceAPI:
		return "count API"
	case model.CountSourceFallback:
		return "search page"
	case model.CountSourceNone:
		return "none"
	default:
		return string(source)
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by mentionscan\n")
	sb.WriteString("https://github.com/nao1215/mentionscan\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
