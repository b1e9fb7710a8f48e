package report

import (
	"io"
	"sort"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/mentionscan/internal/model"
)

// maxPieSlices bounds the mention share chart; smaller subjects are
// folded into an "Other" slice.
const maxPieSlices = 8

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.MentionReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	// Header
	w.writeHeader(md, report)

	// Summary
	w.writeSummary(md, report)

	// Per-subject counts
	w.writeCounts(md, report)

	// Unavailable subjects with reasons
	w.writeUnavailable(md, report)

	// Footer
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.MentionReport) {
	md.H1("Mentionscan Report")
	md.PlainText("")

	period := report.Range.Label()
	if report.Timezone != "" {
		period += " (" + report.Timezone + ")"
	}

	// Basic info table
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Kind", string(report.Kind)},
			{"Period", period},
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.MentionReport) string {
	if report.HasUnavailable() {
		return "⚠️ Partial - " + strconv.Itoa(report.UnavailableCount) + " subject(s) unavailable"
	}
	return "✅ Complete"
}

// writeSummary writes the mention totals section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.MentionReport) {
	md.H2("Mention Summary")
	md.PlainText("")

	// Summary table
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Subjects", strconv.Itoa(len(report.Results))},
			{"Resolved", strconv.Itoa(report.ResolvedCount)},
			{"Unavailable", strconv.Itoa(report.UnavailableCount)},
			{"**Total Mentions**", "**" + strconv.Itoa(report.Total) + "**"},
		},
	})
	md.PlainText("")

	// Add pie chart if any subject recorded mentions
	if report.Total > 0 {
		w.writePieChart(md, report)
	}

	// Add alert based on resolution state
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of mention share per subject.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.MentionReport) {
	resolved := make([]model.SubjectCount, 0, len(report.Results))
	for _, sc := range report.Results {
		if sc.Count.Resolved() && sc.Count.Value > 0 {
			resolved = append(resolved, sc)
		}
	}
	if len(resolved) == 0 {
		return
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Count.Value > resolved[j].Count.Value
	})

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Mention Share by Subject"),
		piechart.WithShowData(true),
	)

	other := 0
	for i, sc := range resolved {
		if i < maxPieSlices {
			chart.LabelAndIntValue(sc.Title(), uint64(sc.Count.Value))
			continue
		}
		other += sc.Count.Value
	}
	if other > 0 {
		chart.LabelAndIntValue("Other", uint64(other))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on resolution counts.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.MentionReport) {
	switch {
	case report.UnavailableCount > 0:
		md.Warningf(
			"%d subject count(s) could not be determined and are excluded from the total.",
			report.UnavailableCount,
		)
	case report.Total == 0:
		md.Note("No mentions recorded in this period.")
	default:
		md.Tip("All subject counts resolved.")
	}
	md.PlainText("")
}

// writeCounts writes the per-subject counts table.
func (w *MarkdownWriter) writeCounts(md *markdown.Markdown, report *model.MentionReport) {
	md.H2("Mention Counts")
	md.PlainText("")

	if len(report.Results) == 0 {
		md.PlainText("No subjects in roster.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Results))
	for i, sc := range report.Results {
		mentions := "n/a"
		source := "-"
		if sc.Count.Resolved() {
			mentions = strconv.Itoa(sc.Count.Value)
			source = sourceLabel(sc.Count.Source)
		}

		rows[i] = []string{
			sc.Title(),
			"`" + sc.Handle + "`",
			mentions,
			source,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Subject", "Handle", "Mentions", "Source"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeUnavailable writes the unresolved subjects table with reasons.
func (w *MarkdownWriter) writeUnavailable(md *markdown.Markdown, report *model.MentionReport) {
	unresolved := report.Unresolved()
	if len(unresolved) == 0 {
		return
	}

	md.H2("Unavailable Subjects")
	md.PlainText("")

	rows := make([][]string, len(unresolved))
	for i, sc := range unresolved {
		reason := sc.Count.Reason
		if reason == "" {
			reason = "-"
		}
		rows[i] = []string{
			sc.Title(),
			truncateString(reason, 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Subject", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")

	// Add full reasons for rows the table truncated
	for _, sc := range unresolved {
		if len(sc.Count.Reason) > 60 {
			md.Details(sc.Title(), sc.Count.Reason)
		}
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [mentionscan](https://github.com/nao1215/mentionscan)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
