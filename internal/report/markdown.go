package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/excavate/internal/database"
	"github.com/nao1215/excavate/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// maxCellLength bounds table cells so that long URLs keep tables readable.
const maxCellLength = 80

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

	// responses includes HTTP_RESPONSE events, which are omitted by default.
	responses bool
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithResponses includes a table of HTTP responses.
func WithResponses(include bool) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.responses = include
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeEvents(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *Report) {
	md.H1("Excavate Report")
	md.PlainText("")

	rows := [][]string{
		{"Targets", "`" + strings.Join(report.Targets, "`, `") + "`"},
		{"Scan Date", report.Date.Format("2006-01-02 15:04:05 MST")},
		{"Pages Fetched", strconv.Itoa(report.PagesFetched)},
		{"Pages Failed", strconv.Itoa(report.PagesFailed)},
		{"Elapsed", report.Elapsed.Round(time.Millisecond).String()},
		{"Status", statusText(report)},
	}
	if report.ScanID != "" {
		rows = append(rows, []string{"Scan ID", "`" + report.ScanID + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func statusText(report *Report) string {
	if report.Canceled {
		return "⚠️ Canceled (partial results)"
	}
	return "✅ Complete"
}

// writeSummary writes the event count table, a pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *Report) {
	md.H2("Event Summary")
	md.PlainText("")

	counts := report.CountByType()
	rows := make([][]string, 0, len(TypeOrder)+1)
	total := 0
	for _, t := range TypeOrder {
		rows = append(rows, []string{string(t), strconv.Itoa(counts[t])})
		total += counts[t]
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(total) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"Event Type", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if total > 0 {
		w.writePieChart(md, counts)
	}

	findings := counts[model.EventTypeFinding]
	switch {
	case findings > 0:
		md.Warningf("%d finding(s) detected. Review them below.", findings)
	case total > 0:
		md.Note("No findings; only discovered URLs, hosts and parameters.")
	default:
		md.Tip("Nothing was extracted.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of the event type distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[model.EventType]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Events by Type"),
		piechart.WithShowData(true),
	)
	for _, t := range TypeOrder {
		if counts[t] > 0 {
			chart.LabelAndIntValue(string(t), uint64(counts[t]))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeEvents writes one table per event type.
func (w *MarkdownWriter) writeEvents(md *markdown.Markdown, report *Report) {
	for _, t := range TypeOrder {
		if t == model.EventTypeHTTPResponse && !w.responses {
			continue
		}
		events := report.OfType(t)
		if len(events) == 0 {
			continue
		}

		md.H2(string(t))
		md.PlainText("")
		w.writeTable(md, events)
	}
}

func (w *MarkdownWriter) writeTable(md *markdown.Markdown, events []*model.Event) {
	rows := make([][]string, len(events))
	for i, ev := range events {
		cells := row(ev)
		for j, c := range cells {
			cells[j] = truncateString(c, maxCellLength)
		}
		rows[i] = cells
	}
	md.Table(markdown.TableSet{
		Header: columns(events[0].Type),
		Rows:   rows,
	})
	md.PlainText("")
}

// WriteComparison outputs the difference between two scans in Markdown format.
func (w *MarkdownWriter) WriteComparison(c *database.Comparison) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Excavate Scan Comparison")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"", "Base", "Other"},
		Rows: [][]string{
			{"Scan ID", "`" + c.Base.ID + "`", "`" + c.Other.ID + "`"},
			{"Started", c.Base.StartedAt.Format("2006-01-02 15:04:05 MST"), c.Other.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Events", strconv.Itoa(c.Base.EventCount), strconv.Itoa(c.Other.EventCount)},
		},
	})
	md.PlainText("")
	md.PlainTextf("%d added, %d removed, %d unchanged.", len(c.Added), len(c.Removed), c.Unchanged)
	md.PlainText("")

	for _, section := range []struct {
		title  string
		events []*model.Event
	}{
		{"Added", c.Added},
		{"Removed", c.Removed},
	} {
		if len(section.events) == 0 {
			continue
		}
		md.H2(section.title)
		md.PlainText("")
		rows := make([][]string, len(section.events))
		for i, ev := range section.events {
			rows[i] = []string{string(ev.Type), truncateString(line(ev), maxCellLength)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Type", "Event"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [excavate](https://github.com/nao1215/excavate)*")
}
