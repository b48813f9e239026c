package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/excavate/internal/database"
	"github.com/nao1215/excavate/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no events are shown.
	showEmpty bool

	// verbose adds URL_UNVERIFIED and HTTP_RESPONSE sections.
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

// WithVerbose enables verbose output with additional sections.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeEvents(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the report header with scan information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *Report) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         EXCAVATE REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Targets:        %s\n", strings.Join(report.Targets, ", "))
	fmt.Fprintf(sb, "Scan Date:      %s\n", report.Date.Format("2006-01-02 15:04:05 MST"))
	if report.ScanID != "" {
		fmt.Fprintf(sb, "Scan ID:        %s\n", report.ScanID)
	}
	fmt.Fprintf(sb, "Pages Fetched:  %d (%d failed)\n", report.PagesFetched, report.PagesFailed)
	fmt.Fprintf(sb, "Elapsed:        %s\n", report.Elapsed.Round(time.Millisecond))

	if report.Canceled {
		sb.WriteString("Status:         CANCELED (partial results)\n")
	} else {
		sb.WriteString("Status:         Complete\n")
	}
	sb.WriteString("\n")
}

// writeSummary writes the per-type event counts.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *Report) {
	writeSection(sb, "EVENT SUMMARY")

	counts := report.CountByType()
	total := 0
	for _, t := range TypeOrder {
		fmt.Fprintf(sb, "  %-16s %d\n", string(t)+":", counts[t])
		total += counts[t]
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  %-16s %d events\n", "TOTAL:", total)
	sb.WriteString("\n")
}

// writeEvents writes one section per event type.
func (w *SimpleWriter) writeEvents(sb *strings.Builder, report *Report) {
	for _, t := range TypeOrder {
		if !w.verbose && (t == model.EventTypeURLUnverified || t == model.EventTypeHTTPResponse) {
			continue
		}
		events := report.OfType(t)
		if len(events) == 0 && !w.showEmpty {
			continue
		}

		writeSection(sb, string(t))
		if len(events) == 0 {
			sb.WriteString("  None\n\n")
			continue
		}
		for _, ev := range events {
			fmt.Fprintf(sb, "  [+] %s\n", line(ev))
		}
		sb.WriteString("\n")
	}
}

// WriteComparison outputs the difference between two scans as text.
func (w *SimpleWriter) WriteComparison(c *database.Comparison) (int, error) {
	var sb strings.Builder

	writeSection(&sb, "SCAN COMPARISON")
	fmt.Fprintf(&sb, "Base:   %s (%s, %d events)\n", c.Base.ID, c.Base.StartedAt.Format("2006-01-02 15:04:05 MST"), c.Base.EventCount)
	fmt.Fprintf(&sb, "Other:  %s (%s, %d events)\n", c.Other.ID, c.Other.StartedAt.Format("2006-01-02 15:04:05 MST"), c.Other.EventCount)
	fmt.Fprintf(&sb, "\n%d added, %d removed, %d unchanged\n\n", len(c.Added), len(c.Removed), c.Unchanged)

	for _, ev := range c.Added {
		fmt.Fprintf(&sb, "  + %-14s %s\n", ev.Type, line(ev))
	}
	for _, ev := range c.Removed {
		fmt.Fprintf(&sb, "  - %-14s %s\n", ev.Type, line(ev))
	}

	return io.WriteString(w.output, sb.String())
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by excavate\n")
	sb.WriteString("https://github.com/nao1215/excavate\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
