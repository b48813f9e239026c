// Package report provides report generation and output functionality.
//
// A Report gathers the events of one scan together with its page counters.
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown with tables per event type and a Mermaid pie chart
//
// Every writer also renders a database.Comparison, the difference between
// two stored scans.
//
// Design decision: We separate report writing from the event model to
// follow the single responsibility principle. This allows adding new output
// formats without modifying the core data structures.
package report
