package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/excavate/internal/database"
)

// JSONWriter renders reports as a single JSON document for other tools.
type JSONWriter struct {
	baseWriter

	// indent is the per-level indentation; empty means compact output.
	indent string

	// version, when set, wraps the report in a JSONReport.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent indents nested values with indent.
func WithIndent(indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = indent
	}
}

// WithPrettyPrint indents with two spaces.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("  ")
}

// WithVersion wraps the report in an object carrying the excavate version
// and per-type event counts.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter writing to output.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document written by a JSONWriter with a version.
//
// Design decision: the version lives in a wrapper rather than in Report so
// that stored and compared reports carry scan data only.
type JSONReport struct {
	Version string         `json:"version"`
	Counts  map[string]int `json:"counts"`
	Report  *Report        `json:"report"`
}

// Write renders report.
func (w *JSONWriter) Write(report *Report) (int, error) {
	if w.version == "" {
		return w.encode(report)
	}

	counts := make(map[string]int)
	for t, n := range report.CountByType() {
		counts[string(t)] = n
	}
	return w.encode(&JSONReport{Version: w.version, Counts: counts, Report: report})
}

// WriteComparison renders c.
func (w *JSONWriter) WriteComparison(c *database.Comparison) (int, error) {
	return w.encode(c)
}

// encode writes v followed by a newline.
func (w *JSONWriter) encode(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent != "" {
		data, err = json.MarshalIndent(v, "", w.indent)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	return w.output.Write(append(data, '\n'))
}
