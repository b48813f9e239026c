package report

import (
	"io"

	"github.com/nao1215/excavate/internal/database"
)

// Writer renders scan reports and scan comparisons.
//
// Design decision: one interface covers both documents so that the scan
// and compare commands select a format the same way and a MultiWriter can
// fan out either of them.
type Writer interface {
	// Write renders a finished scan and returns the number of bytes written.
	Write(report *Report) (int, error)

	// WriteComparison renders the difference between two stored scans.
	WriteComparison(c *database.Comparison) (int, error)
}

// MultiWriter fans every document out to several Writers, for example a
// report file and a terminal summary.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter returns a Writer over writers, used in order.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write renders report with every Writer and stops at the first error.
func (m *MultiWriter) Write(report *Report) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.Write(report) })
}

// WriteComparison renders c with every Writer and stops at the first error.
func (m *MultiWriter) WriteComparison(c *database.Comparison) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteComparison(c) })
}

// each calls write for every Writer and sums the bytes written.
func (m *MultiWriter) each(write func(Writer) (int, error)) (int, error) {
	total := 0
	for _, w := range m.writers {
		n, err := write(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter holds the destination shared by the format writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
