package report

import (
	"io"

	"github.com/nao1215/sitemirror/internal/model"
)

// Writer defines the interface for report output.
// Implementations write mirror results in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the report of one mirror run.
	// Returns the number of bytes written and any error encountered.
	Write(res *model.Result) (int, error)

	// WriteBatch outputs the reports of several runs, in order.
	WriteBatch(results []*model.Result) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(res *model.Result) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(res)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteBatch outputs the batch report to all configured Writers.
func (m *MultiWriter) WriteBatch(results []*model.Result) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteBatch(results)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// nonNil drops nil entries, which a cancelled batch leaves for targets
// that never started.
func nonNil(results []*model.Result) []*model.Result {
	out := make([]*model.Result, 0, len(results))
	for _, res := range results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}
