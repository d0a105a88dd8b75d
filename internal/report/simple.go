package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/sitemirror/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: Plain text with ASCII rules rather than ANSI colors, so
// the output reads the same in a terminal, a file or a CI log.
type SimpleWriter struct {
	baseWriter

	// verbose lists every recorded error instead of only the counts.
	verbose bool

	// maxErrors caps the errors listed in verbose mode; 0 means no cap.
	maxErrors int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables listing of individual errors.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithMaxErrors caps the number of errors listed in verbose mode.
func WithMaxErrors(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		if n >= 0 {
			w.maxErrors = n
		}
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		maxErrors:  20,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs one run in human-readable format.
func (w *SimpleWriter) Write(res *model.Result) (int, error) {
	var sb strings.Builder
	w.writeRun(&sb, res)
	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// WriteBatch outputs every run followed by a one-line-per-site overview.
func (w *SimpleWriter) WriteBatch(results []*model.Result) (int, error) {
	results = nonNil(results)

	var sb strings.Builder
	for _, res := range results {
		w.writeRun(&sb, res)
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("BATCH OVERVIEW\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	var failed int
	for _, res := range results {
		s := NewSummary(res)
		if res.Phase == model.PhaseFailed {
			failed++
		}
		sb.WriteString(fmt.Sprintf("  %-40s %-10s pages=%d assets=%d errors=%d\n",
			truncateString(s.Site, 40), s.Status, s.Pages, s.Assets, s.Errors))
	}
	sb.WriteString(fmt.Sprintf("\n  %d site(s), %d failed\n\n", len(results), failed))

	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeRun(sb *strings.Builder, res *model.Result) {
	s := NewSummary(res)

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       SITEMIRROR REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Site:      %s\n", s.Site))
	sb.WriteString(fmt.Sprintf("Output:    %s\n", res.OutputDir))
	if !res.StartedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Started:   %s\n", res.StartedAt.Format("2006-01-02 15:04:05 MST")))
	}
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", s.Duration))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", s.Status))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("  Pages:   %d\n", s.Pages))
	sb.WriteString(fmt.Sprintf("  Assets:  %d\n", s.Assets))
	sb.WriteString(fmt.Sprintf("  Errors:  %d\n", s.Errors))
	for _, t := range errorTypes(s.ErrorsByType) {
		sb.WriteString(fmt.Sprintf("    %-22s %d\n", errorTypeLabel(t)+":", s.ErrorsByType[t]))
	}
	sb.WriteString("\n")

	if w.verbose && len(res.Errors) > 0 {
		w.writeErrors(sb, res.Errors)
	}
}

func (w *SimpleWriter) writeErrors(sb *strings.Builder, errs []model.ErrorRecord) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("ERRORS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	shown := errs
	if w.maxErrors > 0 && len(shown) > w.maxErrors {
		shown = shown[:w.maxErrors]
	}
	for _, e := range shown {
		sb.WriteString(fmt.Sprintf("  [%s] %s\n", e.Type, e.URL))
		sb.WriteString(fmt.Sprintf("    %s\n", e.Error))
	}
	if len(shown) < len(errs) {
		sb.WriteString(fmt.Sprintf("  ... and %d more (see errors.json)\n", len(errs)-len(shown)))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
