package report

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/nao1215/sitemirror/internal/model"
)

// JSONWriter writes runs as JSON for scripts and the control panel.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string

	// version is embedded in every report when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the sitemirror version in the report.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONReport wraps a run with its summary and the generating version.
//
// Design decision: We wrap the Result rather than adding fields to it so
// output-specific data never leaks into sitemap.json or the history DB.
type JSONReport struct {
	Version string        `json:"version,omitempty"`
	Summary *Summary      `json:"summary"`
	Result  *model.Result `json:"result"`
}

// NewJSONReport creates a JSONReport for one run.
func NewJSONReport(res *model.Result, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Summary: NewSummary(res),
		Result:  res,
	}
}

// Write outputs one run in JSON format.
func (w *JSONWriter) Write(res *model.Result) (int, error) {
	return w.writeJSON(NewJSONReport(res, w.version))
}

// WriteBatch outputs every run as one JSON array.
func (w *JSONWriter) WriteBatch(results []*model.Result) (int, error) {
	results = nonNil(results)
	reports := make([]*JSONReport, len(results))
	for i, res := range results {
		reports[i] = NewJSONReport(res, w.version)
	}
	return w.writeJSON(reports)
}

// writeJSON encodes v followed by a newline.
//
// HTML escaping is off: report URLs carry query strings, and "&" should
// stay readable instead of becoming \u0026.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if w.indent {
		enc.SetIndent(w.indentPrefix, w.indentString)
	}
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}
