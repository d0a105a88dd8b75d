package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/sitemirror/internal/model"
)

// maxPagesListed caps the page list of a Markdown report.
const maxPagesListed = 100

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, which gives tables, mermaid charts and GitHub alerts.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs one run in Markdown format.
func (w *MarkdownWriter) Write(res *model.Result) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeRun(md, res, true)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteBatch outputs an overview table followed by a section per run.
func (w *MarkdownWriter) WriteBatch(results []*model.Result) (int, error) {
	results = nonNil(results)
	md := markdown.NewMarkdown(w.output)

	md.H1("Sitemirror Batch Report")
	md.PlainText("")

	rows := make([][]string, len(results))
	for i, res := range results {
		s := NewSummary(res)
		rows[i] = []string{
			"`" + s.Site + "`",
			s.Status,
			strconv.Itoa(s.Pages),
			strconv.Itoa(s.Assets),
			strconv.Itoa(s.Errors),
			s.Duration,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Site", "Status", "Pages", "Assets", "Errors", "Duration"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, res := range results {
		w.writeRun(md, res, false)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeRun(md *markdown.Markdown, res *model.Result, top bool) {
	s := NewSummary(res)

	if top {
		md.H1("Sitemirror Report")
	} else {
		md.H2(s.Site)
	}
	md.PlainText("")

	rows := [][]string{
		{"Site", "`" + s.Site + "`"},
		{"Output", "`" + res.OutputDir + "`"},
	}
	if !res.StartedAt.IsZero() {
		rows = append(rows, []string{"Started", res.StartedAt.Format("2006-01-02 15:04:05 MST")})
	}
	rows = append(rows,
		[]string{"Duration", s.Duration},
		[]string{"Pages", strconv.Itoa(s.Pages)},
		[]string{"Assets", strconv.Itoa(s.Assets)},
		[]string{"Errors", strconv.Itoa(s.Errors)},
		[]string{"Status", s.Status},
	)
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeAlert(md, res)
	w.writeErrors(md, res, s)
	if top {
		w.writePages(md, res)
	}
}

// writeAlert writes an alert matching how the run ended.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, res *model.Result) {
	switch {
	case res.Phase == model.PhaseFailed:
		md.Cautionf("The mirror run failed. The output directory may be incomplete.")
	case res.Stopped:
		md.Warningf("The run was stopped early. Only the pages crawled so far were saved.")
	case res.ErrorCount() > 0:
		md.Importantf("%d item(s) could not be mirrored. See errors.json in the output directory.", res.ErrorCount())
	default:
		md.Tip("Every page and asset was mirrored.")
	}
	md.PlainText("")
}

// writeErrors writes the error breakdown with a pie chart.
func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, res *model.Result, s *Summary) {
	if s.Errors == 0 {
		return
	}

	md.PlainText("### Errors")
	md.PlainText("")

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Errors by Type"),
		piechart.WithShowData(true),
	)
	for _, t := range errorTypes(s.ErrorsByType) {
		chart.LabelAndIntValue(errorTypeLabel(t), uint64(s.ErrorsByType[t]))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")

	rows := make([][]string, len(res.Errors))
	for i, e := range res.Errors {
		rows[i] = []string{
			errorTypeLabel(e.Type),
			truncateString(e.URL, 60),
			truncateString(e.Error, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Type", "URL", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, res *model.Result) {
	if len(res.Pages) == 0 {
		return
	}

	md.PlainText("### Pages")
	md.PlainText("")

	pages := res.Pages
	if len(pages) > maxPagesListed {
		pages = pages[:maxPagesListed]
	}
	md.BulletList(pages...)
	if len(pages) < len(res.Pages) {
		md.PlainTextf("*... and %d more, see sitemap.json*", len(res.Pages)-len(pages))
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by [sitemirror](https://github.com/nao1215/sitemirror)*")
}
