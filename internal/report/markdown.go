package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/sitecrawler/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing, for
// example as a CI job summary.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	summary := model.NewSummary(report)
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeSummary(md, summary)
	w.writeFindings(md, report)
	w.writeFailedPages(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs the summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(summary *model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeSummary(md, summary)
	w.writeCategoryTable(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.Summary) {
	md.H1("Site Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Root URL", "`" + s.RootURL + "`"},
			{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", s.Duration},
			{"Pages Visited", strconv.Itoa(s.PagesVisited)},
			{"HTML Pages", strconv.Itoa(s.HTMLPages)},
			{"Failed Pages", strconv.Itoa(s.PagesFailed)},
			{"External URLs", strconv.Itoa(s.ExternalURLs)},
			{"Status", w.getStatusText(s)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(s *model.Summary) string {
	if s.Error != "" {
		return "❌ Error - " + s.Error
	}
	if s.Cancelled {
		return "⚠️ Cancelled (partial results)"
	}
	return "✅ Complete"
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s *model.Summary) {
	md.H2("Severity Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows: [][]string{
			{"🔴 Critical", strconv.Itoa(s.Totals.Critical)},
			{"🟡 Warning", strconv.Itoa(s.Totals.Warning)},
			{"🔵 Notice", strconv.Itoa(s.Totals.Notice)},
			{"🟢 OK", strconv.Itoa(s.Totals.OK)},
		},
	})
	md.PlainText("")

	if s.HasFindings() {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart of findings per category.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Findings by Category"),
		piechart.WithShowData(true),
	)

	counts := make(map[model.Category]int)
	order := make([]model.Category, 0)
	for _, c := range s.Categories {
		if _, ok := counts[c.Category]; !ok {
			order = append(order, c.Category)
		}
		counts[c.Category] += c.Count
	}
	for _, category := range order {
		chart.LabelAndIntValue(string(category), uint64(counts[category]))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on severity counts.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.Summary) {
	switch {
	case s.SeedsFailed > 0:
		md.Cautionf("%d seed URL(s) could not be fetched.", s.SeedsFailed)
	case s.Totals.Critical > 0:
		md.Cautionf("%d critical finding(s) require attention.", s.Totals.Critical)
	case s.Totals.Warning > 0:
		md.Warningf("%d warning(s) should be reviewed.", s.Totals.Warning)
	default:
		md.Tip("No critical or warning findings.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeCategoryTable(md *markdown.Markdown, s *model.Summary) {
	md.H2("Findings")
	md.PlainText("")

	if len(s.Categories) == 0 {
		md.PlainText("No findings.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		rows = append(rows, []string{
			c.Severity.String(),
			c.Analyzer,
			c.Title,
			"`" + string(c.Category) + "`",
			strconv.Itoa(c.Count),
			strconv.Itoa(c.Pages),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Analyzer", "Finding", "Category", "Count", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFindings writes the category table followed by the details of each
// category in a collapsible block.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, report *model.CrawlReport) {
	summary := model.NewSummary(report)
	w.writeCategoryTable(md, summary)

	for _, c := range summary.Categories {
		a := report.Analyzers[c.Analyzer]
		if a == nil {
			continue
		}
		details := a.WarningDetails[c.Category]
		if c.Severity == model.SeverityCritical {
			details = a.CriticalDetails[c.Category]
		}

		lines := make([]string, 0, len(details))
		for _, d := range details {
			lines = append(lines, "- "+escapeInline(truncateString(d.String(), 200)))
		}
		title := c.Title + " (" + strconv.Itoa(c.Count) + ")"
		if c.Recommendation != "" {
			lines = append([]string{c.Recommendation, ""}, lines...)
		}
		md.Details(title, strings.Join(lines, "\n"))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailedPages(md *markdown.Markdown, report *model.CrawlReport) {
	failed := report.FailedPages()
	if len(failed) == 0 {
		return
	}

	md.H2("Failed Pages")
	md.PlainText("")

	rows := make([][]string, 0, len(failed))
	for _, p := range failed {
		rows = append(rows, []string{
			p.StatusText(),
			truncateString(p.URL, 80),
			p.Source.String(),
			truncateString(p.Extra(model.ExtraError), 60),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Status", "URL", "Found Via", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by sitecrawler*")
}

// escapeInline keeps markup in detail text from being rendered.
func escapeInline(s string) string {
	r := strings.NewReplacer("<", "&lt;", ">", "&gt;", "|", "\\|")
	return r.Replace(s)
}
