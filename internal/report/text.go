package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/nao1215/sitecrawler/internal/model"
)

// DefaultMaxDetails is the number of detail lines printed per category in
// non-verbose text output.
const DefaultMaxDetails = 5

// TextWriter outputs human-readable text reports for terminal display.
type TextWriter struct {
	baseWriter

	// color enables ANSI colors for severity labels.
	color bool

	// verbose prints every detail line and the diagnostics.
	verbose bool

	maxDetails int
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithColor enables colored severity labels.
func WithColor(enabled bool) TextWriterOption {
	return func(w *TextWriter) {
		w.color = enabled
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// WithMaxDetails limits the detail lines per category in non-verbose
// output.
func WithMaxDetails(n int) TextWriterOption {
	return func(w *TextWriter) {
		if n > 0 {
			w.maxDetails = n
		}
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{
		baseWriter: newBaseWriter(output),
		maxDetails: DefaultMaxDetails,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full report in human-readable format.
func (w *TextWriter) Write(report *model.CrawlReport) (int, error) {
	summary := model.NewSummary(report)

	var sb strings.Builder
	w.writeHeader(&sb, summary)
	w.writeSummary(&sb, summary)
	w.writeFindings(&sb, report)
	w.writeFailedPages(&sb, report)
	if w.verbose {
		w.writeDiagnostics(&sb, report)
	}
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// WriteSummary outputs the summary with one line per category.
func (w *TextWriter) WriteSummary(summary *model.Summary) (int, error) {
	var sb strings.Builder
	w.writeHeader(&sb, summary)
	w.writeSummary(&sb, summary)

	if len(summary.Categories) > 0 {
		writeSection(&sb, "FINDINGS")
		for _, c := range summary.Categories {
			fmt.Fprintf(&sb, "  [%s] %s (%s): %d on %d page(s)\n",
				w.severityLabel(c.Severity), c.Title, c.Category, c.Count, c.Pages)
		}
		sb.WriteString("\n")
	}
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func (w *TextWriter) writeHeader(sb *strings.Builder, s *model.Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        SITECRAWLER REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Root URL:       %s\n", s.RootURL)
	fmt.Fprintf(sb, "Started:        %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", s.Duration)
	fmt.Fprintf(sb, "Pages Visited:  %d (html: %d, failed: %d)\n", s.PagesVisited, s.HTMLPages, s.PagesFailed)
	fmt.Fprintf(sb, "External URLs:  %d\n", s.ExternalURLs)
	fmt.Fprintf(sb, "Status:         %s\n", statusText(s.Cancelled, s.Error))
	sb.WriteString("\n")
}

func (w *TextWriter) writeSummary(sb *strings.Builder, s *model.Summary) {
	writeSection(sb, "SEVERITY SUMMARY")

	fmt.Fprintf(sb, "  %s %d\n", w.paint(model.SeverityCritical, "CRITICAL:"), s.Totals.Critical)
	fmt.Fprintf(sb, "  %s  %d\n", w.paint(model.SeverityWarning, "WARNING:"), s.Totals.Warning)
	fmt.Fprintf(sb, "  %s   %d\n", w.paint(model.SeverityNotice, "NOTICE:"), s.Totals.Notice)
	fmt.Fprintf(sb, "  %s       %d\n", w.paint(model.SeverityOK, "OK:"), s.Totals.OK)
	sb.WriteString("\n")

	if s.SeedsFailed > 0 {
		fmt.Fprintf(sb, "  %d seed(s) failed\n", s.SeedsFailed)
	}
	if s.AnalyzerFails > 0 {
		fmt.Fprintf(sb, "  %d analyzer failure(s)\n", s.AnalyzerFails)
	}
	if s.SeedsFailed > 0 || s.AnalyzerFails > 0 {
		sb.WriteString("\n")
	}
}

// writeFindings lists every category with findings per analyzer, critical
// categories first.
func (w *TextWriter) writeFindings(sb *strings.Builder, report *model.CrawlReport) {
	if report.Totals.Total() == 0 {
		return
	}

	writeSection(sb, "FINDINGS")

	for _, a := range report.OrderedAnalyzers() {
		if len(a.CriticalDetails) == 0 && len(a.WarningDetails) == 0 {
			continue
		}
		fmt.Fprintf(sb, "%s\n", strings.ToUpper(a.Name))
		w.writeCategories(sb, model.SeverityCritical, a.CriticalDetails)
		w.writeCategories(sb, model.SeverityWarning, a.WarningDetails)
		sb.WriteString("\n")
	}
}

func (w *TextWriter) writeCategories(sb *strings.Builder, severity model.Severity, details map[model.Category][]model.Detail) {
	for _, category := range sortedCategories(details) {
		list := details[category]
		info := category.Info()
		fmt.Fprintf(sb, "  [%s] %s (%s): %d\n", w.severityLabel(severity), info.Title, category, len(list))
		if info.Recommendation != "" {
			fmt.Fprintf(sb, "      %s\n", info.Recommendation)
		}

		limit := len(list)
		if !w.verbose && limit > w.maxDetails {
			limit = w.maxDetails
		}
		for _, d := range list[:limit] {
			fmt.Fprintf(sb, "      - %s\n", truncateString(d.String(), 160))
		}
		if rest := len(list) - limit; rest > 0 {
			fmt.Fprintf(sb, "      ... and %d more\n", rest)
		}
	}
}

func (w *TextWriter) writeFailedPages(sb *strings.Builder, report *model.CrawlReport) {
	failed := report.FailedPages()
	if len(failed) == 0 {
		return
	}

	writeSection(sb, "FAILED PAGES")
	for _, p := range failed {
		reason := p.StatusText()
		if msg := p.Extra(model.ExtraError); msg != "" {
			reason += ": " + msg
		}
		fmt.Fprintf(sb, "  %s  %s\n", w.paint(model.SeverityCritical, reason), p.URL)
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeDiagnostics(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Diagnostics) == 0 {
		return
	}

	writeSection(sb, "DIAGNOSTICS")
	for _, d := range report.Diagnostics {
		source := d.Kind
		if d.Analyzer != "" {
			source += "/" + d.Analyzer
		}
		if d.URL != "" {
			fmt.Fprintf(sb, "  [%s] %s: %s\n", source, d.URL, d.Message)
		} else {
			fmt.Fprintf(sb, "  [%s] %s\n", source, d.Message)
		}
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// severityLabel returns the bracketed indicator for severity.
func (w *TextWriter) severityLabel(severity model.Severity) string {
	switch severity {
	case model.SeverityCritical:
		return w.paint(severity, "!!!")
	case model.SeverityWarning:
		return w.paint(severity, "!")
	case model.SeverityNotice:
		return w.paint(severity, "i")
	default:
		return w.paint(severity, "ok")
	}
}

// paint colors s according to severity when color output is enabled.
func (w *TextWriter) paint(severity model.Severity, s string) string {
	var c *color.Color
	switch severity {
	case model.SeverityCritical:
		c = color.New(color.FgRed, color.Bold)
	case model.SeverityWarning:
		c = color.New(color.FgYellow)
	case model.SeverityNotice:
		c = color.New(color.FgCyan)
	default:
		c = color.New(color.FgGreen)
	}
	if w.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func sortedCategories(details map[model.Category][]model.Detail) []model.Category {
	out := make([]model.Category, 0, len(details))
	for c, list := range details {
		if len(list) > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
