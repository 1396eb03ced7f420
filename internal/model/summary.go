package model

import (
	"sort"
	"time"
)

// Summary is a flattened, human-oriented view of a CrawlReport.
// Text and Markdown writers and the run history use it instead of walking
// the full report.
type Summary struct {
	ID        string    `json:"id"`
	RootURL   string    `json:"root_url"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Cancelled bool      `json:"cancelled"`
	Error     string    `json:"error,omitempty"`

	PagesVisited  int `json:"pages_visited"`
	PagesFailed   int `json:"pages_failed"`
	HTMLPages     int `json:"html_pages"`
	ExternalURLs  int `json:"external_urls"`
	SeedsFailed   int `json:"seeds_failed"`
	AnalyzerFails int `json:"analyzer_failures"`

	Totals SeverityTotals `json:"totals"`

	// Categories lists every category with findings, most severe first.
	Categories []CategorySummary `json:"categories,omitempty"`

	// ContentTypes counts visited URLs per content type.
	ContentTypes map[string]int `json:"content_types,omitempty"`
}

// CategorySummary aggregates one category of one analyzer.
type CategorySummary struct {
	Analyzer       string   `json:"analyzer"`
	Category       Category `json:"category"`
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Recommendation string   `json:"recommendation,omitempty"`
	Count          int      `json:"count"`
	Pages          int      `json:"pages"`
}

// NewSummary builds a Summary from a report.
func NewSummary(report *CrawlReport) *Summary {
	s := &Summary{
		ID:           report.ID,
		RootURL:      report.RootURL,
		StartedAt:    report.StartedAt,
		Duration:     report.Duration().Round(time.Millisecond).String(),
		Cancelled:    report.Cancelled,
		Error:        report.Error,
		PagesVisited: len(report.PageOrder),
		ExternalURLs: len(report.ExternalURLs),
		SeedsFailed:  len(report.SeedFailures()),
		Totals:       report.Totals,
		ContentTypes: make(map[string]int),
	}

	for _, p := range report.OrderedPages() {
		if p.IsFailure() {
			s.PagesFailed++
		}
		if p.IsHTML() {
			s.HTMLPages++
		}
		s.ContentTypes[p.ContentType.String()]++
	}

	for _, d := range report.Diagnostics {
		if d.Kind == DiagnosticAnalyzer {
			s.AnalyzerFails++
		}
	}

	for _, a := range report.OrderedAnalyzers() {
		s.Categories = append(s.Categories, summarizeDetails(a.Name, SeverityCritical, a.CriticalDetails)...)
		s.Categories = append(s.Categories, summarizeDetails(a.Name, SeverityWarning, a.WarningDetails)...)
	}

	sort.SliceStable(s.Categories, func(i, j int) bool {
		a, b := s.Categories[i], s.Categories[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})

	return s
}

// summarizeDetails turns one detail map into CategorySummary rows.
func summarizeDetails(analyzer string, severity Severity, details map[Category][]Detail) []CategorySummary {
	rows := make([]CategorySummary, 0, len(details))
	for category, list := range details {
		if len(list) == 0 {
			continue
		}
		pages := make(map[string]bool)
		for _, d := range list {
			pages[d.UqID] = true
		}
		info := category.Info()
		rows = append(rows, CategorySummary{
			Analyzer:       analyzer,
			Category:       category,
			Severity:       severity,
			Title:          info.Title,
			Recommendation: info.Recommendation,
			Count:          len(list),
			Pages:          len(pages),
		})
	}
	return rows
}

// HasFindings reports whether any critical or warning line was emitted.
func (s *Summary) HasFindings() bool {
	return s.Totals.Total() > 0
}

// CategoryCount returns the detail count for category across analyzers.
func (s *Summary) CategoryCount(category Category) int {
	total := 0
	for _, c := range s.Categories {
		if c.Category == category {
			total += c.Count
		}
	}
	return total
}
