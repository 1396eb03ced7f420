package model

import (
	"sort"
	"time"
)

// Detail is one crawl-wide finding entry: a per-page detail string qualified
// with the page it came from.
type Detail struct {
	PageURL string `json:"page_url"`
	UqID    string `json:"uq_id"`
	Text    string `json:"text"`
}

// String returns the detail prefixed with its page URL.
func (d Detail) String() string {
	return d.PageURL + ": " + d.Text
}

// AnalyzerReport holds one analyzer's findings merged across all pages.
type AnalyzerReport struct {
	Name string `json:"name"`

	// CriticalDetails and WarningDetails are per-category lists in
	// fetch-completion order.
	CriticalDetails map[Category][]Detail `json:"critical_details,omitempty"`
	WarningDetails  map[Category][]Detail `json:"warning_details,omitempty"`

	// Totals counts summary lines emitted by this analyzer.
	Totals SeverityTotals `json:"totals"`
}

// NewAnalyzerReport returns an empty AnalyzerReport.
func NewAnalyzerReport(name string) *AnalyzerReport {
	return &AnalyzerReport{
		Name:            name,
		CriticalDetails: make(map[Category][]Detail),
		WarningDetails:  make(map[Category][]Detail),
	}
}

// Categories returns the categories with at least one detail, sorted.
func (a *AnalyzerReport) Categories() []Category {
	seen := make(map[Category]bool)
	for c := range a.CriticalDetails {
		seen[c] = true
	}
	for c := range a.WarningDetails {
		seen[c] = true
	}
	out := make([]Category, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CrawlReport is the merged result of one crawl.
//
// It is built incrementally by the aggregator and finalized once the
// frontier drains (or the crawl is cancelled). Writers and exporters only
// depend on this type.
type CrawlReport struct {
	// ID identifies the crawl run.
	ID string `json:"id"`

	// RootURL is the normalized URL of the first seed.
	RootURL string `json:"root_url"`

	// Seeds are the normalized seed URLs.
	Seeds []string `json:"seeds"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Cancelled is true when the crawl stopped before the frontier drained.
	Cancelled bool `json:"cancelled"`

	// Pages is the page index keyed by UqID.
	Pages map[string]*VisitedURL `json:"pages"`

	// PageOrder lists UqIDs in fetch-completion order.
	PageOrder []string `json:"page_order"`

	// ExternalURLs are discovered URLs outside the crawl origin. They are
	// recorded but never followed.
	ExternalURLs []FoundURL `json:"external_urls,omitempty"`

	// Analyzers holds the merged findings per analyzer.
	Analyzers map[string]*AnalyzerReport `json:"analyzers"`

	// AnalyzerOrder lists analyzer names in registration order.
	AnalyzerOrder []string `json:"analyzer_order"`

	// Totals counts summary lines per severity across all analyzers.
	Totals SeverityTotals `json:"totals"`

	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	// Error is the message of the error that ended the crawl early, if any.
	Error string `json:"error,omitempty"`
}

// NewCrawlReport creates an empty report.
func NewCrawlReport(id, rootURL string, seeds []string) *CrawlReport {
	return &CrawlReport{
		ID:        id,
		RootURL:   rootURL,
		Seeds:     seeds,
		StartedAt: time.Now(),
		Pages:     make(map[string]*VisitedURL),
		PageOrder: make([]string, 0),
		Analyzers: make(map[string]*AnalyzerReport),
	}
}

// OrderedPages returns the visited URLs in fetch-completion order.
func (r *CrawlReport) OrderedPages() []*VisitedURL {
	pages := make([]*VisitedURL, 0, len(r.PageOrder))
	for _, id := range r.PageOrder {
		if p, ok := r.Pages[id]; ok {
			pages = append(pages, p)
		}
	}
	return pages
}

// Page returns the visited URL with the given UqID, or nil.
func (r *CrawlReport) Page(uqID string) *VisitedURL {
	return r.Pages[uqID]
}

// OrderedAnalyzers returns the analyzer reports in registration order.
func (r *CrawlReport) OrderedAnalyzers() []*AnalyzerReport {
	out := make([]*AnalyzerReport, 0, len(r.AnalyzerOrder))
	for _, name := range r.AnalyzerOrder {
		if a, ok := r.Analyzers[name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// FailedPages returns pages that failed at transport level or returned an
// error status.
func (r *CrawlReport) FailedPages() []*VisitedURL {
	failed := make([]*VisitedURL, 0)
	for _, p := range r.OrderedPages() {
		if p.IsFailure() {
			failed = append(failed, p)
		}
	}
	return failed
}

// SeedFailures returns the seed pages that failed. A seed that never made it
// into the page index (for example because the crawl was cancelled first)
// is not reported here; callers check Cancelled for that case.
func (r *CrawlReport) SeedFailures() []*VisitedURL {
	failed := make([]*VisitedURL, 0)
	for _, p := range r.OrderedPages() {
		if p.Source.IsSeed() && p.IsFailure() {
			failed = append(failed, p)
		}
	}
	return failed
}

// HasSeedFailure reports whether any seed failed.
func (r *CrawlReport) HasSeedFailure() bool {
	return len(r.SeedFailures()) > 0
}

// Succeeded reports whether the crawl ran to completion without a fatal
// error and every seed was fetched successfully.
func (r *CrawlReport) Succeeded() bool {
	return r.Error == "" && !r.Cancelled && !r.HasSeedFailure()
}

// Duration returns the wall time of the crawl.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CategoryDetails returns every critical or warning detail recorded for
// category across all analyzers.
func (r *CrawlReport) CategoryDetails(category Category) []Detail {
	out := make([]Detail, 0)
	for _, a := range r.OrderedAnalyzers() {
		out = append(out, a.CriticalDetails[category]...)
		out = append(out, a.WarningDetails[category]...)
	}
	return out
}
