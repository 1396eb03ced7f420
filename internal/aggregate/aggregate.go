// Package aggregate merges per-page analysis results into a CrawlReport.
package aggregate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/sitecrawler/internal/analysis"
	"github.com/nao1215/sitecrawler/internal/model"
)

// ErrFinalized is returned by Record and Finalize after Finalize was called.
var ErrFinalized = errors.New("aggregator already finalized")

// AggregationError reports a broken bookkeeping invariant, such as a page
// recorded twice. It is fatal for the crawl.
type AggregationError struct {
	UqID   string
	URL    string
	Reason string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed for %s (%s): %s", e.URL, e.UqID, e.Reason)
}

// Aggregator builds a CrawlReport from concurrent Record calls.
type Aggregator struct {
	mu        sync.Mutex
	report    *model.CrawlReport
	externals map[string]bool
	finalized bool
	now       func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithID sets the crawl run identifier. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(a *Aggregator) {
		if id != "" {
			a.report.ID = id
		}
	}
}

// WithAnalyzers fixes the analyzer order of the report. Analyzers that
// report without being listed are appended in first-seen order.
func WithAnalyzers(names []string) Option {
	return func(a *Aggregator) {
		for _, name := range names {
			a.analyzerReport(name)
		}
	}
}

// WithClock sets the time source used for start and finish times.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates an Aggregator for a crawl rooted at rootURL.
func New(rootURL string, seeds []string, opts ...Option) *Aggregator {
	a := &Aggregator{
		report:    model.NewCrawlReport(uuid.NewString(), rootURL, seeds),
		externals: make(map[string]bool),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.report.StartedAt = a.now()
	return a
}

// Record adds one fetched page and its analysis results.
//
// The whole merge happens under one lock, so the details of one page are
// contiguous in every category list and pages appear in the order their
// Record calls completed.
func (a *Aggregator) Record(visited *model.VisitedURL, results []analysis.NamedResult, diags []model.Diagnostic) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return ErrFinalized
	}
	if visited == nil {
		return &AggregationError{Reason: "nil page"}
	}
	if visited.UqID == "" {
		return &AggregationError{URL: visited.URL, Reason: "page without uqId"}
	}
	if _, ok := a.report.Pages[visited.UqID]; ok {
		return &AggregationError{UqID: visited.UqID, URL: visited.URL, Reason: "page recorded twice"}
	}

	a.report.Pages[visited.UqID] = visited
	a.report.PageOrder = append(a.report.PageOrder, visited.UqID)

	for _, nr := range results {
		if nr.Result == nil {
			continue
		}
		ar := a.analyzerReport(nr.Analyzer)
		mergeDetails(ar.CriticalDetails, nr.Result.CriticalDetails, visited)
		mergeDetails(ar.WarningDetails, nr.Result.WarningDetails, visited)

		totals := nr.Result.Totals()
		ar.Totals.Add(totals)
		a.report.Totals.Add(totals)
	}

	a.report.Diagnostics = append(a.report.Diagnostics, diags...)
	return nil
}

// RecordExternal adds an external URL once. Calls after Finalize are
// ignored.
func (a *Aggregator) RecordExternal(found model.FoundURL) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized || a.externals[found.UqID] {
		return
	}
	a.externals[found.UqID] = true
	a.report.ExternalURLs = append(a.report.ExternalURLs, found)
}

// AddDiagnostic records a diagnostic that does not belong to a page
// record, such as a failed export.
func (a *Aggregator) AddDiagnostic(d model.Diagnostic) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.finalized {
		a.report.Diagnostics = append(a.report.Diagnostics, d)
	}
}

// ID returns the crawl run identifier.
func (a *Aggregator) ID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report.ID
}

// PageCount returns the number of recorded pages.
func (a *Aggregator) PageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.report.PageOrder)
}

// Finalize closes the aggregator and returns the report. It may be called
// once, after every Record call has returned.
func (a *Aggregator) Finalize(cancelled bool) (*model.CrawlReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return nil, ErrFinalized
	}
	a.finalized = true
	a.report.Cancelled = cancelled
	a.report.FinishedAt = a.now()
	return a.report, nil
}

// analyzerReport returns the report for name, creating it on first use.
// The caller holds a.mu or is the constructor.
func (a *Aggregator) analyzerReport(name string) *model.AnalyzerReport {
	if ar, ok := a.report.Analyzers[name]; ok {
		return ar
	}
	ar := model.NewAnalyzerReport(name)
	a.report.Analyzers[name] = ar
	a.report.AnalyzerOrder = append(a.report.AnalyzerOrder, name)
	return ar
}

func mergeDetails(dst map[model.Category][]model.Detail, src map[model.Category][]string, visited *model.VisitedURL) {
	for category, details := range src {
		for _, text := range details {
			dst[category] = append(dst[category], model.Detail{
				PageURL: visited.URL,
				UqID:    visited.UqID,
				Text:    text,
			})
		}
	}
}
