// Package model defines the data structures shared by the crawler, the
// analyzers, the aggregator and the report writers.
//
// The main types are:
//   - FoundURL: a discovered URL waiting in the frontier
//   - VisitedURL: the outcome of one fetch attempt
//   - AnalysisResult: one analyzer's findings for one page
//   - CrawlReport: the merged page index and findings of a crawl
//   - Summary: a flattened view of a CrawlReport for humans
//
// Models live in their own package so that crawler, analysis, aggregate and
// report can share them without import cycles. All of them serialize to JSON
// for report output and database storage.
package model
