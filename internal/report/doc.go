// Package report renders crawl reports.
//
// Writers exist for three formats:
//   - TextWriter: human-readable output for terminal display, optionally
//     colored
//   - JSONWriter and FullJSONWriter: structured output for tool integration
//   - MarkdownWriter: tables and collapsible details for sharing
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output. They only read
// model.CrawlReport and model.Summary.
package report
