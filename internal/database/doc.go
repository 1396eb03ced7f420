// Package database provides SQLite-based run history for sitecrawler.
//
// The CrawlDB stores:
//   - visited URLs, written by the page pipeline while a crawl runs
//   - finished crawl reports as JSON with their severity totals
//   - per-category finding counts, used to compare two runs of a site
//
// The database is a single file (modernc.org/sqlite, no cgo) in WAL mode.
package database
