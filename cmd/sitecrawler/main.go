// Package main provides the entry point for the sitecrawler CLI.
//
// sitecrawler crawls a website, analyzes every page for accessibility, SEO,
// security and best-practice issues and prints an aggregated report.
//
// Usage:
//
//	sitecrawler --url https://example.com/
//	sitecrawler --url-list urls.txt --json
//
// See --help for all available options.
package main

func main() {
	Execute()
}
