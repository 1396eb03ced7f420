// Package crawler discovers and fetches the pages of a website.
//
// # Architecture
//
// A Spider runs a fixed pool of fetch workers that share one Frontier per
// crawl. Workers take a URL, fetch it, offer the page's links back to the
// frontier and hand the result to a PageHandler. The crawl ends when the
// frontier is empty and no worker holds a URL, when the context is cancelled,
// or when the handler fails.
//
// # Components
//
//   - Normalizer: canonical URL form and the uqId derived from it
//   - Frontier: FIFO queue with dedup, depth and scope decisions
//   - Fetcher: HTTP client that never follows redirects and never fails
//   - RobotsChecker: cached robots.txt rules per origin
//   - HostLimiter: per host request rate
//   - Metrics: Prometheus collectors for one crawl
//
// # Scope
//
// URLs on another origin (see OriginPolicy) are reported once through
// PageHandler.HandleExternal and never fetched. Path patterns, depth and
// page limits apply to discovered URLs only; seeds are always fetched.
//
// # Usage
//
//	spider := crawler.NewSpider(crawler.NewFetcher(), crawler.WithMaxDepth(3))
//	stats, err := spider.Crawl(ctx, []string{"https://example.com/"}, handler)
package crawler
