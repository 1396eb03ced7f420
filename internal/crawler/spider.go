package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

// DefaultWorkers is the default size of the fetch worker pool.
const DefaultWorkers = 3

// Page is everything a worker learned about one URL. It is handed to the
// PageHandler once, after the page's links were offered to the frontier.
type Page struct {
	Visited  *model.VisitedURL
	Body     []byte
	Document *document.Document

	// Diagnostics lists recoverable problems: unparsable markup and links
	// that could not be normalized.
	Diagnostics []model.Diagnostic
}

// PageHandler consumes crawl output. HandlePage is called concurrently from
// the workers; returning an error aborts the crawl. HandleExternal is called
// once per distinct external URL.
type PageHandler interface {
	HandlePage(ctx context.Context, page *Page) error
	HandleExternal(found model.FoundURL)
}

// ProgressFunc is called after every processed URL.
type ProgressFunc func(stats FrontierStats)

// Spider crawls a website with a fixed pool of fetch workers sharing one
// frontier.
//
// A Spider holds configuration only; every Crawl call builds its own
// frontier, so one Spider can run several crawls at once.
type Spider struct {
	fetcher *Fetcher
	workers int

	maxDepth    int
	maxURLs     int
	singlePage  bool
	removeQuery bool
	policy      OriginPolicy
	resources   ResourceTypes

	// ignorePatterns are URL path patterns to skip during crawling.
	// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
	ignorePatterns []string

	// followPatterns restrict crawling to matching paths when set.
	followPatterns []string

	respectRobots bool
	robots        *RobotsChecker
	useSitemap    bool
	limiter       *HostLimiter
	metrics       *Metrics
	progress      ProgressFunc
	logger        *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithWorkers sets the number of concurrent fetch workers.
func WithWorkers(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxDepth limits the hop count from the seed. 0 means unlimited.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages stops queueing discovered URLs after n were accepted.
// 0 means unlimited.
func WithMaxPages(n int) SpiderOption {
	return func(s *Spider) {
		s.maxURLs = n
	}
}

// WithSinglePageMode fetches the seeds only and extracts no links.
func WithSinglePageMode(singlePage bool) SpiderOption {
	return func(s *Spider) {
		s.singlePage = singlePage
	}
}

// WithRemoveQueryParams drops query strings during normalization.
func WithRemoveQueryParams(remove bool) SpiderOption {
	return func(s *Spider) {
		s.removeQuery = remove
	}
}

// WithOrigin sets the policy that separates internal from external URLs.
func WithOrigin(policy OriginPolicy) SpiderOption {
	return func(s *Spider) {
		s.policy = policy
	}
}

// WithResourceTypes selects which references besides anchors are followed.
func WithResourceTypes(types ResourceTypes) SpiderOption {
	return func(s *Spider) {
		s.resources = types
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are crawled.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithRobots enables or disables robots.txt checks. Enabled by default.
func WithRobots(respect bool) SpiderOption {
	return func(s *Spider) {
		s.respectRobots = respect
	}
}

// WithSitemap seeds the crawl from /sitemap.xml of the root origin.
func WithSitemap(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.useSitemap = enabled
	}
}

// WithRateLimit limits requests per second per host. 0 disables limiting.
func WithRateLimit(perSecond float64) SpiderOption {
	return func(s *Spider) {
		s.limiter = NewHostLimiter(perSecond)
	}
}

// WithMetrics records crawl metrics.
func WithMetrics(m *Metrics) SpiderOption {
	return func(s *Spider) {
		s.metrics = m
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) SpiderOption {
	return func(s *Spider) {
		s.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a Spider that fetches with fetcher.
func NewSpider(fetcher *Fetcher, opts ...SpiderOption) *Spider {
	if fetcher == nil {
		fetcher = NewFetcher()
	}

	s := &Spider{
		fetcher:       fetcher,
		workers:       DefaultWorkers,
		resources:     AllResourceTypes(),
		respectRobots: true,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.respectRobots {
		s.robots = NewRobotsChecker(fetcher.Client(), fetcher.UserAgent(), fetcher.Timeout(), s.logger)
	}

	return s
}

// CrawlStats summarizes a finished crawl.
type CrawlStats struct {
	Frontier  FrontierStats
	Cancelled bool
}

// crawl is the state of one Crawl call.
type crawl struct {
	spider     *Spider
	frontier   *Frontier
	normalizer *Normalizer
	root       *url.URL
	handler    PageHandler
}

// Normalizer returns a normalizer with the spider's query handling.
func (s *Spider) Normalizer() *Normalizer {
	return NewNormalizer(s.removeQuery)
}

// Crawl fetches seeds and everything reachable from them within scope,
// handing each page to handler.
//
// Crawl returns when the frontier is drained, when ctx is cancelled (the
// returned stats then report Cancelled), or when handler fails. Pages whose
// fetch was interrupted by the cancellation are not handed to handler.
func (s *Spider) Crawl(ctx context.Context, seeds []string, handler PageHandler) (CrawlStats, error) {
	if len(seeds) == 0 {
		return CrawlStats{}, ErrNoSeeds
	}

	normalizer := s.Normalizer()
	rootURL, _, err := normalizer.Normalize(seeds[0], nil)
	if err != nil {
		return CrawlStats{}, fmt.Errorf("invalid seed: %w", err)
	}
	root, err := url.Parse(rootURL)
	if err != nil {
		return CrawlStats{}, fmt.Errorf("invalid seed: %w", err)
	}

	c := &crawl{
		spider:     s,
		normalizer: normalizer,
		root:       root,
		handler:    handler,
		frontier: NewFrontier(root,
			WithNormalizer(normalizer),
			WithFrontierMaxDepth(s.maxDepth),
			WithMaxURLs(s.maxURLs),
			WithSinglePage(s.singlePage),
			WithOriginPolicy(s.policy),
			WithPathPatterns(s.ignorePatterns, s.followPatterns),
		),
	}

	accepted := 0
	for _, seed := range seeds {
		result, _, err := c.frontier.Offer(Candidate{RawURL: seed, Source: model.SourceInitURL})
		if err != nil {
			s.logger.Warn("skipping invalid seed", "url", seed, "error", err)
			continue
		}
		s.metrics.ObserveOffer(result)
		if result == OfferAccepted {
			accepted++
		}
	}
	if accepted == 0 {
		return CrawlStats{}, ErrNoSeeds
	}

	if s.useSitemap && !s.singlePage {
		c.seedFromSitemap(ctx)
	}

	s.logger.Debug("starting crawl",
		"root", rootURL,
		"seeds", len(seeds),
		"workers", s.workers,
		"max_depth", s.maxDepth,
		"single_page", s.singlePage,
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			return c.work(gctx)
		})
	}
	err = g.Wait()
	c.frontier.Close()

	stats := CrawlStats{
		Frontier:  c.frontier.Stats(),
		Cancelled: ctx.Err() != nil,
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return stats, err
	}
	return stats, nil
}

// work is the loop of one fetch worker.
func (c *crawl) work(ctx context.Context) error {
	for {
		found, ok := c.frontier.Take(ctx)
		if !ok {
			return nil
		}

		err := c.process(ctx, found)
		c.frontier.Done(found)

		stats := c.frontier.Stats()
		c.spider.metrics.ObserveFrontier(stats)
		if c.spider.progress != nil {
			c.spider.progress(stats)
		}

		if err != nil {
			return err
		}
	}
}

// process fetches one URL, offers its links and hands the page over.
func (c *crawl) process(ctx context.Context, found model.FoundURL) error {
	s := c.spider

	target, err := url.Parse(found.URL)
	if err != nil {
		return nil
	}

	// Non-seed URLs disallowed by robots.txt never reach the queue, so this
	// only matters for seeds: they are fetched but not followed.
	robotsAllowed := true
	if s.robots != nil {
		robotsAllowed = s.robots.Allowed(ctx, target)
	}

	if err := s.limiter.Wait(ctx, target.Host); err != nil {
		return nil
	}

	res := s.fetcher.Fetch(ctx, found)
	if ctx.Err() != nil {
		return nil
	}

	visited := res.Visited
	// Only seeds can be fetched outside the root origin.
	visited.IsExternal = !s.policy.SameOrigin(c.root, target)
	visited.IsAllowedForCrawling = !visited.IsExternal && !s.singlePage && robotsAllowed &&
		(s.maxDepth == 0 || found.Depth < s.maxDepth)
	s.metrics.ObserveFetch(visited)

	page := &Page{Visited: visited, Body: res.Body}

	if visited.ContentType == model.ContentTypeRedirect {
		c.offer(ctx, page, Candidate{
			RawURL:     visited.Extra(model.ExtraLocation),
			SourceUqID: visited.UqID,
			Source:     model.SourceRedirect,
			Depth:      found.Depth,
		})
	}

	doc, err := document.Parse(res.Body, visited.ContentTypeHeader, visited.ContentType, target)
	if err != nil {
		page.Diagnostics = append(page.Diagnostics, model.Diagnostic{
			UqID:    visited.UqID,
			URL:     visited.URL,
			Kind:    model.DiagnosticParse,
			Message: err.Error(),
		})
	}
	page.Document = doc
	if title := doc.Title(); title != "" {
		visited.Extras[model.ExtraTitle] = title
	}

	if visited.IsAllowedForCrawling && visited.IsHTML() && visited.IsSuccess() {
		base := doc.BaseURL()
		for _, link := range ExtractLinks(doc, s.resources) {
			c.offer(ctx, page, Candidate{
				RawURL:     link.URL,
				Base:       base,
				SourceUqID: visited.UqID,
				Source:     link.Source,
				Depth:      found.Depth + 1,
			})
		}
	}

	if err := c.handler.HandlePage(ctx, page); err != nil {
		return fmt.Errorf("handle %s: %w", visited.URL, err)
	}
	return nil
}

// offer checks robots.txt for internal candidates and offers them to the
// frontier. Normalization failures are recorded on page.
func (c *crawl) offer(ctx context.Context, page *Page, cand Candidate) {
	s := c.spider

	canonical, _, err := c.normalizer.Normalize(cand.RawURL, cand.Base)
	if err != nil {
		s.metrics.ObserveOffer(OfferInvalid)
		s.logger.Debug("dropping link", "url", cand.RawURL, "error", err)
		if page != nil {
			page.Diagnostics = append(page.Diagnostics, model.Diagnostic{
				UqID:    page.Visited.UqID,
				URL:     page.Visited.URL,
				Kind:    model.DiagnosticNormalization,
				Message: err.Error(),
			})
		}
		return
	}

	if s.robots != nil {
		if target, err := url.Parse(canonical); err == nil &&
			s.policy.SameOrigin(c.root, target) && !s.robots.Allowed(ctx, target) {
			s.metrics.ObserveOffer(OfferOutOfScope)
			s.logger.Debug("disallowed by robots.txt", "url", canonical)
			return
		}
	}

	cand.RawURL = canonical
	cand.Base = nil
	result, found, err := c.frontier.Offer(cand)
	if err != nil {
		return
	}
	s.metrics.ObserveOffer(result)
	if result == OfferExternal {
		c.handler.HandleExternal(found)
	}
}

// seedFromSitemap offers the URLs of the root's sitemap at depth 1.
func (c *crawl) seedFromSitemap(ctx context.Context) {
	sitemapURL := c.root.Scheme + "://" + c.root.Host + "/sitemap.xml"
	locs, err := ReadSitemap(ctx, c.spider.fetcher, sitemapURL)
	if err != nil {
		c.spider.logger.Warn("failed to read sitemap", "url", sitemapURL, "error", err)
		return
	}

	rootID := UqID(c.root.String())
	for _, loc := range locs {
		c.offer(ctx, nil, Candidate{
			RawURL:     loc,
			SourceUqID: rootID,
			Source:     model.SourceSitemap,
			Depth:      1,
		})
	}
	c.spider.logger.Debug("seeded from sitemap", "url", sitemapURL, "urls", len(locs))
}
