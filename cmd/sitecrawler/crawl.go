package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawler/internal/analysis"
	"github.com/nao1215/sitecrawler/internal/config"
	"github.com/nao1215/sitecrawler/internal/crawler"
	"github.com/nao1215/sitecrawler/internal/database"
	"github.com/nao1215/sitecrawler/internal/export"
	"github.com/nao1215/sitecrawler/internal/model"
	"github.com/nao1215/sitecrawler/internal/pipeline"
	"github.com/nao1215/sitecrawler/internal/report"
)

var (
	// errSeedsFailed is returned when at least one seed did not complete.
	errSeedsFailed = errors.New("crawl did not complete successfully")

	// errInterrupted is returned when the crawl was cancelled by a signal.
	errInterrupted = errors.New("crawl interrupted")
)

// metricsShutdownTimeout bounds the metrics server shutdown.
const metricsShutdownTimeout = 5 * time.Second

// addCrawlFlags registers the crawl flags on the root command.
func addCrawlFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	// Seeds
	f.StringArrayP("url", "u", nil,
		"Seed URL (repeatable; more than one seed selects list mode)")
	f.String("url-list", "",
		"File with one seed URL per line (list mode)")

	// Scope
	f.IntP("max-depth", "d", config.DefaultMaxDepth,
		"Maximum hops from the seed (0 = unlimited)")
	f.IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of URLs accepted into the crawl (0 = unlimited)")
	f.Bool("single-page", false,
		"Fetch the seeds only")
	f.Bool("remove-query-params", false,
		"Drop query strings when normalizing URLs")
	f.String("origin-policy", config.DefaultOriginPolicy,
		"How external URLs are recognized: scheme-host, host or registrable-domain")
	f.Bool("ignore-robots-txt", false,
		"Do not honor robots.txt")
	f.Bool("sitemap", false,
		"Also seed the crawl from the site's sitemap")

	// Fetching
	f.IntP("workers", "w", config.DefaultWorkers,
		"Number of concurrent fetch workers")
	f.IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent crawls in list mode")
	f.DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	f.Float64("max-reqs-per-sec", config.DefaultMaxReqsPerSec,
		"Maximum requests per second per host (0 = unlimited)")
	f.Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	f.String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")

	// Resource types
	f.Bool("disable-images", false, "Do not follow image references")
	f.Bool("disable-styles", false, "Do not follow stylesheet references")
	f.Bool("disable-javascript", false, "Do not follow script references")
	f.Bool("disable-media", false, "Do not follow audio and video references")
	f.Bool("disable-frames", false, "Do not follow frame references")

	// Analysis
	f.String("analyzer-filter-regex", "",
		"Run only analyzers whose name matches this regular expression")

	// Markdown export
	f.String("markdown-export-dir", "",
		"Export every crawled HTML page as markdown below this directory")
	f.String("markdown-export-single-file", "",
		"Also combine the export into this file (relative to the run directory)")
	f.Bool("markdown-move-content-before-h1-to-end", false,
		"Move content preceding the first heading to the end of the page")
	f.Bool("markdown-disable-images", false,
		"Drop images from the export")
	f.Bool("markdown-disable-files", false,
		"Render links to downloadable files as plain text")
	f.StringArray("markdown-exclude-selector", nil,
		"CSS selector removed before export (repeatable)")
	f.StringArray("markdown-replace-content", nil,
		`Replacement applied to exported markdown, "search -> replace" or "/regex/ -> replace" (repeatable)`)

	// Report
	f.StringP("output", "o", "",
		"Write the report to this file instead of stdout")
	f.BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	f.BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	f.Bool("no-color", false, "Disable colored output")
	f.Bool("force-color", false, "Force colored output")
	f.Bool("hide-progress-bar", false, "Do not draw the progress line")

	// Operations
	f.String("metrics-addr", "",
		"Serve Prometheus metrics on this address while crawling (e.g. :9090)")
	f.Bool("no-db", false,
		"Do not store the run in the history database")
	f.StringP("config", "c", "",
		"Configuration file path (default: .sitecrawler in current or home directory)")
}

// runCrawlCmd executes a crawl.
func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return newUsageError(fmt.Errorf("configuration error: %w", err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressEnabled := !cfg.HideProgressBar && isTerminal(cmd.ErrOrStderr())
	return runCrawl(ctx, cfg, cmd.OutOrStdout(), newProgressLine(cmd.ErrOrStderr(), progressEnabled), slog.Default())
}

// buildConfig creates a Config from the command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	f := cmd.Flags()

	var errs []error
	get := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.URLs, err = f.GetStringArray("url")
	get(err)
	cfg.URLListFile, err = f.GetString("url-list")
	get(err)
	cfg.MaxDepth, err = f.GetInt("max-depth")
	get(err)
	cfg.MaxPages, err = f.GetInt("max-pages")
	get(err)
	cfg.SinglePage, err = f.GetBool("single-page")
	get(err)
	cfg.RemoveQueryParams, err = f.GetBool("remove-query-params")
	get(err)
	cfg.OriginPolicy, err = f.GetString("origin-policy")
	get(err)
	cfg.IgnoreRobotsTxt, err = f.GetBool("ignore-robots-txt")
	get(err)
	cfg.Sitemap, err = f.GetBool("sitemap")
	get(err)

	cfg.Workers, err = f.GetInt("workers")
	get(err)
	cfg.BatchSize, err = f.GetInt("batch")
	get(err)
	cfg.Timeout, err = f.GetDuration("timeout")
	get(err)
	cfg.MaxReqsPerSec, err = f.GetFloat64("max-reqs-per-sec")
	get(err)
	cfg.MaxBodySize, err = f.GetInt64("max-body-size")
	get(err)
	cfg.UserAgent, err = f.GetString("user-agent")
	get(err)

	cfg.DisableImages, err = f.GetBool("disable-images")
	get(err)
	cfg.DisableStyles, err = f.GetBool("disable-styles")
	get(err)
	cfg.DisableJavascript, err = f.GetBool("disable-javascript")
	get(err)
	cfg.DisableMedia, err = f.GetBool("disable-media")
	get(err)
	cfg.DisableFrames, err = f.GetBool("disable-frames")
	get(err)

	cfg.AnalyzerFilterRegex, err = f.GetString("analyzer-filter-regex")
	get(err)

	cfg.MarkdownExportDir, err = f.GetString("markdown-export-dir")
	get(err)
	cfg.MarkdownExportSingleFile, err = f.GetString("markdown-export-single-file")
	get(err)
	cfg.MarkdownMoveBeforeH1, err = f.GetBool("markdown-move-content-before-h1-to-end")
	get(err)
	cfg.MarkdownDisableImages, err = f.GetBool("markdown-disable-images")
	get(err)
	cfg.MarkdownDisableFiles, err = f.GetBool("markdown-disable-files")
	get(err)
	cfg.MarkdownExcludeSelectors, err = f.GetStringArray("markdown-exclude-selector")
	get(err)
	cfg.MarkdownReplaceContent, err = f.GetStringArray("markdown-replace-content")
	get(err)

	cfg.ReportFile, err = f.GetString("output")
	get(err)
	cfg.JSONReport, err = f.GetBool("json")
	get(err)
	cfg.MarkdownReport, err = f.GetBool("markdown")
	get(err)
	cfg.NoColor, err = f.GetBool("no-color")
	get(err)
	cfg.ForceColor, err = f.GetBool("force-color")
	get(err)
	cfg.HideProgressBar, err = f.GetBool("hide-progress-bar")
	get(err)

	cfg.MetricsAddr, err = f.GetString("metrics-addr")
	get(err)
	cfg.NoDB, err = f.GetBool("no-db")
	get(err)
	cfg.DBDir, err = f.GetString("db-dir")
	get(err)
	cfg.ConfigFilePath, err = f.GetString("config")
	get(err)
	cfg.Verbose, err = f.GetBool("verbose")
	get(err)
	cfg.LogJSON, err = f.GetBool("log-json")
	get(err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	// An explicitly named config file must exist; otherwise a missing
	// file just means no site settings.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, newUsageError(fmt.Errorf("failed to load config file %s: %w", configPath, err))
		}
	case cfg.ConfigFilePath != "":
		return nil, newUsageError(fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath))
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	return cfg, nil
}

// seeds returns the --url seeds followed by the --url-list entries.
func seeds(cfg *config.Config) ([]string, error) {
	out := append([]string{}, cfg.URLs...)
	if cfg.URLListFile != "" {
		list, err := config.ReadURLList(cfg.URLListFile)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

// session holds everything shared by the crawls of one invocation.
type session struct {
	cfg          *config.Config
	registry     *analysis.Registry
	policy       crawler.OriginPolicy
	replacements []export.Replacement
	db           *database.CrawlDB
	metrics      *crawler.Metrics
	progress     *progressLine
	started      time.Time
	logger       *slog.Logger

	mu        sync.Mutex
	exporters []*export.Exporter
	exportDir map[string]int
}

// runCrawl crawls the configured seeds, writes the report and returns an
// error unless every seed succeeded.
func runCrawl(ctx context.Context, cfg *config.Config, stdout io.Writer, progress *progressLine, logger *slog.Logger) error {
	targets, err := seeds(cfg)
	if err != nil {
		return err
	}

	policy, err := crawler.ParseOriginPolicy(cfg.OriginPolicy)
	if err != nil {
		return newUsageError(err)
	}
	registry, err := analysis.NewRegistry(
		analysis.WithFilter(cfg.AnalyzerFilterRegex),
		analysis.WithLogger(logger),
	)
	if err != nil {
		return newUsageError(err)
	}
	replacements, err := export.ParseReplacements(cfg.MarkdownReplaceContent)
	if err != nil {
		return newUsageError(err)
	}

	s := &session{
		cfg:          cfg,
		registry:     registry,
		policy:       policy,
		replacements: replacements,
		progress:     progress,
		started:      time.Now(),
		logger:       logger,
		exportDir:    make(map[string]int),
	}

	if cfg.SaveToDB() {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		s.db = db
		logger.Debug("database opened", "path", db.Path())
	}

	if cfg.MetricsAddr != "" {
		s.metrics = crawler.NewMetrics()
		shutdown, err := serveMetrics(cfg.MetricsAddr, s.metrics, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	var reports []*model.CrawlReport
	var crawlErr error
	if cfg.IsListMode() {
		reports, crawlErr = s.runList(ctx, targets)
	} else {
		var r *model.CrawlReport
		r, crawlErr = s.runSingle(ctx, targets)
		if r != nil {
			reports = append(reports, r)
		}
	}
	progress.Done()

	if crawlErr != nil {
		if len(reports) == 0 {
			return crawlErr
		}
		logger.Error("crawl failed", "error", crawlErr)
	}

	for _, e := range s.exporters {
		if path, err := e.Finish(); err != nil {
			logger.Error("failed to write combined export", "dir", e.Dir(), "error", err)
		} else if path != "" {
			logger.Info("combined export written", "file", path)
		}
	}

	if err := writeReports(cfg, stdout, reports); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return errInterrupted
	}
	failed := len(targets) - len(reports)
	for _, r := range reports {
		if r == nil || !r.Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d seeds failed", errSeedsFailed, failed, len(targets))
	}
	return nil
}

// runSingle crawls the site of the seed recursively.
func (s *session) runSingle(ctx context.Context, targets []string) (*model.CrawlReport, error) {
	runner, err := s.newRunner(targets[0], false)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, targets)
}

// runList crawls every seed as an independent single page. The returned
// slice is in seed order; seeds that never started are dropped.
func (s *session) runList(ctx context.Context, targets []string) ([]*model.CrawlReport, error) {
	results := make([]*model.CrawlReport, len(targets))
	var done atomic.Int64

	bp := pipeline.NewBatchProcessor(
		func(seed string) (*pipeline.Runner, error) {
			return s.newRunner(seed, true)
		},
		pipeline.WithConcurrency(s.cfg.BatchSize),
		pipeline.WithBatchLogger(s.logger),
	)
	err := bp.ProcessBatchWithCallback(ctx, targets, func(r *model.CrawlReport, i int) {
		results[i] = r
		s.progress.Seed(int(done.Add(1)), len(targets))
	})

	reports := make([]*model.CrawlReport, 0, len(results))
	for _, r := range results {
		if r != nil {
			reports = append(reports, r)
		}
	}
	return reports, err
}

// newRunner builds the fetcher, spider, exporter and runner for one seed,
// applying the site settings of the seed's host.
func (s *session) newRunner(seed string, listMode bool) (*pipeline.Runner, error) {
	cfg := s.cfg
	site := cfg.SiteConfigs.GetSiteConfig(hostOf(seed))

	fetcher := crawler.NewFetcher(
		crawler.WithTimeout(cfg.Timeout),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithHeaders(site.Headers),
		crawler.WithCookie(site.Cookie),
		crawler.WithFetcherLogger(s.logger),
	)

	maxDepth := cfg.MaxDepth
	if site.MaxDepth > 0 {
		maxDepth = site.MaxDepth
	}

	spiderOpts := []crawler.SpiderOption{
		crawler.WithWorkers(cfg.Workers),
		crawler.WithMaxDepth(maxDepth),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithSinglePageMode(cfg.SinglePage || listMode),
		crawler.WithRemoveQueryParams(cfg.RemoveQueryParams),
		crawler.WithOrigin(s.policy),
		crawler.WithResourceTypes(crawler.ResourceTypes{
			Images:  !cfg.DisableImages,
			Styles:  !cfg.DisableStyles,
			Scripts: !cfg.DisableJavascript,
			Media:   !cfg.DisableMedia,
			Frames:  !cfg.DisableFrames,
		}),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithRobots(!cfg.IgnoreRobotsTxt),
		crawler.WithSitemap(cfg.Sitemap),
		crawler.WithRateLimit(cfg.MaxReqsPerSec),
		crawler.WithMetrics(s.metrics),
		crawler.WithLogger(s.logger),
	}
	if !listMode {
		spiderOpts = append(spiderOpts, crawler.WithProgress(s.progress.Frontier))
	}

	runnerOpts := []pipeline.RunnerOption{
		pipeline.WithRunMetrics(s.metrics),
		pipeline.WithRunnerLogger(s.logger),
	}
	if s.db != nil {
		runnerOpts = append(runnerOpts, pipeline.WithStore(s.db))
	}
	if cfg.MarkdownExportDir != "" {
		exporter, err := s.newExporter(seed, site)
		if err != nil {
			return nil, err
		}
		runnerOpts = append(runnerOpts, pipeline.WithExporter(exporter))
	}

	return pipeline.NewRunner(crawler.NewSpider(fetcher, spiderOpts...), s.registry, runnerOpts...), nil
}

// newExporter creates the exporter of one run in its own directory below
// the export root.
func (s *session) newExporter(seed string, site config.SiteConfig) (*export.Exporter, error) {
	cfg := s.cfg
	name := export.RunDirName(seed, s.started)

	s.mu.Lock()
	s.exportDir[name]++
	if n := s.exportDir[name]; n > 1 {
		name = fmt.Sprintf("%s-%d", name, n)
	}
	s.mu.Unlock()

	selectors := append(append([]string{}, cfg.MarkdownExcludeSelectors...), site.ExcludeSelectors...)
	exporter, err := export.New(filepath.Join(cfg.MarkdownExportDir, name),
		export.WithSingleFile(cfg.MarkdownExportSingleFile),
		export.WithMoveBeforeH1(cfg.MarkdownMoveBeforeH1),
		export.WithDisableImages(cfg.MarkdownDisableImages),
		export.WithDisableFiles(cfg.MarkdownDisableFiles),
		export.WithExcludeSelectors(selectors),
		export.WithReplacements(s.replacements),
		export.WithLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown export: %w", err)
	}

	s.mu.Lock()
	s.exporters = append(s.exporters, exporter)
	s.mu.Unlock()
	return exporter, nil
}

// hostOf returns the host of a seed, or the seed itself when it does not
// parse.
func hostOf(seed string) string {
	u, err := url.Parse(seed)
	if err != nil || u.Host == "" {
		return seed
	}
	return u.Host
}

// serveMetrics starts the Prometheus endpoint and returns its shutdown
// function. The listener is opened synchronously so a busy address fails
// the run before crawling starts.
func serveMetrics(addr string, m *crawler.Metrics, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}, nil
}

// writeReports writes the reports in the selected format to --output or
// stdout.
func writeReports(cfg *config.Config, stdout io.Writer, reports []*model.CrawlReport) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		// Reports may contain cookies echoed in URLs, so keep them private.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	format, err := report.ParseFormat(cfg.ReportFormat())
	if err != nil {
		return err
	}

	if format == report.FormatJSON && cfg.IsListMode() {
		_, err := report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint()).WriteBatch(reports)
		return err
	}

	color := report.ColorEnabled(output, cfg.NoColor, cfg.ForceColor)
	w, err := report.NewWriter(format, output, getVersion(), color, cfg.Verbose)
	if err != nil {
		return err
	}
	for _, r := range reports {
		if _, err := w.Write(r); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}
