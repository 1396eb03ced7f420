package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/sitecrawler/internal/aggregate"
	"github.com/nao1215/sitecrawler/internal/analysis"
	"github.com/nao1215/sitecrawler/internal/crawler"
	"github.com/nao1215/sitecrawler/internal/model"
)

// RunStore persists pages and finished crawl runs.
type RunStore interface {
	PageStore
	SaveRun(ctx context.Context, report *model.CrawlReport) error
}

// Runner performs one crawl: it wires a fresh aggregator and page pipeline
// to the spider and returns the finalized report.
type Runner struct {
	spider   *crawler.Spider
	registry *analysis.Registry
	exporter PageExporter
	store    RunStore
	metrics  *crawler.Metrics
	runID    string
	logger   *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithExporter exports every internal HTML page through e.
func WithExporter(e PageExporter) RunnerOption {
	return func(r *Runner) {
		r.exporter = e
	}
}

// WithStore persists pages and the finished run in s.
func WithStore(s RunStore) RunnerOption {
	return func(r *Runner) {
		r.store = s
	}
}

// WithRunMetrics records analyzer metrics in m. The spider's own metrics
// are configured on the spider.
func WithRunMetrics(m *crawler.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithRunID sets the crawl run identifier.
func WithRunID(id string) RunnerOption {
	return func(r *Runner) {
		r.runID = id
	}
}

// WithRunnerLogger sets a custom logger for the runner and its pipeline.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner crawling with spider and analyzing with
// registry.
func NewRunner(spider *crawler.Spider, registry *analysis.Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		spider:   spider,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run crawls seeds and returns the report.
//
// The report is returned even when err is non-nil: a cancelled crawl yields
// a partial report marked Cancelled, a fatal error a report of everything
// recorded before it.
func (r *Runner) Run(ctx context.Context, seeds []string) (*model.CrawlReport, error) {
	rootURL := ""
	if len(seeds) > 0 {
		rootURL = seeds[0]
		if canonical, _, err := r.spider.Normalizer().Normalize(seeds[0], nil); err == nil {
			rootURL = canonical
		}
	}

	agg := aggregate.New(rootURL, seeds,
		aggregate.WithID(r.runID),
		aggregate.WithAnalyzers(r.registry.Names()),
	)

	p := New(
		WithLogger(r.logger),
		WithContinueOnError(true),
		WithExternalHandler(agg.RecordExternal),
	)
	p.AddStep(NewAnalyzeStep(r.registry, WithAnalyzeMetrics(r.metrics)))
	if r.exporter != nil {
		p.AddStep(NewExportStep(r.exporter, WithExportLogger(r.logger)))
	}
	if r.store != nil {
		p.AddStep(NewPersistStep(r.store, agg.ID()))
	}
	p.AddStep(NewRecordStep(agg))

	r.logger.Debug("starting run", "id", agg.ID(), "root", rootURL, "steps", p.StepNames())

	stats, crawlErr := r.spider.Crawl(ctx, seeds, p)

	report, err := agg.Finalize(stats.Cancelled)
	if err != nil {
		return nil, err
	}

	if r.store != nil {
		// The run is stored even when ctx was cancelled.
		if err := r.store.SaveRun(context.WithoutCancel(ctx), report); err != nil {
			r.logger.Warn("failed to store crawl run", "id", report.ID, "error", err)
			report.Diagnostics = append(report.Diagnostics, model.Diagnostic{
				Kind:    model.DiagnosticPersist,
				Message: err.Error(),
			})
		}
	}

	r.logger.Debug("run finished",
		"id", report.ID,
		"pages", len(report.PageOrder),
		"accepted", stats.Frontier.Accepted,
		"cancelled", report.Cancelled,
	)

	if crawlErr != nil {
		err := fmt.Errorf("crawl %s: %w", rootURL, crawlErr)
		report.Error = err.Error()
		return report, err
	}
	return report, nil
}
