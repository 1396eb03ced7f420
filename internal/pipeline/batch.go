package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitecrawler/internal/model"
)

// DefaultBatchConcurrency is the number of seeds crawled at once in list
// mode.
const DefaultBatchConcurrency = 4

// RunnerFactory creates the runner for one seed. An error aborts the batch.
type RunnerFactory func(seed string) (*Runner, error)

// BatchProcessor runs list mode: every seed is crawled independently as a
// single-page crawl and produces its own report.
type BatchProcessor struct {
	runnerFactory RunnerFactory

	concurrency int

	logger *slog.Logger

	// results stores completed reports in seed order.
	results []*model.CrawlReport
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(runnerFactory RunnerFactory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		runnerFactory: runnerFactory,
		concurrency:   DefaultBatchConcurrency,
		results:       make([]*model.CrawlReport, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls every seed and returns the reports in seed order.
//
// A failing seed does not stop the others; its report (possibly empty) is
// still returned. A factory error stops the batch. Seeds not started before
// ctx was cancelled have a nil report, and the error is the context's.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.CrawlReport, error) {
	bp.logger.Debug("starting batch processing",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()
	bp.results = make([]*model.CrawlReport, len(seeds))

	err := bp.process(ctx, seeds, func(report *model.CrawlReport, i int) {
		bp.mu.Lock()
		bp.results[i] = report
		bp.mu.Unlock()
	})

	bp.logger.Debug("batch processing complete",
		"total_seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)

	return bp.results, err
}

// ProcessBatchWithCallback crawls every seed and calls callback for each
// finished report with the seed's index. The callback runs on the worker
// goroutine and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(report *model.CrawlReport, index int),
) error {
	return bp.process(ctx, seeds, callback)
}

func (bp *BatchProcessor) process(ctx context.Context, seeds []string, callback func(*model.CrawlReport, int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Debug("crawling seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			runner, err := bp.runnerFactory(seed)
			if err != nil {
				return fmt.Errorf("prepare crawl of %s: %w", seed, err)
			}

			report, err := runner.Run(ctx, []string{seed})
			if err != nil {
				// One seed failing must not cancel the others.
				bp.logger.Warn("seed crawl failed", "seed", seed, "error", err)
			}
			if report != nil {
				callback(report, i)
			}
			return nil
		})
	}

	return g.Wait()
}
