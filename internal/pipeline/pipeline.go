package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/sitecrawler/internal/aggregate"
	"github.com/nao1215/sitecrawler/internal/analysis"
	"github.com/nao1215/sitecrawler/internal/crawler"
	"github.com/nao1215/sitecrawler/internal/model"
)

// PageContext carries one page through the steps. Steps read the page and
// append results and diagnostics; the record step hands them to the
// aggregator.
type PageContext struct {
	Page        *crawler.Page
	Results     []analysis.NamedResult
	Diagnostics []model.Diagnostic

	// ExportPath is the export-relative path of the page's markdown
	// artifact, if one was written.
	ExportPath string
}

// AddDiagnostic appends a diagnostic bound to the page.
func (pc *PageContext) AddDiagnostic(kind, message string) {
	d := model.Diagnostic{Kind: kind, Message: message}
	if pc.Page != nil && pc.Page.Visited != nil {
		d.UqID = pc.Page.Visited.UqID
		d.URL = pc.Page.Visited.URL
	}
	pc.Diagnostics = append(pc.Diagnostics, d)
}

// Step is one stage of per-page processing.
type Step interface {
	// Do executes the step. Returning an error stops the page unless the
	// pipeline continues on error; aggregation errors always stop it.
	Do(ctx context.Context, pc *PageContext) error

	// Name returns the step's name for logging and diagnostics.
	Name() string
}

// Pipeline runs its steps in order for every page the crawler hands over.
// It implements crawler.PageHandler and is safe for concurrent use as long
// as its steps are.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// continueOnError keeps later steps running after a non-fatal failure.
	// The failure is recorded as a diagnostic named after the step.
	continueOnError bool

	externals func(model.FoundURL)
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithExternalHandler sets the function receiving external URLs.
func WithExternalHandler(fn func(model.FoundURL)) Option {
	return func(p *Pipeline) {
		p.externals = fn
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		continueOnError: false,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps for one page.
//
// Cancellation is checked before each step, so a page interrupted by a
// cancelled crawl never reaches the record step.
func (p *Pipeline) Execute(ctx context.Context, pc *PageContext) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Debug("pipeline cancelled",
				"step", step.Name(),
				"url", pageURL(pc),
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"url", pageURL(pc),
		)

		if err := step.Do(ctx, pc); err != nil {
			if isFatal(err) || !p.continueOnError {
				p.logger.Error("step failed",
					"step", step.Name(),
					"url", pageURL(pc),
					"error", err,
				)
				return err
			}

			p.logger.Warn("step failed",
				"step", step.Name(),
				"url", pageURL(pc),
				"error", err,
			)
			pc.AddDiagnostic(step.Name(), err.Error())
		}
	}

	return nil
}

// HandlePage runs the pipeline for a crawled page.
func (p *Pipeline) HandlePage(ctx context.Context, page *crawler.Page) error {
	pc := &PageContext{
		Page:        page,
		Diagnostics: append([]model.Diagnostic(nil), page.Diagnostics...),
	}
	return p.Execute(ctx, pc)
}

// HandleExternal forwards an external URL to the configured handler.
func (p *Pipeline) HandleExternal(found model.FoundURL) {
	if p.externals != nil {
		p.externals(found)
	}
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

// isFatal reports whether err breaks the report's bookkeeping, in which
// case the crawl must stop.
func isFatal(err error) bool {
	var aggErr *aggregate.AggregationError
	return errors.As(err, &aggErr) || errors.Is(err, aggregate.ErrFinalized)
}

func pageURL(pc *PageContext) string {
	if pc == nil || pc.Page == nil || pc.Page.Visited == nil {
		return ""
	}
	return pc.Page.Visited.URL
}
