package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/sitecrawler/internal/aggregate"
	"github.com/nao1215/sitecrawler/internal/analysis"
	"github.com/nao1215/sitecrawler/internal/crawler"
	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

// AnalyzeStep runs the analyzer registry on the page.
// Analyzer failures never fail the step; they become diagnostics.
type AnalyzeStep struct {
	registry *analysis.Registry
	metrics  *crawler.Metrics
}

// AnalyzeStepOption configures an AnalyzeStep.
type AnalyzeStepOption func(*AnalyzeStep)

// WithAnalyzeMetrics records analyzer failures and findings in m.
func WithAnalyzeMetrics(m *crawler.Metrics) AnalyzeStepOption {
	return func(s *AnalyzeStep) {
		s.metrics = m
	}
}

// NewAnalyzeStep creates a new analysis step.
func NewAnalyzeStep(registry *analysis.Registry, opts ...AnalyzeStepOption) *AnalyzeStep {
	s := &AnalyzeStep{registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *AnalyzeStep) Name() string {
	return "analyze"
}

// Do executes the analysis step.
func (s *AnalyzeStep) Do(_ context.Context, pc *PageContext) error {
	page := pc.Page
	results, diags := s.registry.Run(page.Visited, page.Body, page.Document)

	for _, d := range diags {
		s.metrics.ObserveAnalyzerFailure(d.Analyzer)
	}
	for _, nr := range results {
		s.metrics.ObserveFindings(nr.Analyzer, nr.Result.Totals())
	}

	pc.Results = append(pc.Results, results...)
	pc.Diagnostics = append(pc.Diagnostics, diags...)
	return nil
}

// PageExporter writes a page artifact and returns its path relative to the
// export root.
type PageExporter interface {
	ExportPage(visited *model.VisitedURL, doc *document.Document) (string, error)
}

// ExportStep writes successfully fetched internal HTML pages through an
// exporter.
type ExportStep struct {
	exporter PageExporter
	logger   *slog.Logger
}

// ExportStepOption configures an ExportStep.
type ExportStepOption func(*ExportStep)

// WithExportLogger sets a custom logger for the export step.
func WithExportLogger(logger *slog.Logger) ExportStepOption {
	return func(s *ExportStep) {
		s.logger = logger
	}
}

// NewExportStep creates a new export step.
func NewExportStep(exporter PageExporter, opts ...ExportStepOption) *ExportStep {
	s := &ExportStep{
		exporter: exporter,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name. It doubles as the diagnostic kind.
func (s *ExportStep) Name() string {
	return model.DiagnosticExport
}

// Do executes the export step.
func (s *ExportStep) Do(_ context.Context, pc *PageContext) error {
	v := pc.Page.Visited
	if v.IsExternal || !v.IsHTML() || !v.IsSuccess() || pc.Page.Document.IsEmpty() {
		return nil
	}

	path, err := s.exporter.ExportPage(v, pc.Page.Document)
	if err != nil {
		return fmt.Errorf("export %s: %w", v.URL, err)
	}
	pc.ExportPath = path
	s.logger.Debug("exported page", "url", v.URL, "path", path)
	return nil
}

// PageStore persists fetched pages of a crawl run.
type PageStore interface {
	SavePage(ctx context.Context, runID string, page *model.VisitedURL) error
}

// PersistStep stores every page record of the run.
type PersistStep struct {
	store PageStore
	runID string
}

// NewPersistStep creates a new persistence step for the run runID.
func NewPersistStep(store PageStore, runID string) *PersistStep {
	return &PersistStep{store: store, runID: runID}
}

// Name returns the step name. It doubles as the diagnostic kind.
func (s *PersistStep) Name() string {
	return model.DiagnosticPersist
}

// Do executes the persistence step.
func (s *PersistStep) Do(ctx context.Context, pc *PageContext) error {
	if err := s.store.SavePage(ctx, s.runID, pc.Page.Visited); err != nil {
		return fmt.Errorf("persist %s: %w", pc.Page.Visited.URL, err)
	}
	return nil
}

// RecordStep hands the page and everything collected for it to the
// aggregator. Its errors are fatal for the crawl.
type RecordStep struct {
	aggregator *aggregate.Aggregator
}

// NewRecordStep creates a new record step.
func NewRecordStep(agg *aggregate.Aggregator) *RecordStep {
	return &RecordStep{aggregator: agg}
}

// Name returns the step name.
func (s *RecordStep) Name() string {
	return "record"
}

// Do executes the record step.
func (s *RecordStep) Do(_ context.Context, pc *PageContext) error {
	return s.aggregator.Record(pc.Page.Visited, pc.Results, pc.Diagnostics)
}
