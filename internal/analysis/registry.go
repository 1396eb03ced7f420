package analysis

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

// Registry holds the ordered, closed set of analyzers run on every page.
type Registry struct {
	analyzers []Analyzer
	filter    string
	options   Options
	logger    *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithFilter keeps only analyzers whose name matches pattern.
func WithFilter(pattern string) RegistryOption {
	return func(r *Registry) {
		r.filter = pattern
	}
}

// WithOptions sets the thresholds passed to every analyzer.
func WithOptions(opts Options) RegistryOption {
	return func(r *Registry) {
		r.options = opts
	}
}

// WithAnalyzers replaces the built-in analyzers.
func WithAnalyzers(analyzers ...Analyzer) RegistryOption {
	return func(r *Registry) {
		r.analyzers = analyzers
	}
}

// WithLogger sets the logger used for analyzer failures.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry with the built-in analyzers in their
// reporting order.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		analyzers: []Analyzer{
			NewAccessibilityAnalyzer(),
			NewSEOAnalyzer(),
			NewSecurityAnalyzer(),
			NewBestPracticeAnalyzer(),
			NewImageMetadataAnalyzer(),
		},
		options: DefaultOptions(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.filter != "" {
		re, err := regexp.Compile(r.filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
		}
		kept := make([]Analyzer, 0, len(r.analyzers))
		for _, a := range r.analyzers {
			if re.MatchString(a.Name()) {
				kept = append(kept, a)
			}
		}
		r.analyzers = kept
	}

	return r, nil
}

// Names returns the names of the registered analyzers in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.analyzers))
	for _, a := range r.analyzers {
		names = append(names, a.Name())
	}
	return names
}

// Run applies every applicable analyzer to one page, in registry order.
//
// External pages are not analyzed. An analyzer that returns an error or
// panics contributes an empty result and a diagnostic; the remaining
// analyzers still run.
func (r *Registry) Run(visited *model.VisitedURL, body []byte, doc *document.Document) ([]NamedResult, []model.Diagnostic) {
	if visited == nil || visited.IsExternal {
		return nil, nil
	}
	if doc == nil {
		doc = document.Empty(nil)
	}

	results := make([]NamedResult, 0, len(r.analyzers))
	diags := make([]model.Diagnostic, 0)

	for _, a := range r.analyzers {
		if !accepts(a, visited.ContentType) {
			continue
		}

		res, err := r.runOne(a, visited, body, doc)
		if err != nil {
			r.logger.Warn("analyzer failed",
				"analyzer", a.Name(),
				"url", visited.URL,
				"error", err,
			)
			diags = append(diags, model.Diagnostic{
				UqID:     visited.UqID,
				URL:      visited.URL,
				Analyzer: a.Name(),
				Kind:     model.DiagnosticAnalyzer,
				Message:  err.Error(),
			})
			res = model.NewAnalysisResult()
		}
		if res == nil {
			res = model.NewAnalysisResult()
		}
		results = append(results, NamedResult{Analyzer: a.Name(), Result: res})
	}

	return results, diags
}

// runOne calls a, converting a panic into an *AnalyzerError.
func (r *Registry) runOne(a Analyzer, visited *model.VisitedURL, body []byte, doc *document.Document) (res *model.AnalysisResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = &AnalyzerError{
				Analyzer: a.Name(),
				URL:      visited.URL,
				Err:      fmt.Errorf("%v", p),
				Panicked: true,
			}
		}
	}()

	res, err = a.Analyze(visited, body, doc, r.options)
	if err != nil {
		return nil, &AnalyzerError{Analyzer: a.Name(), URL: visited.URL, Err: err}
	}
	return res, nil
}
