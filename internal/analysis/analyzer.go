package analysis

import (
	"errors"
	"fmt"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

// ErrInvalidFilter is returned when the analyzer filter is not a valid
// regular expression.
var ErrInvalidFilter = errors.New("invalid analyzer filter")

// Analyzer checks one fetched page.
//
// Implementations must be stateless across calls: the same input always
// produces the same result, and Analyze may be called concurrently from
// several fetch workers.
type Analyzer interface {
	// Name returns the analyzer's stable identifier.
	Name() string

	// Analyze runs the checks. doc is never nil but may be empty.
	Analyze(visited *model.VisitedURL, body []byte, doc *document.Document, opts Options) (*model.AnalysisResult, error)
}

// ContentTypeFilter is implemented by analyzers that run on content other
// than HTML. Analyzers without it only see HTML pages.
type ContentTypeFilter interface {
	Accepts(ct model.ContentType) bool
}

// Options tunes the thresholds used by the analyzers.
type Options struct {
	// MinTitleLength and MaxTitleLength bound a good title, in characters.
	MinTitleLength int
	MaxTitleLength int

	// MinDescriptionLength and MaxDescriptionLength bound a good meta
	// description, in characters.
	MinDescriptionLength int
	MaxDescriptionLength int

	// MinHSTSMaxAge is the shortest acceptable HSTS max-age in seconds.
	MinHSTSMaxAge int
}

// DefaultOptions returns the default thresholds.
func DefaultOptions() Options {
	return Options{
		MinTitleLength:       10,
		MaxTitleLength:       65,
		MinDescriptionLength: 50,
		MaxDescriptionLength: 160,
		MinHSTSMaxAge:        15552000,
	}
}

// NamedResult is the result of one analyzer for one page.
type NamedResult struct {
	Analyzer string
	Result   *model.AnalysisResult
}

// AnalyzerError reports an analyzer that failed or panicked on a page. The
// page keeps an empty result for that analyzer.
type AnalyzerError struct {
	Analyzer string
	URL      string
	Err      error
	Panicked bool
}

func (e *AnalyzerError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("analyzer %s panicked on %s: %v", e.Analyzer, e.URL, e.Err)
	}
	return fmt.Sprintf("analyzer %s failed on %s: %v", e.Analyzer, e.URL, e.Err)
}

func (e *AnalyzerError) Unwrap() error {
	return e.Err
}

// accepts reports whether a runs on content type ct.
func accepts(a Analyzer, ct model.ContentType) bool {
	if f, ok := a.(ContentTypeFilter); ok {
		return f.Accepts(ct)
	}
	return ct == model.ContentTypeHTML
}

// pluralCount renders a summary function for a count of offending items.
func pluralCount(format string) model.SummaryFunc {
	return func(count int) string {
		return fmt.Sprintf(format, count)
	}
}
