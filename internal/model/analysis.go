package model

// AnalysisResult is one analyzer's output for one page.
//
// Summary lines go to one of four buckets. Critical and warning lines are
// backed by a details list per category; the builder methods derive the
// summary count from len(details), so the two never disagree.
type AnalysisResult struct {
	Critical []string `json:"critical,omitempty"`
	Warning  []string `json:"warning,omitempty"`
	OK       []string `json:"ok,omitempty"`
	Notice   []string `json:"notice,omitempty"`

	CriticalDetails map[Category][]string `json:"critical_details,omitempty"`
	WarningDetails  map[Category][]string `json:"warning_details,omitempty"`
}

// NewAnalysisResult returns an empty result with initialized detail maps.
func NewAnalysisResult() *AnalysisResult {
	return &AnalysisResult{
		CriticalDetails: make(map[Category][]string),
		WarningDetails:  make(map[Category][]string),
	}
}

// SummaryFunc renders a summary line for a number of offending elements.
type SummaryFunc func(count int) string

// AddCritical records a critical finding for category. Nothing is recorded
// when details is empty.
func (r *AnalysisResult) AddCritical(category Category, summary SummaryFunc, details []string) {
	if len(details) == 0 {
		return
	}
	if r.CriticalDetails == nil {
		r.CriticalDetails = make(map[Category][]string)
	}
	r.CriticalDetails[category] = append(r.CriticalDetails[category], details...)
	r.Critical = append(r.Critical, summary(len(details)))
}

// AddWarning records a warning for category. Nothing is recorded when
// details is empty.
func (r *AnalysisResult) AddWarning(category Category, summary SummaryFunc, details []string) {
	if len(details) == 0 {
		return
	}
	if r.WarningDetails == nil {
		r.WarningDetails = make(map[Category][]string)
	}
	r.WarningDetails[category] = append(r.WarningDetails[category], details...)
	r.Warning = append(r.Warning, summary(len(details)))
}

// Add records details under the severity declared for category.
// OK and notice categories only contribute the summary line.
func (r *AnalysisResult) Add(category Category, summary SummaryFunc, details []string) {
	switch category.Info().Severity {
	case SeverityCritical:
		r.AddCritical(category, summary, details)
	case SeverityWarning:
		r.AddWarning(category, summary, details)
	case SeverityNotice:
		if len(details) > 0 {
			r.AddNotice(summary(len(details)))
		}
	default:
		if len(details) > 0 {
			r.AddOK(summary(len(details)))
		}
	}
}

// AddOK records a passed check.
func (r *AnalysisResult) AddOK(message string) {
	r.OK = append(r.OK, message)
}

// AddNotice records an informational observation.
func (r *AnalysisResult) AddNotice(message string) {
	r.Notice = append(r.Notice, message)
}

// Totals counts the summary lines per bucket.
func (r *AnalysisResult) Totals() SeverityTotals {
	if r == nil {
		return SeverityTotals{}
	}
	return SeverityTotals{
		Critical: len(r.Critical),
		Warning:  len(r.Warning),
		OK:       len(r.OK),
		Notice:   len(r.Notice),
	}
}

// IsEmpty reports whether the result has no lines in any bucket.
func (r *AnalysisResult) IsEmpty() bool {
	if r == nil {
		return true
	}
	return len(r.Critical) == 0 && len(r.Warning) == 0 && len(r.OK) == 0 && len(r.Notice) == 0
}

// Diagnostic records a recoverable problem encountered while processing a
// page: a failing analyzer, unparsable markup or a dropped link.
type Diagnostic struct {
	UqID     string `json:"uq_id,omitempty"`
	URL      string `json:"url,omitempty"`
	Analyzer string `json:"analyzer,omitempty"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// Diagnostic kinds.
const (
	DiagnosticAnalyzer      = "analyzer"
	DiagnosticParse         = "parse"
	DiagnosticNormalization = "normalization"
	DiagnosticExport        = "export"
	DiagnosticPersist       = "persist"
)
