package aggregate

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/sitecrawler/internal/analysis"
	"github.com/nao1215/sitecrawler/internal/model"
)

func page(n int) *model.VisitedURL {
	return &model.VisitedURL{
		UqID:        fmt.Sprintf("%032d", n),
		URL:         fmt.Sprintf("https://example.com/%d", n),
		StatusCode:  200,
		ContentType: model.ContentTypeHTML,
	}
}

func ariaResult(elements ...string) []analysis.NamedResult {
	res := model.NewAnalysisResult()
	res.AddCritical(model.CategoryMissingAriaLabels, func(n int) string {
		return fmt.Sprintf("%d form element(s) without defined 'aria-label' or 'aria-labelledby'", n)
	}, elements)
	res.AddOK("lang ok")
	return []analysis.NamedResult{{Analyzer: "accessibility", Result: res}}
}

// TestAggregatorRecord tests merging in completion order.
func TestAggregatorRecord(t *testing.T) {
	t.Parallel()

	agg := New("https://example.com/", []string{"https://example.com/"},
		WithID("run-1"), WithAnalyzers([]string{"accessibility", "seo"}))

	if err := agg.Record(page(1), ariaResult("<input a>", "<input b>"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	diag := model.Diagnostic{Kind: model.DiagnosticParse, Message: "bad"}
	if err := agg.Record(page(2), ariaResult("<input c>"), []model.Diagnostic{diag}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	agg.RecordExternal(model.FoundURL{URL: "https://other.org/", UqID: "ext"})
	agg.RecordExternal(model.FoundURL{URL: "https://other.org/", UqID: "ext"})

	report, err := agg.Finalize(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.ID != "run-1" {
		t.Errorf("unexpected id %q", report.ID)
	}
	if len(report.PageOrder) != 2 || report.PageOrder[0] != page(1).UqID {
		t.Errorf("unexpected page order %v", report.PageOrder)
	}
	if got := report.AnalyzerOrder; len(got) != 2 || got[0] != "accessibility" || got[1] != "seo" {
		t.Errorf("unexpected analyzer order %v", got)
	}

	details := report.Analyzers["accessibility"].CriticalDetails[model.CategoryMissingAriaLabels]
	want := []model.Detail{
		{PageURL: "https://example.com/1", UqID: page(1).UqID, Text: "<input a>"},
		{PageURL: "https://example.com/1", UqID: page(1).UqID, Text: "<input b>"},
		{PageURL: "https://example.com/2", UqID: page(2).UqID, Text: "<input c>"},
	}
	if len(details) != len(want) {
		t.Fatalf("expected %d details, got %d", len(want), len(details))
	}
	for i := range want {
		if details[i] != want[i] {
			t.Errorf("detail %d: expected %+v, got %+v", i, want[i], details[i])
		}
	}

	if report.Totals.Critical != 2 || report.Totals.OK != 2 {
		t.Errorf("unexpected totals %+v", report.Totals)
	}
	if report.Analyzers["accessibility"].Totals.Critical != 2 {
		t.Errorf("unexpected analyzer totals %+v", report.Analyzers["accessibility"].Totals)
	}
	if len(report.ExternalURLs) != 1 {
		t.Errorf("expected external URLs to be deduplicated, got %d", len(report.ExternalURLs))
	}
	if len(report.Diagnostics) != 1 || report.Diagnostics[0] != diag {
		t.Errorf("unexpected diagnostics %v", report.Diagnostics)
	}
}

// TestAggregatorInvariants tests the fatal error paths.
func TestAggregatorInvariants(t *testing.T) {
	t.Parallel()

	t.Run("double record", func(t *testing.T) {
		t.Parallel()

		agg := New("https://example.com/", nil)
		if err := agg.Record(page(1), nil, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err := agg.Record(page(1), nil, nil)
		var aggErr *AggregationError
		if !errors.As(err, &aggErr) || aggErr.UqID != page(1).UqID {
			t.Errorf("expected AggregationError, got %v", err)
		}
	})

	t.Run("nil page", func(t *testing.T) {
		t.Parallel()

		var aggErr *AggregationError
		if err := New("https://example.com/", nil).Record(nil, nil, nil); !errors.As(err, &aggErr) {
			t.Errorf("expected AggregationError, got %v", err)
		}
	})

	t.Run("record after finalize", func(t *testing.T) {
		t.Parallel()

		agg := New("https://example.com/", nil)
		if _, err := agg.Finalize(true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := agg.Record(page(1), nil, nil); !errors.Is(err, ErrFinalized) {
			t.Errorf("expected ErrFinalized, got %v", err)
		}
		if _, err := agg.Finalize(true); !errors.Is(err, ErrFinalized) {
			t.Errorf("expected ErrFinalized on second finalize, got %v", err)
		}
	})
}

// TestAggregatorFinalizeTimes tests cancellation and clock handling.
func TestAggregatorFinalizeTimes(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * time.Minute)
	}

	report, err := New("https://example.com/", nil, WithClock(clock)).Finalize(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Cancelled {
		t.Error("expected cancelled report")
	}
	if !report.StartedAt.Equal(start) || report.Duration() != time.Minute {
		t.Errorf("unexpected times %v %v", report.StartedAt, report.Duration())
	}
	if report.ID == "" {
		t.Error("expected generated id")
	}
}

// TestAggregatorConcurrentRecord tests that concurrent records keep every
// page and every detail.
func TestAggregatorConcurrentRecord(t *testing.T) {
	t.Parallel()

	agg := New("https://example.com/", nil)
	const pages = 100

	var wg sync.WaitGroup
	for i := 0; i < pages; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := agg.Record(page(i), ariaResult("<input x>", "<input y>"), nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if agg.PageCount() != pages {
		t.Fatalf("expected %d pages, got %d", pages, agg.PageCount())
	}
	report, err := agg.Finalize(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	details := report.CategoryDetails(model.CategoryMissingAriaLabels)
	if len(details) != 2*pages {
		t.Fatalf("expected %d details, got %d", 2*pages, len(details))
	}
	for i := 0; i < len(details); i += 2 {
		if details[i].UqID != details[i+1].UqID {
			t.Errorf("details of one page must be contiguous at %d", i)
		}
	}
	if report.Totals.Critical != pages {
		t.Errorf("expected %d critical lines, got %d", pages, report.Totals.Critical)
	}
}
