package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/sitecrawler/internal/aggregate"
	"github.com/nao1215/sitecrawler/internal/analysis"
	"github.com/nao1215/sitecrawler/internal/crawler"
	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

type stubAnalyzer struct {
	name string
	err  error
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Analyze(v *model.VisitedURL, _ []byte, _ *document.Document, _ analysis.Options) (*model.AnalysisResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	res := model.NewAnalysisResult()
	res.AddWarning(model.CategoryMissingH1, func(n int) string { return "missing h1" }, []string{v.URL})
	return res, nil
}

type fakeExporter struct {
	err   error
	calls int
}

func (f *fakeExporter) ExportPage(v *model.VisitedURL, _ *document.Document) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return strings.TrimPrefix(v.URL, "https://example.com/") + ".md", nil
}

type fakeStore struct {
	mu     sync.Mutex
	err    error
	pages  map[string][]string
	runs   []*model.CrawlReport
	runErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{pages: make(map[string][]string)}
}

func (f *fakeStore) SavePage(_ context.Context, runID string, v *model.VisitedURL) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pages[runID] = append(f.pages[runID], v.URL)
	return nil
}

func (f *fakeStore) SaveRun(_ context.Context, report *model.CrawlReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runErr != nil {
		return f.runErr
	}
	f.runs = append(f.runs, report)
	return nil
}

func htmlPage(t *testing.T, n int) *crawler.Page {
	t.Helper()

	page := testPage(n)
	doc, err := document.Parse([]byte("<html><body><p>hello</p></body></html>"), "text/html", model.ContentTypeHTML, nil)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	page.Document = doc
	return page
}

// TestAnalyzeStep tests that results and analyzer failures are collected.
func TestAnalyzeStep(t *testing.T) {
	t.Parallel()

	registry, err := analysis.NewRegistry(analysis.WithAnalyzers(
		&stubAnalyzer{name: "ok"},
		&stubAnalyzer{name: "broken", err: errors.New("boom")},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	metrics := crawler.NewMetrics()
	step := NewAnalyzeStep(registry, WithAnalyzeMetrics(metrics))
	if step.Name() != "analyze" {
		t.Errorf("unexpected name %q", step.Name())
	}

	pc := &PageContext{Page: htmlPage(t, 1)}
	if err := step.Do(context.Background(), pc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pc.Results) != 2 || pc.Results[0].Analyzer != "ok" || pc.Results[1].Analyzer != "broken" {
		t.Fatalf("unexpected results %+v", pc.Results)
	}
	if !pc.Results[1].Result.IsEmpty() {
		t.Error("expected empty result for failing analyzer")
	}
	if len(pc.Diagnostics) != 1 || pc.Diagnostics[0].Analyzer != "broken" {
		t.Errorf("unexpected diagnostics %v", pc.Diagnostics)
	}
}

// TestExportStep tests which pages are exported.
func TestExportStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(p *crawler.Page)
		want   bool
	}{
		{"internal html page", func(*crawler.Page) {}, true},
		{"external page", func(p *crawler.Page) { p.Visited.IsExternal = true }, false},
		{"error status", func(p *crawler.Page) { p.Visited.StatusCode = 404 }, false},
		{"transport failure", func(p *crawler.Page) { p.Visited.StatusCode = model.StatusTimeout }, false},
		{"image", func(p *crawler.Page) { p.Visited.ContentType = model.ContentTypeImage }, false},
		{"empty document", func(p *crawler.Page) { p.Document = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter := &fakeExporter{}
			page := htmlPage(t, 3)
			tt.modify(page)

			pc := &PageContext{Page: page}
			if err := NewExportStep(exporter).Do(context.Background(), pc); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := exporter.calls == 1; got != tt.want {
				t.Errorf("expected exported=%v, got %v", tt.want, got)
			}
			if tt.want && pc.ExportPath != "3.md" {
				t.Errorf("unexpected export path %q", pc.ExportPath)
			}
		})
	}

	t.Run("failure is wrapped", func(t *testing.T) {
		t.Parallel()

		exportErr := errors.New("read-only file system")
		err := NewExportStep(&fakeExporter{err: exportErr}).Do(context.Background(), &PageContext{Page: htmlPage(t, 1)})
		if !errors.Is(err, exportErr) {
			t.Errorf("expected wrapped export error, got %v", err)
		}
	})
}

// TestPersistStep tests that pages are stored under the run id.
func TestPersistStep(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	step := NewPersistStep(store, "run-1")
	if err := step.Do(context.Background(), &PageContext{Page: testPage(1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.pages["run-1"]; len(got) != 1 || got[0] != "https://example.com/1" {
		t.Errorf("unexpected stored pages %v", got)
	}

	store.err = errors.New("database is locked")
	if err := step.Do(context.Background(), &PageContext{Page: testPage(2)}); !errors.Is(err, store.err) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

// TestRecordStep tests the hand-over to the aggregator.
func TestRecordStep(t *testing.T) {
	t.Parallel()

	agg := aggregate.New("https://example.com/", nil)
	step := NewRecordStep(agg)

	pc := &PageContext{Page: testPage(1)}
	pc.AddDiagnostic(model.DiagnosticExport, "failed")
	if err := step.Do(context.Background(), pc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var aggErr *aggregate.AggregationError
	if err := step.Do(context.Background(), pc); !errors.As(err, &aggErr) {
		t.Errorf("expected AggregationError on second record, got %v", err)
	}

	report, err := agg.Finalize(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Diagnostics) != 1 || report.Diagnostics[0].URL != "https://example.com/1" {
		t.Errorf("unexpected diagnostics %v", report.Diagnostics)
	}
}
