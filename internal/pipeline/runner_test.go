package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nao1215/sitecrawler/internal/analysis"
	"github.com/nao1215/sitecrawler/internal/crawler"
	"github.com/nao1215/sitecrawler/internal/model"
)

// newTestSite serves a three page site with one external link.
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	pages := map[string]string{
		"/":  `<html><body><a href="/a">a</a><a href="/b">b</a><a href="https://external.example.org/">ext</a></body></html>`,
		"/a": `<html><body><a href="/">home</a></body></html>`,
		"/b": `<html><body><a href="/a">a</a></body></html>`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func stubRegistry(t *testing.T) *analysis.Registry {
	t.Helper()

	registry, err := analysis.NewRegistry(analysis.WithAnalyzers(&stubAnalyzer{name: "stub"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return registry
}

func newTestSpider(opts ...crawler.SpiderOption) *crawler.Spider {
	return crawler.NewSpider(crawler.NewFetcher(), append([]crawler.SpiderOption{crawler.WithRobots(false)}, opts...)...)
}

// TestRunnerRun tests a full crawl through every step.
func TestRunnerRun(t *testing.T) {
	t.Parallel()

	srv := newTestSite(t)
	exporter := &fakeExporter{}
	store := newFakeStore()

	runner := NewRunner(newTestSpider(), stubRegistry(t),
		WithExporter(exporter),
		WithStore(store),
		WithRunID("run-42"),
		WithRunMetrics(crawler.NewMetrics()),
	)

	report, err := runner.Run(context.Background(), []string{srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.ID != "run-42" {
		t.Errorf("unexpected id %q", report.ID)
	}
	if report.RootURL != srv.URL+"/" {
		t.Errorf("expected normalized root URL, got %q", report.RootURL)
	}
	if len(report.PageOrder) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(report.PageOrder))
	}
	if len(report.ExternalURLs) != 1 || report.ExternalURLs[0].URL != "https://external.example.org/" {
		t.Errorf("unexpected external URLs %v", report.ExternalURLs)
	}
	if !report.Succeeded() {
		t.Errorf("expected successful crawl, got error %q", report.Error)
	}

	details := report.CategoryDetails(model.CategoryMissingH1)
	if len(details) != 3 {
		t.Errorf("expected one detail per page, got %d", len(details))
	}
	if exporter.calls != 3 {
		t.Errorf("expected 3 exports, got %d", exporter.calls)
	}
	if len(store.pages["run-42"]) != 3 || len(store.runs) != 1 {
		t.Errorf("unexpected store contents pages=%v runs=%d", store.pages, len(store.runs))
	}
}

// TestRunnerRootURLRemovesQuery tests that the report root follows the
// spider's query handling.
func TestRunnerRootURLRemovesQuery(t *testing.T) {
	t.Parallel()

	srv := newTestSite(t)
	runner := NewRunner(newTestSpider(crawler.WithRemoveQueryParams(true), crawler.WithSinglePageMode(true)), stubRegistry(t))

	report, err := runner.Run(context.Background(), []string{srv.URL + "/?utm_source=mail"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RootURL != srv.URL+"/" {
		t.Errorf("expected root URL without query, got %q", report.RootURL)
	}
}

// TestRunnerStepFailures tests that export and store failures become
// diagnostics without failing the crawl.
func TestRunnerStepFailures(t *testing.T) {
	t.Parallel()

	srv := newTestSite(t)
	store := newFakeStore()
	store.err = errors.New("disk I/O error")
	store.runErr = errors.New("disk I/O error")

	runner := NewRunner(newTestSpider(crawler.WithSinglePageMode(true)), stubRegistry(t),
		WithExporter(&fakeExporter{err: errors.New("permission denied")}),
		WithStore(store),
	)

	report, err := runner.Run(context.Background(), []string{srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.PageOrder) != 1 {
		t.Fatalf("expected 1 page, got %d", len(report.PageOrder))
	}

	kinds := map[string]int{}
	for _, d := range report.Diagnostics {
		kinds[d.Kind]++
	}
	if kinds[model.DiagnosticExport] != 1 || kinds[model.DiagnosticPersist] != 2 {
		t.Errorf("unexpected diagnostics %v", report.Diagnostics)
	}
}

// TestRunnerErrors tests invalid seeds and cancellation.
func TestRunnerErrors(t *testing.T) {
	t.Parallel()

	t.Run("invalid seed", func(t *testing.T) {
		t.Parallel()

		report, err := NewRunner(newTestSpider(), stubRegistry(t)).Run(context.Background(), []string{"ftp://example.com/"})
		if err == nil {
			t.Fatal("expected error")
		}
		if report == nil || report.Error == "" || report.Succeeded() {
			t.Errorf("expected failed report, got %+v", report)
		}
	})

	t.Run("cancelled before start", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := NewRunner(newTestSpider(), stubRegistry(t)).Run(ctx, []string{srv.URL})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !report.Cancelled || report.Succeeded() {
			t.Errorf("expected cancelled report, got %+v", report)
		}
		if len(report.PageOrder) != 0 {
			t.Errorf("expected no pages, got %d", len(report.PageOrder))
		}
	})
}
