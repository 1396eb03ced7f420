package database

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/sitecrawler/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// createTestReport builds a finished report with one critical and one
// warning category.
func createTestReport(id string, started time.Time, warnings int) *model.CrawlReport {
	report := model.NewCrawlReport(id, "https://example.com/", []string{"https://example.com/"})
	report.StartedAt = started
	report.FinishedAt = started.Add(2 * time.Second)

	page := &model.VisitedURL{
		UqID:        "a",
		URL:         "https://example.com/",
		StatusCode:  200,
		ContentType: model.ContentTypeHTML,
		Source:      model.SourceInitURL,
	}
	report.Pages[page.UqID] = page
	report.PageOrder = append(report.PageOrder, page.UqID)

	a11y := model.NewAnalyzerReport("accessibility")
	a11y.CriticalDetails[model.CategoryMissingAriaLabels] = []model.Detail{
		{PageURL: page.URL, UqID: page.UqID, Text: "<input>"},
	}
	for range warnings {
		a11y.WarningDetails[model.CategoryMissingImageAltAttributes] = append(
			a11y.WarningDetails[model.CategoryMissingImageAltAttributes],
			model.Detail{PageURL: page.URL, UqID: page.UqID, Text: "<img>"},
		)
	}
	a11y.Totals = model.SeverityTotals{Critical: 1, Warning: warnings}
	report.Analyzers[a11y.Name] = a11y
	report.AnalyzerOrder = append(report.AnalyzerOrder, a11y.Name)
	report.Totals = a11y.Totals
	return report
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "missing")
		_, err := Open(dbDir, Options{CreateIfNotExists: false})
		if err == nil {
			t.Fatal("expected error for missing database")
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		_ = db.Close()

		db, err = Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("CreateIfNotExists should default to true")
	}
	if !opts.EnableWAL {
		t.Error("EnableWAL should default to true")
	}
}

func TestSaveAndGetPages(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	page := &model.VisitedURL{
		UqID:        "u1",
		URL:         "https://example.com/a",
		Source:      model.SourceAHref,
		Depth:       1,
		StatusCode:  200,
		ContentType: model.ContentTypeHTML,
		RequestTime: 0.25,
		Size:        512,
		Headers:     http.Header{"Content-Type": {"text/html"}},
	}
	if err := db.SavePage(ctx, "run-1", page); err != nil {
		t.Fatalf("SavePage() error = %v", err)
	}

	// saving again updates in place
	page.StatusCode = 500
	if err := db.SavePage(ctx, "run-1", page); err != nil {
		t.Fatalf("SavePage() update error = %v", err)
	}
	if err := db.SavePage(ctx, "run-2", page); err != nil {
		t.Fatalf("SavePage() other run error = %v", err)
	}

	pages, err := db.GetPages(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetPages() error = %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("GetPages() returned %d pages, want 1", len(pages))
	}
	got := pages[0]
	if got.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", got.StatusCode)
	}
	if got.Source != "a-href" || got.ContentType != "html" || got.Depth != 1 || got.Size != 512 {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Headers["Content-Type"][0] != "text/html" {
		t.Errorf("Headers = %v", got.Headers)
	}

	if err := db.SavePage(ctx, "run-1", nil); err == nil {
		t.Error("SavePage(nil) should fail")
	}
}

func TestSavePageConcurrent(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := &model.VisitedURL{
				UqID:       string(rune('a' + i)),
				URL:        "https://example.com/" + string(rune('a'+i)),
				StatusCode: 200,
			}
			if err := db.SavePage(ctx, "run", v); err != nil {
				t.Errorf("SavePage() error = %v", err)
			}
		}()
	}
	wg.Wait()

	pages, err := db.GetPages(ctx, "run")
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 20 {
		t.Errorf("stored %d pages, want 20", len(pages))
	}
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	report := createTestReport("run-1", started, 2)
	if err := db.SaveRun(ctx, report); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := db.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.RootURL != report.RootURL || got.Totals != report.Totals {
		t.Errorf("GetRun() = %+v", got)
	}
	if p := got.Page("a"); p == nil || p.ContentType != model.ContentTypeHTML || p.Source != model.SourceInitURL {
		t.Errorf("page not restored: %+v", p)
	}

	findings, err := db.GetFindings(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetFindings() error = %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("GetFindings() returned %d rows, want 2", len(findings))
	}

	// saving the same run again replaces findings
	report.Cancelled = true
	if err := db.SaveRun(ctx, report); err != nil {
		t.Fatalf("SaveRun() again error = %v", err)
	}
	findings, err = db.GetFindings(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 2 {
		t.Errorf("findings duplicated: %d rows", len(findings))
	}

	runs, err := db.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || !runs[0].Cancelled || !runs[0].StartedAt.Equal(started) || runs[0].Pages != 1 {
		t.Errorf("ListRuns() = %+v", runs)
	}

	if _, err := db.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrRunNotFound", err)
	}
	if err := db.SaveRun(ctx, model.NewCrawlReport("", "https://example.com/", nil)); err == nil {
		t.Error("SaveRun() without id should fail")
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		if err := db.SaveRun(ctx, createTestReport(id, base.Add(time.Duration(i)*time.Hour), 1)); err != nil {
			t.Fatal(err)
		}
	}
	other := createTestReport("o1", base, 1)
	other.RootURL = "https://other.example/"
	if err := db.SaveRun(ctx, other); err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns(ctx, "https://example.com/", 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "r3" || runs[1].ID != "r2" {
		t.Errorf("ListRuns() = %+v, want r3, r2", runs)
	}

	roots, err := db.ListRootURLs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 2 || roots[0] != "https://example.com/" {
		t.Errorf("ListRootURLs() = %v", roots)
	}
}

func TestCompareLatest(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := db.SaveRun(ctx, createTestReport("old", base, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CompareLatest(ctx, "https://example.com/"); !errors.Is(err, ErrNotEnoughRuns) {
		t.Fatalf("CompareLatest() with one run error = %v, want ErrNotEnoughRuns", err)
	}

	if err := db.SaveRun(ctx, createTestReport("new", base.Add(time.Hour), 3)); err != nil {
		t.Fatal(err)
	}

	cmp, err := db.CompareLatest(ctx, "https://example.com/")
	if err != nil {
		t.Fatalf("CompareLatest() error = %v", err)
	}
	if cmp.Previous.ID != "old" || cmp.Current.ID != "new" {
		t.Errorf("compared %s -> %s, want old -> new", cmp.Previous.ID, cmp.Current.ID)
	}
	if len(cmp.Changes) != 1 {
		t.Fatalf("Changes = %+v, want only the warning category", cmp.Changes)
	}
	change := cmp.Changes[0]
	if change.Category != model.CategoryMissingImageAltAttributes || change.Previous != 1 || change.Current != 3 || change.Delta() != 2 {
		t.Errorf("change = %+v", change)
	}
	if len(cmp.Regressions()) != 1 {
		t.Errorf("Regressions() = %+v", cmp.Regressions())
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2025-03-01 12:00:00", want: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		{in: "2025-03-01T12:00:00.000000000Z", want: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		{in: "", want: time.Time{}},
		{in: "garbage", want: time.Time{}},
	}
	for _, tt := range tests {
		if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
