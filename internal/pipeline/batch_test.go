package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nao1215/sitecrawler/internal/crawler"
	"github.com/nao1215/sitecrawler/internal/model"
)

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(string) (*Runner, error) { return nil, nil })

		if bp == nil {
			t.Fatal("expected non-nil processor")
		}
		if bp.concurrency != DefaultBatchConcurrency {
			t.Errorf("expected default concurrency %d, got %d", DefaultBatchConcurrency, bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(string) (*Runner, error) { return nil, nil }, WithConcurrency(5))

		if bp.concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(string) (*Runner, error) { return nil, nil }, WithConcurrency(0))

		if bp.concurrency != DefaultBatchConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultBatchConcurrency, bp.concurrency)
		}
	})
}

// TestBatchProcessorProcessBatch tests that every seed gets its own
// single-page report in seed order.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	srv := newTestSite(t)
	registry := stubRegistry(t)
	factory := func(string) (*Runner, error) {
		return NewRunner(newTestSpider(crawler.WithSinglePageMode(true)), registry), nil
	}

	seeds := []string{srv.URL + "/", srv.URL + "/a", srv.URL + "/missing", "mailto:someone@example.com"}
	reports, err := NewBatchProcessor(factory, WithConcurrency(2)).ProcessBatch(context.Background(), seeds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != len(seeds) {
		t.Fatalf("expected %d reports, got %d", len(seeds), len(reports))
	}

	for i, want := range []string{srv.URL + "/", srv.URL + "/a", srv.URL + "/missing"} {
		report := reports[i]
		if report == nil {
			t.Fatalf("missing report %d", i)
		}
		if len(report.PageOrder) != 1 {
			t.Errorf("report %d: expected exactly one page, got %d", i, len(report.PageOrder))
			continue
		}
		if got := report.OrderedPages()[0].URL; got != want {
			t.Errorf("report %d: expected %s, got %s", i, want, got)
		}
	}

	if !reports[0].Succeeded() || !reports[1].Succeeded() {
		t.Error("expected the first two seeds to succeed")
	}
	if !reports[2].HasSeedFailure() {
		t.Error("expected 404 seed to be a seed failure")
	}
	if reports[3] == nil || reports[3].Error == "" {
		t.Error("expected invalid seed to produce a failed report")
	}
}

// TestBatchProcessorProcessBatchWithCallback tests the streaming variant.
func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	srv := newTestSite(t)
	registry := stubRegistry(t)
	factory := func(string) (*Runner, error) {
		return NewRunner(newTestSpider(crawler.WithSinglePageMode(true)), registry), nil
	}

	var mu sync.Mutex
	indexes := map[int]bool{}
	err := NewBatchProcessor(factory).ProcessBatchWithCallback(context.Background(),
		[]string{srv.URL + "/", srv.URL + "/b"},
		func(report *model.CrawlReport, index int) {
			mu.Lock()
			defer mu.Unlock()
			indexes[index] = len(report.PageOrder) == 1
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(indexes) != 2 || !indexes[0] || !indexes[1] {
		t.Errorf("unexpected callbacks %v", indexes)
	}
}

// TestBatchProcessorCancelled tests that a cancelled batch reports the
// context error.
func TestBatchProcessorCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	factory := func(string) (*Runner, error) {
		called = true
		return nil, nil
	}
	_, err := NewBatchProcessor(factory).ProcessBatch(ctx, []string{"https://example.com/"})
	if err == nil {
		t.Error("expected context error")
	}
	if called {
		t.Error("expected no runner to be created")
	}
}

// TestBatchProcessorFactoryError tests that a runner that cannot be built
// aborts the batch.
func TestBatchProcessorFactoryError(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	factory := func(seed string) (*Runner, error) {
		return nil, errBoom
	}
	_, err := NewBatchProcessor(factory).ProcessBatch(context.Background(), []string{"https://example.com/"})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected factory error, got %v", err)
	}
}
