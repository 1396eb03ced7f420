package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/sitecrawler/internal/model"
)

// recorder is a PageHandler that keeps everything it receives.
type recorder struct {
	mu        sync.Mutex
	pages     []*Page
	externals []model.FoundURL
	fail      error
}

func (r *recorder) HandlePage(_ context.Context, page *Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, page)
	return r.fail
}

func (r *recorder) HandleExternal(found model.FoundURL) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.externals = append(r.externals, found)
}

func (r *recorder) urls() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, p := range r.pages {
		out[p.Visited.URL]++
	}
	return out
}

func htmlHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body)) //nolint:errcheck
	}
}

// newSiteServer serves a small site with a cycle, a redirect, an external
// link and a robots.txt that disallows /private.
func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n")) //nolint:errcheck
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		htmlHandler(`<html><head><title>Home</title></head><body>
			<a href="/a">A</a>
			<a href="/b?y=2&x=1">B</a>
			<a href="https://external.example.org/page">External</a>
			<a href="/private/secret">Private</a>
			<a href="/old">Old</a>
			<img src="/logo.png">
		</body></html>`)(w, r)
	})
	mux.HandleFunc("/a", htmlHandler(`<html><body><a href="/">Home</a><a href="/b?x=1&y=2">B</a><a href="/a/deep">Deep</a></body></html>`))
	mux.HandleFunc("/b", htmlHandler(`<html><body><a href="/a#frag">A</a></body></html>`))
	mux.HandleFunc("/a/deep", htmlHandler(`<html><body><a href="/a/deeper">Deeper</a></body></html>`))
	mux.HandleFunc("/a/deeper", htmlHandler(`<html><body>end</body></html>`))
	mux.HandleFunc("/private/secret", htmlHandler(`<html><body>secret</body></html>`))
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", htmlHandler(`<html><body>new</body></html>`))
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'}) //nolint:errcheck
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// TestSpiderCrawl tests a full crawl of a small site.
func TestSpiderCrawl(t *testing.T) {
	t.Parallel()

	t.Run("visits every internal URL exactly once", func(t *testing.T) {
		t.Parallel()

		server := newSiteServer(t)
		spider := NewSpider(NewFetcher(WithHTTPClient(server.Client())), WithWorkers(4))
		rec := &recorder{}

		stats, err := spider.Crawl(context.Background(), []string{server.URL}, rec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stats.Cancelled {
			t.Error("crawl should not be cancelled")
		}

		got := rec.urls()
		want := []string{"/", "/a", "/b?x=1&y=2", "/a/deep", "/a/deeper", "/old", "/new", "/logo.png"}
		if len(got) != len(want) {
			t.Errorf("expected %d pages, got %d: %v", len(want), len(got), got)
		}
		for _, path := range want {
			if got[server.URL+path] != 1 {
				t.Errorf("expected %s to be visited once, got %d", path, got[server.URL+path])
			}
		}
		if _, ok := got[server.URL+"/private/secret"]; ok {
			t.Error("robots.txt disallowed URL was fetched")
		}

		if len(rec.externals) != 1 || rec.externals[0].URL != "https://external.example.org/page" {
			t.Errorf("expected one external URL, got %v", rec.externals)
		}
	})

	t.Run("records provenance and crawl permission", func(t *testing.T) {
		t.Parallel()

		server := newSiteServer(t)
		spider := NewSpider(NewFetcher(WithHTTPClient(server.Client())), WithMaxDepth(1))
		rec := &recorder{}

		if _, err := spider.Crawl(context.Background(), []string{server.URL}, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rootID := UqID(server.URL + "/")
		byURL := make(map[string]*model.VisitedURL)
		for _, p := range rec.pages {
			byURL[p.Visited.URL] = p.Visited
		}

		home := byURL[server.URL+"/"]
		if home == nil || !home.IsAllowedForCrawling || home.Source != model.SourceInitURL || home.Depth != 0 {
			t.Fatalf("unexpected home record %+v", home)
		}
		if home.Extra(model.ExtraTitle) != "Home" {
			t.Errorf("expected title extra, got %q", home.Extra(model.ExtraTitle))
		}

		a := byURL[server.URL+"/a"]
		if a == nil || a.SourceUqID != rootID || a.Source != model.SourceAHref || a.Depth != 1 {
			t.Fatalf("unexpected /a record %+v", a)
		}
		if a.IsAllowedForCrawling {
			t.Error("pages at max depth must not be followed")
		}
		if _, ok := byURL[server.URL+"/a/deep"]; ok {
			t.Error("depth 2 page must not be fetched with max depth 1")
		}

		old := byURL[server.URL+"/old"]
		if old == nil || old.ContentType != model.ContentTypeRedirect {
			t.Fatalf("expected redirect record, got %+v", old)
		}
		moved := byURL[server.URL+"/new"]
		if moved == nil || moved.Source != model.SourceRedirect || moved.SourceUqID != old.UqID || moved.Depth != old.Depth {
			t.Errorf("unexpected redirect target record %+v", moved)
		}

		logo := byURL[server.URL+"/logo.png"]
		if logo == nil || logo.ContentType != model.ContentTypeImage || logo.Source != model.SourceImgSrc {
			t.Errorf("unexpected image record %+v", logo)
		}
	})

	t.Run("single page fetches only the seed", func(t *testing.T) {
		t.Parallel()

		server := newSiteServer(t)
		spider := NewSpider(NewFetcher(WithHTTPClient(server.Client())), WithSinglePageMode(true))
		rec := &recorder{}

		if _, err := spider.Crawl(context.Background(), []string{server.URL}, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rec.pages) != 1 {
			t.Fatalf("expected 1 page, got %d", len(rec.pages))
		}
		if rec.pages[0].Visited.IsAllowedForCrawling {
			t.Error("single page must not be allowed for crawling")
		}
		if len(rec.externals) != 0 {
			t.Error("single page mode must not extract links")
		}
	})

	t.Run("ignoring robots fetches disallowed pages", func(t *testing.T) {
		t.Parallel()

		server := newSiteServer(t)
		spider := NewSpider(NewFetcher(WithHTTPClient(server.Client())), WithRobots(false), WithMaxDepth(1))
		rec := &recorder{}

		if _, err := spider.Crawl(context.Background(), []string{server.URL}, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.urls()[server.URL+"/private/secret"] != 1 {
			t.Error("expected disallowed page to be fetched when robots are ignored")
		}
	})

	t.Run("resource types limit followed references", func(t *testing.T) {
		t.Parallel()

		server := newSiteServer(t)
		spider := NewSpider(NewFetcher(WithHTTPClient(server.Client())),
			WithResourceTypes(ResourceTypes{}), WithMaxDepth(1))
		rec := &recorder{}

		if _, err := spider.Crawl(context.Background(), []string{server.URL}, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := rec.urls()[server.URL+"/logo.png"]; ok {
			t.Error("images must not be fetched when disabled")
		}
	})
}

// TestSpiderSeedTimeout tests that a timing out seed is still recorded when
// robots.txt stalls as well.
func TestSpiderSeedTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	spider := NewSpider(NewFetcher(WithHTTPClient(server.Client()), WithTimeout(50*time.Millisecond)))
	rec := &recorder{}

	if _, err := spider.Crawl(context.Background(), []string{server.URL}, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(rec.pages))
	}
	v := rec.pages[0].Visited
	if v.StatusCode != model.StatusTimeout || !v.IsFailure() {
		t.Errorf("expected timeout record, got status %d", v.StatusCode)
	}
}

// TestSpiderRobotsRedirect tests that rules served behind a robots.txt
// redirect keep disallowed pages out of the crawl.
func TestSpiderRobotsRedirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/real-robots.txt", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/real-robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n")) //nolint:errcheck
	})
	mux.HandleFunc("/", htmlHandler(`<html><body><a href="/private/x">secret</a></body></html>`))
	server := httptest.NewServer(mux)
	defer server.Close()

	spider := NewSpider(NewFetcher(WithHTTPClient(server.Client())), WithResourceTypes(ResourceTypes{}))
	rec := &recorder{}

	if _, err := spider.Crawl(context.Background(), []string{server.URL + "/"}, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := rec.urls()
	if _, ok := got[server.URL+"/private/x"]; ok {
		t.Errorf("disallowed page was fetched: %v", got)
	}
	if got[server.URL+"/"] != 1 {
		t.Errorf("expected the seed to be fetched once, got %v", got)
	}
}

// TestSpiderExternalSeed tests that a seed outside the root origin is
// fetched, marked external and not followed.
func TestSpiderExternalSeed(t *testing.T) {
	t.Parallel()

	root := httptest.NewServer(htmlHandler(`<html><body>root</body></html>`))
	defer root.Close()

	other := http.NewServeMux()
	other.HandleFunc("/", htmlHandler(`<html><body><a href="/next">next</a></body></html>`))
	otherServer := httptest.NewServer(other)
	defer otherServer.Close()

	spider := NewSpider(NewFetcher(WithHTTPClient(root.Client())),
		WithResourceTypes(ResourceTypes{}), WithRobots(false))
	rec := &recorder{}

	if _, err := spider.Crawl(context.Background(), []string{root.URL + "/", otherServer.URL + "/"}, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.pages) != 2 {
		t.Fatalf("expected 2 pages, got %v", rec.urls())
	}
	for _, p := range rec.pages {
		external := strings.HasPrefix(p.Visited.URL, otherServer.URL)
		if p.Visited.IsExternal != external {
			t.Errorf("%s: IsExternal = %v, want %v", p.Visited.URL, p.Visited.IsExternal, external)
		}
		if external && p.Visited.IsAllowedForCrawling {
			t.Errorf("%s: external page must not be followed", p.Visited.URL)
		}
	}
}

// TestSpiderCancellation tests that a cancelled crawl stops and reports it.
func TestSpiderCancellation(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Every page links to two new pages, so the crawl never drains.
		next := r.URL.Path
		if next == "/" {
			next = ""
		}
		time.Sleep(5 * time.Millisecond)
		htmlHandler(`<html><body><a href="` + next + `/l">l</a><a href="` + next + `/r">r</a></body></html>`)(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	spider := NewSpider(NewFetcher(WithHTTPClient(server.Client())), WithRobots(false),
		WithProgress(func(stats FrontierStats) {
			if stats.Accepted > 20 {
				cancel()
			}
		}),
	)

	done := make(chan struct{})
	var stats CrawlStats
	var err error
	go func() {
		stats, err = spider.Crawl(ctx, []string{server.URL}, rec)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("crawl did not stop after cancellation")
	}

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.Cancelled {
		t.Error("expected cancelled crawl")
	}
	if len(rec.pages) == 0 {
		t.Error("expected pages fetched before cancellation to be kept")
	}
	for url, n := range rec.urls() {
		if n != 1 {
			t.Errorf("%s handled %d times", url, n)
		}
	}
}

// TestSpiderHandlerError tests that a handler failure aborts the crawl.
func TestSpiderHandlerError(t *testing.T) {
	t.Parallel()

	server := newSiteServer(t)
	boom := errors.New("boom")
	rec := &recorder{fail: boom}
	spider := NewSpider(NewFetcher(WithHTTPClient(server.Client())))

	_, err := spider.Crawl(context.Background(), []string{server.URL}, rec)
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

// TestSpiderNoSeeds tests argument validation.
func TestSpiderNoSeeds(t *testing.T) {
	t.Parallel()

	spider := NewSpider(nil)
	if _, err := spider.Crawl(context.Background(), nil, &recorder{}); !errors.Is(err, ErrNoSeeds) {
		t.Errorf("expected ErrNoSeeds, got %v", err)
	}
	if _, err := spider.Crawl(context.Background(), []string{"ftp://example.com/"}, &recorder{}); err == nil {
		t.Error("expected error for unsupported seed")
	}
}

// TestSpiderSitemap tests seeding from sitemap.xml.
func TestSpiderSitemap(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>` + server.URL + `/pages.xml</loc></sitemap>
</sitemapindex>`)) //nolint:errcheck
	})
	mux.HandleFunc("/pages.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>` + server.URL + `/hidden</loc></url>
</urlset>`)) //nolint:errcheck
	})
	mux.HandleFunc("/hidden", htmlHandler(`<html><body>only in sitemap</body></html>`))
	mux.HandleFunc("/", htmlHandler(`<html><body>no links</body></html>`))
	server = httptest.NewServer(mux)
	defer server.Close()

	rec := &recorder{}
	spider := NewSpider(NewFetcher(WithHTTPClient(server.Client())), WithRobots(false), WithSitemap(true))
	if _, err := spider.Crawl(context.Background(), []string{server.URL}, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, p := range rec.pages {
		if strings.HasSuffix(p.Visited.URL, "/hidden") {
			found = true
			if p.Visited.Source != model.SourceSitemap || p.Visited.Depth != 1 {
				t.Errorf("unexpected sitemap provenance %+v", p.Visited)
			}
		}
	}
	if !found {
		t.Error("expected sitemap URL to be crawled")
	}
}

// TestHostLimiter tests the nil limiter and the per-host limiter.
func TestHostLimiter(t *testing.T) {
	t.Parallel()

	var none *HostLimiter
	if err := none.Wait(context.Background(), "example.com"); err != nil {
		t.Errorf("nil limiter must not block: %v", err)
	}
	if NewHostLimiter(0) != nil {
		t.Error("zero rate should disable limiting")
	}

	limiter := NewHostLimiter(1)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "example.com"); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	if err := limiter.Wait(ctx, "example.com"); err == nil {
		t.Error("second request within a second should not pass before the deadline")
	}
	if err := limiter.Wait(context.Background(), "other.example.com"); err != nil {
		t.Errorf("other hosts have their own budget: %v", err)
	}
}
