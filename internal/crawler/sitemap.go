package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/nao1215/sitecrawler/internal/model"
)

// ReadSitemap returns the page URLs listed in the sitemap at sitemapURL.
// A sitemap index is followed one level deep; child sitemaps that fail to
// load are skipped.
func ReadSitemap(ctx context.Context, fetcher *Fetcher, sitemapURL string) ([]string, error) {
	locs, isIndex, err := readSitemapDocument(ctx, fetcher, sitemapURL)
	if err != nil {
		return nil, err
	}
	if !isIndex {
		return locs, nil
	}

	pages := make([]string, 0)
	for _, child := range locs {
		childLocs, childIsIndex, err := readSitemapDocument(ctx, fetcher, child)
		if err != nil || childIsIndex {
			continue
		}
		pages = append(pages, childLocs...)
	}
	return pages, nil
}

// readSitemapDocument fetches one sitemap or sitemap index and returns its
// <loc> entries.
func readSitemapDocument(ctx context.Context, fetcher *Fetcher, sitemapURL string) ([]string, bool, error) {
	res := fetcher.Fetch(ctx, model.FoundURL{URL: sitemapURL, Source: model.SourceSitemap})
	if res.Visited.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: %s returned %s", ErrSitemapUnavailable, sitemapURL, res.Visited.StatusText())
	}

	doc, err := xmlquery.Parse(bytes.NewReader(res.Body))
	if err != nil {
		return nil, false, fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}

	isIndex := xmlquery.FindOne(doc, "//sitemapindex") != nil
	locs := make([]string, 0)
	for _, n := range xmlquery.Find(doc, "//loc") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, isIndex, nil
}
