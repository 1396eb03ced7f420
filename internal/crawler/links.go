package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

// ResourceTypes selects which kinds of references are followed besides
// anchors. Anchors are always extracted.
type ResourceTypes struct {
	Images  bool
	Styles  bool
	Scripts bool
	Media   bool
	Frames  bool
}

// AllResourceTypes follows every supported reference.
func AllResourceTypes() ResourceTypes {
	return ResourceTypes{Images: true, Styles: true, Scripts: true, Media: true, Frames: true}
}

// Link is an outbound reference found in a page, still unresolved.
type Link struct {
	URL    string
	Source model.SourceAttribute
}

// skippedPrefixes are references that never point to fetchable documents.
var skippedPrefixes = []string{
	"#",
	"javascript:",
	"mailto:",
	"tel:",
	"sms:",
	"data:",
	"about:",
	"blob:",
}

// ExtractLinks returns the outbound references of doc in document order per
// element kind. Relative URLs are returned as written; resolve them against
// doc.BaseURL().
func ExtractLinks(doc *document.Document, types ResourceTypes) []Link {
	if doc.IsEmpty() {
		return nil
	}

	links := make([]Link, 0)
	add := func(raw string, source model.SourceAttribute) {
		raw = strings.TrimSpace(raw)
		if raw == "" || isSkippedReference(raw) {
			return
		}
		links = append(links, Link{URL: raw, Source: source})
	}
	attr := func(selector, name string, source model.SourceAttribute) {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(name); ok {
				add(v, source)
			}
		})
	}

	attr("a[href], area[href]", "href", model.SourceAHref)

	if types.Images {
		attr("img[src]", "src", model.SourceImgSrc)
		doc.Find("img[srcset], picture source[srcset]").Each(func(_ int, s *goquery.Selection) {
			srcset, _ := s.Attr("srcset")
			for _, candidate := range parseSrcset(srcset) {
				add(candidate, model.SourceImgSrcset)
			}
		})
	}

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		href, _ := s.Attr("href")
		switch {
		case strings.Contains(rel, "stylesheet") || strings.Contains(rel, "preload"):
			if types.Styles {
				add(href, model.SourceLinkHref)
			}
		case strings.Contains(rel, "icon"):
			if types.Images {
				add(href, model.SourceLinkHref)
			}
		}
	})

	if types.Scripts {
		attr("script[src]", "src", model.SourceScriptSrc)
	}
	if types.Frames {
		attr("iframe[src], frame[src]", "src", model.SourceIframeSrc)
	}
	if types.Media {
		attr("video[src], audio[src], source[src], track[src]", "src", model.SourceMediaSrc)
	}

	return links
}

func isSkippedReference(raw string) bool {
	lower := strings.ToLower(raw)
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// parseSrcset returns the URLs of a srcset attribute.
func parseSrcset(srcset string) []string {
	urls := make([]string, 0)
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}
