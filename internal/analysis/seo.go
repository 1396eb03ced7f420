package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

// openGraphProperties are the tags needed for a usable link preview.
var openGraphProperties = []string{"og:title", "og:description"}

// SEOAnalyzer checks titles, descriptions, headings, OpenGraph tags and
// indexing directives.
type SEOAnalyzer struct{}

// NewSEOAnalyzer creates a new SEOAnalyzer.
func NewSEOAnalyzer() *SEOAnalyzer {
	return &SEOAnalyzer{}
}

// Name returns the analyzer name.
func (a *SEOAnalyzer) Name() string {
	return "seo"
}

// Analyze runs the SEO checks.
func (a *SEOAnalyzer) Analyze(visited *model.VisitedURL, _ []byte, doc *document.Document, opts Options) (*model.AnalysisResult, error) {
	result := model.NewAnalysisResult()

	a.checkNoindex(visited, doc, result)
	if doc.IsEmpty() {
		return result, nil
	}

	a.checkTitle(doc, opts, result)
	a.checkDescription(doc, opts, result)
	a.checkHeadings(doc, result)
	a.checkOpenGraph(doc, result)

	return result, nil
}

func (a *SEOAnalyzer) checkTitle(doc *document.Document, opts Options, result *model.AnalysisResult) {
	title := doc.Title()
	if title == "" {
		result.AddCritical(model.CategoryMissingTitle,
			pluralCount("%d page(s) without <title>"), []string{"<title> is missing or empty"})
		return
	}

	length := utf8.RuneCountInString(title)
	if length < opts.MinTitleLength || length > opts.MaxTitleLength {
		result.AddWarning(model.CategoryTitleLength,
			pluralCount("%d title(s) with length out of range"),
			[]string{fmt.Sprintf("%q has %d characters (recommended %d-%d)",
				title, length, opts.MinTitleLength, opts.MaxTitleLength)})
		return
	}
	result.AddOK(fmt.Sprintf("Title has %d characters", length))
}

func (a *SEOAnalyzer) checkDescription(doc *document.Document, opts Options, result *model.AnalysisResult) {
	description, ok := metaContent(doc, "name", "description")
	if !ok || description == "" {
		result.AddWarning(model.CategoryMissingMetaDescription,
			pluralCount("%d page(s) without meta description"),
			[]string{`<meta name="description"> is missing or empty`})
		return
	}

	length := utf8.RuneCountInString(description)
	if length < opts.MinDescriptionLength || length > opts.MaxDescriptionLength {
		result.AddWarning(model.CategoryMetaDescriptionLength,
			pluralCount("%d meta description(s) with length out of range"),
			[]string{fmt.Sprintf("meta description has %d characters (recommended %d-%d)",
				length, opts.MinDescriptionLength, opts.MaxDescriptionLength)})
		return
	}
	result.AddOK(fmt.Sprintf("Meta description has %d characters", length))
}

func (a *SEOAnalyzer) checkHeadings(doc *document.Document, result *model.AnalysisResult) {
	h1 := doc.Find("h1")
	switch h1.Length() {
	case 0:
		result.AddWarning(model.CategoryMissingH1,
			pluralCount("%d page(s) without <h1>"), []string{"<h1> is missing"})
	case 1:
		result.AddOK("Page has exactly one <h1>")
	default:
		details := make([]string, 0, h1.Length())
		h1.Each(func(_ int, s *goquery.Selection) {
			details = append(details, "<h1>"+strings.TrimSpace(s.Text())+"</h1>")
		})
		result.AddWarning(model.CategoryMultipleH1, pluralCount("%d <h1> element(s) on one page"), details)
	}
}

func (a *SEOAnalyzer) checkOpenGraph(doc *document.Document, result *model.AnalysisResult) {
	missing := make([]string, 0)
	for _, property := range openGraphProperties {
		if content, ok := metaContent(doc, "property", property); !ok || content == "" {
			missing = append(missing, property)
		}
	}
	result.AddWarning(model.CategoryMissingOpenGraph, pluralCount("%d OpenGraph tag(s) missing"), missing)
	if len(missing) == 0 {
		result.AddOK("OpenGraph title and description are present")
	}
}

// checkNoindex looks at both the meta robots tag and X-Robots-Tag, so it
// also covers non-HTML documents with an empty doc.
func (a *SEOAnalyzer) checkNoindex(visited *model.VisitedURL, doc *document.Document, result *model.AnalysisResult) {
	details := make([]string, 0)
	if robots, ok := metaContent(doc, "name", "robots"); ok && strings.Contains(strings.ToLower(robots), "noindex") {
		details = append(details, `<meta name="robots" content="`+robots+`">`)
	}
	if tag := visited.Header("X-Robots-Tag"); strings.Contains(strings.ToLower(tag), "noindex") {
		details = append(details, "X-Robots-Tag: "+tag)
	}
	result.AddWarning(model.CategoryNoindex, pluralCount("%d noindex directive(s)"), details)
}

// metaContent returns the trimmed content of the first <meta> whose attr
// equals value, ignoring case.
func metaContent(doc *document.Document, attr, value string) (string, bool) {
	var (
		content string
		found   bool
	)
	doc.Find("meta[" + attr + "]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(s.AttrOr(attr, "")), value) {
			content = strings.TrimSpace(s.AttrOr("content", ""))
			found = true
			return false
		}
		return true
	})
	return content, found
}
