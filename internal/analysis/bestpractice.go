package analysis

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

// deprecatedSelector matches presentational elements removed from HTML.
const deprecatedSelector = "font, center, marquee, blink"

// BestPracticeAnalyzer checks document structure.
type BestPracticeAnalyzer struct{}

// NewBestPracticeAnalyzer creates a new BestPracticeAnalyzer.
func NewBestPracticeAnalyzer() *BestPracticeAnalyzer {
	return &BestPracticeAnalyzer{}
}

// Name returns the analyzer name.
func (a *BestPracticeAnalyzer) Name() string {
	return "best-practices"
}

// Analyze runs the structural checks.
func (a *BestPracticeAnalyzer) Analyze(visited *model.VisitedURL, _ []byte, doc *document.Document, _ Options) (*model.AnalysisResult, error) {
	result := model.NewAnalysisResult()
	if doc.IsEmpty() {
		return result, nil
	}

	if doc.HasDoctype() {
		result.AddOK("Doctype is declared")
	} else {
		result.AddWarning(model.CategoryMissingDoctype,
			pluralCount("%d page(s) without doctype"), []string{"<!DOCTYPE html> is missing"})
	}

	a.checkCharset(visited, doc, result)
	a.checkDuplicateIDs(doc, result)
	a.checkHeadingLevels(doc, result)

	deprecated := make([]string, 0)
	doc.Find(deprecatedSelector).Each(func(_ int, s *goquery.Selection) {
		deprecated = append(deprecated, document.OpeningTag(s))
	})
	result.AddWarning(model.CategoryDeprecatedElements, pluralCount("%d deprecated element(s)"), deprecated)

	return result, nil
}

func (a *BestPracticeAnalyzer) checkCharset(visited *model.VisitedURL, doc *document.Document, result *model.AnalysisResult) {
	if strings.Contains(strings.ToLower(visited.ContentTypeHeader), "charset=") ||
		doc.Find("meta[charset]").Length() > 0 {
		result.AddOK("Charset is declared")
		return
	}

	declared := false
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(s.AttrOr("http-equiv", ""), "content-type") &&
			strings.Contains(strings.ToLower(s.AttrOr("content", "")), "charset=") {
			declared = true
			return false
		}
		return true
	})
	if declared {
		result.AddOK("Charset is declared")
		return
	}
	result.AddWarning(model.CategoryMissingCharset,
		pluralCount("%d page(s) without charset declaration"),
		[]string{`<meta charset="..."> is missing and Content-Type has no charset`})
}

// checkDuplicateIDs reports each repeated id once, in order of first use.
func (a *BestPracticeAnalyzer) checkDuplicateIDs(doc *document.Document, result *model.AnalysisResult) {
	counts := make(map[string]int)
	order := make([]string, 0)
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		id := strings.TrimSpace(s.AttrOr("id", ""))
		if id == "" {
			return
		}
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	})

	details := make([]string, 0)
	for _, id := range order {
		if counts[id] > 1 {
			details = append(details, fmt.Sprintf("id=%q is used %d times", id, counts[id]))
		}
	}
	result.AddWarning(model.CategoryDuplicateIDs, pluralCount("%d duplicate id(s)"), details)
}

// checkHeadingLevels flags headings more than one level deeper than the
// heading before them.
func (a *BestPracticeAnalyzer) checkHeadingLevels(doc *document.Document, result *model.AnalysisResult) {
	details := make([]string, 0)
	prev := 0
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		level := int(name[1] - '0')
		if prev > 0 && level > prev+1 {
			details = append(details, fmt.Sprintf("<h%d> follows <h%d>: %s",
				level, prev, strings.TrimSpace(s.Text())))
		}
		prev = level
	})
	result.AddWarning(model.CategorySkippedHeadingLevels, pluralCount("%d skipped heading level(s)"), details)
}
