package analysis

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/language"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

// landmarkSelector matches elements that define page regions for
// assistive technology.
const landmarkSelector = "main, nav, aside, body > header, body > footer"

// AccessibilityAnalyzer checks form labelling, image alternatives,
// landmark roles and the document language.
type AccessibilityAnalyzer struct{}

// NewAccessibilityAnalyzer creates a new AccessibilityAnalyzer.
func NewAccessibilityAnalyzer() *AccessibilityAnalyzer {
	return &AccessibilityAnalyzer{}
}

// Name returns the analyzer name.
func (a *AccessibilityAnalyzer) Name() string {
	return "accessibility"
}

// Analyze runs the accessibility checks.
func (a *AccessibilityAnalyzer) Analyze(_ *model.VisitedURL, _ []byte, doc *document.Document, _ Options) (*model.AnalysisResult, error) {
	result := model.NewAnalysisResult()
	if doc.IsEmpty() {
		return result, nil
	}

	a.checkFormControls(doc, result)
	a.checkImageAlt(doc, result)
	a.checkRoles(doc, result)
	a.checkLang(doc, result)

	return result, nil
}

// checkFormControls flags visible form controls without an accessible name.
// Hidden inputs have no visual surface and are never flagged.
func (a *AccessibilityAnalyzer) checkFormControls(doc *document.Document, result *model.AnalysisResult) {
	labelled := make(map[string]bool)
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		if id := strings.TrimSpace(s.AttrOr("for", "")); id != "" {
			labelled[id] = true
		}
	})

	visible := 0
	missingAria := make([]string, 0)
	missingLabel := make([]string, 0)

	doc.Find("input, select, textarea, button").Each(func(_ int, s *goquery.Selection) {
		if isHiddenInput(s) {
			return
		}
		visible++

		if hasAriaName(s) {
			return
		}
		markup := document.OuterHTML(s)
		missingAria = append(missingAria, markup)

		if labelledByContent(s) {
			return
		}
		id := strings.TrimSpace(s.AttrOr("id", ""))
		if id != "" && labelled[id] {
			return
		}
		if s.ParentsFiltered("label").Length() > 0 {
			return
		}
		missingLabel = append(missingLabel, markup)
	})

	result.AddCritical(model.CategoryMissingAriaLabels,
		pluralCount("%d form element(s) without defined 'aria-label' or 'aria-labelledby'"), missingAria)
	result.AddWarning(model.CategoryMissingFormLabels,
		pluralCount("%d form element(s) without associated <label>"), missingLabel)

	if visible > 0 && len(missingAria) == 0 {
		result.AddOK("All form elements have defined 'aria-label' or 'aria-labelledby'")
	}
}

func (a *AccessibilityAnalyzer) checkImageAlt(doc *document.Document, result *model.AnalysisResult) {
	images := doc.Find("img")
	missing := make([]string, 0)
	images.Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.AttrOr("alt", "")) == "" {
			missing = append(missing, document.OuterHTML(s))
		}
	})

	result.AddWarning(model.CategoryMissingImageAltAttributes,
		pluralCount("%d image(s) without 'alt' attribute"), missing)
	if images.Length() > 0 && len(missing) == 0 {
		result.AddOK("All images have an 'alt' attribute")
	}
}

// checkRoles flags landmark elements without an explicit role. Landmarks
// that carry one are reported as OK.
func (a *AccessibilityAnalyzer) checkRoles(doc *document.Document, result *model.AnalysisResult) {
	missing := make([]string, 0)
	withRole := 0
	doc.Find(landmarkSelector).Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.AttrOr("role", "")) != "" {
			withRole++
			return
		}
		missing = append(missing, document.OpeningTag(s))
	})

	result.AddWarning(model.CategoryMissingRoles,
		pluralCount("%d landmark element(s) without 'role' attribute"), missing)
	if withRole > 0 {
		result.AddOK(pluralCount("%d landmark element(s) with explicit 'role' attribute")(withRole))
	}
}

func (a *AccessibilityAnalyzer) checkLang(doc *document.Document, result *model.AnalysisResult) {
	lang, ok := doc.Lang()
	if !ok || lang == "" {
		result.AddWarning(model.CategoryMissingHTMLLang,
			pluralCount("%d <html> element(s) without 'lang' attribute"),
			[]string{document.OpeningTag(doc.Find("html"))})
		return
	}

	if _, err := language.Parse(lang); err != nil {
		result.AddWarning(model.CategoryInvalidHTMLLang,
			pluralCount("%d invalid 'lang' attribute(s)"),
			[]string{`lang="` + lang + `"`})
		return
	}
	result.AddOK("Valid 'lang' attribute '" + lang + "'")
}

// isHiddenInput reports whether s is an <input type="hidden">.
func isHiddenInput(s *goquery.Selection) bool {
	if goquery.NodeName(s) != "input" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(s.AttrOr("type", "")), "hidden")
}

// hasAriaName reports whether s carries a non-empty aria-label or
// aria-labelledby.
func hasAriaName(s *goquery.Selection) bool {
	return strings.TrimSpace(s.AttrOr("aria-label", "")) != "" ||
		strings.TrimSpace(s.AttrOr("aria-labelledby", "")) != ""
}

// labelledByContent reports whether the control is named by its own
// content or value, as buttons are.
func labelledByContent(s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "button":
		return true
	case "input":
		switch strings.ToLower(strings.TrimSpace(s.AttrOr("type", ""))) {
		case "submit", "reset", "button", "image":
			return true
		}
	}
	return false
}
