package analysis

import (
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

const testPageURL = "https://example.com/test"

func newVisited(headers http.Header) *model.VisitedURL {
	return &model.VisitedURL{
		UqID:              "0123456789abcdef0123456789abcdef",
		URL:               testPageURL,
		StatusCode:        http.StatusOK,
		ContentType:       model.ContentTypeHTML,
		ContentTypeHeader: "text/html; charset=utf-8",
		Headers:           headers,
	}
}

func parseDoc(t *testing.T, markup string) *document.Document {
	t.Helper()
	u, err := url.Parse(testPageURL)
	if err != nil {
		t.Fatalf("failed to parse URL: %v", err)
	}
	return document.FromString(markup, u)
}

func analyzeAccessibility(t *testing.T, markup string) *model.AnalysisResult {
	t.Helper()
	res, err := NewAccessibilityAnalyzer().Analyze(newVisited(nil), []byte(markup), parseDoc(t, markup), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func containsAny(details []string, substr string) bool {
	for _, d := range details {
		if strings.Contains(d, substr) {
			return true
		}
	}
	return false
}

// TestAccessibilityHiddenInputsExempt tests that hidden inputs are never
// flagged while visible unlabeled controls are.
func TestAccessibilityHiddenInputsExempt(t *testing.T) {
	t.Parallel()

	markup := `<!DOCTYPE html>
<html lang="en">
<head><title>Test Page</title></head>
<body>
	<form>
		<input type="hidden" name="_csrf" value="somevalue">
		<input type="text" name="username">
		<input type="text" name="password" aria-label="Password">
		<input type="hidden" name="session_id" value="abc123">
		<input type="email" name="email">
		<input type="password" name="confirm_password" aria-labelledby="confirm-label">
		<select name="country"><option>USA</option></select>
		<textarea name="message" aria-label="Your message"></textarea>
		<textarea name="comments"></textarea>
	</form>
</body>
</html>`

	res := analyzeAccessibility(t, markup)
	details := res.CriticalDetails[model.CategoryMissingAriaLabels]

	if len(details) != 4 {
		t.Fatalf("expected 4 critical aria-label details, got %d: %v", len(details), details)
	}

	found := false
	for _, line := range res.Critical {
		if strings.Contains(line, "form element(s) without defined 'aria-label' or 'aria-labelledby'") {
			found = true
			if !strings.HasPrefix(line, "4 form element(s)") {
				t.Errorf("unexpected summary %q", line)
			}
		}
	}
	if !found {
		t.Error("expected a critical aria-label summary")
	}

	for _, name := range []string{`type="hidden"`, `name="_csrf"`, `name="session_id"`, `name="password"`, `name="confirm_password"`, `name="message"`} {
		if containsAny(details, name) {
			t.Errorf("%s must not be flagged", name)
		}
	}
	for _, name := range []string{`name="username"`, `name="email"`, `name="country"`, `name="comments"`} {
		if !containsAny(details, name) {
			t.Errorf("%s should be flagged", name)
		}
	}
}

// TestAccessibilityFormLabels tests the label association warning.
func TestAccessibilityFormLabels(t *testing.T) {
	t.Parallel()

	markup := `<!DOCTYPE html>
<html lang="en">
<head><title>Test Page</title></head>
<body>
	<form>
		<input type="hidden" name="_token" value="abc123">
		<input type="hidden" name="csrf_token" value="xyz789">
		<input type="text" name="username" id="username">
		<label for="email">Email:</label>
		<input type="text" name="email" id="email">
		<label>Phone <input type="tel" name="phone"></label>
	</form>
</body>
</html>`

	res := analyzeAccessibility(t, markup)
	details := res.WarningDetails[model.CategoryMissingFormLabels]

	if len(details) != 1 {
		t.Fatalf("expected 1 form label warning, got %d: %v", len(details), details)
	}
	if !strings.Contains(details[0], `name="username"`) {
		t.Errorf("expected username to be flagged, got %q", details[0])
	}
	for _, name := range []string{`name="_token"`, `name="csrf_token"`} {
		if containsAny(details, name) {
			t.Errorf("%s must not be flagged", name)
		}
	}
}

// TestAccessibilityOnlyHiddenInputs tests a form made of hidden inputs.
func TestAccessibilityOnlyHiddenInputs(t *testing.T) {
	t.Parallel()

	markup := `<!DOCTYPE html>
<html lang="en">
<head><title>Test Page</title></head>
<body>
	<form>
		<input type="hidden" name="_csrf" value="token1">
		<input type="hidden" name="session_id" value="session123">
		<input type="HIDDEN" name="user_id" value="456">
	</form>
</body>
</html>`

	res := analyzeAccessibility(t, markup)
	if len(res.Critical) != 0 || len(res.Warning) != 0 {
		t.Errorf("expected no critical or warning lines, got %v / %v", res.Critical, res.Warning)
	}
	if len(res.CriticalDetails[model.CategoryMissingAriaLabels]) != 0 ||
		len(res.WarningDetails[model.CategoryMissingFormLabels]) != 0 {
		t.Error("hidden inputs must not produce form findings")
	}
}

// TestAccessibilityMixedPage tests every rule on one page.
func TestAccessibilityMixedPage(t *testing.T) {
	t.Parallel()

	markup := `<!DOCTYPE html>
<html lang="en">
<head><title>Test Page</title></head>
<body>
	<img src="good.jpg" alt="Good image">
	<img src="bad.jpg">
	<form>
		<input type="hidden" name="_csrf" value="token">
		<label for="name">Name:</label>
		<input type="text" name="name" id="name" aria-label="Your name">
		<input type="email" name="email" id="email">
		<button type="submit">Submit</button>
		<button type="button" aria-label="Close">x</button>
	</form>
	<nav role="navigation">Navigation</nav>
	<main>Main content</main>
</body>
</html>`

	res := analyzeAccessibility(t, markup)

	if len(res.Warning) == 0 || len(res.Critical) == 0 || len(res.OK) == 0 {
		t.Fatalf("expected warnings, criticals and OK lines, got %+v", res)
	}

	aria := res.CriticalDetails[model.CategoryMissingAriaLabels]
	labels := res.WarningDetails[model.CategoryMissingFormLabels]
	for _, d := range append(append([]string{}, aria...), labels...) {
		if strings.Contains(d, `name="_csrf"`) {
			t.Error("hidden input must not be flagged")
		}
	}
	if len(aria) != 2 || !containsAny(aria, `name="email"`) || !containsAny(aria, "Submit") {
		t.Errorf("expected email and submit button without aria-label, got %v", aria)
	}
	if len(labels) != 1 || !containsAny(labels, `name="email"`) {
		t.Errorf("expected only email without label, got %v", labels)
	}

	alts := res.WarningDetails[model.CategoryMissingImageAltAttributes]
	if len(alts) != 1 || !strings.Contains(alts[0], "bad.jpg") {
		t.Errorf("expected bad.jpg to be flagged, got %v", alts)
	}

	roles := res.WarningDetails[model.CategoryMissingRoles]
	if len(roles) != 1 || roles[0] != "<main>" {
		t.Errorf("expected main without role, got %v", roles)
	}
	if !containsAny(res.OK, "landmark element(s) with explicit 'role'") {
		t.Errorf("expected nav with role to be an OK entry, got %v", res.OK)
	}
}

// TestAccessibilityLang tests the html lang checks.
func TestAccessibilityLang(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		markup   string
		category model.Category
	}{
		{"missing", `<html><body></body></html>`, model.CategoryMissingHTMLLang},
		{"empty", `<html lang=""><body></body></html>`, model.CategoryMissingHTMLLang},
		{"invalid", `<html lang="!!"><body></body></html>`, model.CategoryInvalidHTMLLang},
		{"valid", `<html lang="cs-CZ"><body></body></html>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := analyzeAccessibility(t, tt.markup)
			missing := len(res.WarningDetails[model.CategoryMissingHTMLLang])
			invalid := len(res.WarningDetails[model.CategoryInvalidHTMLLang])
			switch tt.category {
			case model.CategoryMissingHTMLLang:
				if missing != 1 || invalid != 0 {
					t.Errorf("expected missing lang, got %v", res.WarningDetails)
				}
			case model.CategoryInvalidHTMLLang:
				if invalid != 1 || missing != 0 {
					t.Errorf("expected invalid lang, got %v", res.WarningDetails)
				}
			default:
				if missing+invalid != 0 {
					t.Errorf("expected valid lang, got %v", res.WarningDetails)
				}
			}
		})
	}
}

// TestAccessibilityEmptyDocument tests that an empty document is a no-op.
func TestAccessibilityEmptyDocument(t *testing.T) {
	t.Parallel()

	res, err := NewAccessibilityAnalyzer().Analyze(newVisited(nil), nil, document.Empty(nil), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsEmpty() {
		t.Errorf("expected empty result, got %+v", res)
	}
}

// TestAccessibilityIdempotent tests that repeated runs give equal results.
func TestAccessibilityIdempotent(t *testing.T) {
	t.Parallel()

	markup := `<html><body><input name="q"><img src="x.png"><main></main></body></html>`
	first := analyzeAccessibility(t, markup)
	second := analyzeAccessibility(t, markup)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}
