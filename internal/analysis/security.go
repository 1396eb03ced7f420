package analysis

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

// versionPattern matches a product token carrying a version number,
// such as "nginx/1.25.3" or "PHP/8.2".
var versionPattern = regexp.MustCompile(`[A-Za-z][\w.-]*/\d`)

// maxAgePattern extracts the HSTS max-age directive.
var maxAgePattern = regexp.MustCompile(`(?i)max-age\s*=\s*"?(\d+)`)

// osIndicators are substrings of a Server header that reveal the
// operating system.
var osIndicators = []struct {
	token string
	name  string
}{
	{"ubuntu", "Ubuntu"},
	{"debian", "Debian"},
	{"centos", "CentOS"},
	{"red hat", "Red Hat"},
	{"fedora", "Fedora"},
	{"win32", "Windows"},
	{"win64", "Windows"},
}

// mixedContentSelector matches elements that load subresources.
const mixedContentSelector = "img[src], script[src], iframe[src], video[src], audio[src], source[src], link[href], form[action]"

// SecurityAnalyzer checks response headers, cookies and subresource
// schemes.
type SecurityAnalyzer struct{}

// NewSecurityAnalyzer creates a new SecurityAnalyzer.
func NewSecurityAnalyzer() *SecurityAnalyzer {
	return &SecurityAnalyzer{}
}

// Name returns the analyzer name.
func (a *SecurityAnalyzer) Name() string {
	return "security"
}

// Analyze examines headers and markup of a successful response. Failed
// responses carry error pages and are not judged.
func (a *SecurityAnalyzer) Analyze(visited *model.VisitedURL, body []byte, doc *document.Document, opts Options) (*model.AnalysisResult, error) {
	result := model.NewAnalysisResult()
	if visited.IsTransportFailure() {
		return result, nil
	}

	https := strings.HasPrefix(visited.URL, "https://")

	a.checkCSP(visited, result)
	if https {
		a.checkHSTS(visited, opts, result)
	}
	a.checkFrameOptions(visited, result)
	a.checkContentTypeOptions(visited, result)
	a.checkCookies(visited, https, result)
	a.checkServerInfo(visited, result)
	if https {
		a.checkMixedContent(doc, result)
	}
	checkExposedSecrets(body, result)

	return result, nil
}

// checkCSP detects missing or weak Content-Security-Policy headers.
func (a *SecurityAnalyzer) checkCSP(visited *model.VisitedURL, result *model.AnalysisResult) {
	csp := visited.Header("Content-Security-Policy")
	reportOnly := visited.Header("Content-Security-Policy-Report-Only")

	if csp == "" && reportOnly == "" {
		result.AddWarning(model.CategoryMissingCSP,
			pluralCount("%d response(s) without Content-Security-Policy"),
			[]string{"Content-Security-Policy header is missing"})
		return
	}
	if csp == "" {
		result.AddNotice("Content-Security-Policy is only sent in report-only mode")
		return
	}

	if strings.Contains(csp, "'unsafe-inline'") {
		result.AddNotice("Content-Security-Policy allows 'unsafe-inline'")
	}
	if strings.Contains(csp, "'unsafe-eval'") {
		result.AddNotice("Content-Security-Policy allows 'unsafe-eval'")
	}
	result.AddOK("Content-Security-Policy is set")
}

func (a *SecurityAnalyzer) checkHSTS(visited *model.VisitedURL, opts Options, result *model.AnalysisResult) {
	hsts := visited.Header("Strict-Transport-Security")
	if hsts == "" {
		result.AddWarning(model.CategoryMissingHSTS,
			pluralCount("%d HTTPS response(s) without Strict-Transport-Security"),
			[]string{"Strict-Transport-Security header is missing"})
		return
	}

	m := maxAgePattern.FindStringSubmatch(hsts)
	if m == nil {
		result.AddWarning(model.CategoryMissingHSTS,
			pluralCount("%d Strict-Transport-Security header(s) without max-age"),
			[]string{"Strict-Transport-Security: " + hsts})
		return
	}
	maxAge, err := strconv.Atoi(m[1])
	if err == nil && maxAge < opts.MinHSTSMaxAge {
		result.AddWarning(model.CategoryMissingHSTS,
			pluralCount("%d Strict-Transport-Security header(s) with a short max-age"),
			[]string{fmt.Sprintf("max-age=%d is below %d seconds", maxAge, opts.MinHSTSMaxAge)})
		return
	}
	result.AddOK("Strict-Transport-Security is set")
}

func (a *SecurityAnalyzer) checkFrameOptions(visited *model.VisitedURL, result *model.AnalysisResult) {
	if visited.Header("X-Frame-Options") != "" ||
		strings.Contains(strings.ToLower(visited.Header("Content-Security-Policy")), "frame-ancestors") {
		result.AddOK("Clickjacking protection is set")
		return
	}
	result.AddWarning(model.CategoryMissingXFrameOptions,
		pluralCount("%d response(s) without X-Frame-Options or frame-ancestors"),
		[]string{"X-Frame-Options header is missing"})
}

func (a *SecurityAnalyzer) checkContentTypeOptions(visited *model.VisitedURL, result *model.AnalysisResult) {
	if strings.EqualFold(strings.TrimSpace(visited.Header("X-Content-Type-Options")), "nosniff") {
		result.AddOK("X-Content-Type-Options is set to nosniff")
		return
	}
	result.AddWarning(model.CategoryMissingXContentTypeOptions,
		pluralCount("%d response(s) without X-Content-Type-Options: nosniff"),
		[]string{"X-Content-Type-Options header is missing or not nosniff"})
}

// checkCookies flags cookies readable by scripts and, on HTTPS, cookies
// that could travel over plain HTTP.
func (a *SecurityAnalyzer) checkCookies(visited *model.VisitedURL, https bool, result *model.AnalysisResult) {
	if visited.Headers == nil {
		return
	}

	details := make([]string, 0)
	for _, line := range visited.Headers.Values("Set-Cookie") {
		cookie, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		missing := make([]string, 0, 2)
		if https && !cookie.Secure {
			missing = append(missing, "Secure")
		}
		if !cookie.HttpOnly {
			missing = append(missing, "HttpOnly")
		}
		if len(missing) > 0 {
			details = append(details, sanitizeCookie(line)+" (missing "+strings.Join(missing, ", ")+")")
		}
	}
	result.AddCritical(model.CategoryInsecureCookies, pluralCount("%d insecure cookie(s)"), details)
}

// sanitizeCookie hides the cookie value.
func sanitizeCookie(cookie string) string {
	idx := strings.Index(cookie, "=")
	if idx == -1 {
		return cookie
	}
	name := cookie[:idx]
	rest := cookie[idx+1:]
	if semi := strings.Index(rest, ";"); semi != -1 {
		return name + "=<redacted>" + rest[semi:]
	}
	return name + "=<redacted>"
}

// checkServerInfo flags headers revealing software versions.
func (a *SecurityAnalyzer) checkServerInfo(visited *model.VisitedURL, result *model.AnalysisResult) {
	details := make([]string, 0)

	if server := visited.Header("Server"); server != "" && versionPattern.MatchString(server) {
		detail := "Server: " + server
		if osName := detectOS(server); osName != "" {
			detail += " (reveals " + osName + ")"
		}
		details = append(details, detail)
	}
	for _, name := range []string{"X-Powered-By", "X-AspNet-Version", "X-AspNetMvc-Version"} {
		if v := visited.Header(name); v != "" {
			details = append(details, name+": "+v)
		}
	}

	result.AddWarning(model.CategoryServerVersionDisclosure,
		pluralCount("%d header(s) disclosing server software"), details)
}

func detectOS(server string) string {
	lower := strings.ToLower(server)
	for _, ind := range osIndicators {
		if strings.Contains(lower, ind.token) {
			return ind.name
		}
	}
	return ""
}

// checkMixedContent flags subresources loaded over plain HTTP from an
// HTTPS page.
func (a *SecurityAnalyzer) checkMixedContent(doc *document.Document, result *model.AnalysisResult) {
	details := make([]string, 0)
	doc.Find(mixedContentSelector).Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "href", "action"} {
			v, ok := s.Attr(attr)
			if !ok || !strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "http://") {
				continue
			}
			if goquery.NodeName(s) == "link" && !loadsSubresource(s) {
				continue
			}
			details = append(details, document.OpeningTag(s))
			return
		}
	})
	result.AddCritical(model.CategoryMixedContent,
		pluralCount("%d resource(s) loaded over HTTP on an HTTPS page"), details)
}

// loadsSubresource reports whether a <link> is fetched by the browser
// rather than being a plain reference such as canonical or alternate.
func loadsSubresource(s *goquery.Selection) bool {
	rel := strings.ToLower(s.AttrOr("rel", ""))
	for _, r := range []string{"stylesheet", "icon", "preload", "modulepreload", "manifest"} {
		if strings.Contains(rel, r) {
			return true
		}
	}
	return false
}
