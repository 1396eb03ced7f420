package model

import "sort"

// Category identifies one specific rule within an analyzer, such as
// "missing-image-alt-attributes". The set is closed: analyzers only emit
// the constants declared here.
type Category string

// Accessibility categories.
const (
	CategoryMissingAriaLabels         Category = "missing-aria-labels"
	CategoryMissingFormLabels         Category = "missing-form-labels"
	CategoryMissingImageAltAttributes Category = "missing-image-alt-attributes"
	CategoryMissingRoles              Category = "missing-roles"
	CategoryMissingHTMLLang           Category = "missing-html-lang"
	CategoryInvalidHTMLLang           Category = "invalid-html-lang"
)

// SEO categories.
const (
	CategoryMissingTitle           Category = "missing-title"
	CategoryTitleLength            Category = "title-length"
	CategoryMissingMetaDescription Category = "missing-meta-description"
	CategoryMetaDescriptionLength  Category = "meta-description-length"
	CategoryMissingH1              Category = "missing-h1"
	CategoryMultipleH1             Category = "multiple-h1"
	CategoryMissingOpenGraph       Category = "missing-open-graph"
	CategoryNoindex                Category = "noindex"
)

// Security categories.
const (
	CategoryMissingCSP                 Category = "missing-csp"
	CategoryMissingHSTS                Category = "missing-hsts"
	CategoryMissingXFrameOptions       Category = "missing-x-frame-options"
	CategoryMissingXContentTypeOptions Category = "missing-x-content-type-options"
	CategoryInsecureCookies            Category = "insecure-cookies"
	CategoryServerVersionDisclosure    Category = "server-version-disclosure"
	CategoryMixedContent               Category = "mixed-content"
	CategoryExposedSecrets             Category = "exposed-secrets"
)

// Best practice categories.
const (
	CategoryMissingDoctype       Category = "missing-doctype"
	CategoryMissingCharset       Category = "missing-charset"
	CategoryDuplicateIDs         Category = "duplicate-ids"
	CategorySkippedHeadingLevels Category = "skipped-heading-levels"
	CategoryDeprecatedElements   Category = "deprecated-elements"
)

// Image metadata categories.
const (
	CategoryEXIFGPSLocation Category = "exif-gps-location"
	CategoryEXIFDeviceInfo  Category = "exif-device-info"
)

// CategoryInfo contains metadata about a category: the bucket it reports
// into, a short title and a remediation hint.
type CategoryInfo struct {
	Severity       Severity
	Title          string
	Recommendation string
}

// categoryInfoMapping is the single source of truth for category metadata.
// Every Category constant must have an entry.
var categoryInfoMapping = map[Category]CategoryInfo{
	CategoryMissingAriaLabels: {
		Severity:       SeverityCritical,
		Title:          "Form elements without aria-label",
		Recommendation: "Add aria-label or aria-labelledby to every visible form control.",
	},
	CategoryMissingFormLabels: {
		Severity:       SeverityWarning,
		Title:          "Form elements without label",
		Recommendation: "Associate each visible form control with a <label for=\"id\">.",
	},
	CategoryMissingImageAltAttributes: {
		Severity:       SeverityWarning,
		Title:          "Images without alt attribute",
		Recommendation: "Describe every meaningful image with a non-empty alt attribute.",
	},
	CategoryMissingRoles: {
		Severity:       SeverityWarning,
		Title:          "Landmarks without role",
		Recommendation: "Add an explicit role to landmark elements such as main, nav, header and footer.",
	},
	CategoryMissingHTMLLang: {
		Severity:       SeverityWarning,
		Title:          "Missing html lang attribute",
		Recommendation: "Declare the page language with <html lang=\"...\">.",
	},
	CategoryInvalidHTMLLang: {
		Severity:       SeverityWarning,
		Title:          "Invalid html lang attribute",
		Recommendation: "Use a valid BCP 47 language tag such as \"en\" or \"cs-CZ\".",
	},
	CategoryMissingTitle: {
		Severity:       SeverityCritical,
		Title:          "Missing title",
		Recommendation: "Give every page a unique <title>.",
	},
	CategoryTitleLength: {
		Severity:       SeverityWarning,
		Title:          "Title length out of range",
		Recommendation: "Keep titles between 10 and 65 characters.",
	},
	CategoryMissingMetaDescription: {
		Severity:       SeverityWarning,
		Title:          "Missing meta description",
		Recommendation: "Add a <meta name=\"description\"> summarizing the page.",
	},
	CategoryMetaDescriptionLength: {
		Severity:       SeverityWarning,
		Title:          "Meta description length out of range",
		Recommendation: "Keep meta descriptions between 50 and 160 characters.",
	},
	CategoryMissingH1: {
		Severity:       SeverityWarning,
		Title:          "Missing h1",
		Recommendation: "Add exactly one <h1> describing the page.",
	},
	CategoryMultipleH1: {
		Severity:       SeverityWarning,
		Title:          "Multiple h1",
		Recommendation: "Keep a single <h1> per page and use h2-h6 for sections.",
	},
	CategoryMissingOpenGraph: {
		Severity:       SeverityWarning,
		Title:          "Missing OpenGraph tags",
		Recommendation: "Add og:title and og:description meta tags for link previews.",
	},
	CategoryNoindex: {
		Severity:       SeverityWarning,
		Title:          "Page excluded from indexing",
		Recommendation: "Remove noindex if the page should appear in search results.",
	},
	CategoryMissingCSP: {
		Severity:       SeverityWarning,
		Title:          "Missing Content-Security-Policy",
		Recommendation: "Send a Content-Security-Policy header restricting script and frame sources.",
	},
	CategoryMissingHSTS: {
		Severity:       SeverityWarning,
		Title:          "Missing Strict-Transport-Security",
		Recommendation: "Send Strict-Transport-Security with a max-age of at least six months.",
	},
	CategoryMissingXFrameOptions: {
		Severity:       SeverityWarning,
		Title:          "Missing clickjacking protection",
		Recommendation: "Send X-Frame-Options or a CSP frame-ancestors directive.",
	},
	CategoryMissingXContentTypeOptions: {
		Severity:       SeverityWarning,
		Title:          "Missing X-Content-Type-Options",
		Recommendation: "Send X-Content-Type-Options: nosniff.",
	},
	CategoryInsecureCookies: {
		Severity:       SeverityCritical,
		Title:          "Insecure cookies",
		Recommendation: "Set Secure and HttpOnly on cookies served over HTTPS.",
	},
	CategoryServerVersionDisclosure: {
		Severity:       SeverityWarning,
		Title:          "Server version disclosure",
		Recommendation: "Hide version numbers from Server and X-Powered-By headers.",
	},
	CategoryMixedContent: {
		Severity:       SeverityCritical,
		Title:          "Mixed content",
		Recommendation: "Load every subresource of an HTTPS page over HTTPS.",
	},
	CategoryExposedSecrets: {
		Severity:       SeverityCritical,
		Title:          "Secrets in page source",
		Recommendation: "Remove private keys and credentials from served content and rotate them.",
	},
	CategoryMissingDoctype: {
		Severity:       SeverityWarning,
		Title:          "Missing doctype",
		Recommendation: "Start the document with <!DOCTYPE html>.",
	},
	CategoryMissingCharset: {
		Severity:       SeverityWarning,
		Title:          "Missing charset declaration",
		Recommendation: "Declare <meta charset=\"utf-8\"> or send a charset in Content-Type.",
	},
	CategoryDuplicateIDs: {
		Severity:       SeverityWarning,
		Title:          "Duplicate element ids",
		Recommendation: "Make every id attribute unique within the page.",
	},
	CategorySkippedHeadingLevels: {
		Severity:       SeverityWarning,
		Title:          "Skipped heading levels",
		Recommendation: "Do not jump from h2 to h4; keep the heading outline continuous.",
	},
	CategoryDeprecatedElements: {
		Severity:       SeverityWarning,
		Title:          "Deprecated elements",
		Recommendation: "Replace presentational elements such as <font> and <center> with CSS.",
	},
	CategoryEXIFGPSLocation: {
		Severity:       SeverityCritical,
		Title:          "GPS coordinates in image metadata",
		Recommendation: "Strip EXIF GPS tags before publishing images.",
	},
	CategoryEXIFDeviceInfo: {
		Severity:       SeverityWarning,
		Title:          "Device information in image metadata",
		Recommendation: "Strip camera make, model and serial numbers from published images.",
	},
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	_, ok := categoryInfoMapping[c]
	return ok
}

// String returns the category identifier.
func (c Category) String() string {
	return string(c)
}

// Info returns the metadata for c. Unknown categories report as warnings
// with the raw identifier as title.
func (c Category) Info() CategoryInfo {
	if info, ok := categoryInfoMapping[c]; ok {
		return info
	}
	return CategoryInfo{Severity: SeverityWarning, Title: string(c)}
}

// AllCategories returns every declared category in lexical order.
func AllCategories() []Category {
	all := make([]Category, 0, len(categoryInfoMapping))
	for c := range categoryInfoMapping {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}
