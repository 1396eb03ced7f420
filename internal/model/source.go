package model

// SourceAttribute records why a URL was queued: the element attribute it was
// found in, or a special origin such as the seed list or a redirect.
type SourceAttribute int

const (
	SourceInitURL SourceAttribute = iota
	SourceAHref
	SourceImgSrc
	SourceImgSrcset
	SourceLinkHref
	SourceScriptSrc
	SourceIframeSrc
	SourceMediaSrc
	SourceRedirect
	SourceSitemap
)

var sourceNames = [...]string{
	SourceInitURL:   "init-url",
	SourceAHref:     "a-href",
	SourceImgSrc:    "img-src",
	SourceImgSrcset: "img-srcset",
	SourceLinkHref:  "link-href",
	SourceScriptSrc: "script-src",
	SourceIframeSrc: "iframe-src",
	SourceMediaSrc:  "media-src",
	SourceRedirect:  "redirect",
	SourceSitemap:   "sitemap",
}

// String returns the stable identifier of the source attribute.
func (s SourceAttribute) String() string {
	if s < 0 || int(s) >= len(sourceNames) {
		return "unknown"
	}
	return sourceNames[s]
}

// MarshalText encodes the source attribute by name.
func (s SourceAttribute) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a source attribute name. Unknown names decode as
// init-url.
func (s *SourceAttribute) UnmarshalText(text []byte) error {
	*s = ParseSourceAttribute(string(text))
	return nil
}

// ParseSourceAttribute is the inverse of String.
func ParseSourceAttribute(name string) SourceAttribute {
	for i, n := range sourceNames {
		if n == name {
			return SourceAttribute(i)
		}
	}
	return SourceInitURL
}

// IsSeed reports whether the URL came from the user rather than a page.
func (s SourceAttribute) IsSeed() bool {
	return s == SourceInitURL
}
