// Package document wraps the HTML parser behind a small, nil-safe API so
// that analyzers and link extraction never depend on parser specifics.
package document

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/sitecrawler/internal/model"
)

// ParseError reports a body that could not be read as HTML at all.
// Malformed markup is not a ParseError: the parser recovers from it.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Document is a parsed HTML page. The zero value and a nil pointer are
// valid empty documents.
type Document struct {
	doc     *goquery.Document
	pageURL *url.URL
	source  []byte
}

// Empty returns an empty document for pageURL.
func Empty(pageURL *url.URL) *Document {
	return &Document{pageURL: pageURL}
}

// Parse builds a Document from a response body.
//
// Non-HTML content yields an empty document and no error. HTML is decoded
// to UTF-8 according to the Content-Type header and meta tags, then parsed
// permissively. If the body cannot be read at all, an empty document is
// returned together with a *ParseError.
func Parse(body []byte, contentTypeHeader string, ct model.ContentType, pageURL *url.URL) (*Document, error) {
	if ct != model.ContentTypeHTML {
		return Empty(pageURL), nil
	}

	name := ""
	if pageURL != nil {
		name = pageURL.String()
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentTypeHeader)
	if err != nil {
		return Empty(pageURL), &ParseError{URL: name, Err: err}
	}
	source, err := io.ReadAll(reader)
	if err != nil {
		return Empty(pageURL), &ParseError{URL: name, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(source))
	if err != nil {
		return Empty(pageURL), &ParseError{URL: name, Err: err}
	}
	doc.Url = pageURL

	return &Document{doc: doc, pageURL: pageURL, source: source}, nil
}

// FromString parses markup directly. It is meant for tests and tools.
func FromString(markup string, pageURL *url.URL) *Document {
	doc, _ := Parse([]byte(markup), "text/html; charset=utf-8", model.ContentTypeHTML, pageURL)
	return doc
}

// IsEmpty reports whether the document holds no parsed tree.
func (d *Document) IsEmpty() bool {
	return d == nil || d.doc == nil
}

// Find returns the elements matching the CSS selector. An empty document
// yields an empty selection.
func (d *Document) Find(selector string) *goquery.Selection {
	if d.IsEmpty() {
		return new(goquery.Selection)
	}
	return d.doc.Find(selector)
}

// Root returns the document selection.
func (d *Document) Root() *goquery.Selection {
	if d.IsEmpty() {
		return new(goquery.Selection)
	}
	return d.doc.Selection
}

// URL returns the page URL.
func (d *Document) URL() *url.URL {
	if d == nil {
		return nil
	}
	return d.pageURL
}

// BaseURL returns the URL relative links resolve against: the first
// <base href> resolved against the page URL, or the page URL itself.
func (d *Document) BaseURL() *url.URL {
	if d == nil {
		return nil
	}
	if d.IsEmpty() || d.pageURL == nil {
		return d.pageURL
	}
	href, ok := d.doc.Find("base[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return d.pageURL
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return d.pageURL
	}
	return d.pageURL.ResolveReference(ref)
}

// Title returns the trimmed text of the first <title> element.
func (d *Document) Title() string {
	return strings.TrimSpace(d.Find("title").First().Text())
}

// Lang returns the lang attribute of the <html> element.
func (d *Document) Lang() (string, bool) {
	lang, ok := d.Find("html").First().Attr("lang")
	return strings.TrimSpace(lang), ok
}

// Source returns the UTF-8 markup the document was parsed from.
func (d *Document) Source() []byte {
	if d == nil {
		return nil
	}
	return d.source
}

// HasDoctype reports whether the markup declares a doctype.
func (d *Document) HasDoctype() bool {
	if d.IsEmpty() || len(d.doc.Nodes) == 0 {
		return false
	}
	for n := d.doc.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.DoctypeNode {
			return true
		}
	}
	return false
}

// OuterHTML renders the first element of sel, or "" when sel is empty.
func OuterHTML(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	out, err := goquery.OuterHtml(sel.First())
	if err != nil {
		return ""
	}
	return out
}

// OpeningTag renders the start tag of the first element of sel with its
// attributes, without children.
func OpeningTag(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	n := sel.Get(0)
	if n.Type != html.ElementNode {
		return ""
	}

	var b strings.Builder
	b.WriteString("<")
	b.WriteString(n.Data)
	for _, a := range n.Attr {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	return b.String()
}
