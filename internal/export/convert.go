package export

import (
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/markdown"
	"golang.org/x/net/html"

	"github.com/nao1215/sitecrawler/internal/document"
)

// ConvertOptions controls how a page is turned into Markdown.
type ConvertOptions struct {
	// MoveBeforeH1 moves the content preceding the first <h1> (usually
	// navigation) to the end of the output.
	MoveBeforeH1 bool

	// DisableImages drops images.
	DisableImages bool

	// DisableFiles renders links to downloadable files as plain text.
	DisableFiles bool

	// ExcludeSelectors are CSS selectors removed before conversion.
	ExcludeSelectors []string

	Replacements []Replacement
}

// alwaysExcluded never carries readable content.
const alwaysExcluded = "script, style, noscript, template, svg, head"

// fileExtensions are link targets treated as downloadable files.
var fileExtensions = map[string]bool{
	".pdf": true, ".zip": true, ".gz": true, ".tgz": true, ".rar": true, ".7z": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".odt": true, ".ods": true, ".csv": true, ".exe": true, ".dmg": true, ".msi": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
}

var spaces = regexp.MustCompile(`\s+`)

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockList
	blockOrderedList
	blockCode
	blockQuote
	blockTable
	blockRule
)

// block is one Markdown block collected from the document before it is
// emitted, so blocks can be reordered.
type block struct {
	kind  blockKind
	level int
	text  string
	lang  string
	items []string
	table markdown.TableSet
}

type converter struct {
	opts   ConvertOptions
	base   *url.URL
	blocks []block
	inline strings.Builder
}

// Convert renders the readable content of doc as Markdown.
func Convert(doc *document.Document, opts ConvertOptions) string {
	if doc.IsEmpty() {
		return ""
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		body = doc.Root()
	}
	body = body.Clone()
	body.Find(alwaysExcluded).Remove()
	for _, sel := range opts.ExcludeSelectors {
		if strings.TrimSpace(sel) != "" {
			body.Find(sel).Remove()
		}
	}

	c := &converter{opts: opts, base: doc.BaseURL()}
	c.walk(body)
	c.flush()

	blocks := c.blocks
	if opts.MoveBeforeH1 {
		blocks = moveBeforeFirstH1(blocks)
	}

	md := markdown.NewMarkdown(io.Discard)
	for _, b := range blocks {
		emit(md, b)
	}

	return applyReplacements(strings.TrimSpace(md.String())+"\n", opts.Replacements)
}

// moveBeforeFirstH1 rotates the blocks preceding the first level 1 heading
// to the end. Without an h1 the order is kept.
func moveBeforeFirstH1(blocks []block) []block {
	for i, b := range blocks {
		if b.kind == blockHeading && b.level == 1 {
			if i == 0 {
				return blocks
			}
			out := make([]block, 0, len(blocks))
			out = append(out, blocks[i:]...)
			out = append(out, blocks[:i]...)
			return out
		}
	}
	return blocks
}

func emit(md *markdown.Markdown, b block) {
	switch b.kind {
	case blockHeading:
		switch b.level {
		case 1:
			md.H1(b.text)
		case 2:
			md.H2(b.text)
		case 3:
			md.H3(b.text)
		case 4:
			md.H4(b.text)
		case 5:
			md.H5(b.text)
		default:
			md.H6(b.text)
		}
	case blockList:
		md.BulletList(b.items...)
	case blockOrderedList:
		md.OrderedList(b.items...)
	case blockCode:
		md.CodeBlocks(markdown.SyntaxHighlight(b.lang), b.text)
	case blockQuote:
		md.Blockquote(b.text)
	case blockTable:
		md.Table(b.table)
	case blockRule:
		md.HorizontalRule()
	default:
		md.PlainText(b.text)
	}
	md.PlainText("")
}

// walk collects blocks from the children of sel. Inline content between
// blocks is gathered into paragraphs.
func (c *converter) walk(sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		switch node.Type {
		case html.TextNode:
			c.inline.WriteString(node.Data)
		case html.ElementNode:
			c.element(s, node.Data)
		}
	})
}

func (c *converter) element(s *goquery.Selection, tag string) {
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		c.flush()
		if text := c.inlineText(s); text != "" {
			c.blocks = append(c.blocks, block{kind: blockHeading, level: int(tag[1] - '0'), text: text})
		}
	case "p":
		c.flush()
		c.paragraph(c.inlineText(s))
	case "ul", "ol":
		c.flush()
		items := c.listItems(s)
		if len(items) == 0 {
			return
		}
		kind := blockList
		if tag == "ol" {
			kind = blockOrderedList
		}
		c.blocks = append(c.blocks, block{kind: kind, items: items})
	case "pre":
		c.flush()
		c.blocks = append(c.blocks, block{kind: blockCode, text: strings.TrimRight(s.Text(), "\n"), lang: codeLanguage(s)})
	case "blockquote":
		c.flush()
		if text := c.inlineText(s); text != "" {
			c.blocks = append(c.blocks, block{kind: blockQuote, text: text})
		}
	case "table":
		c.flush()
		if t, ok := c.table(s); ok {
			c.blocks = append(c.blocks, block{kind: blockTable, table: t})
		}
	case "hr":
		c.flush()
		c.blocks = append(c.blocks, block{kind: blockRule})
	case "br":
		c.flush()
	case "div", "section", "article", "main", "header", "footer", "nav", "aside",
		"figure", "figcaption", "form", "fieldset", "details", "summary", "dl", "dt", "dd", "li", "body", "html":
		c.flush()
		c.walk(s)
		c.flush()
	default:
		c.inline.WriteString(c.renderInline(s, tag))
	}
}

func (c *converter) paragraph(text string) {
	if text != "" {
		c.blocks = append(c.blocks, block{kind: blockParagraph, text: text})
	}
}

// flush turns pending inline content into a paragraph.
func (c *converter) flush() {
	text := collapse(c.inline.String())
	c.inline.Reset()
	c.paragraph(text)
}

// inlineText renders the children of s as one line of inline Markdown.
func (c *converter) inlineText(s *goquery.Selection) string {
	var sb strings.Builder
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		node := child.Get(0)
		switch node.Type {
		case html.TextNode:
			sb.WriteString(node.Data)
		case html.ElementNode:
			sb.WriteString(c.renderInline(child, node.Data))
		}
	})
	return collapse(sb.String())
}

func (c *converter) renderInline(s *goquery.Selection, tag string) string {
	switch tag {
	case "strong", "b":
		if text := c.inlineText(s); text != "" {
			return markdown.Bold(text)
		}
		return ""
	case "em", "i":
		if text := c.inlineText(s); text != "" {
			return markdown.Italic(text)
		}
		return ""
	case "code", "kbd", "samp":
		if text := collapse(s.Text()); text != "" {
			return markdown.Code(text)
		}
		return ""
	case "a":
		return c.link(s)
	case "img":
		return c.image(s)
	case "br":
		return " "
	case "input", "select", "textarea", "button", "iframe", "video", "audio", "object", "embed":
		return ""
	default:
		return c.inlineText(s)
	}
}

func (c *converter) link(s *goquery.Selection) string {
	text := c.inlineText(s)
	href, ok := s.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return text
	}

	target := c.resolve(href)
	if c.opts.DisableFiles && isFileLink(target) {
		return text
	}
	if text == "" {
		text = target
	}
	return markdown.Link(text, target)
}

func (c *converter) image(s *goquery.Selection) string {
	if c.opts.DisableImages {
		return ""
	}
	src, ok := s.Attr("src")
	src = strings.TrimSpace(src)
	if !ok || src == "" || strings.HasPrefix(src, "data:") {
		return ""
	}
	alt, _ := s.Attr("alt")
	return markdown.Image(collapse(alt), c.resolve(src))
}

// listItems renders the direct <li> children of a list. Nested lists are
// flattened into their parent item.
func (c *converter) listItems(s *goquery.Selection) []string {
	items := make([]string, 0)
	s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		if text := c.inlineText(li); text != "" {
			items = append(items, text)
		}
	})
	return items
}

func (c *converter) table(s *goquery.Selection) (markdown.TableSet, bool) {
	var rows [][]string
	s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.ReplaceAll(c.inlineText(cell), "|", `\|`))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return markdown.TableSet{}, false
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	for i := range rows {
		for len(rows[i]) < width {
			rows[i] = append(rows[i], "")
		}
	}
	return markdown.TableSet{Header: rows[0], Rows: rows[1:]}, true
}

func (c *converter) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || c.base == nil {
		return ref
	}
	return c.base.ResolveReference(u).String()
}

func codeLanguage(pre *goquery.Selection) string {
	for _, sel := range []*goquery.Selection{pre.Find("code").First(), pre} {
		class, _ := sel.Attr("class")
		for _, name := range strings.Fields(class) {
			if lang, ok := strings.CutPrefix(name, "language-"); ok {
				return lang
			}
			if lang, ok := strings.CutPrefix(name, "lang-"); ok {
				return lang
			}
		}
	}
	return ""
}

func isFileLink(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return fileExtensions[strings.ToLower(path.Ext(u.Path))]
}

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
