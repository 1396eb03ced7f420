package export

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/markdown"

	"github.com/nao1215/sitecrawler/internal/document"
	"github.com/nao1215/sitecrawler/internal/model"
)

var (
	// ErrPathEscapesRoot is returned when a resolved path lies outside the
	// export root.
	ErrPathEscapesRoot = errors.New("path escapes export root")

	// ErrInvalidToken is returned when a download token cannot be decoded or
	// does not name an exported file.
	ErrInvalidToken = errors.New("invalid download token")

	// ErrInvalidReplacement is returned for a malformed replacement rule.
	ErrInvalidReplacement = errors.New("invalid replacement rule")
)

const (
	// CombinedFileName is the single-file export written by Finish when no
	// explicit path is configured.
	CombinedFileName = "combined.md"

	dirPerm  = 0o750
	filePerm = 0o600
)

// Replacement rewrites matches of Pattern in the generated Markdown.
type Replacement struct {
	Pattern *regexp.Regexp
	With    string
}

var regexRule = regexp.MustCompile(`^/(.*)/([a-z]*)$`)

// ParseReplacement parses a rule of the form "search -> replace". A search
// written as /regex/ (optionally followed by the flag i) is a regular
// expression. Anything else is matched literally.
func ParseReplacement(rule string) (Replacement, error) {
	search, replace, ok := strings.Cut(rule, " -> ")
	search = strings.TrimSpace(search)
	if !ok || search == "" {
		return Replacement{}, fmt.Errorf("%w: %q", ErrInvalidReplacement, rule)
	}
	replace = strings.TrimSpace(replace)

	if m := regexRule.FindStringSubmatch(search); m != nil && m[1] != "" {
		expr := m[1]
		switch m[2] {
		case "":
		case "i":
			expr = "(?i)" + expr
		default:
			return Replacement{}, fmt.Errorf("%w: unsupported flags %q", ErrInvalidReplacement, m[2])
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return Replacement{}, fmt.Errorf("%w: %w", ErrInvalidReplacement, err)
		}
		return Replacement{Pattern: re, With: replace}, nil
	}

	return Replacement{
		Pattern: regexp.MustCompile(regexp.QuoteMeta(search)),
		With:    strings.ReplaceAll(replace, "$", "$$"),
	}, nil
}

// ParseReplacements parses each rule in order.
func ParseReplacements(rules []string) ([]Replacement, error) {
	out := make([]Replacement, 0, len(rules))
	for _, rule := range rules {
		r, err := ParseReplacement(rule)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func applyReplacements(s string, replacements []Replacement) string {
	for _, r := range replacements {
		s = r.Pattern.ReplaceAllString(s, r.With)
	}
	return s
}

// Exporter writes the Markdown rendition of crawled pages below a root
// directory. It is safe for concurrent use.
type Exporter struct {
	root       string
	singleFile string
	convert    ConvertOptions
	logger     *slog.Logger

	mu       sync.Mutex
	paths    map[string]string // export path -> page URL
	pages    map[string]string // page URL -> Markdown, kept for the single file
	exported int
	finished bool
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithSingleFile additionally combines all pages into one file when Finish
// is called. An empty name uses CombinedFileName.
func WithSingleFile(name string) Option {
	return func(e *Exporter) {
		if name == "" {
			name = CombinedFileName
		}
		e.singleFile = name
	}
}

// WithMoveBeforeH1 moves content preceding the first h1 to the page end.
func WithMoveBeforeH1(enabled bool) Option {
	return func(e *Exporter) {
		e.convert.MoveBeforeH1 = enabled
	}
}

// WithDisableImages drops images from the output.
func WithDisableImages(disabled bool) Option {
	return func(e *Exporter) {
		e.convert.DisableImages = disabled
	}
}

// WithDisableFiles renders links to downloadable files as plain text.
func WithDisableFiles(disabled bool) Option {
	return func(e *Exporter) {
		e.convert.DisableFiles = disabled
	}
}

// WithExcludeSelectors removes elements matching the selectors.
func WithExcludeSelectors(selectors []string) Option {
	return func(e *Exporter) {
		e.convert.ExcludeSelectors = append(e.convert.ExcludeSelectors, selectors...)
	}
}

// WithReplacements applies replacements to every exported page.
func WithReplacements(replacements []Replacement) Option {
	return func(e *Exporter) {
		e.convert.Replacements = append(e.convert.Replacements, replacements...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Exporter rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Exporter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("export directory must not be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve export directory: %w", err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	e := &Exporter{
		root:   abs,
		logger: slog.Default(),
		paths:  make(map[string]string),
		pages:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Dir returns the absolute export root.
func (e *Exporter) Dir() string {
	return e.root
}

// RunDirName returns the directory name used for one export run:
// the start time followed by a slug of the host, e.g.
// "20240102-150405-example-com".
func RunDirName(rootURL string, started time.Time) string {
	host := rootURL
	if u, err := url.Parse(rootURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	slug := slugify(host)
	if slug == "" {
		slug = "site"
	}
	return started.Format("20060102-150405") + "-" + slug
}

// ExportPage converts doc to Markdown and writes it to the file derived
// from the page URL. It returns the path relative to the export root.
func (e *Exporter) ExportPage(visited *model.VisitedURL, doc *document.Document) (string, error) {
	if visited == nil || doc == nil {
		return "", errors.New("nothing to export")
	}

	e.mu.Lock()
	rel := e.claimPath(visited)
	e.mu.Unlock()

	full, err := e.resolve(rel)
	if err != nil {
		return "", err
	}

	content := Convert(doc, e.convert)
	if err := os.MkdirAll(filepath.Dir(full), dirPerm); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), filePerm); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}

	e.mu.Lock()
	e.exported++
	if e.singleFile != "" {
		e.pages[visited.URL] = content
	}
	e.mu.Unlock()

	e.logger.Debug("exported page", "url", visited.URL, "file", rel)
	return rel, nil
}

// PageCount returns the number of pages exported so far.
func (e *Exporter) PageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exported
}

// claimPath reserves the export path of a page. A path already held by
// another URL, such as /a and /a.html, gets a suffix from the uqId.
// The caller must hold e.mu.
func (e *Exporter) claimPath(visited *model.VisitedURL) string {
	rel := PagePath(visited.URL, visited.UqID)
	for _, id := range []string{shortID(visited.UqID), visited.UqID} {
		if owner, ok := e.paths[rel]; !ok || owner == visited.URL {
			break
		}
		rel = strings.TrimSuffix(PagePath(visited.URL, visited.UqID), ".md") + "-" + id + ".md"
	}
	e.paths[rel] = visited.URL
	return rel
}

// Finish writes the combined single file if one was requested and returns
// its absolute path. Without a single file it returns "".
func (e *Exporter) Finish() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.singleFile == "" || e.finished {
		return "", nil
	}
	e.finished = true

	target := e.singleFile
	if !filepath.IsAbs(target) {
		target = filepath.Join(e.root, target)
	}
	target = filepath.Clean(target)
	if !within(e.root, target) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, e.singleFile)
	}

	urls := make([]string, 0, len(e.pages))
	for u := range e.pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	var sb strings.Builder
	md := markdown.NewMarkdown(&sb)
	for i, u := range urls {
		if i > 0 {
			md.HorizontalRule()
			md.PlainText("")
		}
		md.PlainText(markdown.Italic("Source: " + u))
		md.PlainText("")
		md.PlainText(strings.TrimSpace(e.pages[u]))
		md.PlainText("")
	}
	if err := md.Build(); err != nil {
		return "", fmt.Errorf("build combined file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(sb.String()), filePerm); err != nil {
		return "", fmt.Errorf("write combined file: %w", err)
	}
	e.logger.Info("wrote combined export", "file", target, "pages", len(urls))
	return target, nil
}

// resolve maps a relative page path to an absolute path inside the root,
// refusing paths that leave it directly or through a symlinked parent.
func (e *Exporter) resolve(rel string) (string, error) {
	full := filepath.Clean(filepath.Join(e.root, filepath.FromSlash(rel)))
	if !within(e.root, full) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, rel)
	}

	root, err := filepath.EvalSymlinks(e.root)
	if err != nil {
		return "", fmt.Errorf("resolve export root: %w", err)
	}
	for dir := filepath.Dir(full); within(e.root, dir); dir = filepath.Dir(dir) {
		resolved, err := filepath.EvalSymlinks(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", dir, err)
		}
		if !within(root, resolved) {
			return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, rel)
		}
		break
	}
	return full, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// PagePath returns the slash-separated export path for a page URL.
// "/" and paths ending in "/" map to index.md, known page extensions are
// replaced by .md and URLs with a query get a suffix from their uqId so
// that distinct query variants do not collide.
func PagePath(rawURL, uqID string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "page-" + shortID(uqID) + ".md"
	}

	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index"
	}

	segments := strings.Split(strings.Trim(p, "/"), "/")
	clean := make([]string, 0, len(segments))
	for _, s := range segments {
		if unescaped, err := url.PathUnescape(s); err == nil {
			s = unescaped
		}
		if s = sanitizeSegment(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		clean = []string{"index"}
	}

	last := clean[len(clean)-1]
	switch strings.ToLower(path.Ext(last)) {
	case ".html", ".htm", ".php", ".asp", ".aspx", ".jsp":
		last = strings.TrimSuffix(last, path.Ext(last))
	}
	if u.RawQuery != "" {
		last += "-" + shortID(uqID)
	}
	if last == "" {
		last = "index"
	}
	clean[len(clean)-1] = last + ".md"

	return strings.Join(clean, "/")
}

func shortID(uqID string) string {
	if len(uqID) > 8 {
		return uqID[:8]
	}
	if uqID == "" {
		return "page"
	}
	return uqID
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeSegment(s string) string {
	s = unsafeChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "." || s == ".." {
		return ""
	}
	return s
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = unsafeChars.ReplaceAllString(strings.ReplaceAll(s, ".", "-"), "-")
	return strings.Trim(s, "-")
}
