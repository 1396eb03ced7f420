package crawler

import (
	"path/filepath"
	"strings"
)

// pathFilter applies ignore and follow glob patterns to URL paths.
// Ignore patterns win; when follow patterns are set, a path must match at
// least one of them.
type pathFilter struct {
	ignore []string
	follow []string
}

// allows reports whether urlPath passes the filter.
func (f pathFilter) allows(urlPath string) bool {
	if urlPath == "" {
		urlPath = "/"
	}

	for _, pattern := range f.ignore {
		if matchPattern(pattern, urlPath) {
			return false
		}
	}

	if len(f.follow) == 0 {
		return true
	}
	for _, pattern := range f.follow {
		if matchPattern(pattern, urlPath) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match a whole subtree
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard" and "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1"
func matchPattern(pattern, urlPath string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(urlPath, prefix+"/") || urlPath == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(urlPath, strings.TrimPrefix(pattern, "*")) {
		return true
	}

	if matched, err := filepath.Match(pattern, urlPath); err == nil && matched {
		return true
	}

	// Bare file patterns such as "report-*.html" match the last segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(urlPath)); err == nil && matched {
			return true
		}
	}

	return false
}
