package discovery

import (
	"net/url"
	"path"
	"strings"
)

// DefaultExcludePaths are the paths skipped when no patterns are configured.
var DefaultExcludePaths = []string{
	"/blog/*",
	"/news/*",
	"/press/*",
	"/careers/*",
	"/tag/*",
	"/wp-admin/*",
}

// skippedExtensions are non-document resources never offered as candidates.
var skippedExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".svg": true, ".webp": true, ".zip": true, ".css": true, ".js": true,
	".xml": true, ".mp4": true, ".mp3": true, ".ico": true, ".doc": true,
	".docx": true, ".xls": true, ".xlsx": true,
}

// PathMatcher filters URLs by glob-style path patterns. A pattern ending in
// "/*" also matches deeper paths, so "/blog/*" excludes "/blog/a/b".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher. Nil patterns select
// DefaultExcludePaths; an empty non-nil slice excludes nothing.
func NewPathMatcher(patterns []string) *PathMatcher {
	if patterns == nil {
		patterns = DefaultExcludePaths
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &PathMatcher{patterns: lowered}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded reports whether rawURL matches an exclude pattern or points at
// a non-document resource. Unparseable URLs are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	if skippedExtensions[path.Ext(p)] {
		return true
	}
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, p) {
			return true
		}
	}
	return false
}

func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
