package spider

import (
	"net/url"
	"path"
	"slices"
	"strings"
)

// shouldCrawl applies the ignore and follow patterns to the path of u.
// Ignore patterns win; once follow patterns are set only matching paths
// are fetched.
func (t *Tracker) shouldCrawl(u *url.URL) bool {
	p := u.Path
	if p == "" {
		p = "/"
	}
	matchesAny := func(patterns []string) bool {
		return slices.ContainsFunc(patterns, func(pattern string) bool {
			return matchPattern(pattern, p)
		})
	}
	if matchesAny(t.ignorePatterns) {
		return false
	}
	return len(t.followPatterns) == 0 || matchesAny(t.followPatterns)
}

// matchPattern reports whether a URL path matches a glob in path.Match
// syntax. On top of that "/dir/*" covers the whole tree below /dir, "*.ext"
// matches the extension at any depth and a pattern without a slash is also
// tried against the last path segment ("logout*" matches "/a/logout-now").
func matchPattern(pattern, p string) bool {
	switch {
	case strings.HasSuffix(pattern, "/*"):
		dir := strings.TrimSuffix(pattern, "/*")
		if p == dir || strings.HasPrefix(p, dir+"/") {
			return true
		}
	case strings.HasPrefix(pattern, "*.") && strings.HasSuffix(p, pattern[1:]):
		return true
	}

	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, path.Base(p))
		return ok
	}
	return false
}
