package crawler

import (
	"net/url"
	"path"
	"strings"
)

// PathFilter decides from its URL path whether a link is crawled.
//
// Ignore globs win over follow globs. With no follow globs every path that
// is not ignored is crawled. Supported forms:
//
//	/admin/*     the subtree, including /admin itself
//	*.pdf        any path ending in .pdf
//	/api/v?/x    a path.Match glob over the whole path
//	logout*      a glob without a slash, tried on the last segment too
type PathFilter struct {
	ignore []glob
	follow []glob
}

// NewPathFilter compiles the ignore and follow globs. Malformed globs
// never match; the site config loader rejects them up front.
func NewPathFilter(ignore, follow []string) *PathFilter {
	return &PathFilter{ignore: compileGlobs(ignore), follow: compileGlobs(follow)}
}

// Allows reports whether rawURL passes the filter. Unparsable URLs never
// do. A nil filter allows everything.
func (f *PathFilter) Allows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if f == nil {
		return true
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	if anyMatch(f.ignore, p) {
		return false
	}
	return len(f.follow) == 0 || anyMatch(f.follow, p)
}

type glob struct {
	pattern string
	subtree string // "/admin" for "/admin/*"
	suffix  string // ".pdf" for "*.pdf"
	segment bool   // no slash in the pattern
}

func compileGlobs(patterns []string) []glob {
	out := make([]glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, compileGlob(p))
	}
	return out
}

func compileGlob(p string) glob {
	g := glob{pattern: p, segment: strings.Contains(p, "*") && !strings.Contains(p, "/")}
	if prefix, ok := strings.CutSuffix(p, "/*"); ok {
		g.subtree = prefix
	}
	if rest, ok := strings.CutPrefix(p, "*."); ok && !strings.ContainsAny(rest, "*?[") {
		g.suffix = "." + rest
	}
	return g
}

func (g glob) match(p string) bool {
	switch {
	case g.subtree != "" && (p == g.subtree || strings.HasPrefix(p, g.subtree+"/")):
		return true
	case g.suffix != "" && strings.HasSuffix(p, g.suffix):
		return true
	}
	if ok, err := path.Match(g.pattern, p); err == nil && ok {
		return true
	}
	if g.segment {
		ok, err := path.Match(g.pattern, path.Base(p))
		return err == nil && ok
	}
	return false
}

func anyMatch(globs []glob, p string) bool {
	for _, g := range globs {
		if g.match(p) {
			return true
		}
	}
	return false
}
