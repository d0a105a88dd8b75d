package rewrite

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/sitemirror/internal/refs"
	"github.com/nao1215/sitemirror/internal/urlpath"
)

// resourceAttrs lists the element/attribute pairs rewritten only when the
// target is mapped.
var resourceAttrs = []struct {
	selector string
	attr     string
}{
	{"link[href]", "href"},
	{"script[src]", "src"},
	{"img[src]", "src"},
	{"img[data-src]", "data-src"},
	{"video[src]", "src"},
	{"video[poster]", "poster"},
	{"audio[src]", "src"},
	{"source[src]", "src"},
	{"track[src]", "src"},
}

// Rewriter rewrites HTML documents and stylesheets.
type Rewriter struct {
	logger *slog.Logger
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rewriter) {
		r.logger = logger
	}
}

// New creates a Rewriter.
func New(opts ...Option) *Rewriter {
	r := &Rewriter{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// linker resolves references of one document.
type linker struct {
	docURL    string
	localPath string
	mapping   map[string]string
}

// local returns the relative path to the local copy of raw, or false when
// raw does not resolve to a mapped URL.
func (l linker) local(raw string) (string, bool) {
	u := urlpath.Normalize(raw, l.docURL)
	if u == "" {
		return "", false
	}
	target, ok := l.mapping[u]
	if !ok {
		return "", false
	}
	return EscapeRelative(urlpath.RelativePath(l.localPath, target)), true
}

// RewriteHTML rewrites the references of a page stored at pageLocalPath.
func (r *Rewriter) RewriteHTML(htmlText, pageURL, pageLocalPath string, mapping map[string]string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return "", fmt.Errorf("parse HTML of %s: %w", pageURL, err)
	}

	l := linker{docURL: pageURL, localPath: pageLocalPath, mapping: mapping}
	rewritten := 0

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if next, ok := l.anchor(href); ok {
			a.SetAttr("href", next)
			rewritten++
		}
	})

	for _, ra := range resourceAttrs {
		doc.Find(ra.selector).Each(func(_ int, el *goquery.Selection) {
			raw, _ := el.Attr(ra.attr)
			if rel, ok := l.local(raw); ok {
				el.SetAttr(ra.attr, rel)
				rewritten++
			}
		})
	}

	doc.Find("img[srcset], source[srcset]").Each(func(_ int, el *goquery.Selection) {
		srcset, _ := el.Attr("srcset")
		entries := refs.ParseSrcset(srcset)
		changed := false
		for i := range entries {
			if rel, ok := l.local(entries[i].URL); ok {
				entries[i].URL = rel
				changed = true
			}
		}
		if changed {
			el.SetAttr("srcset", refs.FormatSrcset(entries))
			rewritten++
		}
	})

	doc.Find("[style]").Each(func(_ int, el *goquery.Selection) {
		style, _ := el.Attr("style")
		if next := refs.RewriteCSS(style, l.local); next != style {
			el.SetAttr("style", next)
			rewritten++
		}
	})

	doc.Find("style").Each(func(_ int, el *goquery.Selection) {
		for _, n := range el.Nodes {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.TextNode {
					continue
				}
				if next := refs.RewriteCSS(c.Data, l.local); next != c.Data {
					c.Data = next
					rewritten++
				}
			}
		}
	})

	doc.Find("base").Remove()

	var buf bytes.Buffer
	if err := html.Render(&buf, doc.Nodes[0]); err != nil {
		return "", fmt.Errorf("render HTML of %s: %w", pageURL, err)
	}

	r.logger.Debug("page rewritten", "url", pageURL, "references", rewritten)
	return buf.String(), nil
}

// anchor computes the new href of an anchor. Fragment-only, javascript:,
// mailto: and tel: links are left alone; a mapped target becomes a
// relative path with the original fragment kept; any other target becomes
// its absolute URL.
func (l linker) anchor(href string) (string, bool) {
	trimmed := strings.TrimSpace(href)
	u := urlpath.Normalize(trimmed, l.docURL)
	if u == "" {
		return "", false
	}

	fragment := ""
	if i := strings.Index(trimmed, "#"); i >= 0 {
		fragment = trimmed[i:]
	}

	if rel, ok := l.local(trimmed); ok {
		return rel + fragment, true
	}
	return u + fragment, true
}

// RewriteCSSFile rewrites url() and @import references of a stylesheet
// stored at cssLocalPath.
func (r *Rewriter) RewriteCSSFile(cssText, cssURL, cssLocalPath string, mapping map[string]string) string {
	l := linker{docURL: cssURL, localPath: cssLocalPath, mapping: mapping}
	return refs.RewriteCSS(cssText, l.local)
}

// EscapeRelative escapes a slash-separated relative path for use in a URL
// reference. A first segment containing a colon is prefixed with "./" so
// it cannot be read as a scheme.
func EscapeRelative(rel string) string {
	escaped := (&url.URL{Path: rel}).EscapedPath()
	first, _, _ := strings.Cut(rel, "/")
	if strings.Contains(first, ":") {
		escaped = "./" + escaped
	}
	return escaped
}
