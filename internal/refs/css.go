package refs

import (
	"regexp"
	"strings"
)

// cssURLPattern matches url(...) with a double-quoted, single-quoted or
// bare argument.
var cssURLPattern = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^"'()\s]+))\s*\)`)

// cssImportPattern matches the string form of @import. The url() form is
// covered by cssURLPattern.
var cssImportPattern = regexp.MustCompile(`(?i)@import\s+(?:"([^"]*)"|'([^']*)')`)

// firstGroup returns the first non-empty submatch after the full match.
func firstGroup(groups []string) string {
	for _, g := range groups[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// isEmbedded reports whether ref is inline data rather than a location.
func isEmbedded(ref string) bool {
	return strings.HasPrefix(strings.ToLower(ref), "data:")
}

// CSSURLs returns the raw url() arguments in css, in order, skipping data:
// URLs and empty arguments.
func CSSURLs(css string) []string {
	var out []string
	for _, m := range cssURLPattern.FindAllStringSubmatch(css, -1) {
		ref := strings.TrimSpace(firstGroup(m))
		if ref == "" || isEmbedded(ref) {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// CSSImports returns the targets of string-form @import rules in css.
func CSSImports(css string) []string {
	var out []string
	for _, m := range cssImportPattern.FindAllStringSubmatch(css, -1) {
		ref := strings.TrimSpace(firstGroup(m))
		if ref == "" || isEmbedded(ref) {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// CSSReferences returns every url() argument and @import target in css.
func CSSReferences(css string) []string {
	return append(CSSURLs(css), CSSImports(css)...)
}

// ReplaceFunc maps a raw reference to its replacement. Returning false
// keeps the original text.
type ReplaceFunc func(ref string) (string, bool)

// RewriteCSS rewrites url() arguments to url("<replacement>") and
// @import "<target>" to @import "<replacement>". References for which fn
// returns false are left byte for byte unchanged.
func RewriteCSS(css string, fn ReplaceFunc) string {
	css = cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		ref := strings.TrimSpace(firstGroup(cssURLPattern.FindStringSubmatch(match)))
		if ref == "" || isEmbedded(ref) {
			return match
		}
		replacement, ok := fn(ref)
		if !ok {
			return match
		}
		return `url("` + replacement + `")`
	})

	return cssImportPattern.ReplaceAllStringFunc(css, func(match string) string {
		ref := strings.TrimSpace(firstGroup(cssImportPattern.FindStringSubmatch(match)))
		if ref == "" || isEmbedded(ref) {
			return match
		}
		replacement, ok := fn(ref)
		if !ok {
			return match
		}
		return `@import "` + replacement + `"`
	})
}
