// Package robots fetches and evaluates a site's robots.txt.
//
// A Policy is built once at the start of a mirror run and is read-only
// afterwards. Rule precedence is deliberately loose: any matching Allow
// pattern permits a URL even when a Disallow pattern also matches, which is
// not the longest-match-wins rule stricter parsers use. A policy that could
// not be loaded permits everything.
package robots
