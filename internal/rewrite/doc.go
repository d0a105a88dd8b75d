// Package rewrite points the references of mirrored pages and stylesheets
// at their local copies.
//
// Rewriting runs after every page was crawled and every asset downloaded,
// against the final URL mapping (canonical URL to local file). References
// are resolved against the document's own URL, looked up in the mapping
// and replaced by a path relative to the document's local file.
//
// Anchors are special: an anchor whose target was not mirrored is replaced
// by the target's absolute URL, so links out of the mirror keep working
// when the page is opened from disk. Every other reference is left
// untouched when its target is unmapped.
package rewrite
