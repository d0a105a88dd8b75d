// Package pipeline runs a mirror as a sequence of steps over one
// model.Session:
//
//	policy -> crawl -> download -> rewrite -> sitemap
//
// Each step moves the session to its phase, records per-item failures on the
// session and only returns an error when the run cannot go on.
//
// Design decision: The phases are kept as separate steps instead of one
// function because each owns a different collaborator (robots policy,
// spider, downloader, rewriter) and because a stop request must skip some of
// them (download) but not others (rewrite of already crawled pages, sitemap).
//
// Mirror wires the default steps for one site and owns the renderer's
// lifecycle; BatchProcessor mirrors several sites concurrently with errgroup.
package pipeline
