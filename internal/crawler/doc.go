// Package crawler discovers the pages of a website and the assets they
// reference.
//
// # Architecture
//
// The crawler package is designed around the Spider type, which walks the
// site breadth-first from the session's start URL. Pages are loaded through
// a render.Renderer, so the markup the Spider sees is the DOM after
// scripts ran. Every rendered page goes through the Extractor, which turns
// the markup into a model.ExtractedAssets: stylesheets, scripts, images,
// fonts, media and links, all in canonical form.
//
// Design decision: All crawl state lives in the model.Session passed to
// Crawl. The Spider itself only holds configuration, so one Spider can be
// reused across sessions and the orchestrator can inspect progress while
// the crawl runs.
//
// # Components
//
//   - Spider: frontier loop with depth, page and queue limits
//   - Extractor: goquery-based reference extraction for HTML and CSS
//
// # Politeness
//
//   - Robots rules are consulted through Session.Policy before each render
//   - Session.Delay is waited between renders
//   - The frontier is capped at twice the page limit
//
// # Usage
//
//	spider := crawler.NewSpider(renderer, crawler.WithMaxDepth(3))
//	if err := spider.Crawl(ctx, session); err != nil {
//	    return err
//	}
package crawler
