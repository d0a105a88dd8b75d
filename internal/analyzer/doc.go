// Package analyzer inspects rendered pages while they are crawled.
//
// Analyzers are optional collaborators of the crawl. Each receives the
// rendered markup (and, when the renderer captured one, a screenshot) of a
// page and returns a JSON-serializable result. A Runner executes every
// configured analyzer for a page and stores the combined output under
//
//	<output>/analysis/<name>_analysis.json
//
// where <name> is derived from the page URL by SafeFilename.
//
// Available analyzers:
//
//   - SEO: title, description, canonical, headings, image alt coverage,
//     Open Graph, Twitter card, JSON-LD, hreflang, an issue list and a
//     0 to 100 score.
//   - Accessibility: WCAG checks on markup (alt text, labels, heading
//     order, landmarks, tables, ARIA roles, skip link, zoom) with an issue
//     list, a tentative conformance level and a 0 to 100 score.
//   - Performance: render-blocking scripts and stylesheets, lazy images,
//     fonts, preloads, inline code, optimization hints and a score.
//   - Screenshot: stores the full-page PNG next to the analysis file.
package analyzer
