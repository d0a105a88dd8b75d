// Package render turns a page URL into the markup a browser would show.
//
// Two implementations of Renderer are provided:
//
//   - ChromedpRenderer drives a headless Chrome instance through chromedp.
//     It executes the page's JavaScript, so single-page applications are
//     captured after they build their DOM.
//   - HTTPRenderer performs a plain GET and returns the server markup.
//     It needs no browser and backs --renderer http and the tests.
//
// Both report the final URL after redirects, and both treat an HTTP status
// of 400 or above as a failure.
//
// # Lifecycle
//
//	r := render.NewChromedpRenderer(render.WithHeadless(true))
//	if err := r.Start(ctx); err != nil {
//	    // errors.Is(err, render.ErrBrowserStart)
//	}
//	defer r.Close()
//	page, err := r.Render(ctx, "https://example.com/")
package render
