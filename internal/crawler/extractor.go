package crawler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/refs"
	"github.com/nao1215/sitemirror/internal/urlpath"
)

// Extractor finds every asset and link a rendered page references.
//
// Design decision: We parse the document once with goquery and run a fixed
// set of selector queries against it, one per reference kind, rather than
// walking the node tree and probing attributes by hand. Each query maps to
// exactly one asset category, which keeps the extractor and the rewriter
// (which uses the same selectors) in lockstep.
type Extractor struct {
	// baseURL decides which anchors are internal.
	baseURL string

	logger *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithExtractorLogger sets a custom logger.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor creates an Extractor for a crawl rooted at baseURL.
func NewExtractor(baseURL string, opts ...ExtractorOption) *Extractor {
	e := &Extractor{baseURL: baseURL}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Extract parses htmlText and returns the canonical URLs it references,
// resolved against pageURL.
func (e *Extractor) Extract(htmlText, pageURL string) (*model.ExtractedAssets, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, fmt.Errorf("parse HTML of %s: %w", pageURL, err)
	}

	assets := model.NewExtractedAssets()
	resolve := func(raw string) string {
		return urlpath.Normalize(raw, pageURL)
	}

	e.extractLinks(doc, resolve, assets)
	e.extractStylesheets(doc, resolve, assets)
	e.extractScripts(doc, resolve, assets)
	e.extractImages(doc, resolve, assets)
	e.extractMedia(doc, resolve, assets)
	e.extractStyleBlocks(doc, resolve, assets)

	e.logger.Debug("extracted page references",
		"url", pageURL,
		"internal_links", assets.InternalLinks.Len(),
		"external_links", assets.ExternalLinks.Len(),
		"assets", assets.AssetCount(),
	)

	return assets, nil
}

// ExtractCSSAssets returns the canonical URLs referenced by a standalone
// stylesheet through url() or @import, resolved against cssURL.
func (e *Extractor) ExtractCSSAssets(cssText, cssURL string) []string {
	found := &model.URLSet{}
	for _, ref := range refs.CSSReferences(cssText) {
		found.Add(urlpath.Normalize(ref, cssURL))
	}
	return found.Items()
}

type resolveFunc func(raw string) string

// attrURL resolves the named attribute of sel, returning "" when the
// attribute is absent or not fetchable.
func attrURL(sel *goquery.Selection, name string, resolve resolveFunc) string {
	val, ok := sel.Attr(name)
	if !ok {
		return ""
	}
	return resolve(val)
}

func (e *Extractor) extractLinks(doc *goquery.Document, resolve resolveFunc, assets *model.ExtractedAssets) {
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		u := attrURL(a, "href", resolve)
		if u == "" {
			return
		}
		if urlpath.SameDomain(u, e.baseURL) {
			assets.InternalLinks.Add(u)
		} else {
			assets.ExternalLinks.Add(u)
		}
	})
}

// relTokens returns the lower-cased, whitespace-separated values of rel.
func relTokens(sel *goquery.Selection) []string {
	rel, _ := sel.Attr("rel")
	return strings.Fields(strings.ToLower(rel))
}

func hasToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

func (e *Extractor) extractStylesheets(doc *goquery.Document, resolve resolveFunc, assets *model.ExtractedAssets) {
	doc.Find("link[rel][href]").Each(func(_ int, link *goquery.Selection) {
		tokens := relTokens(link)
		as, _ := link.Attr("as")

		isStylesheet := hasToken(tokens, "stylesheet")
		isPreloadedStyle := hasToken(tokens, "preload") && strings.EqualFold(strings.TrimSpace(as), "style")
		if !isStylesheet && !isPreloadedStyle {
			return
		}
		assets.Stylesheets.Add(attrURL(link, "href", resolve))
	})
}

func (e *Extractor) extractScripts(doc *goquery.Document, resolve resolveFunc, assets *model.ExtractedAssets) {
	doc.Find("script[src]").Each(func(_ int, script *goquery.Selection) {
		assets.Scripts.Add(attrURL(script, "src", resolve))
	})
}

func (e *Extractor) extractImages(doc *goquery.Document, resolve resolveFunc, assets *model.ExtractedAssets) {
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		assets.Images.Add(attrURL(img, "src", resolve))
		assets.Images.Add(attrURL(img, "data-src", resolve))
		if srcset, ok := img.Attr("srcset"); ok {
			for _, raw := range refs.SrcsetURLs(srcset) {
				assets.Images.Add(resolve(raw))
			}
		}
	})

	doc.Find("source[srcset]").Each(func(_ int, source *goquery.Selection) {
		srcset, _ := source.Attr("srcset")
		for _, raw := range refs.SrcsetURLs(srcset) {
			assets.Images.Add(resolve(raw))
		}
	})

	doc.Find("[style]").Each(func(_ int, el *goquery.Selection) {
		style, _ := el.Attr("style")
		for _, raw := range refs.CSSURLs(style) {
			assets.Images.Add(resolve(raw))
		}
	})

	doc.Find("link[rel][href]").Each(func(_ int, link *goquery.Selection) {
		rel, _ := link.Attr("rel")
		if !strings.Contains(strings.ToLower(rel), "icon") {
			return
		}
		assets.Images.Add(attrURL(link, "href", resolve))
	})

	doc.Find("video[poster]").Each(func(_ int, video *goquery.Selection) {
		assets.Images.Add(attrURL(video, "poster", resolve))
	})
}

func (e *Extractor) extractMedia(doc *goquery.Document, resolve resolveFunc, assets *model.ExtractedAssets) {
	doc.Find("video[src], audio[src], source[src]").Each(func(_ int, el *goquery.Selection) {
		assets.Media.Add(attrURL(el, "src", resolve))
	})

	doc.Find("track[src]").Each(func(_ int, track *goquery.Selection) {
		assets.Other.Add(attrURL(track, "src", resolve))
	})
}

// extractStyleBlocks collects url() and @import references of <style>
// elements and files them by extension.
func (e *Extractor) extractStyleBlocks(doc *goquery.Document, resolve resolveFunc, assets *model.ExtractedAssets) {
	doc.Find("style").Each(func(_ int, style *goquery.Selection) {
		for _, raw := range refs.CSSReferences(style.Text()) {
			u := resolve(raw)
			if u == "" {
				continue
			}
			switch urlpath.ClassifyAssetType(u) {
			case urlpath.AssetFont:
				assets.Fonts.Add(u)
			case urlpath.AssetImage:
				assets.Images.Add(u)
			case urlpath.AssetCSS:
				assets.Stylesheets.Add(u)
			default:
				assets.Other.Add(u)
			}
		}
	})
}
