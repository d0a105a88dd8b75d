package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Performance thresholds.
const (
	// aboveFoldImages is how many leading images are assumed visible on
	// load and never suggested for lazy loading.
	aboveFoldImages       = 5
	maxBlockingResources  = 3
	maxInlineScripts      = 5
	maxInlineStyles       = 10
	criticalStylesheets   = 3
	blockingPenalty       = 3
	resourceBudget        = 50
	overBudgetPenalty     = 0.5
	inlineExcessThreshold = 2
)

// Resource is one external resource referenced by a page.
type Resource struct {
	URL            string `json:"url"`
	Type           string `json:"type"`
	RenderBlocking bool   `json:"render_blocking,omitempty"`
	Async          bool   `json:"async,omitempty"`
	Defer          bool   `json:"defer,omitempty"`
	Lazy           bool   `json:"lazy,omitempty"`
	Preload        bool   `json:"preload,omitempty"`
}

// PerformanceHints lists optimization suggestions for a page.
type PerformanceHints struct {
	CriticalCSS        []string `json:"critical_css"`
	LazyLoadCandidates []string `json:"lazy_load_candidates"`
	Suggestions        []string `json:"optimization_suggestions"`
}

// PerformanceResult is the output of the performance analyzer.
type PerformanceResult struct {
	Scripts     []Resource `json:"scripts"`
	Stylesheets []Resource `json:"stylesheets"`
	Images      []Resource `json:"images"`
	Fonts       []Resource `json:"fonts"`
	Preloaded   []Resource `json:"preloaded"`

	RenderBlocking int `json:"render_blocking_resources"`
	AsyncScripts   int `json:"async_scripts"`
	DeferScripts   int `json:"defer_scripts"`
	LazyImages     int `json:"lazy_loaded_images"`
	InlineScripts  int `json:"inline_scripts_count"`
	InlineStyles   int `json:"inline_styles_count"`

	Hints PerformanceHints `json:"hints"`
	Score float64          `json:"score"`
}

func (r *PerformanceResult) score() float64 { return r.Score }

// ResourceCount returns the number of external scripts, stylesheets,
// images and fonts.
func (r *PerformanceResult) ResourceCount() int {
	return len(r.Scripts) + len(r.Stylesheets) + len(r.Images) + len(r.Fonts)
}

// Performance inspects how a page loads its resources: render-blocking
// scripts and stylesheets, lazy images, preloads and inline code. It
// works on markup alone and takes no timings.
type Performance struct{}

// NewPerformance creates a performance analyzer.
func NewPerformance() *Performance {
	return &Performance{}
}

// Name implements Analyzer.
func (p *Performance) Name() string {
	return "performance"
}

// Analyze implements Analyzer.
func (p *Performance) Analyze(_ context.Context, in Input) (any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	r := &PerformanceResult{
		Scripts:     []Resource{},
		Stylesheets: []Resource{},
		Images:      []Resource{},
		Fonts:       []Resource{},
		Preloaded:   []Resource{},
	}
	scanScripts(doc, r)
	scanStylesheets(doc, r)
	scanImages(doc, r)
	scanFontsAndPreloads(doc, r)
	r.InlineStyles = doc.Find("style").Length() + doc.Find("[style]").Length()

	r.Hints = performanceHints(r)
	r.Score = performanceScore(r)
	return r, nil
}

func scanScripts(doc *goquery.Document, r *PerformanceResult) {
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			r.InlineScripts++
			return
		}
		_, async := s.Attr("async")
		_, deferred := s.Attr("defer")
		module := strings.EqualFold(s.AttrOr("type", ""), "module")
		res := Resource{
			URL:            src,
			Type:           "script",
			Async:          async,
			Defer:          deferred,
			RenderBlocking: !async && !deferred && !module,
		}
		r.Scripts = append(r.Scripts, res)
		if async {
			r.AsyncScripts++
		}
		if deferred {
			r.DeferScripts++
		}
		if res.RenderBlocking {
			r.RenderBlocking++
		}
	})
}

func scanStylesheets(doc *goquery.Document, r *PerformanceResult) {
	doc.Find("link[rel]").Each(func(_ int, link *goquery.Selection) {
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" || !hasToken(relTokens(link), "stylesheet") {
			return
		}
		blocking := !strings.EqualFold(strings.TrimSpace(link.AttrOr("media", "")), "print")
		r.Stylesheets = append(r.Stylesheets, Resource{URL: href, Type: "stylesheet", RenderBlocking: blocking})
		if blocking {
			r.RenderBlocking++
		}
	})
}

func scanImages(doc *goquery.Document, r *PerformanceResult) {
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		dataSrc, hasDataSrc := img.Attr("data-src")
		if src == "" {
			src = strings.TrimSpace(dataSrc)
		}
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		lazy := strings.EqualFold(img.AttrOr("loading", ""), "lazy") || hasDataSrc ||
			strings.Contains(img.AttrOr("class", ""), "lazy")
		r.Images = append(r.Images, Resource{URL: src, Type: "image", Lazy: lazy})
		if lazy {
			r.LazyImages++
		}
	})
}

var cssFontURL = regexp.MustCompile(`url\(\s*["']?([^"')\s]+\.(?:woff2?|ttf|otf|eot))["']?\s*\)`)

func scanFontsAndPreloads(doc *goquery.Document, r *PerformanceResult) {
	doc.Find("link[rel]").Each(func(_ int, link *goquery.Selection) {
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" || !hasToken(relTokens(link), "preload") {
			return
		}
		as := link.AttrOr("as", "unknown")
		r.Preloaded = append(r.Preloaded, Resource{URL: href, Type: as, Preload: true})
		if as == "font" {
			r.Fonts = append(r.Fonts, Resource{URL: href, Type: "font", Preload: true})
		}
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, m := range cssFontURL.FindAllStringSubmatch(s.Text(), -1) {
			r.Fonts = append(r.Fonts, Resource{URL: m[1], Type: "font"})
		}
	})
}

func performanceHints(r *PerformanceResult) PerformanceHints {
	h := PerformanceHints{CriticalCSS: []string{}, LazyLoadCandidates: []string{}, Suggestions: []string{}}

	if r.RenderBlocking > maxBlockingResources {
		h.Suggestions = append(h.Suggestions,
			fmt.Sprintf("Reduce render-blocking resources (%d found)", r.RenderBlocking))
	}
	if n := len(r.Scripts) - r.AsyncScripts - r.DeferScripts; n > 0 {
		h.Suggestions = append(h.Suggestions, fmt.Sprintf("Add async or defer to %d script(s)", n))
	}
	if n := len(r.Images) - r.LazyImages; n > aboveFoldImages {
		h.Suggestions = append(h.Suggestions, fmt.Sprintf("Lazy load %d below-the-fold images", n))
		for _, img := range r.Images[aboveFoldImages:] {
			if !img.Lazy {
				h.LazyLoadCandidates = append(h.LazyLoadCandidates, img.URL)
			}
		}
	}
	notPreloaded := 0
	for _, f := range r.Fonts {
		if !f.Preload {
			notPreloaded++
		}
	}
	if notPreloaded > 0 {
		h.Suggestions = append(h.Suggestions, fmt.Sprintf("Preload %d font file(s)", notPreloaded))
	}
	if r.InlineStyles > maxInlineStyles {
		h.Suggestions = append(h.Suggestions, "Move inline styles to external stylesheets")
	}
	if r.InlineScripts > maxInlineScripts {
		h.Suggestions = append(h.Suggestions, "Move inline scripts to external files for caching")
	}
	for _, css := range r.Stylesheets[:min(criticalStylesheets, len(r.Stylesheets))] {
		h.CriticalCSS = append(h.CriticalCSS, css.URL)
	}
	return h
}

// performanceScore starts at 100, subtracts per render-blocking resource,
// rewards async scripts and lazy images, penalizes heavy inline code and
// resources over budget, and clamps to [0, 100].
func performanceScore(r *PerformanceResult) float64 {
	score := 100.0 - float64(r.RenderBlocking*blockingPenalty)
	if n := len(r.Scripts); n > 0 {
		score += float64(r.AsyncScripts+r.DeferScripts) / float64(n) * 10
	}
	if n := len(r.Images); n > aboveFoldImages {
		score += float64(r.LazyImages) / float64(n) * 10
	}
	if r.InlineScripts > maxInlineScripts*inlineExcessThreshold {
		score -= 5
	}
	if r.InlineStyles > maxInlineStyles*inlineExcessThreshold {
		score -= 5
	}
	if n := r.ResourceCount(); n > resourceBudget {
		score -= float64(n-resourceBudget) * overBudgetPenalty
	}
	return max(0, min(100, score))
}
