package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/sitemirror/internal/urlpath"
)

// SEO thresholds.
const (
	minTitleLength       = 30
	maxTitleLength       = 60
	minDescriptionLength = 70
	maxDescriptionLength = 160
	minWordCount         = 300
	issuePenalty         = 5
)

// OpenGraph holds og:* properties.
type OpenGraph struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url,omitempty"`
	Image       string            `json:"image,omitempty"`
	Type        string            `json:"type,omitempty"`
	SiteName    string            `json:"site_name,omitempty"`
	Locale      string            `json:"locale,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// TwitterCard holds twitter:* meta names.
type TwitterCard struct {
	Card        string            `json:"card,omitempty"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Image       string            `json:"image,omitempty"`
	Site        string            `json:"site,omitempty"`
	Creator     string            `json:"creator,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// StructuredData is one JSON-LD object.
type StructuredData struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Hreflang is one alternate-language link.
type Hreflang struct {
	Lang string `json:"lang"`
	URL  string `json:"url"`
}

// LinkStats counts anchors on the page.
type LinkStats struct {
	Total    int `json:"total"`
	Internal int `json:"internal"`
	External int `json:"external"`
	Nofollow int `json:"nofollow"`
}

// SEOResult is the output of the SEO analyzer.
type SEOResult struct {
	Title            string              `json:"title,omitempty"`
	MetaDescription  string              `json:"meta_description,omitempty"`
	CanonicalURL     string              `json:"canonical_url,omitempty"`
	Robots           string              `json:"robots,omitempty"`
	OpenGraph        OpenGraph           `json:"open_graph"`
	TwitterCard      TwitterCard         `json:"twitter_card"`
	StructuredData   []StructuredData    `json:"structured_data,omitempty"`
	Headings         map[string][]string `json:"headings"`
	Links            LinkStats           `json:"links"`
	ImagesCount      int                 `json:"images_count"`
	ImagesWithoutAlt int                 `json:"images_without_alt"`
	WordCount        int                 `json:"word_count"`
	Hreflang         []Hreflang          `json:"hreflang,omitempty"`
	Issues           []string            `json:"issues"`
	Score            float64             `json:"score"`
}

func (r *SEOResult) score() float64 { return r.Score }

// SEO extracts search-engine metadata from rendered pages.
type SEO struct{}

// NewSEO creates an SEO analyzer.
func NewSEO() *SEO {
	return &SEO{}
}

// Name implements Analyzer.
func (s *SEO) Name() string {
	return "seo"
}

// Analyze implements Analyzer.
func (s *SEO) Analyze(_ context.Context, in Input) (any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	r := &SEOResult{Headings: map[string][]string{}}
	r.Title = strings.TrimSpace(doc.Find("title").First().Text())
	r.MetaDescription = metaByName(doc, "description")
	r.Robots = metaByName(doc, "robots")
	doc.Find("link[rel]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		if hasToken(relTokens(link), "canonical") {
			r.CanonicalURL = link.AttrOr("href", "")
			return false
		}
		return true
	})

	r.OpenGraph = extractOpenGraph(doc)
	r.TwitterCard = extractTwitterCard(doc)
	r.StructuredData = extractStructuredData(doc)
	r.Hreflang = extractHreflang(doc)
	r.Links = extractLinkStats(doc, in.URL)

	for i := 1; i <= 6; i++ {
		tag := fmt.Sprintf("h%d", i)
		doc.Find(tag).Each(func(_ int, h *goquery.Selection) {
			r.Headings[tag] = append(r.Headings[tag], strings.TrimSpace(h.Text()))
		})
	}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		r.ImagesCount++
		if strings.TrimSpace(img.AttrOr("alt", "")) == "" {
			r.ImagesWithoutAlt++
		}
	})

	r.WordCount = wordCount(doc)
	r.Issues = seoIssues(r)
	r.Score = seoScore(r)
	return r, nil
}

func relTokens(sel *goquery.Selection) []string {
	return strings.Fields(strings.ToLower(sel.AttrOr("rel", "")))
}

func hasToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

// metaByName returns the content of the first meta element whose name
// matches case-insensitively.
func metaByName(doc *goquery.Document, name string) string {
	content := ""
	doc.Find("meta[name]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(m.AttrOr("name", "")), name) {
			content = m.AttrOr("content", "")
			return false
		}
		return true
	})
	return content
}

func extractOpenGraph(doc *goquery.Document) OpenGraph {
	og := OpenGraph{}
	doc.Find("meta[property]").Each(func(_ int, m *goquery.Selection) {
		prop := strings.ToLower(m.AttrOr("property", ""))
		if !strings.HasPrefix(prop, "og:") {
			return
		}
		content := m.AttrOr("content", "")
		switch prop {
		case "og:title":
			og.Title = content
		case "og:description":
			og.Description = content
		case "og:url":
			og.URL = content
		case "og:image":
			og.Image = content
		case "og:type":
			og.Type = content
		case "og:site_name":
			og.SiteName = content
		case "og:locale":
			og.Locale = content
		default:
			if og.Extra == nil {
				og.Extra = map[string]string{}
			}
			og.Extra[prop] = content
		}
	})
	return og
}

func extractTwitterCard(doc *goquery.Document) TwitterCard {
	tc := TwitterCard{}
	doc.Find("meta[name]").Each(func(_ int, m *goquery.Selection) {
		name := strings.ToLower(m.AttrOr("name", ""))
		if !strings.HasPrefix(name, "twitter:") {
			return
		}
		content := m.AttrOr("content", "")
		switch name {
		case "twitter:card":
			tc.Card = content
		case "twitter:title":
			tc.Title = content
		case "twitter:description":
			tc.Description = content
		case "twitter:image":
			tc.Image = content
		case "twitter:site":
			tc.Site = content
		case "twitter:creator":
			tc.Creator = content
		default:
			if tc.Extra == nil {
				tc.Extra = map[string]string{}
			}
			tc.Extra[name] = content
		}
	})
	return tc
}

// extractStructuredData decodes JSON-LD blocks. Blocks that fail to parse
// are skipped.
func extractStructuredData(doc *goquery.Document) []StructuredData {
	var out []StructuredData
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, script *goquery.Selection) {
		var raw any
		if err := json.Unmarshal([]byte(script.Text()), &raw); err != nil {
			return
		}
		var objects []map[string]any
		switch v := raw.(type) {
		case map[string]any:
			objects = append(objects, v)
		case []any:
			for _, item := range v {
				if obj, ok := item.(map[string]any); ok {
					objects = append(objects, obj)
				}
			}
		}
		for _, obj := range objects {
			typ, _ := obj["@type"].(string)
			if typ == "" {
				typ = "Unknown"
			}
			out = append(out, StructuredData{Type: typ, Data: obj})
		}
	})
	return out
}

func extractHreflang(doc *goquery.Document) []Hreflang {
	var out []Hreflang
	doc.Find("link[hreflang]").Each(func(_ int, link *goquery.Selection) {
		if !hasToken(relTokens(link), "alternate") {
			return
		}
		out = append(out, Hreflang{Lang: link.AttrOr("hreflang", ""), URL: link.AttrOr("href", "")})
	})
	return out
}

func extractLinkStats(doc *goquery.Document, pageURL string) LinkStats {
	stats := LinkStats{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		stats.Total++
		if hasToken(relTokens(a), "nofollow") {
			stats.Nofollow++
		}
		href := strings.TrimSpace(a.AttrOr("href", ""))
		u := urlpath.Normalize(href, pageURL)
		if u == "" {
			return
		}
		if urlpath.SameDomain(u, pageURL) {
			stats.Internal++
		} else {
			stats.External++
		}
	})
	return stats
}

// wordCount counts words of the body text outside scripts, styles and
// page chrome.
func wordCount(doc *goquery.Document) int {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, nav, footer, header").Remove()
	return len(strings.Fields(body.Text()))
}

func seoIssues(r *SEOResult) []string {
	issues := []string{}

	switch n := len([]rune(r.Title)); {
	case n == 0:
		issues = append(issues, "Missing page title")
	case n < minTitleLength:
		issues = append(issues, "Title too short (< 30 characters)")
	case n > maxTitleLength:
		issues = append(issues, "Title too long (> 60 characters)")
	}

	switch n := len([]rune(r.MetaDescription)); {
	case n == 0:
		issues = append(issues, "Missing meta description")
	case n < minDescriptionLength:
		issues = append(issues, "Meta description too short (< 70 characters)")
	case n > maxDescriptionLength:
		issues = append(issues, "Meta description too long (> 160 characters)")
	}

	if r.CanonicalURL == "" {
		issues = append(issues, "Missing canonical URL")
	}

	switch len(r.Headings["h1"]) {
	case 0:
		issues = append(issues, "Missing H1 heading")
	case 1:
	default:
		issues = append(issues, "Multiple H1 headings")
	}

	if r.ImagesWithoutAlt > 0 {
		issues = append(issues, fmt.Sprintf("%d images missing alt text", r.ImagesWithoutAlt))
	}
	if r.OpenGraph.Title == "" {
		issues = append(issues, "Missing Open Graph title")
	}
	if r.OpenGraph.Image == "" {
		issues = append(issues, "Missing Open Graph image")
	}
	if r.TwitterCard.Card == "" {
		issues = append(issues, "Missing Twitter Card type")
	}
	if len(r.StructuredData) == 0 {
		issues = append(issues, "No structured data found")
	}
	if r.WordCount < minWordCount {
		issues = append(issues, "Low word count (< 300 words)")
	}
	return issues
}

// seoScore starts at 100, subtracts a fixed penalty per issue, adds
// bonuses for optional best practices and clamps to [0, 100].
func seoScore(r *SEOResult) float64 {
	score := 100.0 - float64(len(r.Issues)*issuePenalty)
	if r.CanonicalURL != "" {
		score += 2
	}
	if r.OpenGraph.Title != "" && r.OpenGraph.Image != "" {
		score += 3
	}
	if r.TwitterCard.Card != "" {
		score += 2
	}
	if len(r.StructuredData) > 0 {
		score += 5
	}
	if len(r.Hreflang) > 0 {
		score += 3
	}
	return max(0, min(100, score))
}
