package model

// ExtractedAssets holds everything a single page references.
// Every URL in these sets is already canonical (see urlpath.Normalize).
type ExtractedAssets struct {
	Stylesheets URLSet `json:"stylesheets"`
	Scripts     URLSet `json:"scripts"`
	Images      URLSet `json:"images"`
	Fonts       URLSet `json:"fonts"`
	Media       URLSet `json:"media"`
	Other       URLSet `json:"other"`

	// InternalLinks are anchors pointing at the crawled domain.
	InternalLinks URLSet `json:"internal_links"`

	// ExternalLinks are anchors pointing anywhere else.
	ExternalLinks URLSet `json:"external_links"`
}

// NewExtractedAssets returns an empty ExtractedAssets.
func NewExtractedAssets() *ExtractedAssets {
	return &ExtractedAssets{}
}

// All returns the union of all asset categories (links excluded),
// stylesheets first.
func (e *ExtractedAssets) All() []string {
	union := &URLSet{}
	for _, set := range []*URLSet{&e.Stylesheets, &e.Scripts, &e.Images, &e.Fonts, &e.Media, &e.Other} {
		union.Merge(set)
	}
	return union.items
}

// AssetCount returns the number of distinct assets referenced.
func (e *ExtractedAssets) AssetCount() int {
	return len(e.All())
}

// PageRecord is a rendered page kept for the rewrite phase.
// It is created once per visited page and not modified afterwards.
type PageRecord struct {
	// URL is the canonical URL the page was recorded under. After a
	// same-domain redirect this is the final URL.
	URL string `json:"url"`

	// BaseURL is the address the page was served from, trailing slash
	// intact. Relative references resolve against it, not against URL:
	// on /docs/ "logo.png" means /docs/logo.png.
	BaseURL string `json:"-"`

	// HTML is the rendered markup as returned by the renderer.
	HTML string `json:"-"`

	// LocalPath is where the rewritten page is written.
	LocalPath string `json:"local_path"`

	// Assets are the references extracted from HTML.
	Assets *ExtractedAssets `json:"assets"`

	// Depth is the BFS depth the page was first reached at.
	Depth int `json:"depth"`
}

// DocURL returns the URL relative references resolve against.
func (p *PageRecord) DocURL() string {
	if p.BaseURL != "" {
		return p.BaseURL
	}
	return p.URL
}
