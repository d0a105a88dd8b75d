package model

import (
	"sort"
	"time"
)

// Sitemap is the content of sitemap.json.
type Sitemap struct {
	BaseURL     string   `json:"base_url"`
	Domain      string   `json:"domain"`
	TotalPages  int      `json:"total_pages"`
	TotalAssets int      `json:"total_assets"`
	Pages       []string `json:"pages"`
	Assets      []string `json:"assets"`
}

// SortedPages returns the visited pages in lexical order.
func (s *Session) SortedPages() []string {
	pages := make([]string, len(s.VisitOrder))
	copy(pages, s.VisitOrder)
	sort.Strings(pages)
	return pages
}

// SortedAssets returns every mapped URL that is not a page, in lexical
// order. After the download phase these are exactly the stored assets.
func (s *Session) SortedAssets() []string {
	assets := make([]string, 0, len(s.URLMapping))
	for u := range s.URLMapping {
		if _, isPage := s.Visited[u]; isPage {
			continue
		}
		if _, isAlias := s.Aliases[u]; isAlias {
			continue
		}
		assets = append(assets, u)
	}
	sort.Strings(assets)
	return assets
}

// NewSitemap builds the sitemap of a session.
func NewSitemap(s *Session) *Sitemap {
	pages := s.SortedPages()
	assets := s.SortedAssets()
	return &Sitemap{
		BaseURL:     s.BaseURL,
		Domain:      s.Domain,
		TotalPages:  len(pages),
		TotalAssets: len(assets),
		Pages:       pages,
		Assets:      assets,
	}
}

// Result summarizes a finished (or aborted) mirror run.
type Result struct {
	BaseURL   string        `json:"base_url"`
	Domain    string        `json:"domain"`
	OutputDir string        `json:"output_dir"`
	Pages     []string      `json:"pages"`
	Assets    []string      `json:"assets"`
	Errors    []ErrorRecord `json:"errors"`
	Phase     Phase         `json:"phase"`
	Stopped   bool          `json:"stopped"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`

	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration_ns"`
}

// NewResult snapshots a session into a Result.
func NewResult(s *Session) *Result {
	end := s.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return &Result{
		BaseURL:   s.BaseURL,
		Domain:    s.Domain,
		OutputDir: s.OutputDir,
		Pages:     s.SortedPages(),
		Assets:    s.SortedAssets(),
		Errors:    s.Errors(),
		Phase:     s.Phase(),
		Stopped:   s.StopRequested(),
		StartedAt: s.StartedAt,
		EndedAt:   end,
		Duration:  end.Sub(s.StartedAt),
	}
}

// PageCount returns the number of mirrored pages.
func (r *Result) PageCount() int {
	return len(r.Pages)
}

// AssetCount returns the number of stored assets.
func (r *Result) AssetCount() int {
	return len(r.Assets)
}

// ErrorCount returns the number of recorded failures.
func (r *Result) ErrorCount() int {
	return len(r.Errors)
}

// Succeeded reports whether the run reached PhaseDone.
func (r *Result) Succeeded() bool {
	return r.Phase == PhaseDone
}

// ErrorsByType counts the recorded failures per type.
func (r *Result) ErrorsByType() map[ErrorType]int {
	counts := make(map[ErrorType]int)
	for _, e := range r.Errors {
		counts[e.Type]++
	}
	return counts
}
