package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/sitemirror/internal/analyzer"
	"github.com/nao1215/sitemirror/internal/metrics"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/render"
	"github.com/nao1215/sitemirror/internal/urlpath"
)

// DefaultMaxDepth is the link depth explored when no limit is configured.
const DefaultMaxDepth = 10

// Spider discovers the pages of a site breadth-first through a Renderer,
// records them on the session and feeds each page to the analyzers.
//
// Design decision: Depth is counted in link hops from the start URL and
// checked when a link is queued, so MaxDepth 0 mirrors the start page only.
type Spider struct {
	renderer  render.Renderer
	maxDepth  int
	ignore    []string
	follow    []string
	filter    *PathFilter
	analyzers *analyzer.Runner // nil disables analysis
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets how many link hops from the start URL are followed.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithIgnorePatterns adds path globs that are never crawled. See
// PathFilter for the glob forms.
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignore = append(s.ignore, patterns...)
	}
}

// WithFollowPatterns restricts crawling to paths matching one of patterns.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.follow = append(s.follow, patterns...)
	}
}

// WithAnalyzers runs the given analyzers on every recorded page.
func WithAnalyzers(r *analyzer.Runner) SpiderOption {
	return func(s *Spider) {
		s.analyzers = r
	}
}

// WithMetrics records render outcomes on c.
func WithMetrics(c *metrics.Collector) SpiderOption {
	return func(s *Spider) {
		s.metrics = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider returns a Spider rendering through renderer, which must
// already be started.
func NewSpider(renderer render.Renderer, opts ...SpiderOption) *Spider {
	s := &Spider{renderer: renderer, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.filter = NewPathFilter(s.ignore, s.follow)
	return s
}

type queueItem struct {
	url   string
	depth int
}

// Crawl runs a breadth-first crawl from session.BaseURL and records every
// page it renders in the session.
//
// The loop ends when the frontier is empty, MaxPages pages were recorded,
// or a stop was requested; all three return nil. Cancelling ctx returns
// ctx.Err(). Failures of single pages are recorded with Session.AddError
// and never end the crawl.
func (s *Spider) Crawl(ctx context.Context, session *model.Session) error {
	extractor := NewExtractor(session.BaseURL, WithExtractorLogger(s.logger))

	session.Enqueue(session.BaseURL)
	queue := []queueItem{{url: session.BaseURL, depth: 0}}

	for len(queue) > 0 && len(session.Visited) < session.MaxPages {
		if session.StopRequested() {
			s.logger.Info("crawl stopped on request", "pages", len(session.Visited), "queued", len(queue))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		item := queue[0]
		queue = queue[1:]

		if session.IsVisited(item.url) || item.depth > s.maxDepth {
			continue
		}
		if session.Policy != nil && !session.Policy.IsAllowed(item.url) {
			s.logger.Debug("disallowed by robots policy", "url", item.url)
			continue
		}

		links := s.visit(ctx, session, extractor, item)

		if item.depth < s.maxDepth {
			for _, link := range links {
				if session.IsVisited(link) || !s.filter.Allows(link) {
					continue
				}
				if session.Enqueue(link) {
					queue = append(queue, queueItem{url: link, depth: item.depth + 1})
				}
			}
		}

		if session.Delay > 0 && len(queue) > 0 {
			timer := time.NewTimer(session.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	s.logger.Info("crawl finished", "pages", len(session.Visited), "errors", session.ErrorCount())
	return nil
}

// visit renders and records one page and returns its internal links.
func (s *Spider) visit(ctx context.Context, session *model.Session, extractor *Extractor, item queueItem) []string {
	logger := s.logger.With("url", item.url, "depth", item.depth)

	start := time.Now()
	page, err := s.renderer.Render(ctx, item.url)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.metrics.ObservePage(metrics.ResultFailed, time.Since(start))
		logger.Warn("render failed", "error", err)
		session.AddError(item.url, err.Error(), model.ErrorTypeRender)
		return nil
	}
	s.metrics.ObservePage(metrics.ResultOK, time.Since(start))

	pageURL := item.url
	if final := urlpath.Normalize(page.FinalURL, ""); final != "" && final != item.url {
		if !urlpath.SameDomain(final, session.BaseURL) {
			logger.Info("dropping page redirected off-site", "final_url", final)
			return nil
		}
		if session.IsVisited(final) {
			logger.Debug("redirect target already recorded", "final_url", final)
			return nil
		}
		pageURL = final
	}

	base := page.FinalURL
	if base == "" {
		base = item.url
	}
	assets, err := extractor.Extract(page.HTML, base)
	if err != nil {
		logger.Warn("page processing failed", "error", err)
		session.AddError(pageURL, err.Error(), model.ErrorTypeCrawl)
		return nil
	}

	rec := &model.PageRecord{
		URL:       pageURL,
		BaseURL:   base,
		HTML:      page.HTML,
		LocalPath: urlpath.PageLocalPath(pageURL, session.OutputDir),
		Assets:    assets,
		Depth:     item.depth,
	}
	if !session.RecordPage(rec) {
		return nil
	}
	if pageURL != item.url {
		session.AddAlias(item.url, rec.LocalPath)
	}
	logger.Info("page crawled", "assets", assets.AssetCount(), "links", assets.InternalLinks.Len())

	if !s.analyzers.Empty() {
		in := analyzer.Input{URL: pageURL, HTML: page.HTML, Screenshot: page.Screenshot}
		if err := s.analyzers.Run(ctx, in); err != nil {
			logger.Error("page analysis failed", "error", err)
			session.AddError(pageURL, err.Error(), model.ErrorTypeUIExtraction)
		}
	}

	return assets.InternalLinks.Items()
}
