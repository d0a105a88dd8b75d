package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitemirror/internal/analyzer"
	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/downloader"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/rewrite"
	"github.com/nao1215/sitemirror/internal/robots"
)

// Output files written to the mirror root.
const (
	SitemapFile = "sitemap.json"
	ErrorsFile  = "errors.json"
)

// PolicyStep loads robots.txt and settles the effective crawl delay.
type PolicyStep struct {
	// policy is nil when robots.txt is ignored.
	policy *robots.Policy

	// delay is the configured pause between renders.
	delay time.Duration

	logger *slog.Logger
}

// PolicyStepOption configures a PolicyStep.
type PolicyStepOption func(*PolicyStep)

// WithPolicyLogger sets a custom logger for the policy step.
func WithPolicyLogger(logger *slog.Logger) PolicyStepOption {
	return func(s *PolicyStep) {
		s.logger = logger
	}
}

// NewPolicyStep creates a policy step. A nil policy disables robots.txt
// handling; the session then crawls with the configured delay only.
func NewPolicyStep(policy *robots.Policy, delay time.Duration, opts ...PolicyStepOption) *PolicyStep {
	s := &PolicyStep{
		policy: policy,
		delay:  delay,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *PolicyStep) Name() string {
	return "policy"
}

// Do loads the policy and sets session.Policy and session.Delay.
//
// A robots.txt that cannot be fetched is logged and the crawl proceeds as
// if everything were allowed. Only cancellation ends the step with an error.
func (s *PolicyStep) Do(ctx context.Context, session *model.Session) error {
	session.SetPhase(model.PhaseLoadingPolicy)
	session.Delay = s.delay

	if s.policy == nil {
		s.logger.Debug("robots.txt ignored", "site", session.BaseURL)
		return nil
	}

	if err := s.policy.Load(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Warn("could not load robots.txt, crawling without restrictions",
			"url", s.policy.URL(),
			"error", err,
		)
	}

	session.Policy = s.policy
	if d := s.policy.CrawlDelay(s.delay); d > session.Delay {
		s.logger.Info("using robots.txt crawl delay", "delay", d)
		session.Delay = d
	}
	return nil
}

// CrawlStep renders the site breadth first.
type CrawlStep struct {
	spider *crawler.Spider
}

// NewCrawlStep creates a crawl step around spider.
func NewCrawlStep(spider *crawler.Spider) *CrawlStep {
	return &CrawlStep{spider: spider}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, session *model.Session) error {
	session.SetPhase(model.PhaseCrawling)
	return s.spider.Crawl(ctx, session)
}

// DownloadStep fetches every asset the crawl found, including assets that
// stylesheets reference.
type DownloadStep struct {
	downloader *downloader.Downloader
	logger     *slog.Logger
}

// DownloadStepOption configures a DownloadStep.
type DownloadStepOption func(*DownloadStep)

// WithDownloadLogger sets a custom logger for the download step.
func WithDownloadLogger(logger *slog.Logger) DownloadStepOption {
	return func(s *DownloadStep) {
		s.logger = logger
	}
}

// NewDownloadStep creates a download step. The same downloader must be
// given to the rewrite step so pages land in the same mapping.
func NewDownloadStep(d *downloader.Downloader, opts ...DownloadStepOption) *DownloadStep {
	s := &DownloadStep{
		downloader: d,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *DownloadStep) Name() string {
	return "download"
}

// Do downloads session.AssetURLs and merges the stored assets into
// session.URLMapping. After a stop request AssetURLs holds only what the
// pages crawled so far reference, so those pages still end up offline.
func (s *DownloadStep) Do(ctx context.Context, session *model.Session) error {
	if session.StopRequested() {
		s.logger.Info("stop requested, downloading assets of crawled pages only",
			"site", session.BaseURL, "pages", len(session.Visited))
	}
	session.SetPhase(model.PhaseDownloading)

	extractor := crawler.NewExtractor(session.BaseURL, crawler.WithExtractorLogger(s.logger))
	mapping := s.downloader.DownloadAll(ctx, session.AssetURLs.Items(), extractor.ExtractCSSAssets)

	stored := 0
	for u, p := range mapping {
		if _, isPage := session.Visited[u]; isPage {
			continue
		}
		session.URLMapping[u] = p
		stored++
	}

	for _, o := range s.downloader.Outcomes() {
		if o.OK() || o.Kind == downloader.KindCanceled {
			continue
		}
		session.AddError(o.URL, o.Message(), model.ErrorTypeDownload)
	}
	session.SetAssetsDownloaded(stored)

	s.logger.Info("assets downloaded",
		"site", session.BaseURL,
		"requested", session.AssetURLs.Len(),
		"stored", stored,
		"failed", len(s.downloader.Failed()),
	)

	return ctx.Err()
}

// RewriteStep points every crawled page and downloaded stylesheet at the
// local copies and writes the pages to disk.
type RewriteStep struct {
	rewriter    *rewrite.Rewriter
	downloader  *downloader.Downloader
	concurrency int
	logger      *slog.Logger
}

// RewriteStepOption configures a RewriteStep.
type RewriteStepOption func(*RewriteStep)

// WithRewriteConcurrency sets how many pages are rewritten at once.
func WithRewriteConcurrency(n int) RewriteStepOption {
	return func(s *RewriteStep) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRewriteLogger sets a custom logger for the rewrite step.
func WithRewriteLogger(logger *slog.Logger) RewriteStepOption {
	return func(s *RewriteStep) {
		s.logger = logger
	}
}

// NewRewriteStep creates a rewrite step writing pages through d.
func NewRewriteStep(r *rewrite.Rewriter, d *downloader.Downloader, opts ...RewriteStepOption) *RewriteStep {
	s := &RewriteStep{
		rewriter:    r,
		downloader:  d,
		concurrency: downloader.DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *RewriteStep) Name() string {
	return "rewrite"
}

// Do rewrites and saves every recorded page, then rewrites the downloaded
// stylesheets in place.
//
// Design decision: Pages are rewritten in parallel because URLMapping is no
// longer written once downloading has finished, so the goroutines only
// share read access to it. A page whose markup cannot be rewritten is still
// saved unmodified, so the mirror never silently loses a page.
func (s *RewriteStep) Do(ctx context.Context, session *model.Session) error {
	session.SetPhase(model.PhaseRewriting)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, u := range session.VisitOrder {
		rec, ok := session.Pages[u]
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.savePage(session, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.rewriteStylesheets(session)
	return nil
}

func (s *RewriteStep) savePage(session *model.Session, rec *model.PageRecord) {
	html, err := s.rewriter.RewriteHTML(rec.HTML, rec.DocURL(), rec.LocalPath, session.URLMapping)
	if err != nil {
		s.logger.Warn("rewrite failed, saving page as rendered", "url", rec.URL, "error", err)
		session.AddError(rec.URL, fmt.Sprintf("rewrite page: %v", err), model.ErrorTypeSave)
		html = rec.HTML
	}

	if err := s.downloader.DownloadPage(rec.URL, html, rec.LocalPath); err != nil {
		s.logger.Warn("failed to save page", "url", rec.URL, "path", rec.LocalPath, "error", err)
		session.AddError(rec.URL, fmt.Sprintf("save page: %v", err), model.ErrorTypeSave)
	}
}

// rewriteStylesheets rewrites url() and @import references of stored CSS
// files. Failures are only logged: the unmodified file still works online.
func (s *RewriteStep) rewriteStylesheets(session *model.Session) {
	for _, u := range session.SortedAssets() {
		localPath := session.URLMapping[u]
		if !strings.EqualFold(filepath.Ext(localPath), ".css") {
			continue
		}

		data, err := os.ReadFile(localPath) //nolint:gosec // path was produced by the downloader
		if err != nil {
			s.logger.Warn("failed to read stylesheet", "url", u, "path", localPath, "error", err)
			continue
		}

		css := string(data)
		rewritten := s.rewriter.RewriteCSSFile(css, u, localPath, session.URLMapping)
		if rewritten == css {
			continue
		}
		if err := os.WriteFile(localPath, []byte(rewritten), 0o644); err != nil { //nolint:gosec // mirrored files are meant to be readable
			s.logger.Warn("failed to write stylesheet", "url", u, "path", localPath, "error", err)
		}
	}
}

// SitemapStep writes sitemap.json (and errors.json when anything failed)
// and completes the run.
type SitemapStep struct {
	analyzers *analyzer.Runner
	logger    *slog.Logger
}

// SitemapStepOption configures a SitemapStep.
type SitemapStepOption func(*SitemapStep)

// WithSitemapAnalyzers makes the step log the analyzer summary.
func WithSitemapAnalyzers(r *analyzer.Runner) SitemapStepOption {
	return func(s *SitemapStep) {
		s.analyzers = r
	}
}

// WithSitemapLogger sets a custom logger for the sitemap step.
func WithSitemapLogger(logger *slog.Logger) SitemapStepOption {
	return func(s *SitemapStep) {
		s.logger = logger
	}
}

// NewSitemapStep creates the final step.
func NewSitemapStep(opts ...SitemapStepOption) *SitemapStep {
	s := &SitemapStep{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *SitemapStep) Name() string {
	return "sitemap"
}

// Do writes the output files and sets PhaseDone.
func (s *SitemapStep) Do(_ context.Context, session *model.Session) error {
	if err := WriteSitemap(session); err != nil {
		return err
	}

	if !s.analyzers.Empty() {
		summary := s.analyzers.Summary()
		s.logger.Info("page analysis finished",
			"site", session.BaseURL,
			"pages", summary.PagesAnalyzed,
			"average_seo_score", summary.AverageSEOScore,
			"average_accessibility_score", summary.AverageAccessibilityScore,
			"average_performance_score", summary.AveragePerformanceScore,
		)
		if _, err := s.analyzers.SaveSummary(); err != nil {
			s.logger.Warn("failed to save analysis summary", "site", session.BaseURL, "error", err)
		}
	}

	session.SetPhase(model.PhaseDone)
	return nil
}

// WriteSitemap writes sitemap.json to the session's output directory and,
// when failures were recorded, errors.json next to it.
func WriteSitemap(session *model.Session) error {
	if err := writeJSON(filepath.Join(session.OutputDir, SitemapFile), model.NewSitemap(session)); err != nil {
		return fmt.Errorf("write sitemap: %w", err)
	}

	if errs := session.Errors(); len(errs) > 0 {
		if err := writeJSON(filepath.Join(session.OutputDir, ErrorsFile), errs); err != nil {
			return fmt.Errorf("write error list: %w", err)
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path) //nolint:gosec // path is built from the output directory
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
