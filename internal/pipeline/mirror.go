package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/sitemirror/internal/analyzer"
	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/downloader"
	"github.com/nao1215/sitemirror/internal/httpclient"
	"github.com/nao1215/sitemirror/internal/metrics"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/render"
	"github.com/nao1215/sitemirror/internal/rewrite"
	"github.com/nao1215/sitemirror/internal/robots"
)

// ErrOutputDir is returned by Mirror.Run when the output root cannot be
// created.
var ErrOutputDir = errors.New("cannot create output directory")

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// MaxDepth is the maximum link distance from the start page.
	MaxDepth int

	// Delay is the configured pause between page renders.
	Delay time.Duration

	// RespectRobots enables robots.txt handling.
	RespectRobots bool

	// UserAgent is sent with robots.txt and asset requests.
	UserAgent string

	// Cookie is sent with asset requests.
	Cookie string

	// Headers are extra headers for asset requests.
	Headers map[string]string

	// IgnorePatterns are URL path globs that are never crawled.
	IgnorePatterns []string

	// FollowPatterns restrict crawling to matching URL paths.
	FollowPatterns []string

	// Concurrency is the number of parallel downloads and page rewrites.
	Concurrency int

	// RateLimit caps asset requests per second. 0 disables it.
	RateLimit float64

	// MaxAssetSize caps the size of one asset.
	MaxAssetSize int64

	// Timeout applies to each asset request and to robots.txt.
	Timeout time.Duration

	// SEO, Accessibility, Performance and Screenshots enable the page
	// analyzers.
	SEO           bool
	Accessibility bool
	Performance   bool
	Screenshots   bool

	// HTTPClient is used for robots.txt and assets. Nil builds one from
	// Timeout.
	HTTPClient *http.Client

	// Metrics receives crawl and download measurements. May be nil.
	Metrics *metrics.Collector

	// Logger is handed to every step.
	Logger *slog.Logger
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineMaxDepth sets the crawl depth for the pipeline.
func WithPipelineMaxDepth(depth int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxDepth = depth
	}
}

// WithPipelineDelay sets the delay between page renders.
func WithPipelineDelay(delay time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Delay = delay
	}
}

// WithPipelineRespectRobots enables or disables robots.txt handling.
func WithPipelineRespectRobots(respect bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.RespectRobots = respect
	}
}

// WithPipelineUserAgent sets the User-Agent header for HTTP requests.
func WithPipelineUserAgent(userAgent string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.UserAgent = userAgent
	}
}

// WithPipelineCookie sets the cookie for asset requests.
func WithPipelineCookie(cookie string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Cookie = cookie
	}
}

// WithPipelineHeaders sets additional HTTP headers.
func WithPipelineHeaders(headers map[string]string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Headers = headers
	}
}

// WithPipelineIgnorePatterns sets URL patterns to skip during crawling.
func WithPipelineIgnorePatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.IgnorePatterns = patterns
	}
}

// WithPipelineFollowPatterns sets URL patterns to follow during crawling.
func WithPipelineFollowPatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.FollowPatterns = patterns
	}
}

// WithPipelineConcurrency sets the number of parallel downloads.
func WithPipelineConcurrency(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Concurrency = n
	}
}

// WithPipelineRateLimit caps asset requests per second.
func WithPipelineRateLimit(perSecond float64) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.RateLimit = perSecond
	}
}

// WithPipelineMaxAssetSize caps the size of a single asset.
func WithPipelineMaxAssetSize(n int64) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxAssetSize = n
	}
}

// WithPipelineTimeout sets the per-request timeout.
func WithPipelineTimeout(d time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Timeout = d
	}
}

// WithPipelineAnalyzers enables the SEO and screenshot analyzers.
func WithPipelineAnalyzers(seo, screenshots bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.SEO = seo
		c.Screenshots = screenshots
	}
}

// WithPipelineAudits enables the accessibility and performance analyzers.
func WithPipelineAudits(accessibility, performance bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Accessibility = accessibility
		c.Performance = performance
	}
}

// WithPipelineHTTPClient sets the client for robots.txt and assets.
func WithPipelineHTTPClient(client *http.Client) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.HTTPClient = client
	}
}

// WithPipelineMetrics sets the metrics collector.
func WithPipelineMetrics(m *metrics.Collector) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Metrics = m
	}
}

// WithPipelineLogger sets the logger handed to every step.
func WithPipelineLogger(logger *slog.Logger) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Logger = logger
	}
}

// newDefaultPipelineConfig applies opts over the package defaults.
func newDefaultPipelineConfig(opts ...DefaultPipelineOption) *DefaultPipelineConfig {
	cfg := &DefaultPipelineConfig{
		MaxDepth:      config.DefaultMaxDepth,
		Delay:         config.DefaultDelay,
		RespectRobots: true,
		UserAgent:     config.DefaultUserAgent,
		Concurrency:   config.DefaultConcurrency,
		MaxAssetSize:  config.DefaultMaxAssetSize,
		Timeout:       config.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.New(cfg.Timeout)
	}
	return cfg
}

// DefaultPipeline creates the standard mirror pipeline for session:
//
//	policy -> crawl -> download -> rewrite -> sitemap
//
// The robots policy, downloader and analyzer store are bound to the
// session's site and output directory, so a pipeline serves one session.
// The renderer must be started before the pipeline executes; Mirror does
// that.
func DefaultPipeline(renderer render.Renderer, session *model.Session, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	cfg := newDefaultPipelineConfig(configOpts...)
	logger := cfg.Logger
	outputRoot := session.OutputDir

	base := []Option{WithLogger(logger), WithObserver(cfg.Metrics.ObserveStep)}
	p := New(append(base, pipelineOpts...)...)

	var policy *robots.Policy
	if cfg.RespectRobots {
		policy = robots.New(session.BaseURL, cfg.UserAgent,
			robots.WithHTTPClient(cfg.HTTPClient),
			robots.WithTimeout(cfg.Timeout),
			robots.WithLogger(logger),
		)
	}

	runner := buildAnalyzers(outputRoot, cfg)

	spiderOpts := []crawler.SpiderOption{
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithMetrics(cfg.Metrics),
		crawler.WithLogger(logger),
	}
	if len(cfg.IgnorePatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithIgnorePatterns(cfg.IgnorePatterns))
	}
	if len(cfg.FollowPatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithFollowPatterns(cfg.FollowPatterns))
	}
	if !runner.Empty() {
		spiderOpts = append(spiderOpts, crawler.WithAnalyzers(runner))
	}

	dlOpts := []downloader.Option{
		downloader.WithConcurrency(cfg.Concurrency),
		downloader.WithMaxAssetSize(cfg.MaxAssetSize),
		downloader.WithUserAgent(cfg.UserAgent),
		downloader.WithCookie(cfg.Cookie),
		downloader.WithHeaders(cfg.Headers),
		downloader.WithMetrics(cfg.Metrics),
		downloader.WithLogger(logger),
	}
	if cfg.RateLimit > 0 {
		dlOpts = append(dlOpts, downloader.WithRateLimit(rate.Limit(cfg.RateLimit), 1))
	}
	dl := downloader.New(cfg.HTTPClient, outputRoot, dlOpts...)

	p.AddSteps(
		NewPolicyStep(policy, cfg.Delay, WithPolicyLogger(logger)),
		NewCrawlStep(crawler.NewSpider(renderer, spiderOpts...)),
		NewDownloadStep(dl, WithDownloadLogger(logger)),
		NewRewriteStep(rewrite.New(rewrite.WithLogger(logger)), dl,
			WithRewriteConcurrency(cfg.Concurrency),
			WithRewriteLogger(logger),
		),
		NewSitemapStep(WithSitemapAnalyzers(runner), WithSitemapLogger(logger)),
	)

	return p
}

func buildAnalyzers(outputRoot string, cfg *DefaultPipelineConfig) *analyzer.Runner {
	store := analyzer.NewStore(outputRoot)
	var list []analyzer.Analyzer
	if cfg.SEO {
		list = append(list, analyzer.NewSEO())
	}
	if cfg.Accessibility {
		list = append(list, analyzer.NewAccessibility())
	}
	if cfg.Performance {
		list = append(list, analyzer.NewPerformance())
	}
	if cfg.Screenshots {
		list = append(list, analyzer.NewScreenshot(store))
	}
	if len(list) == 0 {
		return nil
	}
	return analyzer.NewRunner(store, list, analyzer.WithLogger(cfg.Logger))
}

// Mirror runs the default pipeline for one session and owns the renderer's
// lifecycle.
type Mirror struct {
	renderer     render.Renderer
	pipelineOpts []Option
	configOpts   []DefaultPipelineOption
	metrics      *metrics.Collector
	logger       *slog.Logger
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithMirrorLogger sets a custom logger for the mirror and its pipeline.
func WithMirrorLogger(logger *slog.Logger) MirrorOption {
	return func(m *Mirror) {
		m.logger = logger
	}
}

// WithMirrorMetrics sets the metrics collector for the mirror and its
// pipeline.
func WithMirrorMetrics(c *metrics.Collector) MirrorOption {
	return func(m *Mirror) {
		m.metrics = c
	}
}

// WithPipelineOptions passes options to the pipeline itself.
func WithPipelineOptions(opts ...Option) MirrorOption {
	return func(m *Mirror) {
		m.pipelineOpts = append(m.pipelineOpts, opts...)
	}
}

// WithConfigOptions passes options to DefaultPipeline.
func WithConfigOptions(opts ...DefaultPipelineOption) MirrorOption {
	return func(m *Mirror) {
		m.configOpts = append(m.configOpts, opts...)
	}
}

// NewMirror creates a Mirror rendering pages with renderer.
func NewMirror(renderer render.Renderer, opts ...MirrorOption) *Mirror {
	m := &Mirror{renderer: renderer}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Run mirrors session's site into session.OutputDir and always returns a
// Result describing what was done.
//
// Starting the renderer and creating the output directory are the only
// failures that abort before crawling; both leave the session in
// PhaseFailed. Cancelling ctx also ends in PhaseFailed, after a sitemap of
// whatever was crawled has been written. A stop request on the session is
// not an error: the run finishes with the pages crawled so far.
func (m *Mirror) Run(ctx context.Context, session *model.Session) (*model.Result, error) {
	session.StartedAt = time.Now()
	m.metrics.JobStarted()

	finish := func(err error) (*model.Result, error) {
		session.FinishedAt = time.Now()
		m.metrics.JobFinished(session.Phase().String())
		return model.NewResult(session), err
	}

	if err := m.renderer.Start(ctx); err != nil {
		m.logger.Error("failed to start renderer", "error", err)
		session.SetPhase(model.PhaseFailed)
		return finish(err)
	}
	defer func() {
		if err := m.renderer.Close(); err != nil {
			m.logger.Warn("failed to close renderer", "error", err)
		}
	}()

	if err := os.MkdirAll(session.OutputDir, 0o750); err != nil {
		session.SetPhase(model.PhaseFailed)
		return finish(fmt.Errorf("%w %s: %w", ErrOutputDir, session.OutputDir, err))
	}

	configOpts := append([]DefaultPipelineOption{
		WithPipelineLogger(m.logger),
		WithPipelineMetrics(m.metrics),
	}, m.configOpts...)
	p := DefaultPipeline(m.renderer, session, m.pipelineOpts, configOpts...)

	m.logger.Info("mirroring site",
		"url", session.BaseURL,
		"output", session.OutputDir,
		"max_pages", session.MaxPages,
	)

	if err := p.Execute(ctx, session); err != nil {
		if werr := WriteSitemap(session); werr != nil {
			m.logger.Warn("failed to write partial sitemap", "error", werr)
		}
		session.SetPhase(model.PhaseFailed)
		return finish(err)
	}

	res, err := finish(nil)
	m.logger.Info("mirror finished",
		"url", session.BaseURL,
		"pages", res.PageCount(),
		"assets", res.AssetCount(),
		"errors", res.ErrorCount(),
		"stopped", res.Stopped,
		"duration", res.Duration,
	)
	return res, err
}
