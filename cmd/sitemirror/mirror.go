package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/httpclient"
	"github.com/nao1215/sitemirror/internal/metrics"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/pipeline"
	"github.com/nao1215/sitemirror/internal/render"
	"github.com/nao1215/sitemirror/internal/report"
)

// errMirrorFailed is returned when at least one target ended in PhaseFailed.
var errMirrorFailed = errors.New("mirror failed")

// NewMirrorCmd creates the mirror command.
func NewMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror URL [URL...]",
		Short: "Mirror one or more websites to disk",
		Long: `Mirror crawls a website and writes a self-contained offline copy.

Pages are discovered breadth-first from the start URL, limited to the same
domain, and rendered with headless Chrome (or plain HTTP with
--renderer http). Every stylesheet, script, image, font and media file is
downloaded, and all references are rewritten to relative local paths.

The output directory contains:
  index.html, about/index.html, ...   the pages
  assets/{css,js,images,fonts,media,other}/
  sitemap.json                        crawled pages and URL mapping
  errors.json                         only when something failed

Examples:
  # Mirror a site into ./cloned
  sitemirror mirror https://example.com

  # Limit the crawl and slow it down
  sitemirror mirror --max-pages 50 --depth 3 --delay 2s https://example.com

  # Mirror several sites, two at a time, each under ./cloned/<host>
  sitemirror mirror --batch 2 https://a.example https://b.example

  # No browser: fetch pages over plain HTTP
  sitemirror mirror --renderer http https://example.com

  # Markdown summary written to a file
  sitemirror mirror --markdown -o report.md https://example.com

Press Ctrl+C once to stop crawling and save what was mirrored so far;
press it again to abort.`,
		Args: cobra.ArbitraryArgs,
		RunE: runMirrorCmd,
	}

	// Crawl flags
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to mirror per site")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link depth from the start page")
	cmd.Flags().Duration("delay", config.DefaultDelay,
		"Pause between page renders (robots.txt Crawl-delay wins if larger)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each page render and asset request")
	cmd.Flags().Bool("no-robots", false,
		"Ignore robots.txt")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User agent for pages and assets")

	// Download flags
	cmd.Flags().IntP("concurrency", "C", config.DefaultConcurrency,
		"Number of parallel asset downloads")
	cmd.Flags().Float64("rate-limit", 0,
		"Maximum asset requests per second (0 = unlimited)")
	cmd.Flags().Int64("max-asset-size", config.DefaultMaxAssetSize,
		"Maximum size of a single asset in bytes")

	// Renderer flags
	cmd.Flags().String("renderer", config.RendererChrome,
		"Page renderer: chrome or http")
	cmd.Flags().Bool("no-headless", false,
		"Show the browser window")
	cmd.Flags().String("chrome-path", "",
		"Chrome executable (default: search PATH)")

	// Analyzer flags
	cmd.Flags().Bool("seo", false,
		"Write an SEO analysis of every page to analysis/")
	cmd.Flags().Bool("accessibility", false,
		"Write an accessibility (WCAG) audit of every page to analysis/")
	cmd.Flags().Bool("performance", false,
		"Write a resource loading audit of every page to analysis/")
	cmd.Flags().Bool("screenshots", false,
		"Write a full-page screenshot of every page to analysis/ (chrome only)")

	// Output flags
	cmd.Flags().StringP("out", "O", config.DefaultOutputDir,
		"Output directory (one subdirectory per host when mirroring several sites)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of sites mirrored concurrently")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemirror in current or home directory)")
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")
	addDBDirFlag(cmd)

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runMirrorCmd executes the mirror command.
func runMirrorCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	runner := newMirrorRunner(cfg, logger, nil)

	// First signal: stop crawling and keep what was mirrored.
	// Second signal: abort.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		logger.Warn("received shutdown signal, finishing current pages (press Ctrl+C again to abort)")
		runner.stopAll()
		select {
		case <-sigCh:
			logger.Warn("received second signal, aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runner.run(ctx, cmd.OutOrStdout())
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	noRobots, err := flags.GetBool("no-robots")
	if err != nil {
		return nil, err
	}
	cfg.RespectRobots = !noRobots
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = flags.GetFloat64("rate-limit"); err != nil {
		return nil, err
	}
	if cfg.MaxAssetSize, err = flags.GetInt64("max-asset-size"); err != nil {
		return nil, err
	}
	if cfg.Renderer, err = flags.GetString("renderer"); err != nil {
		return nil, err
	}
	noHeadless, err := flags.GetBool("no-headless")
	if err != nil {
		return nil, err
	}
	cfg.Headless = !noHeadless
	if cfg.ChromePath, err = flags.GetString("chrome-path"); err != nil {
		return nil, err
	}
	if cfg.SEO, err = flags.GetBool("seo"); err != nil {
		return nil, err
	}
	if cfg.Accessibility, err = flags.GetBool("accessibility"); err != nil {
		return nil, err
	}
	if cfg.Performance, err = flags.GetBool("performance"); err != nil {
		return nil, err
	}
	if cfg.Screenshots, err = flags.GetBool("screenshots"); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = flags.GetString("out"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	cfg.Targets = args
	return cfg, nil
}

// loadSiteConfigs reads the site config file.
// An explicit path must exist; without one a missing file means no
// per-site settings.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	configPath := config.FindConfigFile(explicitPath)
	if configPath == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("configuration file not found: %s", explicitPath)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	file, err := config.LoadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	return file, nil
}

// mirrorRunner mirrors every configured target and reports the results.
type mirrorRunner struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	sessions []*model.Session
	results  []*model.Result
	stopped  bool
}

func newMirrorRunner(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) *mirrorRunner {
	return &mirrorRunner{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		results: make([]*model.Result, len(cfg.Targets)),
	}
}

// stopAll requests a graceful stop of every running and future session.
func (r *mirrorRunner) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for _, s := range r.sessions {
		s.RequestStop()
	}
}

func (r *mirrorRunner) track(s *model.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	if r.stopped {
		s.RequestStop()
	}
}

// run mirrors the targets, stores and reports the results.
func (r *mirrorRunner) run(ctx context.Context, stdout io.Writer) error {
	cfg := r.cfg

	var db *database.MirrorDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		r.logger.Debug("history database opened", "path", db.Path())
	}

	bp := pipeline.NewBatchProcessor(r.factory,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(r.logger),
	)

	err := bp.ProcessBatchWithCallback(ctx, cfg.Targets, func(res *model.Result, index int) {
		r.save(ctx, db, res)

		r.mu.Lock()
		defer r.mu.Unlock()
		r.results[index] = res
		if len(cfg.Targets) > 1 && !cfg.JSONReport && !cfg.MarkdownReport {
			fmt.Fprintf(stdout, "[%d/%d] %s: %s (%d pages, %d assets, %d errors)\n",
				index+1, len(cfg.Targets), res.BaseURL, res.Phase,
				res.PageCount(), res.AssetCount(), res.ErrorCount())
		}
	})

	if rerr := writeReport(cfg, stdout, r.results); rerr != nil {
		return fmt.Errorf("failed to write report: %w", rerr)
	}
	if err != nil {
		return err
	}

	var failed int
	for _, res := range r.results {
		if res != nil && res.Phase == model.PhaseFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d site(s)", errMirrorFailed, failed, len(cfg.Targets))
	}
	return nil
}

// save records the run in the history database. A nil db is a no-op.
func (r *mirrorRunner) save(ctx context.Context, db *database.MirrorDB, res *model.Result) {
	if db == nil || res == nil {
		return
	}
	// The run is over; an aborted ctx must not lose its record.
	id, err := db.SaveRun(context.WithoutCancel(ctx), res)
	if err != nil {
		r.logger.Error("failed to save run", "url", res.BaseURL, "error", err)
		return
	}
	r.logger.Debug("run saved to history", "url", res.BaseURL, "id", id)
}

// factory prepares the mirror and session for one target.
func (r *mirrorRunner) factory(target string) (*pipeline.Mirror, *model.Session, error) {
	cfg := r.cfg

	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, nil, fmt.Errorf("%w: %s", config.ErrInvalidURL, target)
	}

	plan := newTargetPlan(cfg, u.Hostname())
	outDir := cfg.OutputDir
	if len(cfg.Targets) > 1 {
		outDir = filepath.Join(outDir, hostDirName(u))
	}

	session, err := model.NewSession(target, outDir, plan.maxPages)
	if err != nil {
		return nil, nil, err
	}
	r.track(session)

	return buildMirror(cfg, plan, r.logger, r.metrics), session, nil
}

// targetPlan holds the limits for one target after the site config has
// been applied.
type targetPlan struct {
	maxPages int
	maxDepth int
	delay    time.Duration
	site     config.SiteConfig
}

func newTargetPlan(cfg *config.Config, host string) targetPlan {
	plan := targetPlan{
		maxPages: cfg.MaxPages,
		maxDepth: cfg.MaxDepth,
		delay:    cfg.Delay,
	}
	if cfg.SiteConfigs == nil {
		return plan
	}

	plan.site = cfg.SiteConfigs.GetSiteConfig(host)
	if plan.site.MaxPages > 0 {
		plan.maxPages = min(plan.site.MaxPages, config.MaxPagesLimit)
	}
	if plan.site.Depth > 0 {
		plan.maxDepth = min(plan.site.Depth, config.MaxDepthLimit)
	}
	if plan.site.Delay > 0 {
		plan.delay = min(plan.site.Delay, config.MaxDelayLimit)
	}
	return plan
}

// hostDirName names the per-host output directory.
func hostDirName(u *url.URL) string {
	return strings.ReplaceAll(strings.ToLower(u.Host), ":", "_")
}

// buildMirror wires the renderer and pipeline options for one target.
func buildMirror(cfg *config.Config, plan targetPlan, logger *slog.Logger, collector *metrics.Collector) *pipeline.Mirror {
	client := httpclient.New(cfg.Timeout)
	site := plan.site

	var renderer render.Renderer
	if cfg.Renderer == config.RendererHTTP {
		renderer = render.NewHTTPRenderer(client,
			render.WithRequestOptions(httpclient.RequestOptions{
				UserAgent: cfg.UserAgent,
				Cookie:    site.Cookie,
				Headers:   site.Headers,
			}),
			render.WithMaxPageSize(cfg.MaxAssetSize),
			render.WithHTTPLogger(logger),
		)
	} else {
		renderer = render.NewChromedpRenderer(
			render.WithHeadless(cfg.Headless),
			render.WithUserAgent(cfg.UserAgent),
			render.WithTimeout(cfg.Timeout),
			render.WithExtraHeaders(site.Headers),
			render.WithCookie(site.Cookie),
			render.WithScreenshots(cfg.Screenshots),
			render.WithExecPath(cfg.ChromePath),
			render.WithLogger(logger),
		)
	}

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineMaxDepth(plan.maxDepth),
		pipeline.WithPipelineDelay(plan.delay),
		pipeline.WithPipelineRespectRobots(cfg.RespectRobots),
		pipeline.WithPipelineUserAgent(cfg.UserAgent),
		pipeline.WithPipelineConcurrency(cfg.Concurrency),
		pipeline.WithPipelineRateLimit(cfg.RateLimit),
		pipeline.WithPipelineMaxAssetSize(cfg.MaxAssetSize),
		pipeline.WithPipelineTimeout(cfg.Timeout),
		pipeline.WithPipelineAnalyzers(cfg.SEO, cfg.Screenshots),
		pipeline.WithPipelineAudits(cfg.Accessibility, cfg.Performance),
		pipeline.WithPipelineHTTPClient(client),
	}
	if site.Cookie != "" {
		configOpts = append(configOpts, pipeline.WithPipelineCookie(site.Cookie))
	}
	if len(site.Headers) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineHeaders(site.Headers))
	}
	if len(site.IgnorePatterns) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineIgnorePatterns(site.IgnorePatterns))
	}
	if len(site.FollowPatterns) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineFollowPatterns(site.FollowPatterns))
	}

	return pipeline.NewMirror(renderer,
		pipeline.WithMirrorLogger(logger),
		pipeline.WithMirrorMetrics(collector),
		pipeline.WithConfigOptions(configOpts...),
	)
}

// writeReport outputs the run summaries in the requested format.
func writeReport(cfg *config.Config, stdout io.Writer, results []*model.Result) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	if len(results) == 1 && results[0] != nil {
		_, err := w.Write(results[0])
		return err
	}
	_, err := w.WriteBatch(results)
	return err
}
