package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/metrics"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/pipeline"
	"github.com/nao1215/sitemirror/internal/server"
)

// defaultListenAddr is where the control panel listens unless --addr is set.
const defaultListenAddr = "127.0.0.1:3000"

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web control panel",
		Long: `Serve starts a small web control panel for starting and watching mirror jobs.

Open the address in a browser, enter a URL and the job runs in the
background. The same operations are available as a JSON API:

  POST /api/clone        start a job
  GET  /api/status/:id   job progress
  GET  /api/jobs         all jobs, newest first
  POST /api/cancel/:id   stop a running job
  GET  /metrics          Prometheus metrics

Renderer and download settings below apply to every job; page limits,
depth, delay and output directory come from each request.

Examples:
  sitemirror serve
  sitemirror serve --addr :8080 --renderer http`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().String("addr", defaultListenAddr, "Listen address")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each page render and asset request")
	cmd.Flags().IntP("concurrency", "C", config.DefaultConcurrency,
		"Number of parallel asset downloads per job")
	cmd.Flags().Float64("rate-limit", 0,
		"Maximum asset requests per second per job (0 = unlimited)")
	cmd.Flags().String("renderer", config.RendererChrome,
		"Page renderer: chrome or http")
	cmd.Flags().String("chrome-path", "",
		"Chrome executable (default: search PATH)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User agent for pages and assets")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemirror in current or home directory)")
	cmd.Flags().Bool("no-history", false,
		"Do not record finished jobs in the history database")
	addDBDirFlag(cmd)

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, addr, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	var db *database.MirrorDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
	}

	collector := metrics.New()
	jobs := server.NewJobManager(jobFactory(cfg, logger, collector),
		server.WithJobLogger(logger),
		server.WithOnFinish(historyRecorder(db, logger)),
	)

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(jobs,
		server.WithLogger(logger),
		server.WithMetrics(collector),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "sitemirror control panel listening on http://%s\n", addr)
	return srv.ListenAndServe(ctx, addr)
}

// buildServeConfig creates the shared job settings from cobra flags.
func buildServeConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	addr, err := flags.GetString("addr")
	if err != nil {
		return nil, "", err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, "", err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, "", err
	}
	if cfg.RateLimit, err = flags.GetFloat64("rate-limit"); err != nil {
		return nil, "", err
	}
	if cfg.Renderer, err = flags.GetString("renderer"); err != nil {
		return nil, "", err
	}
	if cfg.ChromePath, err = flags.GetString("chrome-path"); err != nil {
		return nil, "", err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, "", err
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, "", err
	}
	cfg.SaveToDB = !noHistory
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, "", err
	}
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, "", err
	}
	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, "", err
	}

	// Validate needs a target; jobs bring their own.
	check := *cfg
	check.Targets = []string{"https://example.com"}
	if err := check.Validate(); err != nil {
		return nil, "", fmt.Errorf("configuration error: %w", err)
	}
	return cfg, addr, nil
}

// jobFactory builds the mirror for one control panel job. Request values
// replace the global limits, and the site config file still applies to
// cookies, headers and patterns.
func jobFactory(base *config.Config, logger *slog.Logger, collector *metrics.Collector) server.JobFactory {
	return func(opts server.JobOptions) (*pipeline.Mirror, *model.Session, error) {
		u, err := url.Parse(opts.URL)
		if err != nil || u.Host == "" {
			return nil, nil, fmt.Errorf("%w: %s", config.ErrInvalidURL, opts.URL)
		}

		cfg := *base
		cfg.Targets = []string{opts.URL}
		cfg.RespectRobots = opts.RespectRobots
		cfg.OutputDir = opts.OutputDir

		plan := newTargetPlan(&cfg, u.Hostname())
		plan.maxPages = opts.MaxPages
		plan.maxDepth = opts.MaxDepth
		plan.delay = opts.Delay

		session, err := model.NewSession(opts.URL, opts.OutputDir, opts.MaxPages)
		if err != nil {
			return nil, nil, err
		}
		return buildMirror(&cfg, plan, logger, collector), session, nil
	}
}

// historyRecorder returns the job completion hook that stores the run.
// A nil db records nothing.
func historyRecorder(db *database.MirrorDB, logger *slog.Logger) func(*model.Result) {
	return func(res *model.Result) {
		if db == nil || res == nil {
			return
		}
		if _, err := db.SaveRun(context.Background(), res); err != nil {
			logger.Error("failed to save run", "url", res.BaseURL, "error", err)
		}
	}
}
