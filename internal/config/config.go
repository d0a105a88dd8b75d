package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitemirror"

	// DefaultMaxPages bounds the number of pages rendered per site.
	DefaultMaxPages = 200

	// DefaultMaxDepth is the maximum link distance from the start page.
	DefaultMaxDepth = 10

	// DefaultDelay is the pause between two page renders. A Crawl-delay in
	// robots.txt can only raise it.
	DefaultDelay = 500 * time.Millisecond

	// DefaultTimeout applies to every page render and every asset request.
	DefaultTimeout = 30 * time.Second

	// DefaultConcurrency is the number of parallel asset downloads.
	DefaultConcurrency = 10

	// DefaultBatchSize is the number of sites mirrored at the same time when
	// several targets are given.
	DefaultBatchSize = 2

	// DefaultOutputDir is where mirrors are written unless told otherwise.
	DefaultOutputDir = "./cloned"

	// DefaultMaxAssetSize caps the size of a single downloaded asset.
	DefaultMaxAssetSize = 50 * 1024 * 1024 // 50MB

	// DefaultUserAgent is a desktop Chrome user agent. Many sites serve a
	// degraded page to unknown agents, which would defeat the mirror.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// RendererChrome renders pages in headless Chrome.
	RendererChrome = "chrome"

	// RendererHTTP fetches raw markup without running scripts.
	RendererHTTP = "http"
)

// Upper bounds accepted from the control panel and the CLI.
const (
	MaxPagesLimit = 10000
	MaxDepthLimit = 100
	MaxDelayLimit = 60 * time.Second
)

// Config holds all configuration options for a mirror run.
// It is populated from CLI flags (or a control panel request) and passed
// down explicitly; nothing reads global state.
//
// Design decision: A single flat struct instead of nested per-phase structs.
// Each phase only needs a handful of these values, and the pipeline options
// pick them out one by one.
type Config struct {
	// Targets are the start URLs to mirror.
	Targets []string

	// MaxPages bounds the number of pages rendered per target.
	MaxPages int

	// MaxDepth bounds the link distance from the start page. 0 mirrors only
	// the start page.
	MaxDepth int

	// Delay is the pause between two page renders.
	Delay time.Duration

	// Timeout applies to each render and each asset request.
	Timeout time.Duration

	// Concurrency is the number of parallel asset downloads.
	Concurrency int

	// BatchSize is the number of targets mirrored concurrently.
	BatchSize int

	// RateLimit caps asset requests per second. 0 disables the limit.
	RateLimit float64

	// RespectRobots makes the crawl honor robots.txt.
	RespectRobots bool

	// Renderer selects the page renderer: RendererChrome or RendererHTTP.
	Renderer string

	// Headless runs Chrome without a window.
	Headless bool

	// ChromePath overrides the Chrome executable. Empty uses the one found
	// on PATH.
	ChromePath string

	// UserAgent is sent with every page and asset request.
	UserAgent string

	// OutputDir is the root of the mirror. With several targets each one
	// gets a subdirectory named after its host.
	OutputDir string

	// MaxAssetSize caps the size of a single asset in bytes.
	MaxAssetSize int64

	// SEO runs the SEO analyzer on every page.
	SEO bool

	// Accessibility runs the WCAG markup checks on every page.
	Accessibility bool

	// Performance runs the resource loading analyzer on every page.
	Performance bool

	// Screenshots stores a full-page screenshot of every page. It needs
	// the Chrome renderer.
	Screenshots bool

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches the log output to JSON.
	LogJSON bool

	// JSONReport and MarkdownReport select the summary format. They are
	// mutually exclusive; neither means plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile receives the summary instead of stdout.
	ReportFile string

	// ConfigFilePath is an explicit site config file. Empty searches for
	// .sitemirror in the working and home directories.
	ConfigFilePath string

	// SiteConfigs holds the per-site settings of the config file.
	SiteConfigs *File

	// DBDir is the directory of the history database.
	DBDir string

	// SaveToDB records each run in the history database.
	SaveToDB bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxPages:      DefaultMaxPages,
		MaxDepth:      DefaultMaxDepth,
		Delay:         DefaultDelay,
		Timeout:       DefaultTimeout,
		Concurrency:   DefaultConcurrency,
		BatchSize:     DefaultBatchSize,
		RespectRobots: true,
		Renderer:      RendererChrome,
		Headless:      true,
		UserAgent:     DefaultUserAgent,
		OutputDir:     DefaultOutputDir,
		MaxAssetSize:  DefaultMaxAssetSize,
		DBDir:         XDGDataDir(),
		SaveToDB:      true,
	}
}

// XDGDataDir returns the XDG data directory, which holds the history
// database.
// On Linux: ~/.local/share/sitemirror
// On macOS: ~/Library/Application Support/sitemirror
// On Windows: %LOCALAPPDATA%\sitemirror
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
//
// Design decision: Validation happens once, after flag parsing and before
// any browser is launched, so a typo fails in milliseconds instead of after
// Chrome has started.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	for _, t := range c.Targets {
		if !IsHTTPURL(t) {
			return ErrInvalidURL
		}
	}

	if c.MaxPages < 1 || c.MaxPages > MaxPagesLimit {
		return ErrInvalidMaxPages
	}
	if c.MaxDepth < 0 || c.MaxDepth > MaxDepthLimit {
		return ErrInvalidMaxDepth
	}
	if c.Delay < 0 || c.Delay > MaxDelayLimit {
		return ErrInvalidDelay
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.MaxAssetSize < 0 {
		return ErrInvalidMaxAssetSize
	}

	switch c.Renderer {
	case RendererChrome, RendererHTTP:
	default:
		return ErrInvalidRenderer
	}
	if c.Screenshots && c.Renderer != RendererChrome {
		return ErrScreenshotsNeedChrome
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

// IsHTTPURL reports whether raw is an absolute http or https URL with a
// host.
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
