package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// DefaultSettleDelay is how long a page may keep running scripts after the
// load event before its DOM is captured.
const DefaultSettleDelay = time.Second

// defaultRenderTimeout bounds a single page render.
const defaultRenderTimeout = 30 * time.Second

// screenshotQuality is passed to FullScreenshot; 100 or above yields PNG.
const screenshotQuality = 100

// ChromedpRenderer renders pages in headless Chrome.
//
// One browser process is started by Start and shared by every Render call;
// each call opens its own tab and closes it when done.
type ChromedpRenderer struct {
	headless    bool
	userAgent   string
	timeout     time.Duration
	settle      time.Duration
	headers     map[string]string
	cookie      string
	screenshots bool
	execPath    string
	logger      *slog.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// ChromedpOption configures a ChromedpRenderer.
type ChromedpOption func(*ChromedpRenderer)

// WithHeadless toggles headless mode. Headless is the default.
func WithHeadless(headless bool) ChromedpOption {
	return func(r *ChromedpRenderer) {
		r.headless = headless
	}
}

// WithUserAgent sets the browser's User-Agent.
func WithUserAgent(ua string) ChromedpOption {
	return func(r *ChromedpRenderer) {
		r.userAgent = ua
	}
}

// WithTimeout bounds a single render.
func WithTimeout(timeout time.Duration) ChromedpOption {
	return func(r *ChromedpRenderer) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithSettleDelay sets the wait between the load event and DOM capture.
func WithSettleDelay(d time.Duration) ChromedpOption {
	return func(r *ChromedpRenderer) {
		if d >= 0 {
			r.settle = d
		}
	}
}

// WithExtraHeaders sends headers with every browser request.
func WithExtraHeaders(headers map[string]string) ChromedpOption {
	return func(r *ChromedpRenderer) {
		r.headers = headers
	}
}

// WithCookie sends a Cookie header with every browser request.
func WithCookie(cookie string) ChromedpOption {
	return func(r *ChromedpRenderer) {
		r.cookie = cookie
	}
}

// WithScreenshots captures a full-page PNG of every rendered page.
func WithScreenshots(enabled bool) ChromedpOption {
	return func(r *ChromedpRenderer) {
		r.screenshots = enabled
	}
}

// WithExecPath uses a specific Chrome binary instead of searching PATH.
func WithExecPath(path string) ChromedpOption {
	return func(r *ChromedpRenderer) {
		r.execPath = path
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ChromedpOption {
	return func(r *ChromedpRenderer) {
		r.logger = logger
	}
}

// NewChromedpRenderer creates a renderer. The browser is launched by Start.
func NewChromedpRenderer(opts ...ChromedpOption) *ChromedpRenderer {
	r := &ChromedpRenderer{
		headless: true,
		timeout:  defaultRenderTimeout,
		settle:   DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Start launches the browser and waits until it accepts commands.
// Failures wrap ErrBrowserStart.
func (r *ChromedpRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx != nil {
		return nil
	}

	execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	execOpts = append(execOpts,
		chromedp.Flag("headless", r.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.WindowSize(DefaultViewportWidth, DefaultViewportHeight),
	)
	if r.userAgent != "" {
		execOpts = append(execOpts, chromedp.UserAgent(r.userAgent))
	}
	if r.execPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), execOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run launches the browser and must use the browser context
	// itself: cancelling a context derived from it would kill the process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("%w: %w", ErrBrowserStart, err)
	}

	r.allocCancel = allocCancel
	r.browserCtx = browserCtx
	r.browserCancel = browserCancel

	r.logger.Debug("browser started", "headless", r.headless)
	return nil
}

// Render opens pageURL in a new tab and returns the DOM after the settle
// delay.
func (r *ChromedpRenderer) Render(ctx context.Context, pageURL string) (*Page, error) {
	r.mu.Lock()
	browserCtx := r.browserCtx
	r.mu.Unlock()
	if browserCtx == nil {
		return nil, fmt.Errorf("%w: renderer not started", ErrBrowserStart)
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	runCtx, cancel := context.WithTimeout(tabCtx, r.timeout)
	defer cancel()

	if err := chromedp.Run(runCtx, r.setupActions()...); err != nil {
		return nil, r.wrapRunError(ctx, pageURL, err)
	}

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(pageURL))
	if err != nil {
		return nil, r.wrapRunError(ctx, pageURL, err)
	}

	page := &Page{URL: pageURL}
	if resp != nil {
		page.StatusCode = int(resp.Status)
		if page.StatusCode >= 400 {
			return nil, statusError(page.StatusCode, pageURL)
		}
	}

	capture := []chromedp.Action{
		chromedp.Sleep(r.settle),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
		chromedp.Location(&page.FinalURL),
	}
	if r.screenshots {
		capture = append(capture, chromedp.FullScreenshot(&page.Screenshot, screenshotQuality))
	}
	if err := chromedp.Run(runCtx, capture...); err != nil {
		return nil, r.wrapRunError(ctx, pageURL, err)
	}

	if page.FinalURL == "" {
		page.FinalURL = pageURL
	}

	r.logger.Debug("page rendered",
		"url", pageURL,
		"final_url", page.FinalURL,
		"status", page.StatusCode,
		"html_bytes", len(page.HTML),
	)
	return page, nil
}

// setupActions prepares a fresh tab: viewport plus request decoration.
func (r *ChromedpRenderer) setupActions() []chromedp.Action {
	actions := []chromedp.Action{
		chromedp.EmulateViewport(DefaultViewportWidth, DefaultViewportHeight),
	}

	headers := network.Headers{}
	for k, v := range r.headers {
		headers[k] = v
	}
	if r.cookie != "" {
		headers["Cookie"] = r.cookie
	}
	if len(headers) > 0 {
		actions = append(actions,
			network.Enable(),
			network.SetExtraHTTPHeaders(headers),
		)
	}
	return actions
}

// wrapRunError prefers the caller's cancellation over chromedp's own
// context error so callers can match context.Canceled.
func (r *ChromedpRenderer) wrapRunError(ctx context.Context, pageURL string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("render %s: timed out after %s", pageURL, r.timeout)
	}
	return fmt.Errorf("render %s: %w", pageURL, err)
}

// Close shuts the browser down. It is safe to call more than once.
func (r *ChromedpRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCancel != nil {
		r.browserCancel()
		r.browserCancel = nil
	}
	if r.allocCancel != nil {
		r.allocCancel()
		r.allocCancel = nil
	}
	r.browserCtx = nil
	return nil
}
