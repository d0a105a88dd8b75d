package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/nao1215/sitemirror/internal/httpclient"
	"github.com/nao1215/sitemirror/internal/metrics"
	"github.com/nao1215/sitemirror/internal/urlpath"
)

// DefaultConcurrency is the number of simultaneous downloads.
const DefaultConcurrency = 10

// DefaultMaxAssetSize caps a single asset at 50MB.
const DefaultMaxAssetSize = 50 * 1024 * 1024

// CSSFunc returns the canonical URLs a stylesheet references.
type CSSFunc func(cssText, cssURL string) []string

// Downloader stores assets under an output root.
// It is safe for concurrent use.
type Downloader struct {
	client       *http.Client
	outputRoot   string
	concurrency  int
	limiter      *rate.Limiter
	maxAssetSize int64
	request      httpclient.RequestOptions
	metrics      *metrics.Collector
	logger       *slog.Logger

	mu         sync.Mutex
	downloaded map[string]string
	failed     map[string]Outcome
	failures   []Outcome
	attempted  map[string]struct{}
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithConcurrency sets the maximum number of simultaneous downloads.
func WithConcurrency(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// WithRateLimit limits request starts to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(d *Downloader) {
		if r > 0 {
			d.limiter = rate.NewLimiter(r, max(burst, 1))
		}
	}
}

// WithMaxAssetSize caps the decoded size of a single asset. Larger assets
// fail with a transport outcome.
func WithMaxAssetSize(n int64) Option {
	return func(d *Downloader) {
		d.maxAssetSize = n
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *Downloader) {
		d.request.UserAgent = ua
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(d *Downloader) {
		d.request.Headers = headers
	}
}

// WithCookie sets the Cookie header.
func WithCookie(cookie string) Option {
	return func(d *Downloader) {
		d.request.Cookie = cookie
	}
}

// WithMetrics records outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Downloader) {
		d.metrics = c
	}
}

// New creates a Downloader writing below outputRoot. A nil client gets a
// default one from httpclient.New.
func New(client *http.Client, outputRoot string, opts ...Option) *Downloader {
	if client == nil {
		client = httpclient.New(httpclient.DefaultTimeout)
	}
	d := &Downloader{
		client:       client,
		outputRoot:   outputRoot,
		concurrency:  DefaultConcurrency,
		maxAssetSize: DefaultMaxAssetSize,
		downloaded:   make(map[string]string),
		failed:       make(map[string]Outcome),
		attempted:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// DownloadAll fetches urls and every URL onCSS discovers in fetched
// stylesheets, and returns the mapping of every URL stored so far to its
// local path. It returns once no download is pending; cancelling ctx makes
// outstanding downloads end as KindCanceled.
func (d *Downloader) DownloadAll(ctx context.Context, urls []string, onCSS CSSFunc) map[string]string {
	results := make(chan Outcome)
	sem := semaphore.NewWeighted(int64(d.concurrency))
	scheduled := make(map[string]struct{})
	pending := 0

	schedule := func(u string) {
		if u == "" {
			return
		}
		if _, ok := scheduled[u]; ok {
			return
		}
		scheduled[u] = struct{}{}
		if !d.claim(u) {
			return
		}
		pending++
		go func() {
			results <- d.fetch(ctx, sem, u, onCSS)
		}()
	}

	for _, u := range urls {
		schedule(u)
	}

	done := 0
	for pending > 0 {
		o := <-results
		pending--
		done++
		d.record(o)
		for _, u := range o.Discovered {
			schedule(u)
		}
		if done%50 == 0 {
			d.logger.Info("download progress", "done", done, "pending", pending)
		}
	}

	d.logger.Info("downloads finished", "stored", len(d.Downloaded()), "failed", len(d.Failed()))
	return d.Downloaded()
}

// claim marks u as attempted. It returns false if u was stored or
// attempted before.
func (d *Downloader) claim(u string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.downloaded[u]; ok {
		return false
	}
	if _, ok := d.attempted[u]; ok {
		return false
	}
	d.attempted[u] = struct{}{}
	return true
}

// record stores an outcome and updates metrics.
func (d *Downloader) record(o Outcome) {
	d.metrics.ObserveAsset(string(o.Kind), o.Size)

	d.mu.Lock()
	defer d.mu.Unlock()
	if o.OK() {
		d.downloaded[o.URL] = o.LocalPath
		return
	}
	d.failed[o.URL] = o
	d.failures = append(d.failures, o)
	if o.Kind != KindCanceled {
		d.logger.Warn("asset download failed", "url", o.URL, "kind", o.Kind, "error", o.Message())
	}
}

// fetch downloads one asset. It always returns an outcome.
func (d *Downloader) fetch(ctx context.Context, sem *semaphore.Weighted, u string, onCSS CSSFunc) Outcome {
	if err := sem.Acquire(ctx, 1); err != nil {
		return Outcome{URL: u, Kind: KindCanceled, Err: err}
	}
	defer sem.Release(1)

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return Outcome{URL: u, Kind: KindCanceled, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Outcome{URL: u, Kind: KindTransport, Err: err}
	}
	d.request.Apply(req)
	req.Header.Set("Accept", "*/*")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{URL: u, Kind: KindCanceled, Err: ctx.Err()}
		}
		return Outcome{URL: u, Kind: KindTransport, Err: err}
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return Outcome{URL: u, Kind: KindStatus, StatusCode: resp.StatusCode}
	}

	body, err := httpclient.ReadBody(resp, d.maxAssetSize)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{URL: u, Kind: KindCanceled, Err: ctx.Err()}
		}
		return Outcome{URL: u, Kind: KindTransport, Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	typ := classify(u, contentType)
	localPath := urlpath.AssetLocalPath(u, typ, d.outputRoot)

	var discovered []string
	if typ == urlpath.AssetCSS && onCSS != nil {
		discovered = onCSS(httpclient.DecodeText(body, contentType), u)
	}

	if err := writeFile(localPath, body); err != nil {
		return Outcome{URL: u, Kind: KindWrite, Err: err}
	}

	return Outcome{
		URL:        u,
		Kind:       KindOK,
		LocalPath:  localPath,
		StatusCode: resp.StatusCode,
		Size:       len(body),
		Discovered: discovered,
	}
}

// classify picks the storage category from the URL and falls back to the
// response media type when the URL is inconclusive.
func classify(u, contentType string) urlpath.AssetType {
	typ := urlpath.ClassifyAssetType(u)
	if typ != urlpath.AssetOther {
		return typ
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return typ
	}
	switch {
	case mediaType == "text/css":
		return urlpath.AssetCSS
	case mediaType == "text/javascript", mediaType == "application/javascript":
		return urlpath.AssetJS
	case strings.HasPrefix(mediaType, "image/"):
		return urlpath.AssetImage
	case strings.HasPrefix(mediaType, "font/"):
		return urlpath.AssetFont
	case strings.HasPrefix(mediaType, "video/"), strings.HasPrefix(mediaType, "audio/"):
		return urlpath.AssetMedia
	}
	return typ
}

// DownloadPage writes a page's markup to localPath and records it as
// downloaded.
func (d *Downloader) DownloadPage(pageURL, html, localPath string) error {
	if err := writeFile(localPath, []byte(html)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.downloaded[pageURL] = localPath
	return nil
}

// Downloaded returns a copy of the URL to local path mapping of everything
// stored.
func (d *Downloader) Downloaded() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.downloaded))
	for k, v := range d.downloaded {
		out[k] = v
	}
	return out
}

// Failed returns a copy of the failed outcomes keyed by URL.
func (d *Downloader) Failed() map[string]Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]Outcome, len(d.failed))
	for k, v := range d.failed {
		out[k] = v
	}
	return out
}

// Outcomes returns the failed outcomes in completion order.
func (d *Downloader) Outcomes() []Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Outcome(nil), d.failures...)
}

// writeFile creates the parent directories of path and writes data.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // mirrored files are meant to be readable
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
