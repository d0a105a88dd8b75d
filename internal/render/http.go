package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nao1215/sitemirror/internal/httpclient"
)

// defaultMaxPageSize caps the markup HTTPRenderer reads per page.
const defaultMaxPageSize = 20 * 1024 * 1024

// HTTPRenderer fetches pages with a plain GET request. Scripts are not
// executed.
type HTTPRenderer struct {
	client      *http.Client
	request     httpclient.RequestOptions
	maxPageSize int64
	logger      *slog.Logger
}

// HTTPOption configures an HTTPRenderer.
type HTTPOption func(*HTTPRenderer)

// WithRequestOptions sets the user agent, cookie and extra headers sent
// with every request.
func WithRequestOptions(o httpclient.RequestOptions) HTTPOption {
	return func(r *HTTPRenderer) {
		r.request = o
	}
}

// WithMaxPageSize caps the decoded page size.
func WithMaxPageSize(n int64) HTTPOption {
	return func(r *HTTPRenderer) {
		r.maxPageSize = n
	}
}

// WithHTTPLogger sets a custom logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(r *HTTPRenderer) {
		r.logger = logger
	}
}

// NewHTTPRenderer creates a renderer using client. A nil client gets a
// default one from httpclient.New.
func NewHTTPRenderer(client *http.Client, opts ...HTTPOption) *HTTPRenderer {
	if client == nil {
		client = httpclient.New(httpclient.DefaultTimeout)
	}
	r := &HTTPRenderer{
		client:      client,
		maxPageSize: defaultMaxPageSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Start is a no-op.
func (r *HTTPRenderer) Start(context.Context) error {
	return nil
}

// Render fetches pageURL and decodes the body to UTF-8.
func (r *HTTPRenderer) Render(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", pageURL, err)
	}
	r.request.Apply(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, statusError(resp.StatusCode, pageURL)
	}

	body, err := httpclient.ReadBody(resp, r.maxPageSize)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	r.logger.Debug("page fetched",
		"url", pageURL,
		"final_url", finalURL,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	return &Page{
		URL:        pageURL,
		FinalURL:   finalURL,
		HTML:       httpclient.DecodeText(body, resp.Header.Get("Content-Type")),
		StatusCode: resp.StatusCode,
	}, nil
}

// Close is a no-op.
func (r *HTTPRenderer) Close() error {
	return nil
}
