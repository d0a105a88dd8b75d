package render

import (
	"context"
	"errors"
	"fmt"
)

// ErrBrowserStart is returned by Start when the browser cannot be
// launched. It is fatal for a mirror run.
var ErrBrowserStart = errors.New("failed to start browser")

// ErrHTTPStatus is returned by Render when the page answers with a status
// code of 400 or above.
var ErrHTTPStatus = errors.New("page returned error status")

// Default viewport used for rendering and screenshots.
const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
)

// Page is the result of rendering one URL.
type Page struct {
	// URL is the URL that was requested.
	URL string

	// FinalURL is the URL after redirects. It equals URL when the page did
	// not redirect.
	FinalURL string

	// HTML is the serialized document.
	HTML string

	// StatusCode is the HTTP status of the main document, or 0 when the
	// renderer could not observe it.
	StatusCode int

	// Screenshot is a full-page PNG. It is only set when the renderer was
	// configured to capture screenshots.
	Screenshot []byte
}

// Renderer loads pages.
//
// Design decision: Start and Close are part of the interface even though
// HTTPRenderer has nothing to set up. The orchestrator treats every
// renderer the same way and a failing Start is the one place a browser
// problem can abort the run before any page is attempted.
type Renderer interface {
	// Start prepares the renderer. It must be called before Render.
	Start(ctx context.Context) error

	// Render loads pageURL and returns its markup.
	Render(ctx context.Context, pageURL string) (*Page, error)

	// Close releases the renderer's resources.
	Close() error
}

// statusError builds the error for a failing status code.
func statusError(code int, pageURL string) error {
	return fmt.Errorf("%w: HTTP %d for %s", ErrHTTPStatus, code, pageURL)
}
