package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nao1215/sitemirror/internal/httpclient"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPRendererRender(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "session=abc" {
			http.Error(w, "no cookie", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "<html><body><h1>hello</h1></body></html>")
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	r := NewHTTPRenderer(srv.Client(),
		WithRequestOptions(httpclient.RequestOptions{Cookie: "session=abc"}),
		WithHTTPLogger(quietLogger()),
	)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	t.Run("returns markup", func(t *testing.T) {
		t.Parallel()
		page, err := r.Render(context.Background(), srv.URL+"/page")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(page.HTML, "<h1>hello</h1>") {
			t.Errorf("unexpected HTML %q", page.HTML)
		}
		if page.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", page.StatusCode)
		}
		if page.FinalURL != srv.URL+"/page" {
			t.Errorf("unexpected final URL %q", page.FinalURL)
		}
	})

	t.Run("reports final URL after redirect", func(t *testing.T) {
		t.Parallel()
		page, err := r.Render(context.Background(), srv.URL+"/old")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.URL != srv.URL+"/old" || page.FinalURL != srv.URL+"/page" {
			t.Errorf("unexpected URLs %q -> %q", page.URL, page.FinalURL)
		}
	})

	t.Run("error status fails", func(t *testing.T) {
		t.Parallel()
		_, err := r.Render(context.Background(), srv.URL+"/missing")
		if !errors.Is(err, ErrHTTPStatus) {
			t.Errorf("expected ErrHTTPStatus, got %v", err)
		}
	})
}

func TestHTTPRendererCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html></html>")
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewHTTPRenderer(srv.Client(), WithHTTPLogger(quietLogger()))
	if _, err := r.Render(ctx, srv.URL); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestChromedpRendererRequiresStart(t *testing.T) {
	t.Parallel()

	r := NewChromedpRenderer(WithLogger(quietLogger()))
	_, err := r.Render(context.Background(), "https://example.com/")
	if !errors.Is(err, ErrBrowserStart) {
		t.Errorf("expected ErrBrowserStart, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("close of unstarted renderer failed: %v", err)
	}
}

func TestChromedpSetupActions(t *testing.T) {
	t.Parallel()

	plain := NewChromedpRenderer()
	if got := len(plain.setupActions()); got != 1 {
		t.Errorf("expected only the viewport action, got %d", got)
	}

	decorated := NewChromedpRenderer(
		WithCookie("a=b"),
		WithExtraHeaders(map[string]string{"X-Test": "1"}),
	)
	if got := len(decorated.setupActions()); got != 3 {
		t.Errorf("expected viewport plus header actions, got %d", got)
	}
}
