package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/render"
	"github.com/nao1215/sitemirror/internal/robots"
)

// newTestSite serves a small site with a page hierarchy, nested
// stylesheets, images and a robots.txt.
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	html := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		html(w, `<html><head><link rel="stylesheet" href="/static/site.css"></head><body>
<img src="/img/logo.png">
<a href="/about">About</a>
<a href="/private/area">Private</a>
<a href="https://other.example/x">Elsewhere</a>
</body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		html(w, `<html><body><img src="/img/logo.png"><a href="/">Home</a></body></html>`)
	})
	mux.HandleFunc("/private/area", func(w http.ResponseWriter, _ *http.Request) {
		html(w, `<html><body>secret</body></html>`)
	})
	mux.HandleFunc("/static/site.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprint(w, `@import "extra.css";
body { background: url(../img/bg.png); }`)
	})
	mux.HandleFunc("/static/extra.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprint(w, `.a { background: url(/img/missing.png); }`)
	})
	png := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	}
	mux.HandleFunc("/img/logo.png", png)
	mux.HandleFunc("/img/bg.png", png)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestMirror(srv *httptest.Server, renderer render.Renderer, opts ...DefaultPipelineOption) *Mirror {
	if renderer == nil {
		renderer = render.NewHTTPRenderer(srv.Client(), render.WithHTTPLogger(quietLogger()))
	}
	configOpts := append([]DefaultPipelineOption{
		WithPipelineHTTPClient(srv.Client()),
		WithPipelineDelay(0),
	}, opts...)
	return NewMirror(renderer,
		WithMirrorLogger(quietLogger()),
		WithConfigOptions(configOpts...),
	)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestMirrorRun(t *testing.T) {
	t.Parallel()

	srv := newTestSite(t)
	session := newTestSession(t, srv.URL)
	root := session.OutputDir

	res, err := newTestMirror(srv, nil).Run(context.Background(), session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("result", func(t *testing.T) {
		if !res.Succeeded() {
			t.Errorf("expected done, got %s", res.Phase)
		}
		if res.PageCount() != 2 {
			t.Errorf("expected 2 pages, got %v", res.Pages)
		}
		// site.css, extra.css, logo.png, bg.png
		if res.AssetCount() != 4 {
			t.Errorf("expected 4 assets, got %v", res.Assets)
		}
		if res.Stopped {
			t.Error("run was not stopped")
		}
		if res.EndedAt.Before(res.StartedAt) {
			t.Error("end before start")
		}
	})

	t.Run("robots.txt is honored", func(t *testing.T) {
		if session.IsVisited(srv.URL + "/private/area") {
			t.Error("disallowed page was crawled")
		}
	})

	t.Run("pages point at local copies", func(t *testing.T) {
		index := readFile(t, filepath.Join(root, "index.html"))
		if !strings.Contains(index, `href="about/index.html"`) {
			t.Errorf("about link not rewritten:\n%s", index)
		}
		if !strings.Contains(index, `href="assets/css/site_`) {
			t.Errorf("stylesheet not rewritten:\n%s", index)
		}
		if !strings.Contains(index, `src="assets/images/logo_`) {
			t.Errorf("image not rewritten:\n%s", index)
		}
		if !strings.Contains(index, "https://other.example/x") {
			t.Errorf("external link must stay absolute:\n%s", index)
		}

		about := readFile(t, filepath.Join(root, "about", "index.html"))
		if !strings.Contains(about, `src="../assets/images/logo_`) {
			t.Errorf("nested page image not rewritten:\n%s", about)
		}
	})

	t.Run("stylesheets point at local copies", func(t *testing.T) {
		cssPath := session.URLMapping[srv.URL+"/static/site.css"]
		if cssPath == "" {
			t.Fatal("site.css not mapped")
		}
		css := readFile(t, cssPath)
		if !strings.Contains(css, `url("../images/bg_`) {
			t.Errorf("url() not rewritten:\n%s", css)
		}
		if !strings.Contains(css, `@import "extra_`) {
			t.Errorf("@import not rewritten:\n%s", css)
		}
	})

	t.Run("sitemap and errors", func(t *testing.T) {
		var sm model.Sitemap
		if err := json.Unmarshal([]byte(readFile(t, filepath.Join(root, SitemapFile))), &sm); err != nil {
			t.Fatalf("invalid sitemap: %v", err)
		}
		if sm.TotalPages != 2 || sm.TotalAssets != 4 {
			t.Errorf("unexpected sitemap totals %+v", sm)
		}

		var errs []model.ErrorRecord
		if err := json.Unmarshal([]byte(readFile(t, filepath.Join(root, ErrorsFile))), &errs); err != nil {
			t.Fatalf("invalid error list: %v", err)
		}
		if len(errs) != 1 || errs[0].Type != model.ErrorTypeDownload || !strings.HasSuffix(errs[0].URL, "/img/missing.png") {
			t.Errorf("expected one download error for missing.png, got %+v", errs)
		}
		if errs[0].Error != "HTTP 404" {
			t.Errorf("unexpected error message %q", errs[0].Error)
		}
	})
}

func TestMirrorRunWithoutErrorsSkipsErrorFile(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>only page</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newTestSession(t, srv.URL)
	res, err := newTestMirror(srv, nil, WithPipelineRespectRobots(false)).Run(context.Background(), session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PageCount() != 1 || res.ErrorCount() != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if _, err := os.Stat(filepath.Join(session.OutputDir, ErrorsFile)); !os.IsNotExist(err) {
		t.Errorf("errors.json must not exist, stat error: %v", err)
	}
}

func TestMirrorRunPageSaveFailure(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><body><a href="/blocked">Blocked</a><a href="/ok">OK</a></body></html>`)
		case "/blocked", "/ok":
			fmt.Fprint(w, `<html><body><a href="/">Home</a></body></html>`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newTestSession(t, srv.URL)
	// A file where the blocked page's directory has to go.
	if err := os.WriteFile(filepath.Join(session.OutputDir, "blocked"), []byte("x"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	res, err := newTestMirror(srv, nil, WithPipelineRespectRobots(false)).Run(context.Background(), session)
	if err != nil {
		t.Fatalf("a page save failure must not end the run, got %v", err)
	}
	if !res.Succeeded() || res.PageCount() != 3 {
		t.Errorf("expected 3 crawled pages in a finished run, got phase=%s pages=%v", res.Phase, res.Pages)
	}

	var saveErrs []model.ErrorRecord
	for _, e := range session.Errors() {
		if e.Type == model.ErrorTypeSave {
			saveErrs = append(saveErrs, e)
		}
	}
	if len(saveErrs) != 1 || saveErrs[0].URL != srv.URL+"/blocked" {
		t.Errorf("expected one save_error for /blocked, got %+v", session.Errors())
	}
	for _, p := range []string{"index.html", filepath.Join("ok", "index.html")} {
		if _, err := os.Stat(filepath.Join(session.OutputDir, p)); err != nil {
			t.Errorf("expected %s to be saved: %v", p, err)
		}
	}
}

func TestMirrorRunDirectoryPage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/docs/">Docs</a></body></html>`)
	})
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><img src="logo.png"><a href="intro.html">Intro</a></body></html>`)
		case "/docs/intro.html":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body>intro</body></html>`)
		case "/docs/logo.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG\r\n\x1a\nfake"))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := newTestSession(t, srv.URL)
	res, err := newTestMirror(srv, nil, WithPipelineRespectRobots(false)).Run(context.Background(), session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ErrorCount() != 0 {
		t.Errorf("unexpected errors %+v", res.Errors)
	}

	docs := readFile(t, filepath.Join(session.OutputDir, "docs", "index.html"))
	if !strings.Contains(docs, `src="../assets/images/logo_`) {
		t.Errorf("relative image not rewritten to the local copy:\n%s", docs)
	}
	if !strings.Contains(docs, `href="intro.html"`) {
		t.Errorf("relative link not rewritten to the local page:\n%s", docs)
	}
}

// stoppingRenderer requests a stop on the session after the first render.
type stoppingRenderer struct {
	render.Renderer
	session *model.Session
	once    sync.Once
}

func (r *stoppingRenderer) Render(ctx context.Context, u string) (*render.Page, error) {
	page, err := r.Renderer.Render(ctx, u)
	r.once.Do(r.session.RequestStop)
	return page, err
}

func TestMirrorRunStopped(t *testing.T) {
	t.Parallel()

	srv := newTestSite(t)
	session := newTestSession(t, srv.URL)
	renderer := &stoppingRenderer{
		Renderer: render.NewHTTPRenderer(srv.Client(), render.WithHTTPLogger(quietLogger())),
		session:  session,
	}

	res, err := newTestMirror(srv, renderer).Run(context.Background(), session)
	if err != nil {
		t.Fatalf("a stop is not an error, got %v", err)
	}
	if !res.Stopped || !res.Succeeded() {
		t.Errorf("expected a stopped, finished run: phase=%s stopped=%v", res.Phase, res.Stopped)
	}
	if res.PageCount() != 1 {
		t.Errorf("expected only the start page, got %v", res.Pages)
	}
	// Everything the start page references: site.css, extra.css, logo.png, bg.png.
	if res.AssetCount() != 4 {
		t.Errorf("assets of the crawled page must be downloaded, got %v", res.Assets)
	}
	index := readFile(t, filepath.Join(session.OutputDir, "index.html"))
	if !strings.Contains(index, `src="assets/images/logo_`) {
		t.Errorf("crawled page must point at local assets:\n%s", index)
	}
	if !strings.Contains(index, `href="`+srv.URL+`/about"`) {
		t.Errorf("link to an uncrawled page must stay live:\n%s", index)
	}
	if _, err := os.Stat(filepath.Join(session.OutputDir, SitemapFile)); err != nil {
		t.Errorf("sitemap must still be written: %v", err)
	}
}

// failingRenderer cannot start.
type failingRenderer struct{}

func (failingRenderer) Start(context.Context) error {
	return fmt.Errorf("%w: no chrome", render.ErrBrowserStart)
}
func (failingRenderer) Render(context.Context, string) (*render.Page, error) { return nil, nil }
func (failingRenderer) Close() error                                         { return nil }

func TestMirrorRunSetupFailures(t *testing.T) {
	t.Parallel()

	t.Run("renderer does not start", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		session := newTestSession(t, srv.URL)
		res, err := newTestMirror(srv, failingRenderer{}).Run(context.Background(), session)
		if !errors.Is(err, render.ErrBrowserStart) {
			t.Errorf("expected ErrBrowserStart, got %v", err)
		}
		if res == nil || res.Phase != model.PhaseFailed {
			t.Errorf("expected failed result, got %+v", res)
		}
	})

	t.Run("output directory cannot be created", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
			t.Fatalf("setup: %v", err)
		}
		session, err := model.NewSession(srv.URL, filepath.Join(blocker, "out"), 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		res, err := newTestMirror(srv, nil).Run(context.Background(), session)
		if !errors.Is(err, ErrOutputDir) {
			t.Errorf("expected ErrOutputDir, got %v", err)
		}
		if res.Phase != model.PhaseFailed || res.PageCount() != 0 {
			t.Errorf("expected failed empty result, got %+v", res)
		}
	})

	t.Run("cancelled context still writes a sitemap", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		session := newTestSession(t, srv.URL)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := newTestMirror(srv, nil).Run(ctx, session)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if res.Phase != model.PhaseFailed {
			t.Errorf("expected failed phase, got %s", res.Phase)
		}
		if _, err := os.Stat(filepath.Join(session.OutputDir, SitemapFile)); err != nil {
			t.Errorf("expected partial sitemap: %v", err)
		}
	})
}

func TestPolicyStep(t *testing.T) {
	t.Parallel()

	robotsServer := func(t *testing.T, status int, body string) *httptest.Server {
		t.Helper()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			fmt.Fprint(w, body)
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	t.Run("robots crawl delay raises the configured delay", func(t *testing.T) {
		t.Parallel()

		srv := robotsServer(t, http.StatusOK, "User-agent: *\nCrawl-delay: 2\n")
		session := newTestSession(t, srv.URL)
		policy := robots.New(session.BaseURL, "*", robots.WithHTTPClient(srv.Client()), robots.WithLogger(quietLogger()))

		step := NewPolicyStep(policy, 500*time.Millisecond, WithPolicyLogger(quietLogger()))
		if err := step.Do(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.Delay != 2*time.Second {
			t.Errorf("expected 2s delay, got %v", session.Delay)
		}
		if session.Phase() != model.PhaseLoadingPolicy {
			t.Errorf("unexpected phase %s", session.Phase())
		}
	})

	t.Run("robots crawl delay never lowers the configured delay", func(t *testing.T) {
		t.Parallel()

		srv := robotsServer(t, http.StatusOK, "User-agent: *\nCrawl-delay: 1\n")
		session := newTestSession(t, srv.URL)
		policy := robots.New(session.BaseURL, "*", robots.WithHTTPClient(srv.Client()), robots.WithLogger(quietLogger()))

		if err := NewPolicyStep(policy, 5*time.Second, WithPolicyLogger(quietLogger())).Do(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.Delay != 5*time.Second {
			t.Errorf("expected 5s delay, got %v", session.Delay)
		}
	})

	t.Run("unreadable robots.txt fails open", func(t *testing.T) {
		t.Parallel()

		srv := robotsServer(t, http.StatusInternalServerError, "")
		session := newTestSession(t, srv.URL)
		policy := robots.New(session.BaseURL, "*", robots.WithHTTPClient(srv.Client()), robots.WithLogger(quietLogger()))

		if err := NewPolicyStep(policy, 0, WithPolicyLogger(quietLogger())).Do(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.Policy == nil || !session.Policy.IsAllowed(srv.URL+"/anything") {
			t.Error("expected an allow-all policy")
		}
	})

	t.Run("nil policy disables robots", func(t *testing.T) {
		t.Parallel()

		session := newTestSession(t, "https://example.com")
		if err := NewPolicyStep(nil, time.Second, WithPolicyLogger(quietLogger())).Do(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.Policy != nil || session.Delay != time.Second {
			t.Errorf("unexpected policy %v delay %v", session.Policy, session.Delay)
		}
	})
}

func TestBatchProcessor(t *testing.T) {
	t.Parallel()

	siteA := newTestSite(t)
	siteB := newTestSite(t)
	root := t.TempDir()
	var runs atomic.Int64

	factory := func(target string) (*Mirror, *model.Session, error) {
		session, err := model.NewSession(target, filepath.Join(root, fmt.Sprint(runs.Add(1))), 10)
		if err != nil {
			return nil, nil, err
		}
		srv := siteA
		if strings.HasPrefix(target, siteB.URL) {
			srv = siteB
		}
		return newTestMirror(srv, nil), session, nil
	}

	targets := []string{siteA.URL, "ftp://invalid.example", siteB.URL + "/about"}

	t.Run("ProcessBatch keeps target order", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(factory, WithConcurrency(2), WithBatchLogger(quietLogger()))
		results, err := bp.ProcessBatch(context.Background(), targets)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		if !results[0].Succeeded() || results[0].PageCount() != 2 {
			t.Errorf("unexpected first result %+v", results[0])
		}
		if results[1].Phase != model.PhaseFailed || results[1].ErrorCount() != 1 {
			t.Errorf("invalid target must fail: %+v", results[1])
		}
		if !results[2].Succeeded() || !strings.HasPrefix(results[2].BaseURL, siteB.URL) {
			t.Errorf("unexpected third result %+v", results[2])
		}
	})

	t.Run("ProcessBatchWithCallback reports every target", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		seen := map[int]bool{}
		bp := NewBatchProcessor(factory, WithBatchLogger(quietLogger()))
		err := bp.ProcessBatchWithCallback(context.Background(), targets, func(_ *model.Result, i int) {
			mu.Lock()
			seen[i] = true
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seen) != 3 {
			t.Errorf("expected 3 callbacks, got %v", seen)
		}
	})
}
