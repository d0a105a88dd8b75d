package robots

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleRobots = `# sample
User-agent: *
Disallow: /private
Allow: /private/public
Crawl-delay: 2
Sitemap: https://example.com/sitemap.xml
`

func TestPolicyParse(t *testing.T) {
	t.Parallel()

	p := New("https://example.com/", "")
	p.Parse(sampleRobots)

	t.Run("allow overrides disallow", func(t *testing.T) {
		t.Parallel()
		if !p.IsAllowed("https://example.com/private/public/x") {
			t.Error("expected /private/public/x to be allowed")
		}
	})

	t.Run("disallow applies", func(t *testing.T) {
		t.Parallel()
		if p.IsAllowed("https://example.com/private/x") {
			t.Error("expected /private/x to be disallowed")
		}
	})

	t.Run("unmatched path allowed", func(t *testing.T) {
		t.Parallel()
		if !p.IsAllowed("https://example.com/about") {
			t.Error("expected /about to be allowed")
		}
	})

	t.Run("crawl delay parsed", func(t *testing.T) {
		t.Parallel()
		if got := p.CrawlDelay(500 * time.Millisecond); got != 2*time.Second {
			t.Errorf("expected 2s, got %v", got)
		}
	})

	t.Run("sitemaps collected", func(t *testing.T) {
		t.Parallel()
		sm := p.Sitemaps()
		if len(sm) != 1 || sm[0] != "https://example.com/sitemap.xml" {
			t.Errorf("unexpected sitemaps %v", sm)
		}
	})
}

// TestAllowWinsRegardlessOfLength documents that any Allow match wins even
// when a longer Disallow pattern also matches. A longest-match parser would
// block this URL.
func TestAllowWinsRegardlessOfLength(t *testing.T) {
	t.Parallel()

	p := New("https://example.com/", "")
	p.Parse("User-agent: *\nAllow: /docs\nDisallow: /docs/internal\n")

	if !p.IsAllowed("https://example.com/docs/internal/page") {
		t.Error("expected Allow: /docs to win over the longer Disallow")
	}
}

func TestPolicyBlocks(t *testing.T) {
	t.Parallel()

	content := `User-agent: otherbot
Disallow: /

User-agent: mirrorbot
User-agent: anotherbot
Disallow: /secret
Crawl-delay: 3

User-agent: thirdbot
Disallow: /third
`

	t.Run("only matching block applies", func(t *testing.T) {
		t.Parallel()
		p := New("https://example.com/", "MirrorBot")
		p.Parse(content)

		if p.IsAllowed("https://example.com/secret/x") {
			t.Error("expected /secret to be disallowed for mirrorbot")
		}
		if !p.IsAllowed("https://example.com/third") {
			t.Error("expected /third to be allowed: block belongs to thirdbot")
		}
		if !p.IsAllowed("https://example.com/home") {
			t.Error("expected /home to be allowed: otherbot block does not apply")
		}
		if got := p.CrawlDelay(time.Second); got != 3*time.Second {
			t.Errorf("expected 3s, got %v", got)
		}
	})

	t.Run("unrelated agent gets defaults", func(t *testing.T) {
		t.Parallel()
		p := New("https://example.com/", "")
		p.Parse(content)
		if got := p.CrawlDelay(time.Second); got != time.Second {
			t.Errorf("expected default delay, got %v", got)
		}
	})

	t.Run("invalid crawl delay ignored", func(t *testing.T) {
		t.Parallel()
		p := New("https://example.com/", "")
		p.Parse("User-agent: *\nCrawl-delay: soon\n")
		if got := p.CrawlDelay(500 * time.Millisecond); got != 500*time.Millisecond {
			t.Errorf("expected default delay, got %v", got)
		}
	})
}

func TestPatternMatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		target  string
		want    bool
	}{
		{"/private", "/private", true},
		{"/private", "/private/x", true},
		{"/private", "/public", false},
		{"/*.pdf$", "/files/doc.pdf", true},
		{"/*.pdf$", "/files/doc.pdf.html", false},
		{"/a*/c", "/ab/c", true},
		{"/a*/c", "/ab/d", false},
		{"/$", "/", true},
		{"/$", "/x", false},
		{"/search?q=", "/search?q=go", true},
		{"/x.(y)", "/x.(y)/z", true},
	}

	for _, tt := range tests {
		if got := compilePattern(tt.pattern).match(tt.target); got != tt.want {
			t.Errorf("pattern %q on %q = %v, want %v", tt.pattern, tt.target, got, tt.want)
		}
	}
}

func TestPolicyLoad(t *testing.T) {
	t.Parallel()

	t.Run("200 parses content", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/robots.txt" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(sampleRobots))
		}))
		defer server.Close()

		p := New(server.URL+"/some/page", "", WithHTTPClient(server.Client()))
		if err := p.Load(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !p.Loaded() {
			t.Error("expected policy to be loaded")
		}
		if p.IsAllowed(server.URL + "/private/x") {
			t.Error("expected /private/x to be disallowed")
		}
	})

	t.Run("404 means no restrictions", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		p := New(server.URL, "", WithHTTPClient(server.Client()))
		if err := p.Load(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !p.Loaded() {
			t.Error("expected policy to be loaded")
		}
		if !p.IsAllowed(server.URL + "/anything") {
			t.Error("expected everything to be allowed")
		}
	})

	t.Run("server error leaves policy unloaded", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		p := New(server.URL, "", WithHTTPClient(server.Client()))
		err := p.Load(context.Background())
		if !errors.Is(err, ErrUnexpectedStatus) {
			t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
		}
		if p.Loaded() {
			t.Error("expected policy to stay unloaded")
		}
		if !p.IsAllowed(server.URL + "/private") {
			t.Error("unloaded policy must allow everything")
		}
	})

	t.Run("transport error leaves policy unloaded", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.NotFoundHandler())
		addr := server.URL
		server.Close()

		p := New(addr, "", WithTimeout(time.Second))
		if err := p.Load(context.Background()); err == nil {
			t.Fatal("expected an error")
		}
		if p.Loaded() {
			t.Error("expected policy to stay unloaded")
		}
	})
}

func TestPolicyURL(t *testing.T) {
	t.Parallel()

	p := New("https://example.com/a/b?c=d", "")
	if p.URL() != "https://example.com/robots.txt" {
		t.Errorf("unexpected robots URL %q", p.URL())
	}
}
