package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const wellFormedPage = `<!doctype html>
<html><head>
<title>A thoroughly descriptive page title here</title>
<meta name="Description" content="This description is long enough to pass the minimum length check for meta descriptions.">
<link rel="canonical" href="https://example.com/">
<meta property="og:title" content="Example">
<meta property="og:image" content="https://example.com/og.png">
<meta property="og:audio" content="https://example.com/a.mp3">
<meta name="twitter:card" content="summary">
<link rel="alternate" hreflang="de" href="https://example.com/de/">
<script type="application/ld+json">[{"@type":"Organization","name":"Example"},{"name":"untyped"}]</script>
<script type="application/ld+json">{broken</script>
</head><body>
<h1>Welcome</h1>
<img src="a.png" alt="A"><img src="b.png">
<a href="/about">About</a>
<a href="https://other.org/" rel="nofollow noopener">Other</a>
<a href="mailto:x@example.com">Mail</a>
<nav>skip these nav words</nav>
<p>` + "word " + `</p>
</body></html>`

func TestSEOAnalyze(t *testing.T) {
	t.Parallel()

	res, err := NewSEO().Analyze(context.Background(), Input{URL: "https://example.com/", HTML: wellFormedPage})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := res.(*SEOResult)

	if r.Title != "A thoroughly descriptive page title here" {
		t.Errorf("unexpected title %q", r.Title)
	}
	if r.CanonicalURL != "https://example.com/" {
		t.Errorf("unexpected canonical %q", r.CanonicalURL)
	}
	if r.OpenGraph.Extra["og:audio"] == "" {
		t.Error("expected unknown og property in extra")
	}
	if len(r.StructuredData) != 2 || r.StructuredData[0].Type != "Organization" || r.StructuredData[1].Type != "Unknown" {
		t.Errorf("unexpected structured data %+v", r.StructuredData)
	}
	if len(r.Hreflang) != 1 || r.Hreflang[0].Lang != "de" {
		t.Errorf("unexpected hreflang %+v", r.Hreflang)
	}
	if r.ImagesCount != 2 || r.ImagesWithoutAlt != 1 {
		t.Errorf("unexpected image counts %d/%d", r.ImagesCount, r.ImagesWithoutAlt)
	}
	if r.Links.Total != 3 || r.Links.Internal != 1 || r.Links.External != 1 || r.Links.Nofollow != 1 {
		t.Errorf("unexpected link stats %+v", r.Links)
	}

	wantIssues := []string{"1 images missing alt text", "Low word count (< 300 words)"}
	if strings.Join(r.Issues, "|") != strings.Join(wantIssues, "|") {
		t.Errorf("unexpected issues %q", r.Issues)
	}
	// 100 - 2*5 + 2 + 3 + 2 + 5 + 3 clamps to 100.
	if r.Score != 100 {
		t.Errorf("expected score 100, got %v", r.Score)
	}
}

func TestSEOAnalyzeEmptyPage(t *testing.T) {
	t.Parallel()

	res, err := NewSEO().Analyze(context.Background(), Input{URL: "https://example.com/", HTML: "<html><body><h1>a</h1><h1>b</h1></body></html>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := res.(*SEOResult)

	for _, want := range []string{
		"Missing page title",
		"Missing meta description",
		"Missing canonical URL",
		"Multiple H1 headings",
		"Missing Open Graph title",
		"Missing Open Graph image",
		"Missing Twitter Card type",
		"No structured data found",
		"Low word count (< 300 words)",
	} {
		found := false
		for _, got := range r.Issues {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("expected issue %q in %q", want, r.Issues)
		}
	}
	if r.Score != 55 {
		t.Errorf("expected score 55, got %v", r.Score)
	}
}

func TestSafeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://www.example.com/a/b?x=1", "example.com_a_b_x=1"},
		{"http://example.com", "example.com"},
		{"https://example.com/" + strings.Repeat("x", 100), ("example.com_" + strings.Repeat("x", 100))[:80]},
	}
	for _, tt := range tests {
		if got := SafeFilename(tt.in); got != tt.want {
			t.Errorf("SafeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) Name() string { return "broken" }

func (failingAnalyzer) Analyze(context.Context, Input) (any, error) {
	return nil, errors.New("boom")
}

func TestRunner(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root)
	runner := NewRunner(store,
		[]Analyzer{NewSEO(), failingAnalyzer{}, NewScreenshot(store)},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	in := Input{URL: "https://example.com/page", HTML: wellFormedPage, Screenshot: []byte("\x89PNG")}
	err := runner.Run(context.Background(), in)
	if err == nil || !strings.Contains(err.Error(), "broken: boom") {
		t.Errorf("expected joined analyzer error, got %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, Dir, "example.com_page_analysis.json"))
	if err != nil {
		t.Fatalf("analysis file not written: %v", err)
	}
	var decoded struct {
		URL     string                     `json:"url"`
		Results map[string]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid analysis JSON: %v", err)
	}
	if _, ok := decoded.Results["seo"]; !ok {
		t.Error("expected seo result")
	}
	if _, ok := decoded.Results["broken"]; ok {
		t.Error("failed analyzer must not have a result")
	}
	if _, err := os.Stat(filepath.Join(root, Dir, "example.com_page_screenshot.png")); err != nil {
		t.Errorf("screenshot not written: %v", err)
	}

	sum := runner.Summary()
	if sum.PagesAnalyzed != 1 || sum.AverageSEOScore != 100 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestScreenshotWithoutImage(t *testing.T) {
	t.Parallel()

	_, err := NewScreenshot(NewStore(t.TempDir())).Analyze(context.Background(), Input{URL: "https://example.com/"})
	if !errors.Is(err, ErrNoScreenshot) {
		t.Errorf("expected ErrNoScreenshot, got %v", err)
	}
}

func TestEmptyRunner(t *testing.T) {
	t.Parallel()

	var r *Runner
	if !r.Empty() {
		t.Error("nil runner must be empty")
	}
	if err := r.Run(context.Background(), Input{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
