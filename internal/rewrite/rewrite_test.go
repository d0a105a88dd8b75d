package rewrite

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func newTestRewriter() *Rewriter {
	return New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestRewriteHTML(t *testing.T) {
	t.Parallel()

	root := "/out"
	mapping := map[string]string{
		"https://example.com/":                 filepath.Join(root, "index.html"),
		"https://example.com/about":            filepath.Join(root, "about", "index.html"),
		"https://example.com/css/main.css":     filepath.Join(root, "assets", "css", "main_aaaa1111.css"),
		"https://example.com/app.js":           filepath.Join(root, "assets", "js", "app_bbbb2222.js"),
		"https://example.com/img/a.png":        filepath.Join(root, "assets", "images", "a_cccc3333.png"),
		"https://example.com/img/a-2x.png":     filepath.Join(root, "assets", "images", "a-2x_dddd4444.png"),
		"https://example.com/img/bg.png":       filepath.Join(root, "assets", "images", "bg_eeee5555.png"),
		"https://example.com/img/my%20pic.png": filepath.Join(root, "assets", "images", "my pic_ffff6666.png"),
		"https://example.com/media/clip.mp4":   filepath.Join(root, "assets", "media", "clip_11112222.mp4"),
		"https://example.com/fonts/inter.ttf":  filepath.Join(root, "assets", "fonts", "inter_33334444.ttf"),
	}

	page := `<!DOCTYPE html><html><head>
<base href="https://example.com/">
<link rel="stylesheet" href="/css/main.css">
<link rel="stylesheet" href="https://cdn.other.org/lib.css">
<script src="/app.js"></script>
<style>@font-face { src: url(/fonts/inter.ttf); } .u { background: url(/unmapped.png); }</style>
</head><body>
<a id="home" href="/">Home</a>
<a id="about" href="/about#team">About</a>
<a id="ext" href="https://other.org/page">Other</a>
<a id="frag" href="#top">Top</a>
<a id="mail" href="mailto:a@example.com">Mail</a>
<a id="missing" href="/not-crawled/">Missing</a>
<img id="img" src="/img/a.png" srcset="/img/a.png 1x, /img/a-2x.png 2x, /img/a-3x.png 3x">
<img id="space" src="/img/my%20pic.png">
<div id="styled" style="background: url('/img/bg.png')"></div>
<video id="video" src="/media/clip.mp4" poster="/img/unmapped.jpg"></video>
</body></html>`

	out, err := newTestRewriter().RewriteHTML(page, "https://example.com/blog/post", filepath.Join(root, "blog", "post", "index.html"), mapping)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	if err != nil {
		t.Fatalf("rewritten page does not parse: %v", err)
	}

	attr := func(sel, name string) string {
		v, _ := doc.Find(sel).First().Attr(name)
		return v
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"root anchor", attr("#home", "href"), "../../index.html"},
		{"anchor keeps fragment", attr("#about", "href"), "../../about/index.html#team"},
		{"external anchor stays absolute", attr("#ext", "href"), "https://other.org/page"},
		{"fragment anchor untouched", attr("#frag", "href"), "#top"},
		{"mailto untouched", attr("#mail", "href"), "mailto:a@example.com"},
		{"unmapped anchor becomes absolute", attr("#missing", "href"), "https://example.com/not-crawled"},
		{"stylesheet", attr(`link[href*="main"]`, "href"), "../../assets/css/main_aaaa1111.css"},
		{"unmapped stylesheet untouched", attr(`link[href*="cdn"]`, "href"), "https://cdn.other.org/lib.css"},
		{"script", attr("script[src]", "src"), "../../assets/js/app_bbbb2222.js"},
		{"img", attr("#img", "src"), "../../assets/images/a_cccc3333.png"},
		{"srcset keeps descriptors", attr("#img", "srcset"), "../../assets/images/a_cccc3333.png 1x, ../../assets/images/a-2x_dddd4444.png 2x, /img/a-3x.png 3x"},
		{"escaped path", attr("#space", "src"), "../../assets/images/my%20pic_ffff6666.png"},
		{"inline style", attr("#styled", "style"), `background: url("../../assets/images/bg_eeee5555.png")`},
		{"video", attr("#video", "src"), "../../assets/media/clip_11112222.mp4"},
		{"unmapped poster untouched", attr("#video", "poster"), "/img/unmapped.jpg"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}

	if doc.Find("base").Length() != 0 {
		t.Error("base element must be removed")
	}
	style := doc.Find("style").Text()
	if !strings.Contains(style, `url("../../assets/fonts/inter_33334444.ttf")`) || !strings.Contains(style, "url(/unmapped.png)") {
		t.Errorf("unexpected style block %q", style)
	}
	if !strings.HasPrefix(strings.ToLower(out), "<!doctype html>") {
		t.Errorf("doctype lost: %.40q", out)
	}
}

func TestRewriteCSSFile(t *testing.T) {
	t.Parallel()

	mapping := map[string]string{
		"https://example.com/css/theme.css": "/out/assets/css/theme_1.css",
		"https://example.com/img/bg.png":    "/out/assets/images/bg_2.png",
	}
	css := `@import "theme.css"; body { background: url(../img/bg.png); } .x { background: url(none.gif); }`

	got := newTestRewriter().RewriteCSSFile(css, "https://example.com/css/site.css", "/out/assets/css/site_3.css", mapping)
	for _, want := range []string{`@import "theme_1.css"`, `url("../images/bg_2.png")`, `url(none.gif)`} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}

func TestEscapeRelative(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"../a/b.html", "../a/b.html"},
		{"a b.png", "a%20b.png"},
		{"c:d/index.html", "./c:d/index.html"},
		{"x/c:d.html", "x/c:d.html"},
	}
	for _, tt := range tests {
		if got := EscapeRelative(tt.in); got != tt.want {
			t.Errorf("EscapeRelative(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestRewrittenReferencesResolve checks that every rewritten reference
// points at a file that exists on disk.
func TestRewrittenReferencesResolve(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mapping := map[string]string{
		"https://example.com/":          filepath.Join(root, "index.html"),
		"https://example.com/docs/a":    filepath.Join(root, "docs", "a", "index.html"),
		"https://example.com/style.css": filepath.Join(root, "assets", "css", "style_1.css"),
		"https://example.com/logo.png":  filepath.Join(root, "assets", "images", "logo_2.png"),
	}
	for _, p := range mapping {
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	page := `<html><head><link rel="stylesheet" href="/style.css"></head>
<body><a href="/">home</a><img src="../logo.png"></body></html>`
	pagePath := mapping["https://example.com/docs/a"]

	out, err := newTestRewriter().RewriteHTML(page, "https://example.com/docs/a", pagePath, mapping)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}

	var refs []string
	doc.Find("link[href], a[href]").Each(func(_ int, s *goquery.Selection) { refs = append(refs, s.AttrOr("href", "")) })
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) { refs = append(refs, s.AttrOr("src", "")) })

	for _, ref := range refs {
		target := filepath.Join(filepath.Dir(pagePath), filepath.FromSlash(ref))
		if _, err := os.Stat(target); err != nil {
			t.Errorf("reference %q does not resolve to a file: %v", ref, err)
		}
	}
}
