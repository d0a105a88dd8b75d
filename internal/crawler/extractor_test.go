package crawler

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	page := `<!doctype html>
<html><head>
<link rel="stylesheet" href="/css/main.css">
<link rel="preload" as="style" href="/css/preload.css">
<link rel="preload" as="font" href="/fonts/skip.woff2">
<link rel="shortcut icon" href="/favicon.ico">
<script src="app.js"></script>
<style>
@import "/css/imported.css";
@font-face { src: url(/fonts/inter.woff2); }
.hero { background: url('../img/hero.jpg'); }
.x { background: url(/data/blob.bin); }
</style>
</head><body>
<a href="/about#team">About</a>
<a href="https://www.example.com/contact">Contact</a>
<a href="https://other.org/">Other</a>
<a href="javascript:void(0)">JS</a>
<img src="/img/a.png" data-src="/img/lazy.png" srcset="/img/a-1x.png 1x, /img/a-2x.png 2x">
<picture><source srcset="/img/wide.webp 1200w"></picture>
<div style="background-image: url(/img/bg.png)"></div>
<video src="/media/clip.mp4" poster="/img/poster.jpg"><track src="/media/subs.vtt"></video>
<audio src="/media/song.mp3"></audio>
<img src="data:image/gif;base64,R0lGOD">
</body></html>`

	assets, err := NewExtractor("https://example.com/", WithExtractorLogger(quietLogger())).
		Extract(page, "https://example.com/blog/post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	check := func(name string, got, want []string) {
		t.Helper()
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}

	check("stylesheets", assets.Stylesheets.Items(), []string{
		"https://example.com/css/main.css",
		"https://example.com/css/preload.css",
		"https://example.com/css/imported.css",
	})
	check("scripts", assets.Scripts.Items(), []string{"https://example.com/blog/app.js"})
	check("images", assets.Images.Items(), []string{
		"https://example.com/img/a.png",
		"https://example.com/img/lazy.png",
		"https://example.com/img/a-1x.png",
		"https://example.com/img/a-2x.png",
		"https://example.com/img/wide.webp",
		"https://example.com/img/bg.png",
		"https://example.com/favicon.ico",
		"https://example.com/img/poster.jpg",
		"https://example.com/img/hero.jpg",
	})
	check("fonts", assets.Fonts.Items(), []string{"https://example.com/fonts/inter.woff2"})
	check("media", assets.Media.Items(), []string{
		"https://example.com/media/clip.mp4",
		"https://example.com/media/song.mp3",
	})
	check("other", assets.Other.Items(), []string{
		"https://example.com/media/subs.vtt",
		"https://example.com/data/blob.bin",
	})
	check("internal links", assets.InternalLinks.Items(), []string{
		"https://example.com/about",
		"https://www.example.com/contact",
	})
	check("external links", assets.ExternalLinks.Items(), []string{"https://other.org/"})
}

func TestExtractCSSAssets(t *testing.T) {
	t.Parallel()

	css := `@import "base.css";
body { background: url(../img/bg.png); }
.a { background: url(data:image/png;base64,AAAA); }
.b { background: url("../img/bg.png"); }`

	got := NewExtractor("https://example.com/").ExtractCSSAssets(css, "https://example.com/css/site.css")
	want := []string{"https://example.com/img/bg.png", "https://example.com/css/base.css"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractCSSAssets = %v, want %v", got, want)
	}
}
