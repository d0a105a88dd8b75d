package model

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func newTestSession(t *testing.T, maxPages int) *Session {
	t.Helper()
	s, err := NewSession("https://Example.com/start/#top", t.TempDir(), maxPages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestNewSession(t *testing.T) {
	t.Parallel()

	t.Run("canonicalizes base URL", func(t *testing.T) {
		t.Parallel()
		s := newTestSession(t, 10)
		if s.BaseURL != "https://example.com/start" {
			t.Errorf("unexpected base URL %q", s.BaseURL)
		}
		if s.Domain != "example.com" {
			t.Errorf("unexpected domain %q", s.Domain)
		}
		if s.Phase() != PhaseIdle {
			t.Errorf("expected idle phase, got %s", s.Phase())
		}
	})

	t.Run("rejects non-http URL", func(t *testing.T) {
		t.Parallel()
		_, err := NewSession("ftp://example.com", t.TempDir(), 10)
		if !errors.Is(err, ErrInvalidBaseURL) {
			t.Errorf("expected ErrInvalidBaseURL, got %v", err)
		}
	})
}

func TestSessionEnqueueLimit(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, 2)
	urls := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c", "https://example.com/d", "https://example.com/e"}

	added := 0
	for _, u := range urls {
		if s.Enqueue(u) {
			added++
		}
	}
	if added != 4 {
		t.Errorf("expected 4 URLs queued, got %d", added)
	}
	if len(s.Queued) > s.QueueLimit() {
		t.Errorf("queued %d exceeds limit %d", len(s.Queued), s.QueueLimit())
	}
	if s.Enqueue("https://example.com/a") {
		t.Error("expected duplicate enqueue to be rejected")
	}
}

func TestSessionRecordPage(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, 10)
	assets := NewExtractedAssets()
	assets.Stylesheets.Add("https://example.com/main.css")
	assets.Images.Add("https://example.com/logo.png")
	assets.InternalLinks.Add("https://example.com/about")

	rec := &PageRecord{URL: s.BaseURL, LocalPath: "index.html", Assets: assets}
	if !s.RecordPage(rec) {
		t.Fatal("expected first record to succeed")
	}
	if s.RecordPage(rec) {
		t.Error("expected duplicate record to be rejected")
	}

	if len(s.VisitOrder) != 1 {
		t.Errorf("expected one visited page, got %d", len(s.VisitOrder))
	}
	if s.URLMapping[s.BaseURL] != "index.html" {
		t.Errorf("page not mapped: %v", s.URLMapping)
	}
	if s.AssetURLs.Len() != 2 {
		t.Errorf("expected 2 assets, got %d", s.AssetURLs.Len())
	}
	if s.AssetURLs.Has("https://example.com/about") {
		t.Error("links must not be merged into assets")
	}
	if got := s.Progress().PagesCrawled; got != 1 {
		t.Errorf("expected progress 1 page, got %d", got)
	}
}

func TestSessionErrorsConcurrent(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, 10)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddError("https://example.com/x", "boom", ErrorTypeDownload)
		}()
	}
	wg.Wait()

	if s.ErrorCount() != 50 {
		t.Errorf("expected 50 errors, got %d", s.ErrorCount())
	}
}

func TestSessionStop(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, 10)
	if s.StopRequested() {
		t.Error("new session must not be stopped")
	}
	s.RequestStop()
	if !s.StopRequested() || !s.Progress().Stopped {
		t.Error("expected stop to be recorded")
	}
}

func TestSitemapAndResult(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, 10)
	s.RecordPage(&PageRecord{URL: "https://example.com/z", LocalPath: "z/index.html"})
	s.RecordPage(&PageRecord{URL: "https://example.com/a", LocalPath: "a/index.html"})
	s.URLMapping["https://example.com/b.css"] = "assets/css/b.css"
	s.URLMapping["https://example.com/a.css"] = "assets/css/a.css"
	s.AddError("https://example.com/x.png", "404", ErrorTypeDownload)
	s.SetPhase(PhaseDone)

	sm := NewSitemap(s)
	if sm.TotalPages != 2 || sm.TotalAssets != 2 {
		t.Errorf("unexpected totals: %+v", sm)
	}
	if sm.Pages[0] != "https://example.com/a" || sm.Assets[0] != "https://example.com/a.css" {
		t.Errorf("expected sorted lists, got %v %v", sm.Pages, sm.Assets)
	}

	data, err := json.Marshal(sm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"base_url", "domain", "total_pages", "total_assets", "pages", "assets"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("sitemap JSON missing %q", key)
		}
	}

	r := NewResult(s)
	if !r.Succeeded() {
		t.Error("expected result to be successful")
	}
	if r.PageCount() != 2 || r.AssetCount() != 2 || r.ErrorCount() != 1 {
		t.Errorf("unexpected counts: pages=%d assets=%d errors=%d", r.PageCount(), r.AssetCount(), r.ErrorCount())
	}
	if r.ErrorsByType()[ErrorTypeDownload] != 1 {
		t.Error("expected one download error")
	}
}

func TestExtractedAssetsAll(t *testing.T) {
	t.Parallel()

	e := NewExtractedAssets()
	e.Images.Add("https://example.com/a.png")
	e.Stylesheets.Add("https://example.com/a.css")
	e.Other.Add("https://example.com/a.png")

	all := e.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 distinct assets, got %v", all)
	}
	if all[0] != "https://example.com/a.css" {
		t.Errorf("expected stylesheets first, got %v", all)
	}
}

func TestURLSet(t *testing.T) {
	t.Parallel()

	var s URLSet
	if !s.Add("b") || !s.Add("a") || s.Add("b") || s.Add("") {
		t.Error("unexpected Add results")
	}
	if got := s.Items(); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("expected insertion order, got %v", got)
	}

	data, err := json.Marshal(&s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `["b","a"]` {
		t.Errorf("unexpected JSON %s", data)
	}
}
