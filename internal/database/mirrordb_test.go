package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *MirrorDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newTestResult(domain string, started time.Time) *model.Result {
	return &model.Result{
		BaseURL:   "https://" + domain + "/",
		Domain:    domain,
		OutputDir: "/tmp/" + domain,
		Pages:     []string{"https://" + domain + "/", "https://" + domain + "/about"},
		Assets:    []string{"https://" + domain + "/site.css"},
		Errors: []model.ErrorRecord{
			{URL: "https://" + domain + "/missing.png", Error: "HTTP 404", Type: model.ErrorTypeDownload},
			{URL: "https://" + domain + "/broken", Error: "timeout", Type: model.ErrorTypeRender},
		},
		Phase:     model.PhaseDone,
		StartedAt: started,
		EndedAt:   started.Add(3 * time.Second),
		Duration:  3 * time.Second,
	}
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false fails for missing database", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("expected CreateIfNotExists to be true")
	}
	if !opts.EnableWAL {
		t.Error("expected EnableWAL to be true")
	}
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := db.SaveRun(ctx, newTestResult("example.com", started))
	if err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	t.Run("get returns the stored result", func(t *testing.T) {
		t.Parallel()

		res, err := db.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if res.Domain != "example.com" || res.PageCount() != 2 || res.ErrorCount() != 2 {
			t.Errorf("unexpected result %+v", res)
		}
		if !res.StartedAt.Equal(started) {
			t.Errorf("expected start %v, got %v", started, res.StartedAt)
		}
		if res.Duration != 3*time.Second {
			t.Errorf("expected duration 3s, got %v", res.Duration)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()

		if _, err := db.GetRun(ctx, id+100); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("errors filtered by type", func(t *testing.T) {
		t.Parallel()

		all, err := db.RunErrors(ctx, id, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 errors, got %d", len(all))
		}

		downloads, err := db.RunErrors(ctx, id, model.ErrorTypeDownload)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(downloads) != 1 || downloads[0].Error != "HTTP 404" {
			t.Errorf("unexpected download errors %+v", downloads)
		}
	})

	t.Run("pages are indexed", func(t *testing.T) {
		t.Parallel()

		ok, err := db.HasPage(ctx, "example.com", "https://example.com/about")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected page to be found")
		}

		ok, err = db.HasPage(ctx, "example.com", "https://example.com/never")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected page to be missing")
		}
	})
}

func TestSaveRunNil(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	if _, err := db.SaveRun(context.Background(), nil); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, domain := range []string{"a.example", "b.example", "a.example"} {
		res := newTestResult(domain, base.Add(time.Duration(i)*time.Hour))
		if i == 2 {
			res.Phase = model.PhaseFailed
			res.Stopped = true
		}
		if _, err := db.SaveRun(ctx, res); err != nil {
			t.Fatalf("failed to save run %d: %v", i, err)
		}
	}

	t.Run("all runs newest first", func(t *testing.T) {
		t.Parallel()

		runs, err := db.ListRuns(ctx, "", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(runs))
		}
		if runs[0].ID < runs[1].ID || runs[1].ID < runs[2].ID {
			t.Error("expected newest run first")
		}
		latest := runs[0]
		if latest.Phase != model.PhaseFailed || !latest.Stopped {
			t.Errorf("unexpected latest run %+v", latest)
		}
		if latest.Pages != 2 || latest.Assets != 1 || latest.Errors != 2 {
			t.Errorf("unexpected counts %+v", latest)
		}
		if !latest.StartedAt.Equal(base.Add(2 * time.Hour)) {
			t.Errorf("unexpected start %v", latest.StartedAt)
		}
		if latest.Duration != 3*time.Second {
			t.Errorf("unexpected duration %v", latest.Duration)
		}
	})

	t.Run("filtered by domain", func(t *testing.T) {
		t.Parallel()

		runs, err := db.ListRuns(ctx, "a.example", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runs) != 2 {
			t.Errorf("expected 2 runs, got %d", len(runs))
		}
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()

		runs, err := db.ListRuns(ctx, "", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runs) != 1 {
			t.Errorf("expected 1 run, got %d", len(runs))
		}
	})

	t.Run("domains", func(t *testing.T) {
		t.Parallel()

		domains, err := db.ListDomains(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(domains) != 2 || domains[0] != "a.example" || domains[1] != "b.example" {
			t.Errorf("unexpected domains %v", domains)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		zero  bool
	}{
		{name: "rfc3339 nano", input: "2026-03-01T10:00:00.123456789Z"},
		{name: "rfc3339", input: "2026-03-01T10:00:00+09:00"},
		{name: "sqlite default", input: "2026-03-01 10:00:00"},
		{name: "garbage", input: "yesterday", zero: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := parseTimestamp(tt.input)
			if got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q) = %v", tt.input, got)
			}
		})
	}
}
