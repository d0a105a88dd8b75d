package model

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/sitemirror/internal/urlpath"
)

// ErrInvalidBaseURL is returned by NewSession for a start URL that cannot
// be canonicalized.
var ErrInvalidBaseURL = errors.New("invalid base URL: must be an absolute http(s) URL")

// Policy answers whether a URL may be crawled.
// robots.Policy implements it; a nil Policy permits everything.
type Policy interface {
	IsAllowed(u string) bool
}

// Session is the state of one mirror run.
//
// Design decision: Every phase receives the same *Session instead of
// sharing package-level state. Maps are written by exactly one phase at a
// time (Visited, Queued, Pages and AssetURLs by the crawl; URLMapping by the
// crawl and the download merge) and are read-only during rewriting, so they
// carry no lock. Errors, the phase and the stop flag are touched from other
// goroutines (parallel rewriting, analyzers, the control panel) and are
// synchronized.
type Session struct {
	// BaseURL is the canonical start URL.
	BaseURL string

	// Domain is the host name of BaseURL.
	Domain string

	// OutputDir is the root every local path lives under.
	OutputDir string

	// MaxPages bounds Visited; Queued is bounded by twice this value.
	MaxPages int

	// Policy is consulted before rendering a page. Nil allows everything.
	Policy Policy

	// Delay is the effective pause between two page renders.
	Delay time.Duration

	// Visited holds pages rendered and recorded. VisitOrder lists them in
	// crawl order.
	Visited    map[string]struct{}
	VisitOrder []string

	// Queued holds every URL ever put on the frontier.
	Queued map[string]struct{}

	// Pages maps a visited URL to its record.
	Pages map[string]*PageRecord

	// AssetURLs is the union of assets referenced by visited pages.
	AssetURLs *URLSet

	// URLMapping maps canonical URLs of pages and assets to local paths.
	URLMapping map[string]string

	// Aliases are pre-redirect page URLs mapped to the local copy of the
	// page they redirected to. They are neither visited nor assets.
	Aliases map[string]struct{}

	StartedAt  time.Time
	FinishedAt time.Time

	mu     sync.Mutex
	errors []ErrorRecord
	phase  Phase

	stop             atomic.Bool
	pagesCrawled     atomic.Int64
	assetsDownloaded atomic.Int64
}

// NewSession creates an idle session for startURL.
func NewSession(startURL, outputDir string, maxPages int) (*Session, error) {
	base := urlpath.Normalize(startURL, "")
	if base == "" {
		return nil, ErrInvalidBaseURL
	}

	return &Session{
		BaseURL:    base,
		Domain:     urlpath.Hostname(base),
		OutputDir:  outputDir,
		MaxPages:   maxPages,
		Visited:    make(map[string]struct{}),
		Queued:     make(map[string]struct{}),
		Pages:      make(map[string]*PageRecord),
		AssetURLs:  &URLSet{},
		URLMapping: make(map[string]string),
		Aliases:    make(map[string]struct{}),
		phase:      PhaseIdle,
	}, nil
}

// QueueLimit returns the maximum size of Queued.
func (s *Session) QueueLimit() int {
	return 2 * s.MaxPages
}

// Enqueue records u as queued. It returns false when u was queued before
// or the queue limit is reached.
func (s *Session) Enqueue(u string) bool {
	if _, ok := s.Queued[u]; ok {
		return false
	}
	if len(s.Queued) >= s.QueueLimit() {
		return false
	}
	s.Queued[u] = struct{}{}
	return true
}

// IsVisited reports whether u has been recorded.
func (s *Session) IsVisited(u string) bool {
	_, ok := s.Visited[u]
	return ok
}

// RecordPage marks the page visited, stores its record and local path,
// and merges its assets into AssetURLs. It returns false if the page was
// already visited.
func (s *Session) RecordPage(rec *PageRecord) bool {
	if s.IsVisited(rec.URL) {
		return false
	}
	s.Visited[rec.URL] = struct{}{}
	s.VisitOrder = append(s.VisitOrder, rec.URL)
	s.Pages[rec.URL] = rec
	s.URLMapping[rec.URL] = rec.LocalPath
	if rec.Assets != nil {
		for _, u := range rec.Assets.All() {
			s.AssetURLs.Add(u)
		}
	}
	s.pagesCrawled.Add(1)
	return true
}

// AddAlias maps u to the local path of a recorded page without marking it
// visited, so links to an address that redirects still work offline.
func (s *Session) AddAlias(u, localPath string) {
	if _, ok := s.Visited[u]; ok {
		return
	}
	s.Aliases[u] = struct{}{}
	s.URLMapping[u] = localPath
}

// AddError appends a failure record. It is safe for concurrent use.
func (s *Session) AddError(u, message string, typ ErrorType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, ErrorRecord{URL: u, Error: message, Type: typ})
}

// Errors returns a copy of the recorded failures in order.
func (s *Session) Errors() []ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ErrorRecord, len(s.errors))
	copy(out, s.errors)
	return out
}

// ErrorCount returns the number of recorded failures.
func (s *Session) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errors)
}

// SetPhase moves the session to p.
func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// RequestStop asks the crawl to stop at its next frontier iteration.
func (s *Session) RequestStop() {
	s.stop.Store(true)
}

// StopRequested reports whether RequestStop was called.
func (s *Session) StopRequested() bool {
	return s.stop.Load()
}

// SetAssetsDownloaded records the number of stored assets for progress
// reporting.
func (s *Session) SetAssetsDownloaded(n int) {
	s.assetsDownloaded.Store(int64(n))
}

// Progress is a point-in-time view of a session that is safe to take while
// the run is in flight.
type Progress struct {
	Phase            Phase `json:"phase"`
	PagesCrawled     int   `json:"pages_crawled"`
	AssetsDownloaded int   `json:"assets_downloaded"`
	Errors           int   `json:"errors"`
	Stopped          bool  `json:"stopped"`
}

// Progress returns the current progress counters.
func (s *Session) Progress() Progress {
	return Progress{
		Phase:            s.Phase(),
		PagesCrawled:     int(s.pagesCrawled.Load()),
		AssetsDownloaded: int(s.assetsDownloaded.Load()),
		Errors:           s.ErrorCount(),
		Stopped:          s.StopRequested(),
	}
}
