package robots

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

// DefaultTimeout bounds the robots.txt fetch.
const DefaultTimeout = 10 * time.Second

// maxRobotsSize caps how much of robots.txt is read.
const maxRobotsSize = 512 * 1024

// ErrUnexpectedStatus is returned by Load when robots.txt answers with a
// status other than 200 or 404. The policy stays unloaded in that case.
var ErrUnexpectedStatus = errors.New("unexpected robots.txt status")

// Policy holds the rules of one site's robots.txt that apply to our user agent.
type Policy struct {
	robotsURL string
	userAgent string
	client    *http.Client
	timeout   time.Duration
	logger    *slog.Logger

	loaded     bool
	allow      []*pattern
	disallow   []*pattern
	crawlDelay time.Duration
	hasDelay   bool
	sitemaps   []string

	// backup is consulted when no allow or disallow pattern matches.
	backup *robotstxt.RobotsData
}

// Option configures a Policy.
type Option func(*Policy)

// WithHTTPClient sets the client used to fetch robots.txt.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Policy) {
		if client != nil {
			p.client = client
		}
	}
}

// WithTimeout sets the fetch timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Policy) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

// New creates an unloaded Policy for the site of baseURL.
// An empty userAgent matches only "*" blocks.
func New(baseURL, userAgent string, opts ...Option) *Policy {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = "*"
	}

	robotsURL := ""
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		robotsURL = (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String()
	}

	p := &Policy{
		robotsURL: robotsURL,
		userAgent: userAgent,
		client:    http.DefaultClient,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// URL returns the robots.txt location this policy loads from.
func (p *Policy) URL() string {
	return p.robotsURL
}

// Load fetches and parses robots.txt. It is meant to be called once.
//
// A 404 loads an empty policy. Any other non-200 status or a transport
// error leaves the policy unloaded, so IsAllowed keeps returning true, and
// the error is returned for the caller to log.
func (p *Policy) Load(ctx context.Context) error {
	if p.robotsURL == "" {
		return fmt.Errorf("invalid base URL for robots.txt")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.robotsURL, nil)
	if err != nil {
		return fmt.Errorf("build robots request: %w", err)
	}
	if p.userAgent != "*" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
		if err != nil {
			return fmt.Errorf("read robots.txt: %w", err)
		}
		p.Parse(string(body))
		p.logger.Info("loaded robots.txt",
			"url", p.robotsURL,
			"allow", len(p.allow),
			"disallow", len(p.disallow),
		)
		return nil
	case http.StatusNotFound:
		p.loaded = true
		p.logger.Info("no robots.txt found, all URLs allowed", "url", p.robotsURL)
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

// Parse reads robots.txt content and marks the policy loaded.
//
// Consecutive User-agent lines form the header of one block; the first
// Disallow, Allow or Crawl-delay line closes the header, so the next
// User-agent line starts a new block. A block applies when one of its agents
// is "*" or equals our agent. Sitemap lines apply regardless of block.
func (p *Policy) Parse(content string) {
	applies := false
	readingAgents := true

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxRobotsSize)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		directive, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		directive = strings.ToLower(strings.TrimSpace(directive))
		value = strings.TrimSpace(value)

		switch directive {
		case "user-agent":
			if !readingAgents {
				readingAgents = true
				applies = false
			}
			if value == "*" || strings.EqualFold(value, p.userAgent) {
				applies = true
			}
		case "disallow":
			readingAgents = false
			if applies && value != "" {
				p.disallow = appendPattern(p.disallow, value)
			}
		case "allow":
			readingAgents = false
			if applies && value != "" {
				p.allow = appendPattern(p.allow, value)
			}
		case "crawl-delay":
			readingAgents = false
			if applies {
				if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
					p.crawlDelay = time.Duration(secs * float64(time.Second))
					p.hasDelay = true
				}
			}
		case "sitemap":
			if value != "" {
				p.sitemaps = append(p.sitemaps, value)
			}
		}
	}

	if data, err := robotstxt.FromString(content); err == nil {
		p.backup = data
	}
	p.loaded = true
}

// Loaded reports whether robots.txt was fetched (or found missing).
func (p *Policy) Loaded() bool {
	return p.loaded
}

// IsAllowed reports whether u may be crawled.
// Any matching Allow pattern wins over any matching Disallow pattern.
func (p *Policy) IsAllowed(u string) bool {
	if !p.loaded {
		return true
	}

	target := "/"
	if parsed, err := url.Parse(u); err == nil {
		target = parsed.EscapedPath()
		if target == "" {
			target = "/"
		}
		if parsed.RawQuery != "" {
			target += "?" + parsed.RawQuery
		}
	}

	for _, pat := range p.allow {
		if pat.match(target) {
			return true
		}
	}
	for _, pat := range p.disallow {
		if pat.match(target) {
			p.logger.Debug("URL disallowed by robots.txt", "url", u, "pattern", pat.raw)
			return false
		}
	}

	if p.backup != nil {
		return p.backup.TestAgent(target, p.userAgent)
	}
	return true
}

// CrawlDelay returns the Crawl-delay of robots.txt, or def when none applies.
func (p *Policy) CrawlDelay(def time.Duration) time.Duration {
	if p.hasDelay {
		return p.crawlDelay
	}
	return def
}

// Sitemaps returns the Sitemap URLs listed in robots.txt.
func (p *Policy) Sitemaps() []string {
	out := make([]string, len(p.sitemaps))
	copy(out, p.sitemaps)
	return out
}

// pattern is a compiled robots.txt path pattern.
type pattern struct {
	raw    string
	prefix string
	re     *regexp.Regexp
}

// appendPattern compiles raw and appends it unless an identical pattern exists.
func appendPattern(list []*pattern, raw string) []*pattern {
	for _, existing := range list {
		if existing.raw == raw {
			return list
		}
	}
	return append(list, compilePattern(raw))
}

// compilePattern turns a robots.txt pattern into a matcher. "*" matches any
// run of characters and a trailing "$" anchors the end; anything else is a
// plain prefix.
func compilePattern(raw string) *pattern {
	if !strings.ContainsAny(raw, "*$") {
		return &pattern{raw: raw, prefix: raw}
	}

	anchored := strings.HasSuffix(raw, "$")
	body := strings.TrimSuffix(raw, "$")

	parts := strings.Split(body, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	expr := "^" + strings.Join(parts, ".*")
	if anchored {
		expr += "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return &pattern{raw: raw, prefix: body}
	}
	return &pattern{raw: raw, re: re}
}

func (pat *pattern) match(target string) bool {
	if pat.re != nil {
		return pat.re.MatchString(target)
	}
	return strings.HasPrefix(target, pat.prefix)
}
