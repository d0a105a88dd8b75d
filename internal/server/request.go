package server

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/sitemirror/internal/config"
)

// CloneRequest is the body of POST /api/clone. Omitted fields take the
// configured defaults.
type CloneRequest struct {
	URL           string   `json:"url"`
	MaxPages      *int     `json:"maxPages,omitempty"`
	MaxDepth      *int     `json:"maxDepth,omitempty"`
	Delay         *float64 `json:"delay,omitempty"` // seconds
	RespectRobots *bool    `json:"respectRobots,omitempty"`
	OutputDir     string   `json:"outputDir,omitempty"`
}

// JobOptions are the validated settings of one clone job.
type JobOptions struct {
	URL           string
	MaxPages      int
	MaxDepth      int
	Delay         time.Duration
	RespectRobots bool
	OutputDir     string
}

// Options validates the request and fills in defaults.
// A URL without a scheme is assumed to be https.
func (r CloneRequest) Options() (JobOptions, error) {
	opts := JobOptions{
		MaxPages:      config.DefaultMaxPages,
		MaxDepth:      config.DefaultMaxDepth,
		Delay:         config.DefaultDelay,
		RespectRobots: true,
		OutputDir:     config.DefaultOutputDir,
	}

	raw := strings.TrimSpace(r.URL)
	if raw == "" {
		return opts, ErrNoURL
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return opts, fmt.Errorf("%w: %q", ErrInvalidURL, r.URL)
	}
	opts.URL = raw

	if r.MaxPages != nil {
		if *r.MaxPages < 1 || *r.MaxPages > config.MaxPagesLimit {
			return opts, ErrMaxPagesRange
		}
		opts.MaxPages = *r.MaxPages
	}
	if r.MaxDepth != nil {
		if *r.MaxDepth < 1 || *r.MaxDepth > config.MaxDepthLimit {
			return opts, ErrMaxDepthRange
		}
		opts.MaxDepth = *r.MaxDepth
	}
	if r.Delay != nil {
		// Range-check the seconds before converting: a huge float
		// overflows time.Duration into a negative value.
		if !(*r.Delay >= 0 && *r.Delay <= config.MaxDelayLimit.Seconds()) {
			return opts, ErrDelayRange
		}
		opts.Delay = time.Duration(*r.Delay * float64(time.Second))
	}
	if r.RespectRobots != nil {
		opts.RespectRobots = *r.RespectRobots
	}
	if dir := strings.TrimSpace(r.OutputDir); dir != "" {
		opts.OutputDir = dir
	}

	return opts, nil
}
