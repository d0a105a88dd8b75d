package config

import "errors"

// Configuration validation errors returned by Config.Validate.
//
// Design decision: Package-level sentinels so callers (the CLI and the
// control panel) can map them with errors.Is, e.g. to a 400 response.
var (
	// ErrNoTarget is returned when no start URL is given.
	ErrNoTarget = errors.New("no target specified: provide at least one URL")

	// ErrInvalidURL is returned for a target that is not an absolute
	// http(s) URL.
	ErrInvalidURL = errors.New("invalid URL: must be an absolute http or https URL")

	// ErrInvalidMaxPages is returned when MaxPages is outside 1..10000.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be between 1 and 10000")

	// ErrInvalidMaxDepth is returned when MaxDepth is outside 0..100.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be between 0 and 100")

	// ErrInvalidDelay is returned when the delay is negative or above 60s.
	ErrInvalidDelay = errors.New("invalid delay: must be between 0s and 60s")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the download concurrency is
	// not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidRateLimit is returned when the rate limit is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidMaxAssetSize is returned when the asset size cap is negative.
	ErrInvalidMaxAssetSize = errors.New("invalid max asset size: must be non-negative")

	// ErrInvalidRenderer is returned for an unknown renderer name.
	ErrInvalidRenderer = errors.New(`invalid renderer: must be "chrome" or "http"`)

	// ErrScreenshotsNeedChrome is returned when screenshots are requested
	// with the HTTP renderer.
	ErrScreenshotsNeedChrome = errors.New("screenshots require the chrome renderer")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
