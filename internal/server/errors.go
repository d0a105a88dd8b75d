package server

import "errors"

var (
	// ErrNoURL is returned when a clone request has no URL.
	ErrNoURL = errors.New("URL is required")

	// ErrInvalidURL is returned when the URL has no host.
	ErrInvalidURL = errors.New("invalid URL format")

	// ErrMaxPagesRange is returned when maxPages is outside 1..10000.
	ErrMaxPagesRange = errors.New("max pages must be between 1 and 10000")

	// ErrMaxDepthRange is returned when maxDepth is outside 1..100.
	ErrMaxDepthRange = errors.New("max depth must be between 1 and 100")

	// ErrDelayRange is returned when delay is outside 0..60 seconds.
	ErrDelayRange = errors.New("delay must be between 0 and 60 seconds")

	// ErrJobNotFound is returned for an unknown job ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotRunning is returned when cancelling a finished job.
	ErrJobNotRunning = errors.New("job is not running")
)
