package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitemirror/internal/model"
)

// MirrorFactory prepares the mirror and session for one target URL.
// It is called once per target so no state is shared between sites.
type MirrorFactory func(target string) (*Mirror, *model.Session, error)

// BatchProcessor mirrors several sites concurrently.
//
// Design decision: Batching lives outside Mirror so a single mirror stays a
// plain sequential run; the processor only adds the concurrency limit and
// result ordering.
type BatchProcessor struct {
	// factory creates a fresh mirror and session for each target.
	factory MirrorFactory

	// concurrency is the maximum number of sites mirrored at once.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed runs in target order.
	results []*model.Result
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent mirrors.
// Default is 2 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory MirrorFactory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: 2,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch mirrors every target and returns one Result per target, in
// target order. A target whose mirror fails still gets a Result in
// PhaseFailed; the returned error is only set when ctx was cancelled, and
// targets that had not started by then have a nil entry.
//
// Design decision: errgroup.SetLimit instead of a worker pool; every target
// gets its own goroutine but only 'concurrency' of them run at once.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []string) ([]*model.Result, error) {
	bp.logger.Info("starting batch mirror",
		"total_sites", len(targets),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	bp.results = make([]*model.Result, len(targets))

	err := bp.run(ctx, targets, func(res *model.Result, i int) {
		bp.mu.Lock()
		bp.results[i] = res
		bp.mu.Unlock()
	})

	bp.logger.Info("batch mirror complete",
		"total_sites", len(targets),
		"elapsed", time.Since(startTime),
	)

	return bp.results, err
}

// ProcessBatchWithCallback mirrors every target and calls callback with
// each Result as soon as its run ends. The callback is called from the
// goroutine that ran the mirror and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	targets []string,
	callback func(res *model.Result, index int),
) error {
	return bp.run(ctx, targets, callback)
}

func (bp *BatchProcessor) run(ctx context.Context, targets []string, done func(*model.Result, int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("mirroring site",
				"target", target,
				"index", i+1,
				"total", len(targets),
			)

			mirror, session, err := bp.factory(target)
			if err != nil {
				bp.logger.Warn("cannot prepare mirror", "target", target, "error", err)
				done(failedResult(target, err), i)
				return nil
			}

			res, err := mirror.Run(ctx, session)
			if err != nil {
				// Recorded in the result; other sites keep going.
				bp.logger.Warn("mirror failed", "target", target, "error", err)
			}
			done(res, i)
			return nil
		})
	}

	return g.Wait()
}

// failedResult describes a target that never got a session.
func failedResult(target string, err error) *model.Result {
	now := time.Now()
	return &model.Result{
		BaseURL: target,
		Errors: []model.ErrorRecord{{
			URL:   target,
			Error: fmt.Sprintf("prepare mirror: %v", err),
			Type:  model.ErrorTypeCrawl,
		}},
		Phase:     model.PhaseFailed,
		StartedAt: now,
		EndedAt:   now,
	}
}
