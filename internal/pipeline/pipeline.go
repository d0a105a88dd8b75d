package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/sitemirror/internal/model"
)

// Step is one stage of a mirror run. Steps run in order and share the
// session: the crawl fills in pages, the download step reads their asset
// references, and so on.
//
// Design decision: An interface rather than a function type, so steps can
// carry their collaborators (renderer, downloader, rewriter) and expose a
// Name for logging and metrics.
type Step interface {
	// Do runs the step. Per-page and per-asset failures are recorded on
	// the session; a returned error ends the run.
	Do(ctx context.Context, session *model.Session) error

	// Name is the short label used in logs and the step_duration metric.
	Name() string
}

// StepError reports which step ended a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepObserver is told how long each step took and how it ended.
type StepObserver func(step string, elapsed time.Duration, err error)

// Pipeline runs steps in sequence against one session.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	observe         StepObserver
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithObserver registers a callback run after every step.
func WithObserver(fn StepObserver) Option {
	return func(p *Pipeline) {
		p.observe = fn
	}
}

// WithContinueOnError makes the pipeline run the remaining steps after one
// fails. The default stops at the first error, since a failed crawl leaves
// nothing worth downloading.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New returns an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.observe == nil {
		p.observe = func(string, time.Duration, error) {}
	}
	return p
}

// AddStep appends step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps in order.
//
// A cancelled ctx is checked between steps and returned as is; steps that
// block watch ctx themselves. A failing step's error comes back wrapped in
// a *StepError. With WithContinueOnError the last failure is returned.
func (p *Pipeline) Execute(ctx context.Context, session *model.Session) error {
	var lastErr error
	for i, step := range p.steps {
		logger := p.logger.With("step", step.Name(), "site", session.BaseURL)

		if err := ctx.Err(); err != nil {
			logger.Warn("pipeline cancelled", "remaining", len(p.steps)-i, "reason", err)
			return err
		}

		logger.Info("executing step")
		start := time.Now()
		err := step.Do(ctx, session)
		elapsed := time.Since(start)
		p.observe(step.Name(), elapsed, err)

		if err != nil {
			logger.Error("step failed", "elapsed", elapsed, "error", err)
			lastErr = &StepError{Step: step.Name(), Err: err}
			if !p.continueOnError {
				return lastErr
			}
			continue
		}
		logger.Debug("step completed", "elapsed", elapsed, "phase", session.Phase())
	}
	return lastErr
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	return names
}
