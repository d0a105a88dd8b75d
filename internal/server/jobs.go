package server

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/pipeline"
)

// maxJobErrors caps the errors kept on a finished job.
const maxJobErrors = 100

// JobStatus is the lifecycle state of a clone job.
type JobStatus string

const (
	StatusStarting  JobStatus = "starting"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// IsFinal reports whether the job can no longer be cancelled.
func (s JobStatus) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is the externally visible state of a clone job.
type Job struct {
	ID               string              `json:"id"`
	URL              string              `json:"url"`
	Status           JobStatus           `json:"status"`
	Phase            model.Phase         `json:"phase"`
	Progress         float64             `json:"progress"`
	PagesCrawled     int                 `json:"pages_crawled"`
	AssetsDownloaded int                 `json:"assets_downloaded"`
	Errors           []model.ErrorRecord `json:"errors"`
	OutputDir        string              `json:"output_dir"`
	StartedAt        time.Time           `json:"started_at"`
	CompletedAt      *time.Time          `json:"completed_at"`
	Message          string              `json:"message"`
}

// JobFactory builds the mirror and session for a job.
type JobFactory func(opts JobOptions) (*pipeline.Mirror, *model.Session, error)

// job is the manager's mutable record of a Job.
type job struct {
	mu       sync.Mutex
	info     Job
	maxPages int
	session  *model.Session
	finished bool
	done     chan struct{}
}

// snapshot returns a copy of the job, with live counters taken from the
// session while the mirror runs.
func (j *job) snapshot() Job {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := j.info
	out.Errors = slices.Clone(j.info.Errors)
	if out.Errors == nil {
		out.Errors = []model.ErrorRecord{}
	}
	if j.finished {
		return out
	}

	p := j.session.Progress()
	out.Phase = p.Phase
	out.PagesCrawled = p.PagesCrawled
	out.AssetsDownloaded = p.AssetsDownloaded
	if out.Status == StatusCancelled {
		return out
	}
	if j.maxPages > 0 {
		out.Progress = min(float64(p.PagesCrawled)/float64(j.maxPages)*100, 100)
	}
	out.Message = phaseMessage(p, j.maxPages)
	return out
}

func phaseMessage(p model.Progress, maxPages int) string {
	switch p.Phase {
	case model.PhaseIdle:
		return "Starting browser..."
	case model.PhaseLoadingPolicy:
		return "Loading robots.txt..."
	case model.PhaseCrawling:
		return fmt.Sprintf("Crawling: %d/%d pages", p.PagesCrawled, maxPages)
	case model.PhaseDownloading:
		return "Downloading assets..."
	case model.PhaseRewriting:
		return "Rewriting links..."
	default:
		return "Generating sitemap..."
	}
}

// JobManager runs clone jobs in the background and tracks their state.
//
// Design decision: Jobs live in memory only. Finished runs are also kept
// in the history database by the caller's factory when it wants them, so
// the manager stays a thin layer over pipeline.Mirror.
type JobManager struct {
	factory JobFactory
	logger  *slog.Logger

	// onFinish is called with every finished result.
	onFinish func(*model.Result)

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	jobs map[string]*job
}

// JobManagerOption configures a JobManager.
type JobManagerOption func(*JobManager)

// WithJobLogger sets a custom logger.
func WithJobLogger(logger *slog.Logger) JobManagerOption {
	return func(m *JobManager) {
		m.logger = logger
	}
}

// WithOnFinish registers a hook called with the result of every job that
// ran its mirror, for example to store it in the history database.
func WithOnFinish(fn func(*model.Result)) JobManagerOption {
	return func(m *JobManager) {
		m.onFinish = fn
	}
}

// NewJobManager creates a JobManager.
func NewJobManager(factory JobFactory, opts ...JobManagerOption) *JobManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &JobManager{
		factory: factory,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*job),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}

	return m
}

// Start registers a job for opts and runs it in the background.
func (m *JobManager) Start(opts JobOptions) (Job, error) {
	mirror, session, err := m.factory(opts)
	if err != nil {
		return Job{}, fmt.Errorf("prepare mirror: %w", err)
	}

	j := &job{
		info: Job{
			ID:        uuid.NewString(),
			URL:       opts.URL,
			Status:    StatusStarting,
			Phase:     model.PhaseIdle,
			Errors:    []model.ErrorRecord{},
			OutputDir: session.OutputDir,
			StartedAt: time.Now(),
			Message:   "Initializing...",
		},
		maxPages: opts.MaxPages,
		session:  session,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[j.info.ID] = j
	m.mu.Unlock()

	m.logger.Info("clone job started", "job", j.info.ID, "url", opts.URL)

	go m.run(j, mirror)

	return j.snapshot(), nil
}

func (m *JobManager) run(j *job, mirror *pipeline.Mirror) {
	defer close(j.done)

	j.mu.Lock()
	if j.info.Status == StatusStarting {
		j.info.Status = StatusRunning
	}
	j.mu.Unlock()

	res, err := mirror.Run(m.ctx, j.session)

	if m.onFinish != nil && res != nil {
		m.onFinish(res)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.finished = true
	now := time.Now()
	if j.info.CompletedAt == nil {
		j.info.CompletedAt = &now
	}
	if res != nil {
		j.info.Phase = res.Phase
		j.info.PagesCrawled = res.PageCount()
		j.info.AssetsDownloaded = res.AssetCount()
		errs := res.Errors
		if len(errs) > maxJobErrors {
			errs = errs[:maxJobErrors]
		}
		j.info.Errors = slices.Clone(errs)
	}

	switch {
	case j.info.Status == StatusCancelled:
		// keep the cancellation message
	case err != nil:
		j.info.Status = StatusFailed
		j.info.Message = "Error: " + err.Error()
		j.info.Errors = append(j.info.Errors, model.ErrorRecord{URL: j.info.URL, Error: err.Error(), Type: "job_error"})
	default:
		j.info.Status = StatusCompleted
		j.info.Progress = 100
		j.info.Message = fmt.Sprintf("Completed: %d pages, %d assets", j.info.PagesCrawled, j.info.AssetsDownloaded)
	}

	m.logger.Info("clone job finished", "job", j.info.ID, "status", j.info.Status)
}

// Get returns the job with the given ID.
func (m *JobManager) Get(id string) (Job, error) {
	j, ok := m.lookup(id)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.snapshot(), nil
}

// List returns every job, newest first.
func (m *JobManager) List() []Job {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j.snapshot())
	}
	m.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs
}

// Cancel asks a running job to stop. The crawl ends after the current
// page and the pages crawled so far are still saved.
func (m *JobManager) Cancel(id string) error {
	j, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.info.Status.IsFinal() {
		return ErrJobNotRunning
	}

	j.session.RequestStop()
	now := time.Now()
	j.info.Status = StatusCancelled
	j.info.Message = "Job cancelled by user"
	j.info.CompletedAt = &now

	m.logger.Info("clone job cancelled", "job", id)
	return nil
}

// Wait blocks until the job's mirror run has returned or ctx is done.
func (m *JobManager) Wait(ctx context.Context, id string) (Job, error) {
	j, ok := m.lookup(id)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	select {
	case <-j.done:
		return j.snapshot(), nil
	case <-ctx.Done():
		return j.snapshot(), ctx.Err()
	}
}

// Shutdown aborts every running job and waits for them to return.
func (m *JobManager) Shutdown(ctx context.Context) error {
	m.cancel()

	m.mu.RLock()
	pending := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		pending = append(pending, j)
	}
	m.mu.RUnlock()

	for _, j := range pending {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *JobManager) lookup(id string) (*job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	return j, ok
}
