package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoScreenshot is returned by the screenshot analyzer when the renderer
// did not capture an image for the page.
var ErrNoScreenshot = errors.New("no screenshot captured for page")

// Input is what an analyzer sees of a page.
type Input struct {
	// URL is the canonical page URL.
	URL string

	// HTML is the rendered markup.
	HTML string

	// Screenshot is a full-page PNG, empty when none was captured.
	Screenshot []byte
}

// Analyzer inspects one page.
type Analyzer interface {
	// Name identifies the analyzer and keys its result in the analysis
	// file.
	Name() string

	// Analyze returns a JSON-serializable result for the page.
	Analyze(ctx context.Context, in Input) (any, error)
}

// Summary aggregates analyzer results over a crawl. An average is zero
// when its analyzer was not run.
type Summary struct {
	PagesAnalyzed             int     `json:"pages_analyzed"`
	AverageSEOScore           float64 `json:"average_seo_score"`
	AverageAccessibilityScore float64 `json:"average_accessibility_score"`
	AveragePerformanceScore   float64 `json:"average_performance_score"`
}

// scored is implemented by results carrying a 0 to 100 score.
type scored interface {
	score() float64
}

// Runner executes a fixed set of analyzers per page and persists their
// results through a Store.
type Runner struct {
	analyzers []Analyzer
	store     *Store
	logger    *slog.Logger

	mu     sync.Mutex
	pages  int
	scores map[string][]float64 // by analyzer name
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner that stores results under store.
func NewRunner(store *Store, analyzers []Analyzer, opts ...RunnerOption) *Runner {
	r := &Runner{
		analyzers: analyzers,
		store:     store,
		scores:    map[string][]float64{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Empty reports whether the runner has no analyzers configured.
func (r *Runner) Empty() bool {
	return r == nil || len(r.analyzers) == 0
}

// Run analyzes one page. Every analyzer runs even if an earlier one fails;
// the results that succeeded are saved and the failures are returned
// joined together.
func (r *Runner) Run(ctx context.Context, in Input) error {
	if r.Empty() {
		return nil
	}

	results := make(map[string]any, len(r.analyzers))
	var errs []error
	for _, a := range r.analyzers {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := a.Analyze(ctx, in)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
			continue
		}
		results[a.Name()] = res
		if sc, ok := res.(scored); ok {
			r.recordScore(a.Name(), sc.score())
		}
	}

	if len(results) > 0 {
		if _, err := r.store.SaveAnalysis(in.URL, results); err != nil {
			errs = append(errs, err)
		}
		r.mu.Lock()
		r.pages++
		r.mu.Unlock()
	}

	if len(errs) > 0 {
		r.logger.Warn("page analysis incomplete", "url", in.URL, "failures", len(errs))
	}
	return errors.Join(errs...)
}

func (r *Runner) recordScore(name string, score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[name] = append(r.scores[name], score)
}

// Summary returns the aggregate over every page analyzed so far.
func (r *Runner) Summary() Summary {
	if r == nil {
		return Summary{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return Summary{
		PagesAnalyzed:             r.pages,
		AverageSEOScore:           average(r.scores["seo"]),
		AverageAccessibilityScore: average(r.scores["accessibility"]),
		AveragePerformanceScore:   average(r.scores["performance"]),
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// SaveSummary writes Summary to the store.
func (r *Runner) SaveSummary() (string, error) {
	if r.Empty() {
		return "", nil
	}
	return r.store.SaveSummary(r.Summary())
}
