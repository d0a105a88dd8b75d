package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitemirror"

// Result labels.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Collector records crawl, download and job activity.
type Collector struct {
	registry *prometheus.Registry

	PagesTotal     *prometheus.CounterVec
	RenderDuration prometheus.Histogram
	StepDuration   *prometheus.HistogramVec
	AssetsTotal    *prometheus.CounterVec
	AssetBytes     prometheus.Counter
	ActiveJobs     prometheus.Gauge
	JobsTotal      *prometheus.CounterVec
}

// New creates a Collector registered on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		PagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_total",
				Help:      "Pages rendered, by result.",
			},
			[]string{"result"},
		),
		RenderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_duration_seconds",
				Help:      "Time spent rendering a single page.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Time spent in each pipeline step, by step and result.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"step", "result"},
		),
		AssetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assets_total",
				Help:      "Asset downloads, by outcome kind.",
			},
			[]string{"kind"},
		),
		AssetBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "asset_bytes_total",
				Help:      "Bytes of assets written to disk.",
			},
		),
		ActiveJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_jobs",
				Help:      "Mirror runs currently in progress.",
			},
		),
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Finished mirror runs, by final phase.",
			},
			[]string{"phase"},
		),
	}

	c.registry.MustRegister(
		c.PagesTotal,
		c.RenderDuration,
		c.StepDuration,
		c.AssetsTotal,
		c.AssetBytes,
		c.ActiveJobs,
		c.JobsTotal,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObservePage records one render attempt.
func (c *Collector) ObservePage(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.PagesTotal.WithLabelValues(result).Inc()
	c.RenderDuration.Observe(d.Seconds())
}

// ObserveStep records one pipeline step run.
func (c *Collector) ObserveStep(step string, d time.Duration, err error) {
	if c == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	c.StepDuration.WithLabelValues(step, result).Observe(d.Seconds())
}

// ObserveAsset records one download outcome. size is only counted for
// stored assets.
func (c *Collector) ObserveAsset(kind string, size int) {
	if c == nil {
		return
	}
	c.AssetsTotal.WithLabelValues(kind).Inc()
	if size > 0 {
		c.AssetBytes.Add(float64(size))
	}
}

// JobStarted marks a run as in progress.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.ActiveJobs.Inc()
}

// JobFinished marks a run as finished in the given phase.
func (c *Collector) JobFinished(phase string) {
	if c == nil {
		return
	}
	c.ActiveJobs.Dec()
	c.JobsTotal.WithLabelValues(phase).Inc()
}
