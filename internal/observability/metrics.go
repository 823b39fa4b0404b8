package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus instruments for the job pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// JobStatus counts job state transitions by resulting status.
	JobStatus *prometheus.CounterVec

	// EnqueueDuration measures time from request receipt to rows committed.
	EnqueueDuration prometheus.Histogram

	// ProcessingDuration measures time from dequeue to terminal status.
	ProcessingDuration *prometheus.HistogramVec

	// JobsPicked counts dequeues per worker.
	JobsPicked *prometheus.CounterVec

	// QueueDepth tracks the number of jobs per status.
	QueueDepth *prometheus.GaugeVec
}

// NewMetrics creates and registers all instruments on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		JobStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_status_total",
			Help: "Number of job status transitions by status.",
		}, []string{"status"}),
		EnqueueDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "job_enqueue_duration_seconds",
			Help:    "Time spent accepting and persisting an edit request.",
			Buckets: prometheus.DefBuckets,
		}),
		ProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_processing_duration_seconds",
			Help:    "Time from dequeue to terminal status.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"status"}),
		JobsPicked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_jobs_picked_total",
			Help: "Number of jobs dequeued, per worker.",
		}, []string{"worker_id"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "job_queue_depth",
			Help: "Current number of jobs per status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.JobStatus,
		m.EnqueueDuration,
		m.ProcessingDuration,
		m.JobsPicked,
		m.QueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler serving the registry in the
// prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
