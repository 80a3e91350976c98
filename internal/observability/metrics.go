package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Shared values for the status label, so dashboards can aggregate across
// subsystems.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusRateLimited = "rate_limited"
	StatusSkipped     = "skipped"
)

var (
	// IngestJobs counts jobs reaching a terminal status.
	IngestJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faculty_ingest_jobs_total",
		Help: "Ingestion jobs by terminal status",
	}, []string{"status"})

	// IngestProcessed counts per-professor progress increments across all jobs.
	IngestProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faculty_ingest_processed_total",
		Help: "Professors processed across all ingestion jobs",
	})

	// HarvestProfiles counts profiles contributed by each harvesting strategy.
	HarvestProfiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faculty_harvest_profiles_total",
		Help: "Faculty profiles discovered, by harvesting strategy",
	}, []string{"strategy"})

	// HarvestStrategyRuns counts how often each strategy actually executed.
	HarvestStrategyRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faculty_harvest_strategy_runs_total",
		Help: "Harvesting strategy executions",
	}, []string{"strategy"})

	// RenderRuns counts headless browser render attempts.
	RenderRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faculty_render_total",
		Help: "Headless browser renders by outcome",
	}, []string{"status"})

	// ScholarRequests counts bibliographic API calls.
	ScholarRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faculty_scholar_requests_total",
		Help: "Bibliographic API requests by outcome",
	}, []string{"status"})

	// Embeddings counts embedding computations, including skips for papers
	// that already have a vector.
	Embeddings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faculty_embeddings_total",
		Help: "Paper embedding computations by outcome",
	}, []string{"status"})

	// QueueDepth tracks tasks waiting for a worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "faculty_queue_depth",
		Help: "Tasks pending in the ingestion queue",
	})

	// TaskDuration observes task execution time. Roster tasks crawl whole
	// directories and can run for minutes, hence the wide buckets.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faculty_task_duration_seconds",
		Help:    "Ingestion task duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"task"})
)
