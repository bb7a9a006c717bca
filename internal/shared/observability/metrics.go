package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qmakemodel_evaluation_seconds",
		Help:    "Time spent evaluating one project file pass.",
		Buckets: prometheus.DefBuckets,
	}, []string{"pass"})

	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qmakemodel_evaluations_total",
		Help: "Total number of project file evaluations by resulting state.",
	}, []string{"state"})

	PendingEvaluations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qmakemodel_pending_evaluations",
		Help: "Number of per-file evaluations currently outstanding.",
	})

	GenerationsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qmakemodel_generations_completed_total",
		Help: "Total number of evaluation generations applied to the project tree.",
	})

	GenerationsDiscardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qmakemodel_generations_discarded_total",
		Help: "Total number of stale or canceled evaluation results dropped on arrival.",
	})

	ProjectNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qmakemodel_project_nodes",
		Help: "Number of .pro/.pri nodes in the live project tree.",
	})

	WatchedFolders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qmakemodel_watched_folders",
		Help: "Number of directories registered with the OS watcher.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qmakemodel_watcher_events_total",
		Help: "Total number of file system events received by the folder watcher.",
	})

	CodeModelRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qmakemodel_codemodel_refresh_total",
		Help: "Total number of code model refreshes handed to downstream consumers.",
	})

	ReaderCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qmakemodel_reader_cache_hits_total",
		Help: "Total number of project file reads served from the virtual file cache.",
	})

	ReaderCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qmakemodel_reader_cache_misses_total",
		Help: "Total number of project file reads that hit the file system.",
	})
)
