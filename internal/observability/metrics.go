package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for
// clustering runs and parameter sweeps.
type Metrics struct {
	EventsProcessed      prometheus.Counter
	StormsWritten        prometheus.Counter
	ExperimentsCreated   prometheus.Counter
	DuplicateExperiments prometheus.Counter

	RunsCompleted prometheus.Counter
	RunsFailed    prometheus.Counter
	RunsSkipped   prometheus.Counter

	WindowSize  prometheus.Histogram
	StormSize   prometheus.Histogram
	RunDuration prometheus.Histogram

	ActiveWorkers prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.EventsProcessed,
		m.StormsWritten,
		m.ExperimentsCreated,
		m.DuplicateExperiments,
		m.RunsCompleted,
		m.RunsFailed,
		m.RunsSkipped,
		m.WindowSize,
		m.StormSize,
		m.RunDuration,
		m.ActiveWorkers,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics to avoid "already
// registered" panics when multiple tests construct them.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_cluster",
			Name:      "events_processed_total",
			Help:      "Total lightning events assigned to storms.",
		}),
		StormsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_cluster",
			Name:      "storms_written_total",
			Help:      "Total finalized storms persisted.",
		}),
		ExperimentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_cluster",
			Name:      "experiments_created_total",
			Help:      "Total new experiments registered.",
		}),
		DuplicateExperiments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_cluster",
			Name:      "duplicate_experiments_total",
			Help:      "Total runs skipped because an identical experiment existed.",
		}),
		RunsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_cluster",
			Name:      "runs_completed_total",
			Help:      "Total clustering runs that finished successfully.",
		}),
		RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_cluster",
			Name:      "runs_failed_total",
			Help:      "Total clustering runs aborted by an error.",
		}),
		RunsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_cluster",
			Name:      "runs_skipped_total",
			Help:      "Total sweep grid points skipped as duplicates.",
		}),
		WindowSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_cluster",
			Name:      "window_size_events",
			Help:      "Events per gap-bounded candidate window.",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		}),
		StormSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_cluster",
			Name:      "storm_size_events",
			Help:      "Member events per finalized storm.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_cluster",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete clustering run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storm_cluster",
			Name:      "active_workers",
			Help:      "Sweep workers currently executing a grid point.",
		}),
	}
}
