package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "station_snapshots"

// Metrics holds the Prometheus collectors for discovery and snapshot collection.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec // labels: result={ok,discovery_failed}
	RunDuration        prometheus.Histogram
	PipelineRunning    prometheus.Gauge
	LastSuccess        prometheus.Gauge
	StationsDiscovered prometheus.Gauge
	RowsDropped        prometheus.Counter

	// Per-item snapshot metrics.
	Snapshots     *prometheus.CounterVec // labels: outcome={saved,skipped,failed}
	SnapshotBytes prometheus.Counter
	FetchDuration prometheus.Histogram

	EventsPublished *prometheus.CounterVec // labels: result={success,error}
}

// NewMetrics creates and registers all collector metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := NewMetricsForTesting()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.PipelineRunning,
		m.LastSuccess,
		m.StationsDiscovered,
		m.RowsDropped,
		m.Snapshots,
		m.SnapshotBytes,
		m.FetchDuration,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Collection runs by result.",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete discovery and fetch run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run whose discovery succeeded.",
		}),
		StationsDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stations_discovered",
			Help:      "Stations found by the most recent successful discovery.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Station table rows without an extractable identifier.",
		}),
		Snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshot fetches by outcome.",
		}, []string{"outcome"}),
		SnapshotBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_bytes_total",
			Help:      "Bytes written to snapshot files.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single snapshot fetch and write.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Snapshot events published to Kafka by result.",
		}, []string{"result"}),
	}
}
