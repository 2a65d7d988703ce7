// Package metrics exposes crawl counters to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one run. Each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	ArtifactsTotal   *prometheus.CounterVec
	DownloadBytes    prometheus.Counter
	DownloadDuration *prometheus.HistogramVec
	RetriesTotal     *prometheus.CounterVec
	PagesFetched     *prometheus.CounterVec
	RunErrors        *prometheus.CounterVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ArtifactsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artsync_artifacts_total",
			Help: "Artifacts evaluated, by subject kind and outcome.",
		}, []string{"kind", "outcome"}),
		DownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "artsync_download_bytes_total",
			Help: "Bytes written by completed downloads.",
		}),
		DownloadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "artsync_download_duration_seconds",
			Help:    "Time spent per file download including retries.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artsync_download_retries_total",
			Help: "Download retries, by fault type.",
		}, []string{"fault"}),
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artsync_pages_fetched_total",
			Help: "Listing pages fetched, by subject kind.",
		}, []string{"kind"}),
		RunErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artsync_run_errors_total",
			Help: "Failures recorded in the run error list, by fault type.",
		}, []string{"type"}),
	}
}

// Registry is the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveDownload(outcome string, bytes int64, elapsed time.Duration) {
	if outcome == "ok" && bytes > 0 {
		m.DownloadBytes.Add(float64(bytes))
	}
	m.DownloadDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRetry(fault string) {
	m.RetriesTotal.WithLabelValues(fault).Inc()
}

func (m *Metrics) ObserveArtifact(kind, outcome string) {
	m.ArtifactsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObservePage(kind string) {
	m.PagesFetched.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRunError(errorType string) {
	m.RunErrors.WithLabelValues(errorType).Inc()
}
