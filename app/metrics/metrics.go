// Package metrics holds the Prometheus collectors of the link pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "linksift"

// Worker run outcomes.
const (
	OutcomeIdle      = "idle"
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	WorkerRuns      *prometheus.CounterVec
	WorkerDuration  *prometheus.HistogramVec
	SearchDuration  prometheus.Histogram
	SearchResults   prometheus.Histogram
	Links           *prometheus.GaugeVec
	ReclaimedClaims prometheus.Counter
}

// New registers all collectors with reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		WorkerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "worker_runs_total",
			Help:      "Pipeline worker invocations by outcome",
		}, []string{"worker", "outcome"}),
		WorkerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "worker_duration_seconds",
			Help:      "Duration of pipeline worker invocations",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"worker"}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of semantic searches",
			Buckets:   prometheus.DefBuckets,
		}),
		SearchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_results",
			Help:      "Links returned per search",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),
		Links: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "links",
			Help:      "Links by pipeline status",
		}, []string{"status"}),
		ReclaimedClaims: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reclaimed_claims_total",
			Help:      "Stale in-progress claims returned to their pending status",
		}),
	}
}

func (m *Metrics) ObserveWorker(worker, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.WorkerRuns.WithLabelValues(worker, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.WorkerDuration.WithLabelValues(worker).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveSearch(results int, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.Observe(d.Seconds())
	m.SearchResults.Observe(float64(results))
}

// SetLinkCounts replaces the per-status gauges.
func (m *Metrics) SetLinkCounts(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.Links.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) AddReclaimed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ReclaimedClaims.Add(float64(n))
}
