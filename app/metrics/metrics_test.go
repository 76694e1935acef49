package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveWorker(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveWorker("fetch", OutcomeProcessed, time.Second)
	m.ObserveWorker("fetch", OutcomeProcessed, time.Second)
	m.ObserveWorker("fetch", OutcomeSkipped, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkerRuns.WithLabelValues("fetch", OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerRuns.WithLabelValues("fetch", OutcomeSkipped)))
}

func TestMetrics_Gauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetLinkCounts(map[string]int{"pending_fetch": 3, "success": 1})
	m.AddReclaimed(2)
	m.AddReclaimed(0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Links.WithLabelValues("pending_fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Links.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReclaimedClaims))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveWorker("embed", OutcomeFailed, time.Second)
		m.ObserveSearch(3, time.Second)
		m.SetLinkCounts(map[string]int{"failed": 1})
		m.AddReclaimed(1)
	})
}
