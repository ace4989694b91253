package flow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus instrumentation for a Runnable: node
// executions/duration, merge synchronizations, visit budget usage, and
// active thread-pool lanes.
type Metrics struct {
	mu sync.Mutex

	nodeExecutions    *prometheus.CounterVec
	nodeDuration      *prometheus.HistogramVec
	mergeSyncTotal    prometheus.Counter
	visitsUsed        prometheus.Gauge
	activeLanes       prometheus.Gauge
}

// NewMetrics registers this module's metric families on reg and returns
// a Metrics ready to pass to flow.WithMetrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowkit",
			Name:      "node_executions_total",
			Help:      "Total node executions, labeled by node name and outcome.",
		}, []string{"node", "outcome"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowkit",
			Name:      "node_duration_seconds",
			Help:      "Node body execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		mergeSyncTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowkit",
			Name:      "merge_synchronizations_total",
			Help:      "Total number of merge nodes that completed synchronization and ran.",
		}),
		visitsUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowkit",
			Name:      "node_visits_used",
			Help:      "Node visits consumed so far by the run that most recently took a step.",
		}),
		activeLanes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowkit",
			Name:      "thread_pool_active_lanes",
			Help:      "Number of logical thread lanes currently scheduled.",
		}),
	}
	reg.MustRegister(m.nodeExecutions, m.nodeDuration, m.mergeSyncTotal, m.visitsUsed, m.activeLanes)
	return m
}

func (m *Metrics) observeVisit(used int64) {
	if m == nil {
		return
	}
	m.visitsUsed.Set(float64(used))
}

func (m *Metrics) observeMergeDelivery(completed bool) {
	if m == nil || !completed {
		return
	}
	m.mergeSyncTotal.Inc()
}

func (m *Metrics) observeActiveLanes(n int) {
	if m == nil {
		return
	}
	m.activeLanes.Set(float64(n))
}

func (m *Metrics) observeNodeExecution(node, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeExecutions.WithLabelValues(node, outcome).Inc()
	m.nodeDuration.WithLabelValues(node).Observe(seconds)
}
