// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goldtier/pkg/protocol"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	processed     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	escalated     *prometheus.CounterVec
	retries       *prometheus.CounterVec
	dropped       prometheus.Counter
	jobsFired     *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	queueDepth    *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldtier_items_processed_total",
			Help: "Work items executed successfully.",
		}, []string{"role"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldtier_items_failed_total",
			Help: "Work item executions that returned an error.",
		}, []string{"role"}),
		escalated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldtier_items_escalated_total",
			Help: "Work items that were escalated and removed from the pipeline.",
		}, []string{"role"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldtier_retries_total",
			Help: "Failed work items re-enqueued for another attempt.",
		}, []string{"role"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goldtier_items_dropped_total",
			Help: "Follow-up items dropped because their category has no route.",
		}),
		jobsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goldtier_jobs_fired_total",
			Help: "Scheduled job firings.",
		}, []string{"job"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "goldtier_cycle_duration_seconds",
			Help:    "Duration of orchestration cycles.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goldtier_queue_depth",
			Help: "Items waiting in each role queue at the end of the last cycle.",
		}, []string{"role"}),
	}
	reg.MustRegister(m.processed, m.failed, m.escalated, m.retries, m.dropped, m.jobsFired, m.cycleDuration, m.queueDepth)
	return m
}

// ItemProcessed counts a successful execution.
func (m *Metrics) ItemProcessed(role protocol.Role) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(string(role)).Inc()
}

// ItemFailed counts a failed execution.
func (m *Metrics) ItemFailed(role protocol.Role) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(string(role)).Inc()
}

// ItemEscalated counts an escalation.
func (m *Metrics) ItemEscalated(role protocol.Role) {
	if m == nil {
		return
	}
	m.escalated.WithLabelValues(string(role)).Inc()
}

// Retried counts a re-enqueue.
func (m *Metrics) Retried(role protocol.Role) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(role)).Inc()
}

// Dropped counts n unroutable follow-ups.
func (m *Metrics) Dropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.Add(float64(n))
}

// JobFired counts one firing of job.
func (m *Metrics) JobFired(job string) {
	if m == nil {
		return
	}
	m.jobsFired.WithLabelValues(job).Inc()
}

// CycleCompleted observes a cycle's duration.
func (m *Metrics) CycleCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

// QueueDepth sets the current depth of role's queue.
func (m *Metrics) QueueDepth(role protocol.Role, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(string(role)).Set(float64(depth))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
