// Package metrics provides Prometheus collectors for download sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the session metrics exposed on /metrics
type Collector struct {
	sessionsTotal   *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	segmentsFetched prometheus.Counter
	inProgress      prometheus.Gauge
}

// New creates a collector and registers it with reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func New(namespace string, reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Download sessions by terminal status and strategy",
			},
			[]string{"status", "strategy"},
		),
		sessionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Wall time from session start to terminal state",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"strategy"},
		),
		segmentsFetched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "segments_fetched_total",
				Help:      "Media segments fetched from upstream",
			},
		),
		inProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_in_progress",
				Help:      "Sessions currently being processed",
			},
		),
	}

	reg.MustRegister(c.sessionsTotal, c.sessionDuration, c.segmentsFetched, c.inProgress)
	return c
}

// SessionStarted records a session entering processing
func (c *Collector) SessionStarted() {
	c.inProgress.Inc()
}

// SessionFinished records a terminal session with its outcome and duration
func (c *Collector) SessionFinished(status, strategy string, seconds float64) {
	c.inProgress.Dec()
	c.sessionsTotal.WithLabelValues(status, strategy).Inc()
	c.sessionDuration.WithLabelValues(strategy).Observe(seconds)
}

// SegmentFetched counts one fetched segment
func (c *Collector) SegmentFetched() {
	c.segmentsFetched.Inc()
}
