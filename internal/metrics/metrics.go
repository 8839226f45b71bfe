// Package metrics exposes the streamer's Prometheus collectors, grounded on
// the teacher's pkg/metrics/metrics.go namespace/subsystem layout.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds mstream's own collectors, kept separate from the global
// default registry so embedding applications don't inherit our metrics.
var Registry = prometheus.NewRegistry()

var (
	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mstream",
			Subsystem: "handler",
			Name:      "events_processed_total",
			Help:      "Total number of source events processed by a connector's handler.",
		},
		[]string{"connector"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mstream",
			Subsystem: "handler",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped by the middleware chain.",
		},
		[]string{"connector"},
	)

	SinkPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mstream",
			Subsystem: "sink",
			Name:      "publishes_total",
			Help:      "Total number of sink publish attempts, by outcome.",
		},
		[]string{"connector", "sink", "outcome"},
	)

	SinkPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mstream",
			Subsystem: "sink",
			Name:      "publish_duration_seconds",
			Help:      "Duration of sink publish calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"connector", "sink"},
	)

	CheckpointLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mstream",
			Subsystem: "checkpoint",
			Name:      "lag_seconds",
			Help:      "Seconds since a connector's checkpoint last advanced.",
		},
		[]string{"connector"},
	)

	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mstream",
			Subsystem: "jobmanager",
			Name:      "jobs_running",
			Help:      "Current number of live connector jobs.",
		},
	)
)

func init() {
	Registry.MustRegister(EventsProcessed, EventsDropped, SinkPublishes, SinkPublishDuration, CheckpointLagSeconds, JobsRunning)
}

// Handler exposes Registry on the conventional /metrics path.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
