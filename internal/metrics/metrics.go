// Package metrics provides Prometheus metrics for the blockwatch sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all blockwatch metrics.
	Namespace = "blockwatch"
)

// Metrics holds all Prometheus metrics for the sync core. A nil *Metrics is
// valid and records nothing, so instrumentation stays optional in tests.
type Metrics struct {
	// Event stream
	EventsReceivedTotal *prometheus.CounterVec
	DecodeFailuresTotal prometheus.Counter

	// Reconciler
	StaleRevisionsTotal   prometheus.Counter
	ProjectionPurgesTotal prometheus.Counter
	JobsTracked           prometheus.Gauge

	// Transport
	ReconnectsTotal prometheus.Counter
	ConnectionState prometheus.Gauge
}

// New creates and registers all blockwatch metrics with reg. Passing nil
// registers against the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		EventsReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "events_received_total",
				Help:      "Total push events received, by event type",
			},
			[]string{"event"},
		),
		DecodeFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "decode_failures_total",
				Help:      "Total event payloads that failed to decode",
			},
		),
		StaleRevisionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "stale_revisions_total",
				Help:      "Total job updates discarded for carrying a stale revision",
			},
		),
		ProjectionPurgesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "projection_purges_total",
				Help:      "Total terminal-job projection purges",
			},
		),
		JobsTracked: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "jobs_tracked",
				Help:      "Jobs currently held in the recent-history window",
			},
		),
		ReconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "reconnects_total",
				Help:      "Total successful reconnections of the shared connection",
			},
		),
		ConnectionState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "connection_state",
				Help:      "Connection health (0=disconnected 1=connected 2=reconnecting 3=degraded 4=failed)",
			},
		),
	}
}

// EventReceived records one received event of the given type.
func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.EventsReceivedTotal.WithLabelValues(event).Inc()
}

// DecodeFailure records one undecodable payload.
func (m *Metrics) DecodeFailure() {
	if m == nil {
		return
	}
	m.DecodeFailuresTotal.Inc()
}

// StaleRevision records one discarded stale update.
func (m *Metrics) StaleRevision() {
	if m == nil {
		return
	}
	m.StaleRevisionsTotal.Inc()
}

// ProjectionPurge records one projection purge.
func (m *Metrics) ProjectionPurge() {
	if m == nil {
		return
	}
	m.ProjectionPurgesTotal.Inc()
}

// SetJobsTracked records the current history window size.
func (m *Metrics) SetJobsTracked(n int) {
	if m == nil {
		return
	}
	m.JobsTracked.Set(float64(n))
}

// Reconnected records one successful reconnection.
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

// SetConnectionState records the connection-health state ordinal.
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
}
