// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the agent's Prometheus metrics. Per-verdict
// counters are resolved to their children at construction so the packet
// path increments without label lookups or allocation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pushkar-gr/Aegis/internal/engine"
)

// Metrics holds all agent Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	packets *prometheus.CounterVec
	// Child counters indexed by reason, resolved once.
	byReason []prometheus.Counter

	SessionsActive  prometheus.Gauge
	SessionCapacity prometheus.Gauge
	SessionInserts  prometheus.Counter
	SessionRemovals prometheus.Counter
	SessionsReaped  prometheus.Counter
	SessionsEvicted prometheus.Counter

	OffloadAttached prometheus.Gauge
	OffloadErrors   prometheus.Counter

	QueueVerdictErrors prometheus.Counter
}

// New creates and registers the agent metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_packets_total",
			Help: "Packets decided, by verdict and matching rule",
		}, []string{"verdict", "reason"}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_sessions_active",
			Help: "Authorized flows currently in the session table",
		}),
		SessionCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_sessions_capacity",
			Help: "Maximum entries the session table can hold",
		}),
		SessionInserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_session_inserts_total",
			Help: "Session authorizations accepted from the controller",
		}),
		SessionRemovals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_session_removals_total",
			Help: "Session revocations accepted from the controller",
		}),
		SessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_sessions_reaped_total",
			Help: "Idle sessions removed by the reaper",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_sessions_evicted_total",
			Help: "Sessions evicted by LRU capacity pressure",
		}),

		OffloadAttached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_xdp_attached",
			Help: "Whether the XDP offload is attached (1) or not (0)",
		}),
		OffloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_xdp_errors_total",
			Help: "Errors syncing sessions to the kernel map",
		}),

		QueueVerdictErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_nfqueue_verdict_errors_total",
			Help: "Failures to deliver a verdict to nfqueue",
		}),
	}

	m.byReason = make([]prometheus.Counter, len(engine.Reasons()))
	for _, r := range engine.Reasons() {
		verdict := engine.VerdictDrop
		switch r {
		case engine.ReasonARP, engine.ReasonController, engine.ReasonAuthorized:
			verdict = engine.VerdictPass
		}
		m.byReason[r] = m.packets.WithLabelValues(verdict.String(), r.String())
	}

	m.registry.MustRegister(
		m.packets,
		m.SessionsActive, m.SessionCapacity,
		m.SessionInserts, m.SessionRemovals,
		m.SessionsReaped, m.SessionsEvicted,
		m.OffloadAttached, m.OffloadErrors,
		m.QueueVerdictErrors,
	)
	return m
}

// RecordVerdict implements engine.Recorder.
func (m *Metrics) RecordVerdict(_ engine.Verdict, reason engine.Reason) {
	if int(reason) < len(m.byReason) {
		m.byReason[reason].Inc()
	}
}

// Handler returns the /metrics HTTP handler for the agent registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
