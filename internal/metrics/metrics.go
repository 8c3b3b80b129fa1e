// Package metrics provides Prometheus metrics for the agent runtime.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for one runtime.
type Metrics struct {
	SpawnsTotal      *prometheus.CounterVec
	TicksTotal       *prometheus.CounterVec
	TickDuration     *prometheus.HistogramVec
	FaultsTotal      *prometheus.CounterVec
	MessagesRouted   prometheus.Counter
	MessagesRejected *prometheus.CounterVec
	MessagesDropped  prometheus.Counter
	HostsByState     *prometheus.GaugeVec
	RoundsTotal      prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SpawnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentropic_spawns_total",
				Help: "Spawn attempts by result.",
			},
			[]string{"result"},
		),
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentropic_ticks_total",
				Help: "Agent ticks by lifecycle phase.",
			},
			[]string{"phase"},
		),
		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentropic_tick_duration_seconds",
				Help:    "Tick duration by lifecycle phase.",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"phase"},
		),
		FaultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentropic_faults_total",
				Help: "Lifecycle callback failures by phase.",
			},
			[]string{"phase"},
		),
		MessagesRouted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agentropic_messages_routed_total",
				Help: "Messages accepted into a recipient mailbox.",
			},
		),
		MessagesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentropic_messages_rejected_total",
				Help: "Messages refused by the router, by reason.",
			},
			[]string{"reason"},
		),
		MessagesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agentropic_messages_dropped_total",
				Help: "Queued messages evicted by the drop-oldest policy.",
			},
		),
		HostsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentropic_hosts",
				Help: "Registered agent hosts by lifecycle state.",
			},
			[]string{"state"},
		),
		RoundsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agentropic_scheduler_rounds_total",
				Help: "Scheduler rounds completed.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.SpawnsTotal)
	reg.MustRegister(m.TicksTotal)
	reg.MustRegister(m.TickDuration)
	reg.MustRegister(m.FaultsTotal)
	reg.MustRegister(m.MessagesRouted)
	reg.MustRegister(m.MessagesRejected)
	reg.MustRegister(m.MessagesDropped)
	reg.MustRegister(m.HostsByState)
	reg.MustRegister(m.RoundsTotal)

	return m
}

// Registry exposes the underlying registry for gatherers and tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSpawn counts a spawn attempt.
func (m *Metrics) RecordSpawn(result string) {
	m.SpawnsTotal.WithLabelValues(result).Inc()
}

// ObserveTick records one tick of the given phase.
func (m *Metrics) ObserveTick(phase string, seconds float64) {
	m.TicksTotal.WithLabelValues(phase).Inc()
	m.TickDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordFault counts a callback failure.
func (m *Metrics) RecordFault(phase string) {
	m.FaultsTotal.WithLabelValues(phase).Inc()
}

// RecordRouted counts a delivered message; dropped reports a drop-oldest eviction.
func (m *Metrics) RecordRouted(dropped bool) {
	m.MessagesRouted.Inc()
	if dropped {
		m.MessagesDropped.Inc()
	}
}

// RecordRejected counts a refused message.
func (m *Metrics) RecordRejected(reason string) {
	m.MessagesRejected.WithLabelValues(reason).Inc()
}

// SetHostStates replaces the per-state host gauge.
func (m *Metrics) SetHostStates(counts map[string]int) {
	m.HostsByState.Reset()
	for state, n := range counts {
		m.HostsByState.WithLabelValues(state).Set(float64(n))
	}
}

// RecordRound counts a completed scheduler round.
func (m *Metrics) RecordRound() { m.RoundsTotal.Inc() }
