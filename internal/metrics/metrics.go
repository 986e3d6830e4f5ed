// Package metrics exposes Prometheus instrumentation for the broadcast server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters and gauges for rooms, usage and fan-out.
type Metrics struct {
	registry             *prometheus.Registry
	roomsRunning         prometheus.Gauge
	usageSeconds         prometheus.Gauge
	sessionsStartedTotal prometheus.Counter
	sessionsStoppedTotal prometheus.Counter
	forceStopsTotal      prometheus.Counter
	broadcastsTotal      prometheus.Counter
}

// New creates and registers the metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	roomsRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "babbler_rooms_running",
		Help: "Number of rooms with an active session",
	})
	usageSeconds := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "babbler_usage_seconds",
		Help: "Live aggregate session seconds used in the current period",
	})
	sessionsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "babbler_sessions_started_total",
		Help: "Total number of sessions started",
	})
	sessionsStoppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "babbler_sessions_stopped_total",
		Help: "Total number of sessions stopped by an explicit request",
	})
	forceStopsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "babbler_force_stops_total",
		Help: "Total number of sessions stopped by quota exhaustion",
	})
	broadcastsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "babbler_broadcasts_total",
		Help: "Total number of updates fanned out to room subscribers",
	})

	registry.MustRegister(
		roomsRunning,
		usageSeconds,
		sessionsStartedTotal,
		sessionsStoppedTotal,
		forceStopsTotal,
		broadcastsTotal,
	)

	return &Metrics{
		registry:             registry,
		roomsRunning:         roomsRunning,
		usageSeconds:         usageSeconds,
		sessionsStartedTotal: sessionsStartedTotal,
		sessionsStoppedTotal: sessionsStoppedTotal,
		forceStopsTotal:      forceStopsTotal,
		broadcastsTotal:      broadcastsTotal,
	}
}

// SetRoomsRunning sets the running rooms gauge.
func (m *Metrics) SetRoomsRunning(n int) {
	m.roomsRunning.Set(float64(n))
}

// SetUsageSeconds sets the live usage gauge.
func (m *Metrics) SetUsageSeconds(secs float64) {
	m.usageSeconds.Set(secs)
}

// IncSessionsStarted increments the started sessions counter.
func (m *Metrics) IncSessionsStarted() {
	m.sessionsStartedTotal.Inc()
}

// IncSessionsStopped increments the stopped sessions counter.
func (m *Metrics) IncSessionsStopped() {
	m.sessionsStoppedTotal.Inc()
}

// AddForceStops adds n quota force-stops to the counter.
func (m *Metrics) AddForceStops(n int) {
	m.forceStopsTotal.Add(float64(n))
}

// IncBroadcasts increments the fan-out counter.
func (m *Metrics) IncBroadcasts() {
	m.broadcastsTotal.Inc()
}

// Handler returns an http.Handler serving the registry. updateGauges is
// called before each scrape to refresh gauge values from the coordinator.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
