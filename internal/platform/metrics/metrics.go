package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the director service.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	controlRequestsTotal prometheus.Counter
	controlRejectedTotal prometheus.Counter
	takeoversTotal       prometheus.Counter
	releasesTotal        prometheus.Counter
	forcedReleasesTotal  prometheus.Counter
	activeLiveSlots      prometheus.Gauge
	eventSubscribers     prometheus.Gauge
}

// New creates and registers Prometheus metrics for the director service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "director_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "director_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	controlRequestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "director_control_requests_total",
		Help: "Total number of live-slot control requests received by the authority",
	})
	controlRejectedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "director_control_rejected_total",
		Help: "Total number of control requests rejected by validation",
	})
	takeoversTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "director_takeovers_total",
		Help: "Total number of live-slot ownership handoffs between peers",
	})
	releasesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "director_releases_total",
		Help: "Total number of owner-initiated control releases",
	})
	forcedReleasesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "director_forced_releases_total",
		Help: "Total number of operator or disconnect-triggered releases",
	})
	activeLiveSlots := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "director_active_live_slots",
		Help: "Number of live slots with an active ownership record",
	})
	eventSubscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "director_event_subscribers",
		Help: "Number of attached record-change subscriptions",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		controlRequestsTotal,
		controlRejectedTotal,
		takeoversTotal,
		releasesTotal,
		forcedReleasesTotal,
		activeLiveSlots,
		eventSubscribers,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		controlRequestsTotal: controlRequestsTotal,
		controlRejectedTotal: controlRejectedTotal,
		takeoversTotal:       takeoversTotal,
		releasesTotal:        releasesTotal,
		forcedReleasesTotal:  forcedReleasesTotal,
		activeLiveSlots:      activeLiveSlots,
		eventSubscribers:     eventSubscribers,
	}
}

// IncRequests increments the HTTP request counter.
func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

// IncControlRequests increments the control request counter.
func (m *Metrics) IncControlRequests() { m.controlRequestsTotal.Inc() }

// IncControlRejected increments the rejected control request counter.
func (m *Metrics) IncControlRejected() { m.controlRejectedTotal.Inc() }

// IncTakeovers increments the ownership takeover counter.
func (m *Metrics) IncTakeovers() { m.takeoversTotal.Inc() }

// IncReleases increments the owner release counter.
func (m *Metrics) IncReleases() { m.releasesTotal.Inc() }

// IncForcedReleases increments the forced release counter.
func (m *Metrics) IncForcedReleases() { m.forcedReleasesTotal.Inc() }

// SetActiveLiveSlots sets the active live slot gauge.
func (m *Metrics) SetActiveLiveSlots(n int) { m.activeLiveSlots.Set(float64(n)) }

// SetEventSubscribers sets the subscriber gauge.
func (m *Metrics) SetEventSubscribers(n int) { m.eventSubscribers.Set(float64(n)) }

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
